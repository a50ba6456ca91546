package db

import "time"

type Record struct {
	ID               string         `json:"id"`
	Fields           map[string]any `json:"fields"`
	CreatedTime      time.Time      `json:"createdTime"`
	LastModifiedTime *time.Time     `json:"lastModifiedTime,omitempty"`
	Version          int            `json:"version"`
}

// Cell values to write for a record, keyed by field ID. Fields missing from the map are left
// untouched on update.
type RecordInput struct {
	ID     string
	Fields map[string]any
}

func NewRecordID() string {
	return newID("rec")
}

// An uploaded file referenced from an attachment field.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Token    string `json:"token"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
	Hash     string `json:"hash,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

func NewAttachmentID() string {
	return newID("act")
}
