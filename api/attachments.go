package api

import (
	"net/http"
	"path"
	"strings"

	"hermannm.dev/gridbase/attachments"
	"hermannm.dev/gridbase/db"
)

// Attachments uploaded through the API are stored under this directory of the public bucket.
const attachmentDir = "table"

// Issues a token for uploading a file with the given content type and length.
//
// Expects:
//   - Body: JSON object with "contentType", "contentLength" and optionally "hash"
//
// Returns:
//   - 201 with the token, the upload URL, the HTTP method to use and the headers to send
func (api API) CreateUploadSignature(res http.ResponseWriter, req *http.Request) {
	if !api.requireStorage(res) {
		return
	}

	var body attachments.PresignParams
	if err := decodeBody(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}
	if body.ContentType == "" {
		sendClientError(res, nil, "missing 'contentType' in request body")
		return
	}

	result, err := api.storage.Presigned(req.Context(), attachments.PublicBucket, attachmentDir, body)
	if err != nil {
		sendError(res, err, "failed to create upload signature")
		return
	}

	sendJSONWithStatus(res, http.StatusCreated, result)
}

// Receives the file for an upload token.
//
// Expects:
//   - Path parameter: token
//   - Header Content-Type: must match the signature
//   - Body: the file content
//
// Returns:
//   - 200 with the stored file's metadata
func (api API) UploadAttachment(res http.ResponseWriter, req *http.Request) {
	if !api.requireStorage(res) {
		return
	}

	meta, err := api.storage.Upload(
		req.Context(),
		req.PathValue("token"),
		req.Body,
		req.Header.Get("Content-Type"),
	)
	if err != nil {
		sendError(res, err, "failed to upload file")
		return
	}

	sendJSON(res, meta)
}

// Returns the attachment cell value for a completed upload, which can then be written to an
// attachment field.
//
// Expects:
//   - Path parameter: token
//
// Returns:
//   - 200 with the attachment, including a read URL and image dimensions where applicable
func (api API) NotifyAttachment(res http.ResponseWriter, req *http.Request) {
	if !api.requireStorage(res) {
		return
	}

	ctx := req.Context()
	attachment, err := api.storage.ResolveAttachment(ctx, req.PathValue("token"))
	if err != nil {
		sendError(res, err, "failed to get uploaded file")
		return
	}

	bucket, filePath, _ := strings.Cut(attachment.Path, "/")
	object, err := api.storage.GetObject(ctx, bucket, filePath, attachment.Token)
	if err != nil {
		sendError(res, err, "failed to get uploaded file")
		return
	}

	sendJSON(res, struct {
		Attachment   db.Attachment `json:"attachment"`
		PresignedURL string        `json:"presignedUrl"`
	}{attachment, object.URL})
}

// Serves a stored file.
//
// Expects:
//   - Path parameters: bucket, path
//   - Query parameter "token": a read token from a signed URL, issued for this bucket and path
//
// Returns:
//   - 200 with the file content, and any response headers embedded in the token
func (api API) ReadAttachment(res http.ResponseWriter, req *http.Request) {
	if !api.requireStorage(res) {
		return
	}

	bucket, objectPath := req.PathValue("bucket"), req.PathValue("path")
	headers, err := api.storage.VerifyReadToken(req.URL.Query().Get("token"), bucket, objectPath)
	if err != nil {
		sendError(res, err, "")
		return
	}

	filePath := path.Join(bucket, objectPath)
	file, err := api.storage.Read(filePath)
	if err != nil {
		sendError(res, err, "failed to read file")
		return
	}
	defer file.Close()

	for name, value := range headers {
		res.Header().Set(name, value)
	}

	modifiedTime, _ := api.storage.LastModifiedTime(filePath)
	http.ServeContent(res, req, path.Base(filePath), modifiedTime, file)
}

func (api API) requireStorage(res http.ResponseWriter) bool {
	if api.storage == nil {
		sendErrorWithStatus(
			res,
			http.StatusInternalServerError,
			nil,
			"attachment storage is not configured",
		)
		return false
	}
	return true
}
