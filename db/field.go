package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// A field's compiled runtime descriptor. Values of this type are treated as immutable once
// constructed.
type Field struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Type                FieldType     `json:"type"`
	CellValueType       CellValueType `json:"cellValueType"`
	DBFieldType         DBFieldType   `json:"dbFieldType"`
	DBFieldName         string        `json:"dbFieldName"`
	IsMultipleCellValue bool          `json:"isMultipleCellValue,omitempty"`
	IsComputed          bool          `json:"isComputed,omitempty"`
	Options             FieldOptions  `json:"options"`
}

type FieldOptions struct {
	// Only used by singleSelect and multipleSelect fields.
	Choices []SelectChoice `json:"choices,omitempty"`
	// Only used by rating fields. Defaults to DefaultRatingMax when 0.
	Max int `json:"max,omitempty"`
}

type SelectChoice struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

const DefaultRatingMax = 5

// Input for creating a new field on a table.
type FieldInput struct {
	Name    string       `json:"name"`
	Type    FieldType    `json:"type"`
	Options FieldOptions `json:"options"`
}

func (input FieldInput) Validate() error {
	if strings.TrimSpace(input.Name) == "" {
		return errors.New("field name is blank")
	}
	if !input.Type.IsValid() {
		return errors.New("invalid field type")
	}
	if input.Options.Max < 0 {
		return errors.New("rating max cannot be negative")
	}
	return nil
}

// Constructs a field of the given type, deriving its cell value type and storage from the type.
// The physical column name is derived from the field name and ID.
func NewField(id string, input FieldInput) Field {
	descriptor := fieldTypeDescriptors[input.Type]

	return Field{
		ID:                  id,
		Name:                input.Name,
		Type:                input.Type,
		CellValueType:       descriptor.cellValueType,
		DBFieldType:         descriptor.dbFieldType,
		DBFieldName:         dbFieldName(input, id),
		IsMultipleCellValue: descriptor.isMultipleCellValue,
		IsComputed:          descriptor.isComputed,
		Options:             input.Options,
	}
}

func NewFieldID() string {
	return newID("fld")
}

var nonIdentifierChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// Names of the columns that every physical table has, besides one column per field.
const (
	RecordIDColumn               = "__id"
	RecordCreatedTimeColumn      = "__created_time"
	RecordLastModifiedTimeColumn = "__last_modified_time"
	RecordVersionColumn          = "__version"
)

// Computed time fields read from the system columns, so they need no column of their own.
func dbFieldName(input FieldInput, id string) string {
	switch input.Type {
	case FieldTypeCreatedTime:
		return RecordCreatedTimeColumn
	case FieldTypeLastModifiedTime:
		return RecordLastModifiedTimeColumn
	}

	base := strings.Trim(nonIdentifierChars.ReplaceAllString(input.Name, "_"), "_")
	if base == "" || (base[0] >= '0' && base[0] <= '9') {
		base = "field" + base
	}
	return fmt.Sprintf("%s_%s", strings.ToLower(base), strings.ToLower(id))
}

func (field Field) RatingMax() int {
	if field.Options.Max > 0 {
		return field.Options.Max
	}
	return DefaultRatingMax
}

func (field Field) HasChoice(name string) bool {
	return lo.ContainsBy(field.Options.Choices, func(choice SelectChoice) bool {
		return choice.Name == name
	})
}

// Returns the field's key under the given key type, i.e. its name or its ID.
func (field Field) Key(keyType FieldKeyType) string {
	if keyType == FieldKeyTypeID {
		return field.ID
	}
	return field.Name
}

// Maps fields by ID, the form expected by aggregation compilers.
func FieldsByID(fields []Field) map[string]Field {
	return lo.KeyBy(fields, func(field Field) string {
		return field.ID
	})
}

type Table struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DBTableName string `json:"dbTableName"`
}

func NewTableID() string {
	return newID("tbl")
}

func NewDBTableName(tableID string) string {
	return "tbl_" + strings.ToLower(strings.TrimPrefix(tableID, "tbl"))
}

// Generates an ID with the given prefix followed by 16 random characters.
func newID(prefix string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + random[:16]
}
