package db

import (
	"hermannm.dev/enumnames"
)

// The user-facing type of a field, which determines its cell value type and storage.
type FieldType uint8

const (
	FieldTypeSingleLineText FieldType = iota + 1
	FieldTypeLongText
	FieldTypeNumber
	FieldTypeRating
	FieldTypeCheckbox
	FieldTypeDate
	FieldTypeSingleSelect
	FieldTypeMultipleSelect
	FieldTypeAttachment
	FieldTypeCreatedTime
	FieldTypeLastModifiedTime
)

var fieldTypeNames = enumnames.NewMap(map[FieldType]string{
	FieldTypeSingleLineText:   "singleLineText",
	FieldTypeLongText:         "longText",
	FieldTypeNumber:           "number",
	FieldTypeRating:           "rating",
	FieldTypeCheckbox:         "checkbox",
	FieldTypeDate:             "date",
	FieldTypeSingleSelect:     "singleSelect",
	FieldTypeMultipleSelect:   "multipleSelect",
	FieldTypeAttachment:       "attachment",
	FieldTypeCreatedTime:      "createdTime",
	FieldTypeLastModifiedTime: "lastModifiedTime",
})

func (fieldType FieldType) IsValid() bool {
	_, ok := fieldTypeNames.GetName(fieldType)
	return ok
}

func (fieldType FieldType) String() string {
	return fieldTypeNames.GetNameOrFallback(fieldType, "INVALID_FIELD_TYPE")
}

func (fieldType FieldType) MarshalJSON() ([]byte, error) {
	return fieldTypeNames.MarshalToNameJSON(fieldType)
}

func (fieldType *FieldType) UnmarshalJSON(bytes []byte) error {
	return fieldTypeNames.UnmarshalFromNameJSON(bytes, fieldType)
}

type fieldTypeDescriptor struct {
	cellValueType       CellValueType
	dbFieldType         DBFieldType
	isMultipleCellValue bool
	isComputed          bool
}

var fieldTypeDescriptors = map[FieldType]fieldTypeDescriptor{
	FieldTypeSingleLineText:   {CellValueTypeString, DBFieldTypeText, false, false},
	FieldTypeLongText:         {CellValueTypeString, DBFieldTypeText, false, false},
	FieldTypeNumber:           {CellValueTypeNumber, DBFieldTypeReal, false, false},
	FieldTypeRating:           {CellValueTypeNumber, DBFieldTypeInteger, false, false},
	FieldTypeCheckbox:         {CellValueTypeBoolean, DBFieldTypeBoolean, false, false},
	FieldTypeDate:             {CellValueTypeDateTime, DBFieldTypeDateTime, false, false},
	FieldTypeSingleSelect:     {CellValueTypeString, DBFieldTypeText, false, false},
	FieldTypeMultipleSelect:   {CellValueTypeString, DBFieldTypeJSON, true, false},
	FieldTypeAttachment:       {CellValueTypeString, DBFieldTypeJSON, true, false},
	FieldTypeCreatedTime:      {CellValueTypeDateTime, DBFieldTypeDateTime, false, true},
	FieldTypeLastModifiedTime: {CellValueTypeDateTime, DBFieldTypeDateTime, false, true},
}
