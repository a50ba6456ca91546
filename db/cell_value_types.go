package db

import (
	"hermannm.dev/enumnames"
)

// The logical type of the values stored in a field, independent of how they are encoded in the
// database.
type CellValueType uint8

const (
	CellValueTypeBoolean CellValueType = iota + 1
	CellValueTypeNumber
	CellValueTypeDateTime
	CellValueTypeString
)

var cellValueTypeNames = enumnames.NewMap(map[CellValueType]string{
	CellValueTypeBoolean:  "boolean",
	CellValueTypeNumber:   "number",
	CellValueTypeDateTime: "dateTime",
	CellValueTypeString:   "string",
})

func (cellValueType CellValueType) IsValid() bool {
	_, ok := cellValueTypeNames.GetName(cellValueType)
	return ok
}

func (cellValueType CellValueType) String() string {
	return cellValueTypeNames.GetNameOrFallback(cellValueType, "INVALID_CELL_VALUE_TYPE")
}

func (cellValueType CellValueType) MarshalJSON() ([]byte, error) {
	return cellValueTypeNames.MarshalToNameJSON(cellValueType)
}

func (cellValueType *CellValueType) UnmarshalJSON(bytes []byte) error {
	return cellValueTypeNames.UnmarshalFromNameJSON(bytes, cellValueType)
}
