package db

import (
	"hermannm.dev/enumnames"
)

// The physical encoding of a field's column in the database.
type DBFieldType uint8

const (
	DBFieldTypeText DBFieldType = iota + 1
	DBFieldTypeInteger
	DBFieldTypeReal
	DBFieldTypeDateTime
	DBFieldTypeBoolean
	DBFieldTypeJSON
)

var dbFieldTypeNames = enumnames.NewMap(map[DBFieldType]string{
	DBFieldTypeText:     "TEXT",
	DBFieldTypeInteger:  "INTEGER",
	DBFieldTypeReal:     "REAL",
	DBFieldTypeDateTime: "DATETIME",
	DBFieldTypeBoolean:  "BOOLEAN",
	DBFieldTypeJSON:     "JSON",
})

func (dbFieldType DBFieldType) IsValid() bool {
	_, ok := dbFieldTypeNames.GetName(dbFieldType)
	return ok
}

func (dbFieldType DBFieldType) String() string {
	return dbFieldTypeNames.GetNameOrFallback(dbFieldType, "INVALID_DB_FIELD_TYPE")
}

func (dbFieldType DBFieldType) MarshalJSON() ([]byte, error) {
	return dbFieldTypeNames.MarshalToNameJSON(dbFieldType)
}

func (dbFieldType *DBFieldType) UnmarshalJSON(bytes []byte) error {
	return dbFieldTypeNames.UnmarshalFromNameJSON(bytes, dbFieldType)
}
