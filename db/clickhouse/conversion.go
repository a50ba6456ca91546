package clickhouse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cast"
	"hermannm.dev/gridbase/db"
)

// All field columns are nullable, since cells may be empty. Text and JSON share a column type.
// See https://clickhouse.com/docs/en/sql-reference/data-types
var clickhouseDataTypes = map[db.DBFieldType]string{
	db.DBFieldTypeText:     "Nullable(String)",
	db.DBFieldTypeInteger:  "Nullable(Int64)",
	db.DBFieldTypeReal:     "Nullable(Float64)",
	db.DBFieldTypeDateTime: "Nullable(DateTime64(3, 'UTC'))",
	db.DBFieldTypeBoolean:  "Nullable(Bool)",
	db.DBFieldTypeJSON:     "Nullable(String)",
}

// Converts a cell value to the Go type the driver expects for the field's column.
func convertCellValue(field db.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch field.DBFieldType {
	case db.DBFieldTypeText:
		return cast.ToStringE(value)
	case db.DBFieldTypeInteger:
		return cast.ToInt64E(value)
	case db.DBFieldTypeReal:
		return cast.ToFloat64E(value)
	case db.DBFieldTypeBoolean:
		return cast.ToBoolE(value)
	case db.DBFieldTypeDateTime:
		date, err := cast.ToTimeE(value)
		if err != nil {
			return nil, err
		}
		return date.UTC(), nil
	case db.DBFieldTypeJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}

	return nil, fmt.Errorf("unrecognized storage type '%v'", field.DBFieldType)
}

func lastModifiedTime(record db.Record) *time.Time {
	if record.LastModifiedTime == nil {
		return nil
	}
	utc := record.LastModifiedTime.UTC()
	return &utc
}
