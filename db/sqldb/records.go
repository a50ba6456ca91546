package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

// Inserts the records in one statement. Record IDs must be set by the caller.
func (database DB) InsertRecords(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	records []db.RecordInput,
) error {
	if len(records) == 0 {
		return nil
	}

	quote := database.dialect.QuoteIdentifier
	storedFields := lo.Reject(fields, func(field db.Field, _ int) bool {
		return field.IsComputed
	})

	columns := []string{
		quote(db.RecordIDColumn),
		quote(db.RecordCreatedTimeColumn),
		quote(db.RecordVersionColumn),
	}
	for _, field := range storedFields {
		columns = append(columns, quote(field.DBFieldName))
	}

	insert := squirrel.Insert(quote(table.DBTableName)).Columns(columns...)

	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			return errors.New("record ID must be set before insert")
		}

		values := make([]any, 0, len(columns))
		values = append(values, record.ID, now, 1)

		for _, field := range storedFields {
			value, err := encodeCellValue(field, record.Fields[field.ID])
			if err != nil {
				return wrap.Errorf(err, "failed to encode value for field '%s'", field.Name)
			}
			values = append(values, value)
		}

		insert = insert.Values(values...)
	}

	statement, args, err := insert.ToSql()
	if err != nil {
		return wrap.Error(err, "failed to build insert query")
	}

	if err := database.conn(ctx).Exec(statement, args...).Error; err != nil {
		return wrap.Error(err, "insert query failed")
	}

	return nil
}

// Writes the fields present in each record, leaving the others untouched, and bumps the record
// version. Fails with db.ErrRecordNotFound if a record does not exist.
func (database DB) UpdateRecords(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	records []db.RecordInput,
) error {
	quote := database.dialect.QuoteIdentifier
	fieldsByID := db.FieldsByID(fields)
	now := time.Now().UTC()

	for _, record := range records {
		update := squirrel.Update(quote(table.DBTableName)).
			Set(quote(db.RecordLastModifiedTimeColumn), now).
			Set(
				quote(db.RecordVersionColumn),
				squirrel.Expr(quote(db.RecordVersionColumn)+" + 1"),
			).
			Where(squirrel.Eq{quote(db.RecordIDColumn): record.ID})

		for fieldID, value := range record.Fields {
			field, ok := fieldsByID[fieldID]
			if !ok || field.IsComputed {
				continue
			}

			encoded, err := encodeCellValue(field, value)
			if err != nil {
				return wrap.Errorf(err, "failed to encode value for field '%s'", field.Name)
			}
			update = update.Set(quote(field.DBFieldName), encoded)
		}

		statement, args, err := update.ToSql()
		if err != nil {
			return wrap.Error(err, "failed to build update query")
		}

		result := database.conn(ctx).Exec(statement, args...)
		if result.Error != nil {
			return wrap.Errorf(result.Error, "update query failed for record '%s'", record.ID)
		}
		if result.RowsAffected == 0 {
			return wrap.Errorf(db.ErrRecordNotFound, "no record with ID '%s'", record.ID)
		}
	}

	return nil
}

func (database DB) GetRecords(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	ids []string,
) ([]db.Record, error) {
	if ids != nil && len(ids) == 0 {
		return nil, nil
	}

	quote := database.dialect.QuoteIdentifier

	columnNames := []string{
		db.RecordIDColumn,
		db.RecordCreatedTimeColumn,
		db.RecordLastModifiedTimeColumn,
		db.RecordVersionColumn,
	}
	for _, field := range fields {
		if !field.IsComputed {
			columnNames = append(columnNames, field.DBFieldName)
		}
	}

	query := squirrel.Select(lo.Map(columnNames, func(column string, _ int) string {
		return quote(column)
	})...).
		From(quote(table.DBTableName)).
		OrderBy(quote(db.RecordCreatedTimeColumn), quote(db.RecordIDColumn))
	if ids != nil {
		query = query.Where(squirrel.Eq{quote(db.RecordIDColumn): ids})
	}

	statement, args, err := query.ToSql()
	if err != nil {
		return nil, wrap.Error(err, "failed to build record query")
	}

	rows, err := database.conn(ctx).Raw(statement, args...).Rows()
	if err != nil {
		return nil, wrap.Error(err, "record query failed")
	}
	defer rows.Close()

	var records []db.Record
	for rows.Next() {
		values := make([]any, len(columnNames))
		pointers := make([]any, len(columnNames))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, wrap.Error(err, "failed to scan record row")
		}

		row := make(map[string]any, len(columnNames))
		for i, column := range columnNames {
			row[column] = values[i]
		}

		record, err := decodeRecord(row, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to read record rows")
	}

	if ids != nil {
		slices.SortStableFunc(records, func(a, b db.Record) int {
			return slices.Index(ids, a.ID) - slices.Index(ids, b.ID)
		})
	}

	return records, nil
}

func (database DB) DeleteRecords(
	ctx context.Context,
	table db.Table,
	ids []string,
) (deleted int, err error) {
	if len(ids) == 0 {
		return 0, nil
	}

	quote := database.dialect.QuoteIdentifier
	statement, args, err := squirrel.Delete(quote(table.DBTableName)).
		Where(squirrel.Eq{quote(db.RecordIDColumn): ids}).
		ToSql()
	if err != nil {
		return 0, wrap.Error(err, "failed to build delete query")
	}

	result := database.conn(ctx).Exec(statement, args...)
	if result.Error != nil {
		return 0, wrap.Error(result.Error, "delete query failed")
	}

	return int(result.RowsAffected), nil
}

func decodeRecord(row map[string]any, fields []db.Field) (db.Record, error) {
	var record db.Record

	id, err := cast.ToStringE(bytesToString(row[db.RecordIDColumn]))
	if err != nil {
		return db.Record{}, wrap.Error(err, "invalid record ID")
	}
	record.ID = id

	createdTime, err := cast.ToTimeE(bytesToString(row[db.RecordCreatedTimeColumn]))
	if err != nil {
		return db.Record{}, wrap.Errorf(err, "invalid created time for record '%s'", id)
	}
	record.CreatedTime = createdTime.UTC()

	if lastModified := row[db.RecordLastModifiedTimeColumn]; lastModified != nil {
		lastModifiedTime, err := cast.ToTimeE(bytesToString(lastModified))
		if err != nil {
			return db.Record{}, wrap.Errorf(err, "invalid last modified time for record '%s'", id)
		}
		lastModifiedTime = lastModifiedTime.UTC()
		record.LastModifiedTime = &lastModifiedTime
	}

	version, err := cast.ToIntE(row[db.RecordVersionColumn])
	if err != nil {
		return db.Record{}, wrap.Errorf(err, "invalid version for record '%s'", id)
	}
	record.Version = version

	record.Fields = make(map[string]any, len(fields))
	for _, field := range fields {
		value, err := decodeCellValue(field, row[field.DBFieldName])
		if err != nil {
			return db.Record{}, wrap.Errorf(
				err,
				"invalid value for field '%s' in record '%s'",
				field.Name,
				id,
			)
		}
		if value != nil {
			record.Fields[field.ID] = value
		}
	}

	return record, nil
}

// Converts a typecasted cell value to what the field's column stores.
func encodeCellValue(field db.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch field.DBFieldType {
	case db.DBFieldTypeJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	case db.DBFieldTypeDateTime:
		date, err := cast.ToTimeE(value)
		if err != nil {
			return nil, err
		}
		return date.UTC(), nil
	}

	return value, nil
}

func decodeCellValue(field db.Field, raw any) (any, error) {
	raw = bytesToString(raw)
	if raw == nil {
		return nil, nil
	}

	switch field.DBFieldType {
	case db.DBFieldTypeText:
		return cast.ToStringE(raw)
	case db.DBFieldTypeInteger:
		return cast.ToIntE(raw)
	case db.DBFieldTypeReal:
		return cast.ToFloat64E(raw)
	case db.DBFieldTypeBoolean:
		return cast.ToBoolE(raw)
	case db.DBFieldTypeDateTime:
		date, err := cast.ToTimeE(raw)
		if err != nil {
			return nil, err
		}
		return date.UTC(), nil
	case db.DBFieldTypeJSON:
		encoded, err := cast.ToStringE(raw)
		if err != nil {
			return nil, err
		}
		return decodeJSONCell(field, []byte(encoded))
	}

	return nil, fmt.Errorf("unrecognized storage type '%v'", field.DBFieldType)
}

func decodeJSONCell(field db.Field, encoded []byte) (any, error) {
	switch field.Type {
	case db.FieldTypeAttachment:
		var attachments []db.Attachment
		if err := json.Unmarshal(encoded, &attachments); err != nil {
			return nil, err
		}
		return attachments, nil
	case db.FieldTypeMultipleSelect:
		var choices []string
		if err := json.Unmarshal(encoded, &choices); err != nil {
			return nil, err
		}
		return choices, nil
	}

	var value any
	if err := json.Unmarshal(encoded, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func bytesToString(value any) any {
	if bytes, ok := value.([]byte); ok {
		return string(bytes)
	}
	return value
}
