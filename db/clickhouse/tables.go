package clickhouse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

// Fields that store their own column, i.e. all but the computed ones.
func storedFields(fields []db.Field) []db.Field {
	return lo.Reject(fields, func(field db.Field, _ int) bool {
		return field.IsComputed
	})
}

func createTableQuery(table db.Table, fields []db.Field) (string, error) {
	var query QueryBuilder

	query.WriteString("CREATE TABLE ")
	query.WriteIdentifier(table.DBTableName)
	query.WriteString(" (")

	query.WriteIdentifier(db.RecordIDColumn)
	query.WriteString(" String, ")
	query.WriteIdentifier(db.RecordCreatedTimeColumn)
	query.WriteString(" DateTime64(3, 'UTC'), ")
	query.WriteIdentifier(db.RecordLastModifiedTimeColumn)
	query.WriteString(" Nullable(DateTime64(3, 'UTC')), ")
	query.WriteIdentifier(db.RecordVersionColumn)
	query.WriteString(" Int64")

	for _, field := range storedFields(fields) {
		dataType, ok := clickhouseDataTypes[field.DBFieldType]
		if !ok {
			return "", fmt.Errorf(
				"invalid storage type '%v' in field '%s'",
				field.DBFieldType,
				field.Name,
			)
		}

		query.WriteString(", ")
		query.WriteIdentifier(field.DBFieldName)
		query.WriteRune(' ')
		query.WriteString(dataType)
	}

	query.WriteRune(')')
	query.WriteString(" ENGINE = MergeTree()")
	query.WriteString(" PRIMARY KEY (")
	query.WriteIdentifier(db.RecordIDColumn)
	query.WriteRune(')')

	return query.String(), nil
}

func (clickhouse ClickHouseDB) CreateTable(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
) error {
	query, err := createTableQuery(table, fields)
	if err != nil {
		return wrap.Error(err, "failed to build create table query")
	}

	if err := clickhouse.conn.Exec(ctx, query); err != nil {
		return wrap.Error(err, "create table query failed")
	}

	return nil
}

// ClickHouse recommends keeping batch inserts between 10,000 and 100,000 rows:
// https://clickhouse.com/docs/en/cloud/bestpractices/bulk-inserts
const BatchInsertSize = 10000

func insertQuery(table db.Table, fields []db.Field) string {
	var query QueryBuilder
	query.WriteString("INSERT INTO ")
	query.WriteIdentifier(table.DBTableName)
	query.WriteString(" (")
	query.WriteIdentifiers(insertColumns(fields))
	query.WriteRune(')')
	return query.String()
}

func insertColumns(fields []db.Field) []string {
	columns := []string{
		db.RecordIDColumn,
		db.RecordCreatedTimeColumn,
		db.RecordLastModifiedTimeColumn,
		db.RecordVersionColumn,
	}
	for _, field := range storedFields(fields) {
		columns = append(columns, field.DBFieldName)
	}
	return columns
}

func convertRecord(fields []db.Field, record db.Record) ([]any, error) {
	row := []any{
		record.ID,
		record.CreatedTime.UTC(),
		lastModifiedTime(record),
		int64(record.Version),
	}

	for _, field := range storedFields(fields) {
		value, err := convertCellValue(field, record.Fields[field.ID])
		if err != nil {
			return nil, wrap.Errorf(err, "invalid value for field '%s'", field.Name)
		}
		row = append(row, value)
	}

	return row, nil
}

func (clickhouse ClickHouseDB) InsertRecords(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	records []db.Record,
) error {
	query := insertQuery(table, fields)

	for _, chunk := range lo.Chunk(records, BatchInsertSize) {
		batch, err := clickhouse.conn.PrepareBatch(ctx, query)
		if err != nil {
			return wrap.Error(err, "failed to prepare batch data insert")
		}

		for _, record := range chunk {
			row, err := convertRecord(fields, record)
			if err != nil {
				return wrap.Errorf(err, "failed to convert record '%s'", record.ID)
			}

			if err := batch.Append(row...); err != nil {
				return wrap.Errorf(err, "failed to add record '%s' to batch insert", record.ID)
			}
		}

		if err := batch.Send(); err != nil {
			return wrap.Error(err, "failed to send batch insert")
		}

		log.Debug(
			"sent batch insert to ClickHouse",
			slog.String("table", table.DBTableName),
			slog.Int("rows", len(chunk)),
		)
	}

	return nil
}
