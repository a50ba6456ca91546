package db

import (
	"context"
)

// A database that can compute statistics over the records of a table.
type AggregationDB interface {
	Aggregate(
		ctx context.Context,
		table Table,
		fields []Field,
		requests []AggregationField,
	) (AggregationResult, error)
}

// A secondary database that holds copies of tables for running statistics, kept separate from
// the primary record store.
type AnalyticsDB interface {
	AggregationDB

	CreateTable(ctx context.Context, table Table, fields []Field) error

	// Records must have their fields keyed by field ID.
	InsertRecords(ctx context.Context, table Table, fields []Field, records []Record) error

	DropTable(ctx context.Context, table Table) (alreadyDropped bool, err error)
}

// The primary store of tables and records. All record writes go through a transaction.
type RecordStore interface {
	RunInTransaction(ctx context.Context, fn func(tx RecordTx) error) error
}

// Operations available inside a RecordStore transaction. Records passed in and returned have
// their fields keyed by field ID.
type RecordTx interface {
	GetTable(ctx context.Context, tableID string) (Table, error)
	GetFields(ctx context.Context, tableID string) ([]Field, error)

	// Returns the fields of the table whose name or ID (depending on keyType) is in keys. Keys
	// that match no field are left out, so callers compare lengths to detect them.
	GetFieldsByKeys(
		ctx context.Context,
		tableID string,
		keys []string,
		keyType FieldKeyType,
	) ([]Field, error)

	UpdateFieldOptions(ctx context.Context, fieldID string, options FieldOptions) error

	InsertRecords(ctx context.Context, table Table, fields []Field, records []RecordInput) error
	UpdateRecords(ctx context.Context, table Table, fields []Field, records []RecordInput) error

	// Returns the records with the given IDs, in the order of the IDs, skipping IDs that are not
	// found. A nil ids slice returns every record in the table.
	GetRecords(ctx context.Context, table Table, fields []Field, ids []string) ([]Record, error)

	DeleteRecords(ctx context.Context, table Table, ids []string) (deleted int, err error)
}
