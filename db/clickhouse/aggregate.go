package clickhouse

import (
	"context"
	"errors"
	"reflect"

	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/db/aggregation"
	"hermannm.dev/wrap"
)

func (clickhouse ClickHouseDB) Aggregate(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	requests []db.AggregationField,
) (db.AggregationResult, error) {
	result := db.AggregationResult{Aggregations: []db.AggregationValue{}}
	if len(requests) == 0 {
		return result, nil
	}

	compiler := aggregation.NewCompiler(aggregation.ClickHouse, table.DBTableName)
	query := compiler.NewQueryBuilder()

	statement, args, err := compiler.ToQuerySQL(query, db.FieldsByID(fields), requests)
	if err != nil {
		return db.AggregationResult{}, wrap.Error(err, "failed to compile aggregation query")
	}

	rows, err := clickhouse.conn.Query(ctx, statement, args...)
	if err != nil {
		return db.AggregationResult{}, wrap.Error(err, "aggregation query failed")
	}
	defer rows.Close()

	// The driver only scans into concrete types, so destinations are allocated from the column
	// types of the result.
	columnTypes := rows.ColumnTypes()
	destinations := make([]any, len(columnTypes))
	for i, columnType := range columnTypes {
		destinations[i] = reflect.New(columnType.ScanType()).Interface()
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return db.AggregationResult{}, wrap.Error(err, "aggregation query failed")
		}
		return db.AggregationResult{}, errors.New("aggregation query returned no rows")
	}
	if err := rows.Scan(destinations...); err != nil {
		return db.AggregationResult{}, wrap.Error(err, "failed to scan aggregation result")
	}

	for i, column := range query.Columns() {
		value, err := db.NewAggregationValue(
			db.AggregationField{FieldID: column.FieldID, StatisticFunc: column.StatisticFunc},
			dereference(destinations[i]),
		)
		if err != nil {
			return db.AggregationResult{}, err
		}
		result.Aggregations = append(result.Aggregations, value)
	}

	return result, nil
}

// Follows pointers until reaching a value, returning nil for nil pointers (NULL results of
// Nullable columns).
func dereference(value any) any {
	reflected := reflect.ValueOf(value)
	for reflected.Kind() == reflect.Pointer {
		if reflected.IsNil() {
			return nil
		}
		reflected = reflected.Elem()
	}
	return reflected.Interface()
}
