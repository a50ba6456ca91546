package sqldb

import (
	"context"

	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/db/aggregation"
	"hermannm.dev/wrap"
)

func (database DB) Aggregate(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	requests []db.AggregationField,
) (db.AggregationResult, error) {
	result := db.AggregationResult{Aggregations: []db.AggregationValue{}}
	if len(requests) == 0 {
		return result, nil
	}

	compiler := aggregation.NewCompiler(database.dialect, table.DBTableName)
	query := compiler.NewQueryBuilder()

	statement, args, err := compiler.ToQuerySQL(query, db.FieldsByID(fields), requests)
	if err != nil {
		return db.AggregationResult{}, wrap.Error(err, "failed to compile aggregation query")
	}

	columns := query.Columns()
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	if err := database.conn(ctx).Raw(statement, args...).Row().Scan(pointers...); err != nil {
		return db.AggregationResult{}, wrap.Error(err, "aggregation query failed")
	}

	for i, column := range columns {
		value, err := db.NewAggregationValue(
			db.AggregationField{FieldID: column.FieldID, StatisticFunc: column.StatisticFunc},
			values[i],
		)
		if err != nil {
			return db.AggregationResult{}, err
		}
		result.Aggregations = append(result.Aggregations, value)
	}

	return result, nil
}
