package aggregation

import (
	"fmt"

	"hermannm.dev/gridbase/db"
)

// Appends the select column for one statistic function on one field.
type Handler interface {
	// Fails with db.InvalidStatisticError if the function is not supported by the handler, in
	// which case nothing is added to the query. An unspecified function compiles as
	// db.DefaultStatisticFunc.
	Compile(query *QueryBuilder, statisticFunc db.StatisticFunc) error
}

// State and expressions shared by all handlers. Each family embeds it and layers its own
// functions on top.
type aggregationFunction struct {
	field   db.Field
	dialect Dialect
	// Quoted names.
	table  string
	column string
}

func newAggregationFunction(dialect Dialect, table string, field db.Field) aggregationFunction {
	return aggregationFunction{
		field:   field,
		dialect: dialect,
		table:   dialect.QuoteIdentifier(table),
		column:  dialect.QuoteIdentifier(field.DBFieldName),
	}
}

func (function aggregationFunction) compile(
	query *QueryBuilder,
	statisticFunc db.StatisticFunc,
	expression func(db.StatisticFunc) (string, bool),
) error {
	statisticFunc = statisticFunc.OrDefault()

	sql, ok := expression(statisticFunc)
	if !ok {
		return &db.InvalidStatisticError{
			FieldID:       function.field.ID,
			StatisticFunc: statisticFunc,
			Allowed:       db.ValidStatisticFuncs(function.field),
		}
	}

	query.AddColumn(sql, function.field.ID, statisticFunc)
	return nil
}

func (function aggregationFunction) expression(statisticFunc db.StatisticFunc) (string, bool) {
	switch statisticFunc {
	case db.StatisticCount:
		return "COUNT(*)", true
	case db.StatisticEmpty:
		return function.empty(), true
	case db.StatisticFilled:
		return function.filled(), true
	case db.StatisticUnique:
		return function.unique(), true
	case db.StatisticPercentEmpty:
		return percentOfAll(function.empty()), true
	case db.StatisticPercentFilled:
		return percentOfAll(function.filled()), true
	case db.StatisticPercentUnique:
		return percentOfAll(function.unique()), true
	}

	return "", false
}

func (function aggregationFunction) empty() string {
	return fmt.Sprintf("COUNT(*) - COUNT(%s)", function.column)
}

func (function aggregationFunction) filled() string {
	return fmt.Sprintf("COUNT(%s)", function.column)
}

func (function aggregationFunction) unique() string {
	return fmt.Sprintf("COUNT(DISTINCT %s)", function.column)
}

// Scales the expression to a percentage of all rows in the query, yielding NULL for an empty
// table.
func percentOfAll(expression string) string {
	return fmt.Sprintf("(%s) * 100.0 / NULLIF(COUNT(*), 0)", expression)
}

type booleanAggregation struct {
	aggregationFunction
}

func (aggregation booleanAggregation) Compile(
	query *QueryBuilder,
	statisticFunc db.StatisticFunc,
) error {
	return aggregation.compile(query, statisticFunc, aggregation.expression)
}

func (aggregation booleanAggregation) expression(statisticFunc db.StatisticFunc) (string, bool) {
	switch statisticFunc {
	case db.StatisticChecked:
		return aggregation.checked(), true
	case db.StatisticUnChecked:
		return aggregation.unchecked(), true
	case db.StatisticPercentChecked:
		return percentOfAll(aggregation.checked()), true
	case db.StatisticPercentUnChecked:
		return percentOfAll(aggregation.unchecked()), true
	}

	return aggregation.aggregationFunction.expression(statisticFunc)
}

func (aggregation booleanAggregation) checked() string {
	return fmt.Sprintf(
		"COUNT(CASE WHEN %s = %s THEN 1 END)",
		aggregation.column,
		aggregation.dialect.TrueLiteral,
	)
}

// Unchecked cells are the ones not checked, including those left empty.
func (aggregation booleanAggregation) unchecked() string {
	return fmt.Sprintf("COUNT(*) - %s", aggregation.checked())
}

type numberAggregation struct {
	aggregationFunction
}

func (aggregation numberAggregation) Compile(
	query *QueryBuilder,
	statisticFunc db.StatisticFunc,
) error {
	return aggregation.compile(query, statisticFunc, aggregation.expression)
}

func (aggregation numberAggregation) expression(statisticFunc db.StatisticFunc) (string, bool) {
	switch statisticFunc {
	case db.StatisticMax:
		return fmt.Sprintf("MAX(%s)", aggregation.column), true
	case db.StatisticMin:
		return fmt.Sprintf("MIN(%s)", aggregation.column), true
	case db.StatisticSum:
		return fmt.Sprintf("SUM(%s)", aggregation.column), true
	case db.StatisticAverage:
		return fmt.Sprintf("AVG(%s)", aggregation.column), true
	}

	return aggregation.aggregationFunction.expression(statisticFunc)
}

type dateTimeAggregation struct {
	aggregationFunction
}

func (aggregation dateTimeAggregation) Compile(
	query *QueryBuilder,
	statisticFunc db.StatisticFunc,
) error {
	return aggregation.compile(query, statisticFunc, aggregation.expression)
}

func (aggregation dateTimeAggregation) expression(statisticFunc db.StatisticFunc) (string, bool) {
	switch statisticFunc {
	case db.StatisticEarliestDate:
		return fmt.Sprintf("MIN(%s)", aggregation.column), true
	case db.StatisticLatestDate:
		return fmt.Sprintf("MAX(%s)", aggregation.column), true
	case db.StatisticDateRangeOfDays:
		return aggregation.dialect.DateRangeOfDays(aggregation.column), true
	case db.StatisticDateRangeOfMonths:
		return aggregation.dialect.DateRangeOfMonths(aggregation.column), true
	}

	return aggregation.aggregationFunction.expression(statisticFunc)
}

type stringAggregation struct {
	aggregationFunction
}

func (aggregation stringAggregation) Compile(
	query *QueryBuilder,
	statisticFunc db.StatisticFunc,
) error {
	return aggregation.compile(query, statisticFunc, aggregation.expression)
}

// Handles string fields whose cells are JSON arrays. Uniqueness is counted over the array
// elements rather than over whole cells. The element expressions aggregate over the rows of the
// enclosing query, so percentUnique divides by the same filtered row count as its numerator.
type jsonAggregation struct {
	aggregationFunction
}

// Attachment objects store their byte size under this key.
const attachmentSizeKey = "size"

func (aggregation jsonAggregation) Compile(
	query *QueryBuilder,
	statisticFunc db.StatisticFunc,
) error {
	return aggregation.compile(query, statisticFunc, aggregation.expression)
}

func (aggregation jsonAggregation) expression(statisticFunc db.StatisticFunc) (string, bool) {
	switch statisticFunc {
	case db.StatisticUnique:
		return aggregation.uniqueElements(), true
	case db.StatisticPercentUnique:
		return percentOfAll(aggregation.uniqueElements()), true
	case db.StatisticTotalAttachmentSize:
		return aggregation.dialect.JSONSumOfKey(
			aggregation.table,
			aggregation.column,
			attachmentSizeKey,
		), true
	}

	return aggregation.aggregationFunction.expression(statisticFunc)
}

func (aggregation jsonAggregation) uniqueElements() string {
	return aggregation.dialect.JSONUniqueCount(aggregation.table, aggregation.column)
}
