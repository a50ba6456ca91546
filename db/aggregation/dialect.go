package aggregation

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// The SQL syntax that differs between the databases we compile aggregations for. Table and column
// arguments are passed already quoted.
type Dialect struct {
	Name              string
	PlaceholderFormat squirrel.PlaceholderFormat
	QuoteIdentifier   func(identifier string) string
	// Literal that a boolean column is compared against to count checked cells.
	TrueLiteral       string
	DateRangeOfDays   func(column string) string
	DateRangeOfMonths func(column string) string
	// Counts the distinct elements across the JSON arrays stored in the column. Like the other
	// expressions, it aggregates over the rows selected by the enclosing query, so base query
	// filters apply to it.
	JSONUniqueCount func(table string, column string) string
	// Sums the numeric property with the given key across the objects of the JSON arrays stored
	// in the column, over the rows selected by the enclosing query.
	JSONSumOfKey func(table string, column string, key string) string
}

var Postgres = Dialect{
	Name:              "postgres",
	PlaceholderFormat: squirrel.Dollar,
	QuoteIdentifier:   pq.QuoteIdentifier,
	TrueLiteral:       "TRUE",
	DateRangeOfDays: func(column string) string {
		return fmt.Sprintf("EXTRACT(DAY FROM MAX(%[1]s) - MIN(%[1]s))", column)
	},
	DateRangeOfMonths: func(column string) string {
		return fmt.Sprintf(
			"(EXTRACT(YEAR FROM AGE(MAX(%[1]s), MIN(%[1]s))) * 12 + "+
				"EXTRACT(MONTH FROM AGE(MAX(%[1]s), MIN(%[1]s))))",
			column,
		)
	},
	JSONUniqueCount: func(table string, column string) string {
		return fmt.Sprintf(
			"(SELECT COUNT(DISTINCT elem.value) FROM "+
				"jsonb_array_elements(jsonb_agg(%[1]s.%[2]s) FILTER (WHERE %[1]s.%[2]s IS NOT NULL)) AS cell(value), "+
				"jsonb_array_elements_text(cell.value) AS elem(value))",
			table,
			column,
		)
	},
	JSONSumOfKey: func(table string, column string, key string) string {
		return fmt.Sprintf(
			"SUM((SELECT SUM((elem.value ->> %[3]s)::NUMERIC) FROM jsonb_array_elements(%[1]s.%[2]s) AS elem(value)))",
			table,
			column,
			pq.QuoteLiteral(key),
		)
	},
}

var SQLite = Dialect{
	Name:              "sqlite",
	PlaceholderFormat: squirrel.Question,
	QuoteIdentifier:   pq.QuoteIdentifier,
	TrueLiteral:       "1",
	DateRangeOfDays: func(column string) string {
		return fmt.Sprintf("CAST(julianday(MAX(%[1]s)) - julianday(MIN(%[1]s)) AS INTEGER)", column)
	},
	DateRangeOfMonths: func(column string) string {
		return fmt.Sprintf(
			"((CAST(strftime('%%Y', MAX(%[1]s)) AS INTEGER) - CAST(strftime('%%Y', MIN(%[1]s)) AS INTEGER)) * 12 + "+
				"(CAST(strftime('%%m', MAX(%[1]s)) AS INTEGER) - CAST(strftime('%%m', MIN(%[1]s)) AS INTEGER)))",
			column,
		)
	},
	JSONUniqueCount: func(table string, column string) string {
		return fmt.Sprintf(
			"(SELECT COUNT(DISTINCT je.value) FROM "+
				"json_each(json_group_array(json(%[1]s.%[2]s)) FILTER (WHERE %[1]s.%[2]s IS NOT NULL)) AS cell, "+
				"json_each(cell.value) AS je)",
			table,
			column,
		)
	},
	JSONSumOfKey: func(table string, column string, key string) string {
		return fmt.Sprintf(
			"SUM((SELECT SUM(json_extract(je.value, %[3]s)) FROM json_each(%[1]s.%[2]s) AS je))",
			table,
			column,
			pq.QuoteLiteral("$."+key),
		)
	},
}

// JSON cells are stored as String columns in ClickHouse, so they are parsed with the JSON*
// functions. See https://clickhouse.com/docs/en/sql-reference/functions/json-functions
var ClickHouse = Dialect{
	Name:              "clickhouse",
	PlaceholderFormat: squirrel.Question,
	QuoteIdentifier:   QuoteClickHouseIdentifier,
	TrueLiteral:       "true",
	DateRangeOfDays: func(column string) string {
		return fmt.Sprintf("dateDiff('day', MIN(%[1]s), MAX(%[1]s))", column)
	},
	DateRangeOfMonths: func(column string) string {
		return fmt.Sprintf("dateDiff('month', MIN(%[1]s), MAX(%[1]s))", column)
	},
	JSONUniqueCount: func(_ string, column string) string {
		return fmt.Sprintf(
			"length(groupUniqArrayArray(JSONExtract(ifNull(%s, '[]'), 'Array(String)')))",
			column,
		)
	},
	JSONSumOfKey: func(_ string, column string, key string) string {
		return fmt.Sprintf(
			"sum(arraySum(arrayMap(x -> JSONExtractFloat(x, %s), JSONExtractArrayRaw(ifNull(%s, '[]')))))",
			pq.QuoteLiteral(key),
			column,
		)
	},
}

// ClickHouse quotes identifiers with backticks, escaping any backticks inside them with a
// backslash. See https://clickhouse.com/docs/en/sql-reference/syntax#identifiers
func QuoteClickHouseIdentifier(identifier string) string {
	escaped := strings.ReplaceAll(identifier, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "`", "\\`")
	return "`" + escaped + "`"
}
