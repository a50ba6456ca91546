package aggregation

import (
	"fmt"
	"strconv"

	"github.com/Masterminds/squirrel"
	"hermannm.dev/gridbase/db"
)

// Accumulates aggregate select columns on top of a caller-supplied base query. The base query
// carries the FROM clause and any filters, and is left untouched apart from the added columns.
type QueryBuilder struct {
	query   squirrel.SelectBuilder
	dialect Dialect
	columns []Column
	// Number of times each unquoted alias has been added, for deduplicating repeated pairs.
	aliasCounts map[string]int
}

// A select column added by the builder, mapping the result alias back to the requested pair.
type Column struct {
	Alias         string
	FieldID       string
	StatisticFunc db.StatisticFunc
}

func NewQueryBuilder(dialect Dialect, base squirrel.SelectBuilder) *QueryBuilder {
	return &QueryBuilder{
		query:       base.PlaceholderFormat(dialect.PlaceholderFormat),
		dialect:     dialect,
		aliasCounts: make(map[string]int),
	}
}

// Appends "expression AS alias" to the select list, where the alias is {fieldId}_{statisticFunc}.
// A pair that was already added gets a numeric suffix, so every column alias is unique.
func (builder *QueryBuilder) AddColumn(
	expression string,
	fieldID string,
	statisticFunc db.StatisticFunc,
) Column {
	alias := fmt.Sprintf("%s_%s", fieldID, statisticFunc)

	builder.aliasCounts[alias]++
	if count := builder.aliasCounts[alias]; count > 1 {
		alias += "_" + strconv.Itoa(count)
	}

	builder.query = builder.query.Column(
		fmt.Sprintf("%s AS %s", expression, builder.dialect.QuoteIdentifier(alias)),
	)

	column := Column{Alias: alias, FieldID: fieldID, StatisticFunc: statisticFunc}
	builder.columns = append(builder.columns, column)
	return column
}

// Returns the columns added so far, in the order they were added.
func (builder *QueryBuilder) Columns() []Column {
	return append([]Column(nil), builder.columns...)
}

// Renders the query with its bound parameters. Rendering does not modify the builder, so it may be
// called repeatedly with the same result.
func (builder *QueryBuilder) ToSQL() (sql string, args []any, err error) {
	return builder.query.ToSql()
}
