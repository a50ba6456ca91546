package aggregation

import (
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

// Compiles aggregation requests against one physical table into select columns for a dialect.
type Compiler struct {
	dialect Dialect
	table   string
}

func NewCompiler(dialect Dialect, table string) Compiler {
	return Compiler{dialect: dialect, table: table}
}

// Returns a builder over "SELECT ... FROM table", with no columns yet. Callers wanting filters
// may instead pass their own base query to NewQueryBuilder.
func (compiler Compiler) NewQueryBuilder() *QueryBuilder {
	base := squirrel.Select().From(compiler.dialect.QuoteIdentifier(compiler.table))
	return NewQueryBuilder(compiler.dialect, base)
}

var compiledAggregations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbase",
		Name:      "compiled_aggregations_total",
		Help:      "Number of aggregation columns compiled, by dialect and statistic function.",
	},
	[]string{"dialect", "statistic_func"},
)

func init() {
	prometheus.MustRegister(compiledAggregations)
}

// Validates the requests against the fields, then appends one column per request to the query
// and renders it. With no requests, the query is rendered unchanged.
//
// Fails with db.InvalidFieldError or db.InvalidStatisticError before touching the query if any
// request is invalid.
func (compiler Compiler) ToQuerySQL(
	query *QueryBuilder,
	fields map[string]db.Field,
	requests []db.AggregationField,
) (sql string, args []any, err error) {
	if len(requests) == 0 {
		return query.ToSQL()
	}

	if err := db.ValidateAggregationFields(requests, fields); err != nil {
		return "", nil, err
	}

	if err := compiler.appendAggregations(query, fields, requests); err != nil {
		return "", nil, err
	}

	sql, args, err = query.ToSQL()
	if err != nil {
		return "", nil, wrap.Error(err, "failed to render aggregation query")
	}

	log.Debug(
		"compiled aggregation query",
		slog.String("dialect", compiler.dialect.Name),
		slog.String("table", compiler.table),
		slog.String("query", sql),
	)

	return sql, args, nil
}

// Requests referencing fields missing from the map are skipped. Validation rejects these before
// we get here, so this only matters when called directly.
func (compiler Compiler) appendAggregations(
	query *QueryBuilder,
	fields map[string]db.Field,
	requests []db.AggregationField,
) error {
	for _, request := range requests {
		field, ok := fields[request.FieldID]
		if !ok {
			continue
		}

		if err := compiler.HandlerFor(field).Compile(query, request.StatisticFunc); err != nil {
			return err
		}

		compiledAggregations.
			WithLabelValues(compiler.dialect.Name, request.StatisticFunc.OrDefault().String()).
			Inc()
	}

	return nil
}

func (compiler Compiler) HandlerFor(field db.Field) Handler {
	function := newAggregationFunction(compiler.dialect, compiler.table, field)

	family := Classify(field)
	switch family {
	case FamilyBoolean:
		return booleanAggregation{function}
	case FamilyNumber:
		return numberAggregation{function}
	case FamilyDateTime:
		return dateTimeAggregation{function}
	case FamilyString:
		return stringAggregation{function}
	case FamilyJSON:
		return jsonAggregation{function}
	}

	panic(fmt.Sprintf("no aggregation handler for family %v", family))
}
