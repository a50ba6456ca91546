package clickhouse

import (
	"strings"

	"hermannm.dev/gridbase/db/aggregation"
)

type QueryBuilder struct {
	strings.Builder
}

// Writes the identifier in backticks, escaping any backticks inside it.
func (builder *QueryBuilder) WriteIdentifier(identifier string) {
	builder.WriteString(aggregation.QuoteClickHouseIdentifier(identifier))
}

func (builder *QueryBuilder) WriteIdentifiers(identifiers []string) {
	for i, identifier := range identifiers {
		if i != 0 {
			builder.WriteString(", ")
		}
		builder.WriteIdentifier(identifier)
	}
}
