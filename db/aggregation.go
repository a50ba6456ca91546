package db

import (
	"fmt"
	"slices"

	"github.com/spf13/cast"
	"hermannm.dev/wrap"
)

// A single (field, statistic) pair in an aggregation request.
type AggregationField struct {
	FieldID       string        `json:"fieldId"`
	StatisticFunc StatisticFunc `json:"statisticFunc,omitempty"`
}

func (aggregation AggregationField) String() string {
	return fmt.Sprintf("%s_%s", aggregation.FieldID, aggregation.StatisticFunc.OrDefault())
}

type AggregationResult struct {
	Aggregations []AggregationValue `json:"aggregations"`
}

type AggregationValue struct {
	FieldID       string        `json:"fieldId"`
	StatisticFunc StatisticFunc `json:"statisticFunc"`
	Value         any           `json:"value"`
}

// Checks every requested pair against the given fields, before anything is compiled. Fails with
// InvalidFieldError if a field ID is not in the map, or InvalidStatisticError if the requested
// function is not allowed for the field. Pairs without a statistic function are always valid.
func ValidateAggregationFields(requests []AggregationField, fields map[string]Field) error {
	for _, request := range requests {
		field, ok := fields[request.FieldID]
		if !ok {
			return &InvalidFieldError{FieldID: request.FieldID}
		}

		if !request.StatisticFunc.IsSpecified() {
			continue
		}

		valid := ValidStatisticFuncs(field)
		if !slices.Contains(valid, request.StatisticFunc) {
			return &InvalidStatisticError{
				FieldID:       request.FieldID,
				StatisticFunc: request.StatisticFunc,
				Allowed:       valid,
			}
		}
	}

	return nil
}

// Converts a raw aggregate value from a database driver to the type the statistic function
// produces: int64 for counts, sizes and date ranges, time.Time (UTC) for earliest/latest dates,
// and float64 for everything else. NULL results stay nil.
func NormalizeAggregationValue(statisticFunc StatisticFunc, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if bytes, ok := value.([]byte); ok {
		value = string(bytes)
	}

	switch statisticFunc.OrDefault() {
	case StatisticEarliestDate, StatisticLatestDate:
		date, err := cast.ToTimeE(value)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to parse %s result as date", statisticFunc)
		}
		return date.UTC(), nil
	case StatisticCount,
		StatisticEmpty,
		StatisticFilled,
		StatisticUnique,
		StatisticChecked,
		StatisticUnChecked,
		StatisticDateRangeOfDays,
		StatisticDateRangeOfMonths,
		StatisticTotalAttachmentSize:
		number, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to parse %s result as integer", statisticFunc)
		}
		return int64(number), nil
	default:
		number, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to parse %s result as number", statisticFunc)
		}
		return number, nil
	}
}

// Helper for building results when the aggregation backend returns one value per request, in
// request order.
func NewAggregationValue(request AggregationField, rawValue any) (AggregationValue, error) {
	statisticFunc := request.StatisticFunc.OrDefault()

	value, err := NormalizeAggregationValue(statisticFunc, rawValue)
	if err != nil {
		return AggregationValue{}, wrap.Errorf(err, "invalid result for aggregation '%s'", request)
	}

	return AggregationValue{FieldID: request.FieldID, StatisticFunc: statisticFunc, Value: value}, nil
}
