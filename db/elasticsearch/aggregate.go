package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

// A statistic request translated to Elasticsearch metric aggregations. Statistics that SQL
// computes in a single expression may need more than one aggregation here, and some (like
// filled) are derived from the total hit count.
type statisticPlan struct {
	name    string
	request db.AggregationField
	field   db.Field
}

func planStatistics(
	fields map[string]db.Field,
	requests []db.AggregationField,
) ([]statisticPlan, error) {
	if err := db.ValidateAggregationFields(requests, fields); err != nil {
		return nil, err
	}

	plans := make([]statisticPlan, 0, len(requests))
	for i, request := range requests {
		request.StatisticFunc = request.StatisticFunc.OrDefault()
		plans = append(plans, statisticPlan{
			name:    fmt.Sprintf("stat_%d", i),
			request: request,
			field:   fields[request.FieldID],
		})
	}
	return plans, nil
}

// Attachments are objects, so their aggregations target a property of the object.
func (plan statisticPlan) path(property string) string {
	if plan.field.Type == db.FieldTypeAttachment {
		return plan.field.DBFieldName + "." + property
	}
	return plan.field.DBFieldName
}

func (plan statisticPlan) aggregations() map[string]types.Aggregations {
	valuePath := plan.path("token")

	switch plan.request.StatisticFunc {
	case db.StatisticEmpty,
		db.StatisticFilled,
		db.StatisticPercentEmpty,
		db.StatisticPercentFilled:
		return map[string]types.Aggregations{
			plan.name: {Missing: &types.MissingAggregation{Field: &valuePath}},
		}
	case db.StatisticUnique, db.StatisticPercentUnique:
		return map[string]types.Aggregations{
			plan.name: {Cardinality: &types.CardinalityAggregation{Field: &valuePath}},
		}
	case db.StatisticChecked,
		db.StatisticUnChecked,
		db.StatisticPercentChecked,
		db.StatisticPercentUnChecked:
		return map[string]types.Aggregations{
			plan.name: {Filter: &types.Query{
				Term: map[string]types.TermQuery{valuePath: {Value: true}},
			}},
		}
	case db.StatisticMax, db.StatisticLatestDate:
		return map[string]types.Aggregations{
			plan.name: {Max: &types.MaxAggregation{Field: &valuePath}},
		}
	case db.StatisticMin, db.StatisticEarliestDate:
		return map[string]types.Aggregations{
			plan.name: {Min: &types.MinAggregation{Field: &valuePath}},
		}
	case db.StatisticSum:
		return map[string]types.Aggregations{
			plan.name: {Sum: &types.SumAggregation{Field: &valuePath}},
		}
	case db.StatisticAverage:
		return map[string]types.Aggregations{
			plan.name: {Avg: &types.AverageAggregation{Field: &valuePath}},
		}
	case db.StatisticDateRangeOfDays, db.StatisticDateRangeOfMonths:
		return map[string]types.Aggregations{
			plan.name + "_min": {Min: &types.MinAggregation{Field: &valuePath}},
			plan.name + "_max": {Max: &types.MaxAggregation{Field: &valuePath}},
		}
	case db.StatisticTotalAttachmentSize:
		sizePath := plan.path("size")
		return map[string]types.Aggregations{
			plan.name: {Sum: &types.SumAggregation{Field: &sizePath}},
		}
	}

	// Count only needs the total hit count.
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
	} `json:"hits"`
	Aggregations map[string]aggregateResult `json:"aggregations"`
}

// Covers the response shapes of the metric aggregations used here: single-value metrics have a
// value (null when no documents had one), while missing and filter have a doc count.
type aggregateResult struct {
	Value    *float64 `json:"value"`
	DocCount int64    `json:"doc_count"`
}

func (plan statisticPlan) value(total int64, results map[string]aggregateResult) any {
	result := results[plan.name]

	switch plan.request.StatisticFunc {
	case db.StatisticCount:
		return total
	case db.StatisticEmpty:
		return result.DocCount
	case db.StatisticFilled:
		return total - result.DocCount
	case db.StatisticPercentEmpty:
		return percentOf(float64(result.DocCount), total)
	case db.StatisticPercentFilled:
		return percentOf(float64(total-result.DocCount), total)
	case db.StatisticChecked:
		return result.DocCount
	case db.StatisticUnChecked:
		return total - result.DocCount
	case db.StatisticPercentChecked:
		return percentOf(float64(result.DocCount), total)
	case db.StatisticPercentUnChecked:
		return percentOf(float64(total-result.DocCount), total)
	case db.StatisticUnique:
		return valueOrZero(result.Value)
	case db.StatisticPercentUnique:
		return percentOf(valueOrZero(result.Value), total)
	case db.StatisticEarliestDate, db.StatisticLatestDate:
		if result.Value == nil {
			return nil
		}
		return time.UnixMilli(int64(*result.Value)).UTC()
	case db.StatisticDateRangeOfDays, db.StatisticDateRangeOfMonths:
		earliest, latest := results[plan.name+"_min"].Value, results[plan.name+"_max"].Value
		if earliest == nil || latest == nil {
			return nil
		}
		from := time.UnixMilli(int64(*earliest)).UTC()
		to := time.UnixMilli(int64(*latest)).UTC()
		if plan.request.StatisticFunc == db.StatisticDateRangeOfDays {
			return int64(to.Sub(from) / (24 * time.Hour))
		}
		return int64((to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month()))
	case db.StatisticTotalAttachmentSize:
		return valueOrZero(result.Value)
	}

	if result.Value == nil {
		return nil
	}
	return *result.Value
}

func valueOrZero(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}

// Returns nil for an empty table, like the SQL backends' division by NULLIF(COUNT(*), 0).
func percentOf(value float64, total int64) any {
	if total == 0 {
		return nil
	}
	return value * 100 / float64(total)
}

func searchRequest(plans []statisticPlan) *search.Request {
	size := 0
	request := &search.Request{
		Size:           &size,
		TrackTotalHits: true,
		Aggregations:   map[string]types.Aggregations{},
	}
	for _, plan := range plans {
		for name, aggregation := range plan.aggregations() {
			request.Aggregations[name] = aggregation
		}
	}
	return request
}

func (elastic ElasticsearchDB) Aggregate(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	requests []db.AggregationField,
) (db.AggregationResult, error) {
	result := db.AggregationResult{Aggregations: []db.AggregationValue{}}
	if len(requests) == 0 {
		return result, nil
	}

	plans, err := planStatistics(db.FieldsByID(fields), requests)
	if err != nil {
		return db.AggregationResult{}, wrap.Error(err, "invalid aggregation request")
	}

	body, err := json.Marshal(searchRequest(plans))
	if err != nil {
		return db.AggregationResult{}, wrap.Error(err, "failed to encode search request")
	}

	res, err := elastic.untypedClient.Search(
		elastic.untypedClient.Search.WithContext(ctx),
		elastic.untypedClient.Search.WithIndex(table.DBTableName),
		elastic.untypedClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return db.AggregationResult{}, wrap.Error(err, "search request failed")
	}
	defer res.Body.Close()

	if err := responseError(res); err != nil {
		return db.AggregationResult{}, wrap.Error(err, "search request failed")
	}

	var response searchResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return db.AggregationResult{}, wrap.Error(err, "failed to decode search response")
	}

	for _, plan := range plans {
		value, err := db.NewAggregationValue(
			plan.request,
			plan.value(response.Hits.Total.Value, response.Aggregations),
		)
		if err != nil {
			return db.AggregationResult{}, err
		}
		result.Aggregations = append(result.Aggregations, value)
	}

	return result, nil
}

