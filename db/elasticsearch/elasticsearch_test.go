package elasticsearch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/gridbase/db"
)

var testFields = []db.Field{
	db.NewField("fld1", db.FieldInput{Name: "Price", Type: db.FieldTypeNumber}),
	db.NewField("fld2", db.FieldInput{Name: "Done", Type: db.FieldTypeCheckbox}),
	db.NewField("fld3", db.FieldInput{Name: "Due", Type: db.FieldTypeDate}),
	db.NewField("fld4", db.FieldInput{Name: "Files", Type: db.FieldTypeAttachment}),
	db.NewField("fld5", db.FieldInput{Name: "Created", Type: db.FieldTypeCreatedTime}),
}

func plan(t *testing.T, requests ...db.AggregationField) []statisticPlan {
	t.Helper()

	plans, err := planStatistics(db.FieldsByID(testFields), requests)
	require.NoError(t, err)
	return plans
}

func TestFieldsToElasticMappings(t *testing.T) {
	mappings, err := fieldsToElasticMappings(testFields)
	require.NoError(t, err)

	assert.IsType(t, &types.KeywordProperty{}, mappings.Properties[db.RecordIDColumn])
	assert.IsType(t, &types.DoubleNumberProperty{}, mappings.Properties["price_fld1"])
	assert.IsType(t, &types.BooleanProperty{}, mappings.Properties["done_fld2"])
	assert.IsType(t, &types.DateProperty{}, mappings.Properties["due_fld3"])
	assert.IsType(t, &types.ObjectProperty{}, mappings.Properties["files_fld4"])
	assert.Len(t, mappings.Properties, 8, "computed fields should not get a property")
}

func TestRecordToDocument(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	document := recordToDocument(testFields, db.Record{
		ID:          "rec1",
		CreatedTime: created,
		Version:     1,
		Fields: map[string]any{
			"fld1": 2.5,
			"fld2": nil,
		},
	})

	assert.Equal(t, map[string]any{
		db.RecordIDColumn:          "rec1",
		db.RecordCreatedTimeColumn: created,
		db.RecordVersionColumn:     1,
		"price_fld1":               2.5,
	}, document)
}

func TestPlanStatisticsRejectsInvalidRequest(t *testing.T) {
	_, err := planStatistics(
		db.FieldsByID(testFields),
		[]db.AggregationField{{FieldID: "fld2", StatisticFunc: db.StatisticSum}},
	)
	var statisticErr *db.InvalidStatisticError
	assert.ErrorAs(t, err, &statisticErr)

	_, err = planStatistics(db.FieldsByID(testFields), []db.AggregationField{{FieldID: "missing"}})
	var fieldErr *db.InvalidFieldError
	assert.ErrorAs(t, err, &fieldErr)
}

func TestSearchRequest(t *testing.T) {
	plans := plan(
		t,
		db.AggregationField{FieldID: "fld1", StatisticFunc: db.StatisticSum},
		db.AggregationField{FieldID: "fld1"},
		db.AggregationField{FieldID: "fld2", StatisticFunc: db.StatisticChecked},
		db.AggregationField{FieldID: "fld3", StatisticFunc: db.StatisticDateRangeOfDays},
		db.AggregationField{FieldID: "fld4", StatisticFunc: db.StatisticTotalAttachmentSize},
	)

	encoded, err := json.Marshal(searchRequest(plans))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"size": 0,
		"track_total_hits": true,
		"aggregations": {
			"stat_0": {"sum": {"field": "price_fld1"}},
			"stat_2": {"filter": {"term": {"done_fld2": {"value": true}}}},
			"stat_3_min": {"min": {"field": "due_fld3"}},
			"stat_3_max": {"max": {"field": "due_fld3"}},
			"stat_4": {"sum": {"field": "files_fld4.size"}}
		}
	}`, string(encoded))
}

func ptr(value float64) *float64 {
	return &value
}

func TestStatisticValues(t *testing.T) {
	earliest := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	results := map[string]aggregateResult{
		"empty":     {DocCount: 1},
		"unique":    {Value: ptr(3)},
		"checked":   {DocCount: 3},
		"sum":       {Value: ptr(42.5)},
		"range_min": {Value: ptr(float64(earliest.UnixMilli()))},
		"range_max": {Value: ptr(float64(latest.UnixMilli()))},
		"latest":    {Value: ptr(float64(latest.UnixMilli()))},
		"none":      {},
	}

	testCases := []struct {
		name          string
		statisticFunc db.StatisticFunc
		result        string
		total         int64
		expected      any
	}{
		{"count", db.StatisticCount, "", 4, int64(4)},
		{"empty", db.StatisticEmpty, "empty", 4, int64(1)},
		{"filled", db.StatisticFilled, "empty", 4, int64(3)},
		{"percent empty", db.StatisticPercentEmpty, "empty", 4, 25.0},
		{"percent filled", db.StatisticPercentFilled, "empty", 4, 75.0},
		{"percent filled of empty table", db.StatisticPercentFilled, "empty", 0, nil},
		{"unique", db.StatisticUnique, "unique", 4, 3.0},
		{"percent unique", db.StatisticPercentUnique, "unique", 4, 75.0},
		{"checked", db.StatisticChecked, "checked", 4, int64(3)},
		{"unchecked", db.StatisticUnChecked, "checked", 4, int64(1)},
		{"percent unchecked", db.StatisticPercentUnChecked, "checked", 4, 25.0},
		{"sum", db.StatisticSum, "sum", 4, 42.5},
		{"sum of nothing", db.StatisticSum, "none", 0, nil},
		{"latest date", db.StatisticLatestDate, "latest", 4, latest},
		{"earliest date of nothing", db.StatisticEarliestDate, "none", 0, nil},
		{"date range of days", db.StatisticDateRangeOfDays, "range", 4, int64(65)},
		{"date range of months", db.StatisticDateRangeOfMonths, "range", 4, int64(2)},
		{"attachment size of nothing", db.StatisticTotalAttachmentSize, "none", 0, 0.0},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			plan := statisticPlan{
				name:    testCase.result,
				request: db.AggregationField{FieldID: "fld1", StatisticFunc: testCase.statisticFunc},
			}
			assert.Equal(t, testCase.expected, plan.value(testCase.total, results))
		})
	}
}
