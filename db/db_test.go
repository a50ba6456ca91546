package db

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/wrap"
)

func testFields() map[string]Field {
	return FieldsByID([]Field{
		NewField("fldtitle", FieldInput{Name: "Title", Type: FieldTypeSingleLineText}),
		NewField("fldprice", FieldInput{Name: "Price", Type: FieldTypeNumber}),
		NewField("flddone", FieldInput{Name: "Done", Type: FieldTypeCheckbox}),
		NewField("fldfiles", FieldInput{Name: "Files", Type: FieldTypeAttachment}),
	})
}

func TestValidateAggregationFields(t *testing.T) {
	fields := testFields()

	testCases := []struct {
		name        string
		requests    []AggregationField
		expectedErr any
	}{
		{
			name: "allowed functions",
			requests: []AggregationField{
				{FieldID: "fldprice", StatisticFunc: StatisticSum},
				{FieldID: "flddone", StatisticFunc: StatisticPercentChecked},
				{FieldID: "fldfiles", StatisticFunc: StatisticTotalAttachmentSize},
			},
		},
		{
			name:     "unspecified function",
			requests: []AggregationField{{FieldID: "fldtitle"}},
		},
		{
			name:        "unknown field",
			requests:    []AggregationField{{FieldID: "fldmissing", StatisticFunc: StatisticCount}},
			expectedErr: &InvalidFieldError{},
		},
		{
			name:        "function not allowed for field type",
			requests:    []AggregationField{{FieldID: "fldtitle", StatisticFunc: StatisticSum}},
			expectedErr: &InvalidStatisticError{},
		},
		{
			name:        "unique on attachments",
			requests:    []AggregationField{{FieldID: "fldfiles", StatisticFunc: StatisticUnique}},
			expectedErr: &InvalidStatisticError{},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := ValidateAggregationFields(testCase.requests, fields)

			switch testCase.expectedErr.(type) {
			case nil:
				assert.NoError(t, err)
			case *InvalidFieldError:
				var target *InvalidFieldError
				assert.ErrorAs(t, err, &target)
			case *InvalidStatisticError:
				var target *InvalidStatisticError
				require.ErrorAs(t, err, &target)
				assert.NotEmpty(t, target.Allowed)
			}
		})
	}
}

func TestValidStatisticFuncsReturnsCopy(t *testing.T) {
	field := NewField("fldprice", FieldInput{Name: "Price", Type: FieldTypeNumber})

	valid := ValidStatisticFuncs(field)
	valid[0] = StatisticTotalAttachmentSize

	assert.Equal(t, StatisticCount, ValidStatisticFuncs(field)[0])
}

func TestValidStatisticFuncsByType(t *testing.T) {
	date := NewField("flddate", FieldInput{Name: "Date", Type: FieldTypeDate})
	assert.Contains(t, ValidStatisticFuncs(date), StatisticDateRangeOfMonths)
	assert.NotContains(t, ValidStatisticFuncs(date), StatisticSum)

	checkbox := NewField("flddone", FieldInput{Name: "Done", Type: FieldTypeCheckbox})
	assert.Contains(t, ValidStatisticFuncs(checkbox), StatisticUnChecked)
	assert.NotContains(t, ValidStatisticFuncs(checkbox), StatisticUnique)

	multipleSelect := NewField("fldtags", FieldInput{Name: "Tags", Type: FieldTypeMultipleSelect})
	assert.Contains(t, ValidStatisticFuncs(multipleSelect), StatisticPercentUnique)
}

func TestNormalizeAggregationValue(t *testing.T) {
	testCases := []struct {
		statisticFunc StatisticFunc
		value         any
		expected      any
	}{
		{StatisticCount, int64(3), int64(3)},
		{StatisticFilled, []byte("12"), int64(12)},
		{StatisticDateRangeOfDays, 4.0, int64(4)},
		{StatisticSum, "1.5", 1.5},
		{StatisticPercentFilled, int64(50), 50.0},
		{0, "7", int64(7)},
		{StatisticMax, nil, nil},
		{
			StatisticEarliestDate,
			"2024-03-01T10:00:00+02:00",
			time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.statisticFunc.OrDefault().String(), func(t *testing.T) {
			value, err := NormalizeAggregationValue(testCase.statisticFunc, testCase.value)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, value)
		})
	}

	_, err := NormalizeAggregationValue(StatisticLatestDate, "not a date")
	assert.Error(t, err)
}

func TestNewAggregationValueAppliesDefault(t *testing.T) {
	value, err := NewAggregationValue(AggregationField{FieldID: "fldtitle"}, int64(2))
	require.NoError(t, err)

	assert.Equal(t, StatisticCount, value.StatisticFunc)
	assert.Equal(t, int64(2), value.Value)
}

func TestNewField(t *testing.T) {
	field := NewField("fldABC123", FieldInput{Name: "Unit price (NOK)", Type: FieldTypeNumber})
	assert.Equal(t, "unit_price_nok_fldabc123", field.DBFieldName)
	assert.Equal(t, CellValueTypeNumber, field.CellValueType)
	assert.Equal(t, DBFieldTypeReal, field.DBFieldType)
	assert.False(t, field.IsComputed)

	numeric := NewField("fld1", FieldInput{Name: "2024", Type: FieldTypeSingleLineText})
	assert.Equal(t, "field2024_fld1", numeric.DBFieldName)

	created := NewField("fld2", FieldInput{Name: "Created", Type: FieldTypeCreatedTime})
	assert.Equal(t, RecordCreatedTimeColumn, created.DBFieldName)
	assert.True(t, created.IsComputed)

	attachments := NewField("fld3", FieldInput{Name: "Files", Type: FieldTypeAttachment})
	assert.True(t, attachments.IsMultipleCellValue)
	assert.Equal(t, DBFieldTypeJSON, attachments.DBFieldType)
}

func TestFieldInputValidate(t *testing.T) {
	assert.NoError(t, FieldInput{Name: "Title", Type: FieldTypeSingleLineText}.Validate())
	assert.Error(t, FieldInput{Name: "  ", Type: FieldTypeSingleLineText}.Validate())
	assert.Error(t, FieldInput{Name: "Title"}.Validate())
	assert.Error(t, FieldInput{Name: "Stars", Type: FieldTypeRating, Options: FieldOptions{Max: -1}}.Validate())
}

func TestStatisticFuncJSON(t *testing.T) {
	var request AggregationField
	require.NoError(t, json.Unmarshal([]byte(`{"fieldId":"fld1","statisticFunc":"percentUnChecked"}`), &request))
	assert.Equal(t, StatisticPercentUnChecked, request.StatisticFunc)

	encoded, err := json.Marshal(AggregationField{FieldID: "fld1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fieldId":"fld1"}`, string(encoded))

	assert.Error(t, json.Unmarshal([]byte(`{"fieldId":"fld1","statisticFunc":"median"}`), &request))
}

func TestErrorClassification(t *testing.T) {
	clientErr := wrap.Error(&InvalidStatisticError{FieldID: "fld1", StatisticFunc: StatisticSum}, "failed")
	assert.True(t, IsClientError(clientErr))
	assert.False(t, IsNotFoundError(clientErr))

	tableErr := &InvalidTableInputError{Errs: []error{&FieldsNotFoundError{Keys: []string{"A"}}}}
	assert.True(t, IsClientError(tableErr))
	assert.Contains(t, tableErr.Error(), "some fields not found: [A]")

	notFound := wrap.Errorf(ErrRecordNotFound, "no record with ID '%s'", "rec1")
	assert.True(t, IsNotFoundError(notFound))
	assert.False(t, IsClientError(notFound))

	assert.False(t, IsClientError(errors.New("connection refused")))
}

func TestIDs(t *testing.T) {
	tableID := NewTableID()
	assert.Len(t, tableID, 19)
	assert.Equal(t, "tbl_"+tableID[3:], NewDBTableName(tableID))
	assert.NotEqual(t, NewRecordID(), NewRecordID())
}
