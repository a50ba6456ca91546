package sqldb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/db/aggregation"
)

func openTestDB(t *testing.T) DB {
	t.Helper()

	database, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		database.Close()
	})

	return database
}

type testTable struct {
	table  db.Table
	fields []db.Field
	byName map[string]db.Field
}

func createTestTable(t *testing.T, database DB) testTable {
	t.Helper()

	table, fields, err := database.CreateTable(context.Background(), "Tasks", []db.FieldInput{
		{Name: "Title", Type: db.FieldTypeSingleLineText},
		{Name: "Price", Type: db.FieldTypeNumber},
		{Name: "Done", Type: db.FieldTypeCheckbox},
		{Name: "Due", Type: db.FieldTypeDate},
		{
			Name: "Tags",
			Type: db.FieldTypeMultipleSelect,
			Options: db.FieldOptions{
				Choices: []db.SelectChoice{{Name: "a"}, {Name: "b"}, {Name: "c"}},
			},
		},
		{Name: "Files", Type: db.FieldTypeAttachment},
		{Name: "Created", Type: db.FieldTypeCreatedTime},
	})
	require.NoError(t, err)

	byName := make(map[string]db.Field, len(fields))
	for _, field := range fields {
		byName[field.Name] = field
	}

	return testTable{table: table, fields: fields, byName: byName}
}

func (table testTable) input(id string, values map[string]any) db.RecordInput {
	fields := make(map[string]any, len(values))
	for name, value := range values {
		fields[table.byName[name].ID] = value
	}
	return db.RecordInput{ID: id, Fields: fields}
}

func insertTestRecords(t *testing.T, database DB, table testTable) {
	t.Helper()

	due := func(day int) time.Time {
		return time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC)
	}

	err := database.InsertRecords(context.Background(), table.table, table.fields, []db.RecordInput{
		table.input("rec1", map[string]any{
			"Title": "first",
			"Price": 10.5,
			"Done":  true,
			"Due":   due(1),
			"Tags":  []string{"a", "b"},
			"Files": []db.Attachment{{ID: "act1", Name: "a.png", Size: 100}},
		}),
		table.input("rec2", map[string]any{
			"Title": "second",
			"Price": 4.5,
			"Due":   due(11),
			"Tags":  []string{"b", "c"},
			"Files": []db.Attachment{{ID: "act2", Name: "b.png", Size: 150}, {ID: "act3", Size: 50}},
		}),
		table.input("rec3", map[string]any{
			"Done": true,
		}),
	})
	require.NoError(t, err)
}

func TestCreateTable(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	ctx := context.Background()

	stored, err := database.GetTable(ctx, table.table.ID)
	require.NoError(t, err)
	assert.Equal(t, table.table, stored)

	fields, err := database.GetFields(ctx, table.table.ID)
	require.NoError(t, err)
	assert.Equal(t, table.fields, fields)

	assert.Equal(t, db.RecordCreatedTimeColumn, table.byName["Created"].DBFieldName)
	assert.True(t, table.byName["Created"].IsComputed)
}

func TestColumnTypesCoverStorageTypes(t *testing.T) {
	storageTypes := []db.DBFieldType{
		db.DBFieldTypeText,
		db.DBFieldTypeInteger,
		db.DBFieldTypeReal,
		db.DBFieldTypeDateTime,
		db.DBFieldTypeBoolean,
		db.DBFieldTypeJSON,
	}

	for _, storageType := range storageTypes {
		t.Run(storageType.String(), func(t *testing.T) {
			_, ok := postgresColumnTypes.get(storageType)
			assert.True(t, ok)
			_, ok = sqliteColumnTypes.get(storageType)
			assert.True(t, ok)
		})
	}

	text, _ := sqliteColumnTypes.get(db.DBFieldTypeText)
	jsonType, _ := sqliteColumnTypes.get(db.DBFieldTypeJSON)
	assert.Equal(t, text, jsonType)
}

func TestCreateTableWithTextAndJSONColumns(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	table, fields, err := database.CreateTable(ctx, "Notes", []db.FieldInput{
		{Name: "Body", Type: db.FieldTypeLongText},
		{Name: "Tags", Type: db.FieldTypeMultipleSelect},
	})
	require.NoError(t, err)

	err = database.RunInTransaction(ctx, func(tx db.RecordTx) error {
		return tx.InsertRecords(ctx, table, fields, []db.RecordInput{{
			ID: db.NewRecordID(),
			Fields: map[string]any{
				fields[0].ID: "hello",
				fields[1].ID: []string{"a", "b"},
			},
		}})
	})
	require.NoError(t, err)

	records, err := database.GetRecords(ctx, table, fields, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records[0].Fields[fields[0].ID])
	assert.Len(t, records[0].Fields[fields[1].ID], 2)
}

func TestCreateTableRejectsDuplicateFieldNames(t *testing.T) {
	database := openTestDB(t)

	_, _, err := database.CreateTable(context.Background(), "Dupes", []db.FieldInput{
		{Name: "Name", Type: db.FieldTypeSingleLineText},
		{Name: "Name", Type: db.FieldTypeNumber},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field name 'Name'")
	assert.True(t, db.IsClientError(err))
}

func TestGetTableNotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := database.GetTable(context.Background(), "tblmissing")
	assert.ErrorIs(t, err, db.ErrTableNotFound)
	assert.True(t, db.IsNotFoundError(err))
}

func TestGetFieldsByKeys(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	ctx := context.Background()

	byName, err := database.GetFieldsByKeys(
		ctx,
		table.table.ID,
		[]string{"Price", "Title", "Unknown"},
		db.FieldKeyTypeName,
	)
	require.NoError(t, err)
	assert.Equal(t, []db.Field{table.byName["Title"], table.byName["Price"]}, byName)

	byID, err := database.GetFieldsByKeys(
		ctx,
		table.table.ID,
		[]string{table.byName["Done"].ID},
		db.FieldKeyTypeID,
	)
	require.NoError(t, err)
	assert.Equal(t, []db.Field{table.byName["Done"]}, byID)
}

func TestUpdateFieldOptions(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	ctx := context.Background()
	tags := table.byName["Tags"]

	options := tags.Options
	options.Choices = append(options.Choices, db.SelectChoice{Name: "d"})
	require.NoError(t, database.UpdateFieldOptions(ctx, tags.ID, options))

	fields, err := database.GetFieldsByKeys(ctx, table.table.ID, []string{tags.ID}, db.FieldKeyTypeID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.True(t, fields[0].HasChoice("d"))
}

func TestRecordRoundTrip(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	insertTestRecords(t, database, table)
	ctx := context.Background()

	records, err := database.GetRecords(ctx, table.table, table.fields, []string{"rec2", "rec1"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	second := records[0]
	assert.Equal(t, "rec2", second.ID)
	assert.Equal(t, 1, second.Version)
	assert.Nil(t, second.LastModifiedTime)
	assert.Equal(t, "second", second.Fields[table.byName["Title"].ID])
	assert.Equal(t, 4.5, second.Fields[table.byName["Price"].ID])
	assert.Equal(t, []string{"b", "c"}, second.Fields[table.byName["Tags"].ID])
	assert.Equal(
		t,
		time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC),
		second.Fields[table.byName["Due"].ID],
	)
	assert.NotContains(t, second.Fields, table.byName["Done"].ID)
	assert.Contains(t, second.Fields, table.byName["Created"].ID)

	first := records[1]
	assert.Equal(t, true, first.Fields[table.byName["Done"].ID])
	assert.Equal(
		t,
		[]db.Attachment{{ID: "act1", Name: "a.png", Size: 100}},
		first.Fields[table.byName["Files"].ID],
	)
}

func TestUpdateRecords(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	insertTestRecords(t, database, table)
	ctx := context.Background()

	err := database.UpdateRecords(ctx, table.table, table.fields, []db.RecordInput{
		table.input("rec1", map[string]any{"Title": "renamed", "Price": nil}),
	})
	require.NoError(t, err)

	records, err := database.GetRecords(ctx, table.table, table.fields, []string{"rec1"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 2, record.Version)
	assert.NotNil(t, record.LastModifiedTime)
	assert.Equal(t, "renamed", record.Fields[table.byName["Title"].ID])
	assert.NotContains(t, record.Fields, table.byName["Price"].ID)
	assert.Equal(t, true, record.Fields[table.byName["Done"].ID], "untouched fields are kept")
}

func TestUpdateMissingRecord(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)

	err := database.UpdateRecords(context.Background(), table.table, table.fields, []db.RecordInput{
		table.input("recmissing", map[string]any{"Title": "x"}),
	})
	assert.ErrorIs(t, err, db.ErrRecordNotFound)
}

func TestDeleteRecords(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	insertTestRecords(t, database, table)
	ctx := context.Background()

	deleted, err := database.DeleteRecords(ctx, table.table, []string{"rec1", "rec3", "recmissing"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	records, err := database.GetRecords(ctx, table.table, table.fields, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec2", records[0].ID)
}

func TestTransactionRollsBack(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	ctx := context.Background()

	err := database.RunInTransaction(ctx, func(tx db.RecordTx) error {
		if err := tx.InsertRecords(ctx, table.table, table.fields, []db.RecordInput{
			table.input("rec1", map[string]any{"Title": "doomed"}),
		}); err != nil {
			return err
		}

		return tx.UpdateRecords(ctx, table.table, table.fields, []db.RecordInput{
			table.input("recmissing", map[string]any{"Title": "x"}),
		})
	})
	require.ErrorIs(t, err, db.ErrRecordNotFound)

	records, err := database.GetRecords(ctx, table.table, table.fields, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAggregate(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	insertTestRecords(t, database, table)

	request := func(name string, statisticFunc db.StatisticFunc) db.AggregationField {
		return db.AggregationField{FieldID: table.byName[name].ID, StatisticFunc: statisticFunc}
	}

	requests := []db.AggregationField{
		request("Title", 0),
		request("Title", db.StatisticFilled),
		request("Title", db.StatisticEmpty),
		request("Price", db.StatisticSum),
		request("Price", db.StatisticAverage),
		request("Done", db.StatisticChecked),
		request("Done", db.StatisticPercentUnChecked),
		request("Due", db.StatisticDateRangeOfDays),
		request("Due", db.StatisticEarliestDate),
		request("Tags", db.StatisticUnique),
		request("Files", db.StatisticTotalAttachmentSize),
	}

	result, err := database.Aggregate(context.Background(), table.table, table.fields, requests)
	require.NoError(t, err)
	require.Len(t, result.Aggregations, len(requests))

	expected := []any{
		int64(3),
		int64(2),
		int64(1),
		15.0,
		7.5,
		int64(2),
		100.0 / 3,
		int64(10),
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		int64(3),
		int64(300),
	}

	for i, aggregation := range result.Aggregations {
		assert.Equal(t, requests[i].FieldID, aggregation.FieldID)
		assert.Equal(t, requests[i].StatisticFunc.OrDefault(), aggregation.StatisticFunc)

		if number, ok := expected[i].(float64); ok {
			assert.InDelta(t, number, aggregation.Value, 0.0001, "aggregation %d", i)
		} else {
			assert.Equal(t, expected[i], aggregation.Value, "aggregation %d", i)
		}
	}
}

func TestJSONAggregationsFollowBaseQueryFilter(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)
	insertTestRecords(t, database, table)

	quote := database.dialect.QuoteIdentifier
	base := squirrel.Select().
		From(quote(table.table.DBTableName)).
		Where(squirrel.Eq{quote(db.RecordIDColumn): []string{"rec2", "rec3"}})
	query := aggregation.NewQueryBuilder(database.dialect, base)

	requests := []db.AggregationField{
		{FieldID: table.byName["Tags"].ID, StatisticFunc: db.StatisticUnique},
		{FieldID: table.byName["Tags"].ID, StatisticFunc: db.StatisticPercentUnique},
		{FieldID: table.byName["Files"].ID, StatisticFunc: db.StatisticTotalAttachmentSize},
	}

	statement, args, err := aggregation.NewCompiler(database.dialect, table.table.DBTableName).
		ToQuerySQL(query, db.FieldsByID(table.fields), requests)
	require.NoError(t, err)

	values := make([]any, len(requests))
	pointers := make([]any, len(requests))
	for i := range values {
		pointers[i] = &values[i]
	}
	require.NoError(t, database.conn(context.Background()).Raw(statement, args...).Row().Scan(pointers...))

	unique, err := db.NewAggregationValue(requests[0], values[0])
	require.NoError(t, err)
	percentUnique, err := db.NewAggregationValue(requests[1], values[1])
	require.NoError(t, err)
	totalSize, err := db.NewAggregationValue(requests[2], values[2])
	require.NoError(t, err)

	assert.Equal(t, int64(2), unique.Value)
	assert.InDelta(t, 100.0, percentUnique.Value, 0.0001)
	assert.Equal(t, int64(200), totalSize.Value)
}

func TestAggregateInvalidRequest(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)

	_, err := database.Aggregate(
		context.Background(),
		table.table,
		table.fields,
		[]db.AggregationField{{FieldID: "ghost"}},
	)

	var fieldErr *db.InvalidFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.True(t, db.IsClientError(err))
}

func TestAggregateEmptyTable(t *testing.T) {
	database := openTestDB(t)
	table := createTestTable(t, database)

	result, err := database.Aggregate(
		context.Background(),
		table.table,
		table.fields,
		[]db.AggregationField{
			{FieldID: table.byName["Price"].ID, StatisticFunc: db.StatisticSum},
			{FieldID: table.byName["Price"].ID, StatisticFunc: db.StatisticPercentFilled},
			{FieldID: table.byName["Price"].ID, StatisticFunc: db.StatisticCount},
		},
	)
	require.NoError(t, err)

	assert.Nil(t, result.Aggregations[0].Value)
	assert.Nil(t, result.Aggregations[1].Value)
	assert.Equal(t, int64(0), result.Aggregations[2].Value)
}
