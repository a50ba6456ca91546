package typecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/gridbase/db"
)

type fakeAttachments map[string]db.Attachment

func (attachments fakeAttachments) ResolveAttachment(
	_ context.Context,
	token string,
) (db.Attachment, error) {
	attachment, ok := attachments[token]
	if !ok {
		return db.Attachment{}, errors.New("unknown token")
	}
	return attachment, nil
}

var testAttachments = fakeAttachments{
	"tok1": {Name: "a.png", Token: "tok1", Path: "table/abc", Size: 10, MimeType: "image/png"},
	"tok2": {Name: "b.txt", Token: "tok2", Path: "table/def", Size: 20, MimeType: "text/plain"},
}

func newField(fieldType db.FieldType, options db.FieldOptions) db.Field {
	return db.NewField("fld1", db.FieldInput{Name: "Field", Type: fieldType, Options: options})
}

type castTestCase struct {
	name     string
	value    any
	expected any
	// If set, casting should fail with db.InvalidCellValueError.
	invalid bool
}

func runCastTests(
	t *testing.T,
	field db.Field,
	typecast bool,
	testCases []castTestCase,
) {
	t.Helper()

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			caster := NewCaster(field, typecast, testAttachments)
			value, err := caster.Cast(context.Background(), testCase.value)

			if testCase.invalid {
				var cellErr *db.InvalidCellValueError
				require.ErrorAs(t, err, &cellErr)
				assert.Equal(t, field.Name, cellErr.FieldName)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.expected, value)
		})
	}
}

func TestCastText(t *testing.T) {
	singleLine := newField(db.FieldTypeSingleLineText, db.FieldOptions{})
	longText := newField(db.FieldTypeLongText, db.FieldOptions{})

	t.Run("strict", func(t *testing.T) {
		runCastTests(t, singleLine, false, []castTestCase{
			{name: "string", value: "hello", expected: "hello"},
			{name: "newlines stripped", value: "hello\nworld", expected: "hello world"},
			{name: "empty", value: "", expected: nil},
			{name: "nil", value: nil, expected: nil},
			{name: "number", value: 1.0, invalid: true},
		})
	})

	t.Run("typecast", func(t *testing.T) {
		runCastTests(t, singleLine, true, []castTestCase{
			{name: "number", value: 1.5, expected: "1.5"},
			{name: "bool", value: true, expected: "true"},
			{name: "list", value: []any{"a", "b"}, expected: "a, b"},
		})
	})

	t.Run("long text keeps newlines", func(t *testing.T) {
		runCastTests(t, longText, false, []castTestCase{
			{name: "multiline", value: "a\nb", expected: "a\nb"},
		})
	})
}

func TestCastNumber(t *testing.T) {
	field := newField(db.FieldTypeNumber, db.FieldOptions{})

	runCastTests(t, field, false, []castTestCase{
		{name: "float", value: 1.5, expected: 1.5},
		{name: "int", value: 3, expected: 3.0},
		{name: "string", value: "1.5", invalid: true},
	})

	runCastTests(t, field, true, []castTestCase{
		{name: "numeric string", value: " 42 ", expected: 42.0},
		{name: "blank string", value: "  ", expected: nil},
		{name: "garbage", value: "abc", invalid: true},
	})
}

func TestCastRating(t *testing.T) {
	field := newField(db.FieldTypeRating, db.FieldOptions{Max: 10})

	runCastTests(t, field, false, []castTestCase{
		{name: "in range", value: 7.0, expected: 7},
		{name: "fraction", value: 2.5, invalid: true},
		{name: "above max", value: 11.0, invalid: true},
		{name: "zero", value: 0.0, invalid: true},
	})

	runCastTests(t, field, true, []castTestCase{
		{name: "rounded", value: "2.6", expected: 3},
		{name: "clamped", value: 15, expected: 10},
		{name: "below one", value: 0.2, expected: nil},
	})

	defaultMax := newField(db.FieldTypeRating, db.FieldOptions{})
	runCastTests(t, defaultMax, false, []castTestCase{
		{name: "default max", value: 6.0, invalid: true},
	})
}

func TestCastCheckbox(t *testing.T) {
	field := newField(db.FieldTypeCheckbox, db.FieldOptions{})

	runCastTests(t, field, false, []castTestCase{
		{name: "true", value: true, expected: true},
		{name: "false clears", value: false, expected: nil},
		{name: "string", value: "true", invalid: true},
	})

	runCastTests(t, field, true, []castTestCase{
		{name: "string", value: "true", expected: true},
		{name: "one", value: 1, expected: true},
		{name: "zero", value: "0", expected: nil},
	})
}

func TestCastDate(t *testing.T) {
	field := newField(db.FieldTypeDate, db.FieldOptions{})
	expected := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	runCastTests(t, field, false, []castTestCase{
		{name: "RFC 3339", value: "2024-03-01T13:00:00+01:00", expected: expected},
		{name: "date only", value: "2024-03-01", invalid: true},
		{name: "number", value: 1.0, invalid: true},
	})

	runCastTests(t, field, true, []castTestCase{
		{name: "date only", value: "2024-03-01", expected: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{name: "RFC 3339", value: "2024-03-01T12:00:00Z", expected: expected},
		{name: "garbage", value: "not a date", invalid: true},
	})
}

func TestCastSingleSelect(t *testing.T) {
	field := newField(db.FieldTypeSingleSelect, db.FieldOptions{
		Choices: []db.SelectChoice{{Name: "todo"}, {Name: "done"}},
	})

	runCastTests(t, field, false, []castTestCase{
		{name: "existing choice", value: "todo", expected: "todo"},
		{name: "unknown choice", value: "blocked", invalid: true},
	})

	caster := NewCaster(field, true, nil)
	value, err := caster.Cast(context.Background(), " blocked ")
	require.NoError(t, err)
	assert.Equal(t, "blocked", value)
	assert.Equal(t, []db.SelectChoice{{Name: "blocked"}}, caster.NewChoices())
}

func TestCastMultipleSelect(t *testing.T) {
	field := newField(db.FieldTypeMultipleSelect, db.FieldOptions{
		Choices: []db.SelectChoice{{Name: "a"}, {Name: "b"}},
	})

	runCastTests(t, field, false, []castTestCase{
		{name: "list", value: []any{"a", "b"}, expected: []string{"a", "b"}},
		{name: "duplicates", value: []any{"a", "a"}, expected: []string{"a"}},
		{name: "empty list", value: []any{}, expected: nil},
		{name: "string", value: "a,b", invalid: true},
		{name: "unknown", value: []any{"c"}, invalid: true},
	})

	caster := NewCaster(field, true, nil)
	ctx := context.Background()

	value, err := caster.Cast(ctx, "a, c, d, c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, value)

	_, err = caster.Cast(ctx, []any{"d", 5})
	require.NoError(t, err)

	assert.Equal(t, []db.SelectChoice{{Name: "c"}, {Name: "d"}, {Name: "5"}}, caster.NewChoices())
}

func TestCastAttachments(t *testing.T) {
	field := newField(db.FieldTypeAttachment, db.FieldOptions{})
	ctx := context.Background()

	t.Run("strict", func(t *testing.T) {
		caster := NewCaster(field, false, testAttachments)

		value, err := caster.Cast(ctx, []any{
			map[string]any{"token": "tok1", "name": "renamed.png"},
			map[string]any{"token": "tok2"},
		})
		require.NoError(t, err)

		attachments, ok := value.([]db.Attachment)
		require.True(t, ok)
		require.Len(t, attachments, 2)
		assert.Equal(t, "renamed.png", attachments[0].Name)
		assert.Equal(t, "table/abc", attachments[0].Path)
		assert.Equal(t, "b.txt", attachments[1].Name)
		assert.NotEmpty(t, attachments[0].ID)

		_, err = caster.Cast(ctx, []any{"tok1"})
		var cellErr *db.InvalidCellValueError
		assert.ErrorAs(t, err, &cellErr)
	})

	t.Run("typecast tokens", func(t *testing.T) {
		caster := NewCaster(field, true, testAttachments)

		value, err := caster.Cast(ctx, "tok1,tok2")
		require.NoError(t, err)
		assert.Len(t, value, 2)
	})

	t.Run("unknown token", func(t *testing.T) {
		caster := NewCaster(field, true, testAttachments)

		_, err := caster.Cast(ctx, []any{"missing"})
		assert.Error(t, err)
	})
}

func TestCastComputedField(t *testing.T) {
	field := newField(db.FieldTypeCreatedTime, db.FieldOptions{})

	_, err := NewCaster(field, true, nil).Cast(context.Background(), "2024-01-01")

	var computedErr *db.ComputedFieldError
	require.ErrorAs(t, err, &computedErr)
	assert.True(t, db.IsClientError(err))
}
