package csv

import (
	"strconv"
	"strings"
	"time"

	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// Suggests a field for each column of the file, named after its header. Columns whose values do
// not agree on a type fall back to single line text.
//
// The read position is reset to just after the header row before returning.
func (reader *Reader) DeduceFieldTypes(maxRowsToCheck int) (fields []db.FieldInput, err error) {
	defer func() {
		if resetErr := reader.ResetReadPosition(true); resetErr != nil && err == nil {
			err = wrap.Error(resetErr, "failed to reset CSV file after deducing field types")
		}
	}()

	if err := reader.ResetReadPosition(false); err != nil {
		return nil, wrap.Error(err, "failed to reset CSV file")
	}

	header, err := reader.ReadHeaderRow()
	if err != nil {
		return nil, wrap.Error(err, "failed to read CSV column names from header row")
	}

	deduced := make([]db.FieldType, len(header))
	for {
		row, rowNumber, done, err := reader.ReadRow()
		if done || rowNumber > maxRowsToCheck+1 {
			break
		}
		if err != nil {
			return nil, wrap.Errorf(err, "failed to read row %d of CSV file", rowNumber)
		}

		for i, value := range row {
			if i >= len(deduced) {
				break
			}
			deduced[i] = mergeFieldTypes(deduced[i], deduceFieldType(value))
		}
	}

	fields = make([]db.FieldInput, 0, len(header))
	for i, name := range header {
		if name == "" {
			name = "Column " + strconv.Itoa(i+1)
		}
		fieldType := deduced[i]
		if fieldType == 0 {
			fieldType = db.FieldTypeSingleLineText
		}
		fields = append(fields, db.FieldInput{Name: name, Type: fieldType})
	}

	return fields, nil
}

// Returns 0 for blank values, which are compatible with every type.
func deduceFieldType(value string) db.FieldType {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return db.FieldTypeNumber
	}
	if lower := strings.ToLower(value); lower == "true" || lower == "false" {
		return db.FieldTypeCheckbox
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return db.FieldTypeDate
		}
	}
	if strings.ContainsAny(value, "\n\r") {
		return db.FieldTypeLongText
	}
	return db.FieldTypeSingleLineText
}

func mergeFieldTypes(current db.FieldType, next db.FieldType) db.FieldType {
	switch {
	case next == 0 || current == next:
		return current
	case current == 0:
		return next
	case isTextType(current) && isTextType(next):
		return db.FieldTypeLongText
	default:
		return db.FieldTypeSingleLineText
	}
}

func isTextType(fieldType db.FieldType) bool {
	return fieldType == db.FieldTypeSingleLineText || fieldType == db.FieldTypeLongText
}
