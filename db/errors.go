package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// A requested field ID was not present in the table's fields.
type InvalidFieldError struct {
	FieldID string
}

func (err *InvalidFieldError) Error() string {
	return fmt.Sprintf("field '%s' is invalid", err.FieldID)
}

// A requested statistic function is not permitted for the field's type.
type InvalidStatisticError struct {
	FieldID       string
	StatisticFunc StatisticFunc
	Allowed       []StatisticFunc
}

func (err *InvalidStatisticError) Error() string {
	allowed := lo.Map(err.Allowed, func(statisticFunc StatisticFunc, _ int) string {
		return statisticFunc.String()
	})

	return fmt.Sprintf(
		"aggregation function '%s' is invalid for field '%s', only the following are allowed: [%s]",
		err.StatisticFunc,
		err.FieldID,
		strings.Join(allowed, ", "),
	)
}

// Some of the field keys referenced by a record write did not match any field in the table.
type FieldsNotFoundError struct {
	Keys []string
}

func (err *FieldsNotFoundError) Error() string {
	if len(err.Keys) == 0 {
		return "some fields not found"
	}
	return fmt.Sprintf("some fields not found: [%s]", strings.Join(err.Keys, ", "))
}

// A cell value did not match what its field accepts.
type InvalidCellValueError struct {
	FieldName string
	Reason    string
}

func (err *InvalidCellValueError) Error() string {
	return fmt.Sprintf("invalid value for field '%s': %s", err.FieldName, err.Reason)
}

// A write targeted a computed field, whose values are derived by the system.
type ComputedFieldError struct {
	FieldName string
}

func (err *ComputedFieldError) Error() string {
	return fmt.Sprintf("field '%s' is computed and cannot be written to", err.FieldName)
}

// The name or field definitions given for a new table were invalid.
type InvalidTableInputError struct {
	Errs []error
}

func (err *InvalidTableInputError) Error() string {
	messages := lo.Map(err.Errs, func(err error, _ int) string {
		return err.Error()
	})
	return fmt.Sprintf("invalid table input: %s", strings.Join(messages, "; "))
}

func (err *InvalidTableInputError) Unwrap() []error {
	return err.Errs
}

var (
	ErrTableNotFound  = errors.New("table not found")
	ErrRecordNotFound = errors.New("record not found")

	ErrMissingRecordID = errors.New("record ID is required")
)

// Returns true if the error was caused by invalid input from the client, rather than a failure on
// our end.
func IsClientError(err error) bool {
	var (
		invalidField     *InvalidFieldError
		invalidStatistic *InvalidStatisticError
		fieldsNotFound   *FieldsNotFoundError
		invalidCellValue *InvalidCellValueError
		computedField    *ComputedFieldError
		invalidTable     *InvalidTableInputError
	)

	return errors.Is(err, ErrMissingRecordID) ||
		errors.As(err, &invalidField) ||
		errors.As(err, &invalidStatistic) ||
		errors.As(err, &fieldsNotFound) ||
		errors.As(err, &invalidCellValue) ||
		errors.As(err, &computedField) ||
		errors.As(err, &invalidTable)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTableNotFound) || errors.Is(err, ErrRecordNotFound)
}
