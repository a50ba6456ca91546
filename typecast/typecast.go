package typecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cast"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

// Looks up uploaded files by their upload token, for writing them to attachment fields.
type AttachmentResolver interface {
	ResolveAttachment(ctx context.Context, token string) (db.Attachment, error)
}

// Validates cell values written to a field, and converts them to the field's cell value type.
//
// In strict mode, values must already have the shape the field stores (as decoded from JSON).
// With typecast enabled, values are converted where possible: numbers from strings, select
// choices from comma-separated text, attachments from bare upload tokens, and so on. Select
// choices that do not exist yet are then collected in NewChoices, for the caller to persist.
//
// A nil value clears the cell. Nil is also returned for values that mean "empty" for the field,
// such as an empty string or an unchecked checkbox.
type Caster struct {
	field       db.Field
	typecast    bool
	attachments AttachmentResolver
	newChoices  []db.SelectChoice
}

func NewCaster(field db.Field, typecast bool, attachments AttachmentResolver) *Caster {
	return &Caster{field: field, typecast: typecast, attachments: attachments}
}

// Select choices created while casting, in the order they were first seen.
func (caster *Caster) NewChoices() []db.SelectChoice {
	return caster.newChoices
}

func (caster *Caster) Cast(ctx context.Context, value any) (any, error) {
	if caster.field.IsComputed {
		return nil, &db.ComputedFieldError{FieldName: caster.field.Name}
	}
	if value == nil {
		return nil, nil
	}

	switch caster.field.Type {
	case db.FieldTypeSingleLineText, db.FieldTypeLongText:
		return caster.castText(value)
	case db.FieldTypeNumber:
		return caster.castNumber(value)
	case db.FieldTypeRating:
		return caster.castRating(value)
	case db.FieldTypeCheckbox:
		return caster.castCheckbox(value)
	case db.FieldTypeDate:
		return caster.castDate(value)
	case db.FieldTypeSingleSelect:
		return caster.castSingleSelect(value)
	case db.FieldTypeMultipleSelect:
		return caster.castMultipleSelect(value)
	case db.FieldTypeAttachment:
		return caster.castAttachments(ctx, value)
	}

	return nil, fmt.Errorf("unsupported field type '%v' for field '%s'", caster.field.Type, caster.field.Name)
}

func (caster *Caster) invalid(reason string, args ...any) error {
	return &db.InvalidCellValueError{
		FieldName: caster.field.Name,
		Reason:    fmt.Sprintf(reason, args...),
	}
}

func (caster *Caster) castText(value any) (any, error) {
	var text string
	if caster.typecast {
		if list, ok := value.([]any); ok {
			text = strings.Join(cast.ToStringSlice(list), ", ")
		} else {
			var err error
			if text, err = cast.ToStringE(value); err != nil {
				return nil, caster.invalid("cannot convert %T to text", value)
			}
		}
	} else {
		var ok bool
		if text, ok = value.(string); !ok {
			return nil, caster.invalid("expected string, got %T", value)
		}
	}

	if caster.field.Type == db.FieldTypeSingleLineText {
		text = strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
	}
	if text == "" {
		return nil, nil
	}
	return text, nil
}

func (caster *Caster) toNumber(value any) (float64, error) {
	if !caster.typecast {
		switch value.(type) {
		case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		default:
			return 0, caster.invalid("expected number, got %T", value)
		}
	}

	if text, ok := value.(string); ok {
		value = strings.TrimSpace(text)
		if value == "" {
			return math.NaN(), nil
		}
	}

	number, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, caster.invalid("cannot convert %v to number", value)
	}
	if math.IsInf(number, 0) {
		return 0, caster.invalid("number must be finite")
	}
	return number, nil
}

func (caster *Caster) castNumber(value any) (any, error) {
	number, err := caster.toNumber(value)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(number) {
		return nil, nil
	}
	return number, nil
}

// Ratings are whole numbers from 1 to the field's max. With typecast, numbers are rounded and
// clamped into that range, with anything below 1 clearing the cell.
func (caster *Caster) castRating(value any) (any, error) {
	number, err := caster.toNumber(value)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(number) {
		return nil, nil
	}

	ratingMax := caster.field.RatingMax()

	if caster.typecast {
		rating := int(math.Round(number))
		if rating < 1 {
			return nil, nil
		}
		return min(rating, ratingMax), nil
	}

	if number != math.Trunc(number) {
		return nil, caster.invalid("rating must be a whole number, got %v", number)
	}
	if number < 1 || number > float64(ratingMax) {
		return nil, caster.invalid("rating must be between 1 and %d, got %v", ratingMax, number)
	}
	return int(number), nil
}

func (caster *Caster) castCheckbox(value any) (any, error) {
	var checked bool
	if caster.typecast {
		var err error
		if checked, err = cast.ToBoolE(value); err != nil {
			return nil, caster.invalid("cannot convert %v to checkbox", value)
		}
	} else {
		var ok bool
		if checked, ok = value.(bool); !ok {
			return nil, caster.invalid("expected boolean, got %T", value)
		}
	}

	if !checked {
		return nil, nil
	}
	return true, nil
}

func (caster *Caster) castDate(value any) (any, error) {
	if date, ok := value.(time.Time); ok {
		return date.UTC(), nil
	}

	if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if caster.typecast {
		date, err := cast.ToTimeE(value)
		if err != nil {
			return nil, caster.invalid("cannot convert %v to date", value)
		}
		return date.UTC(), nil
	}

	text, ok := value.(string)
	if !ok {
		return nil, caster.invalid("expected date string, got %T", value)
	}
	date, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return nil, caster.invalid("date must be in RFC 3339 format, got '%s'", text)
	}
	return date.UTC(), nil
}

// Returns the choice name if the field has it. Otherwise, fails in strict mode, or registers a new
// choice in typecast mode.
func (caster *Caster) resolveChoice(name string) (string, error) {
	if caster.field.HasChoice(name) {
		return name, nil
	}
	if !caster.typecast {
		return "", caster.invalid("'%s' is not one of the field's choices", name)
	}

	if !lo.ContainsBy(caster.newChoices, func(choice db.SelectChoice) bool {
		return choice.Name == name
	}) {
		caster.newChoices = append(caster.newChoices, db.SelectChoice{Name: name})
	}
	return name, nil
}

func (caster *Caster) castSingleSelect(value any) (any, error) {
	var name string
	if caster.typecast {
		if list, ok := value.([]any); ok {
			if len(list) == 0 {
				return nil, nil
			}
			value = list[0]
		}

		var err error
		if name, err = cast.ToStringE(value); err != nil {
			return nil, caster.invalid("cannot convert %v to select choice", value)
		}
		name = strings.TrimSpace(name)
	} else {
		var ok bool
		if name, ok = value.(string); !ok {
			return nil, caster.invalid("expected string, got %T", value)
		}
	}

	if name == "" {
		return nil, nil
	}
	return caster.resolveChoice(name)
}

func (caster *Caster) castMultipleSelect(value any) (any, error) {
	names, err := caster.toStringList(value, "select choices")
	if err != nil {
		return nil, err
	}

	names = lo.Uniq(names)
	if len(names) == 0 {
		return nil, nil
	}

	for _, name := range names {
		if _, err := caster.resolveChoice(name); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// In strict mode, the value must be a list of strings. With typecast, a single string is split on
// commas and list items are converted to strings. Blank items are dropped in both modes.
func (caster *Caster) toStringList(value any, description string) ([]string, error) {
	var items []string

	switch value := value.(type) {
	case []string:
		items = value
	case []any:
		for _, item := range value {
			text, ok := item.(string)
			if !ok {
				if !caster.typecast {
					return nil, caster.invalid("expected list of strings for %s, got %T item", description, item)
				}

				var err error
				if text, err = cast.ToStringE(item); err != nil {
					return nil, caster.invalid("cannot convert %v to string for %s", item, description)
				}
			}
			items = append(items, text)
		}
	case string:
		if !caster.typecast {
			return nil, caster.invalid("expected list for %s, got string", description)
		}
		items = strings.Split(value, ",")
	default:
		return nil, caster.invalid("expected list for %s, got %T", description, value)
	}

	return lo.FilterMap(items, func(item string, _ int) (string, bool) {
		item = strings.TrimSpace(item)
		return item, item != ""
	}), nil
}

// Attachment items are objects with an upload token and an optional display name. With typecast,
// items may also be bare tokens. Each token is resolved to the stored file it refers to.
func (caster *Caster) castAttachments(ctx context.Context, value any) (any, error) {
	if caster.attachments == nil {
		return nil, errors.New("attachment storage is not configured")
	}

	var items []any
	switch value := value.(type) {
	case []any:
		items = value
	case []db.Attachment:
		items = lo.Map(value, func(attachment db.Attachment, _ int) any {
			return attachment
		})
	case string:
		if !caster.typecast {
			return nil, caster.invalid("expected list of attachments, got string")
		}
		tokens, err := caster.toStringList(value, "attachments")
		if err != nil {
			return nil, err
		}
		items = lo.ToAnySlice(tokens)
	default:
		return nil, caster.invalid("expected list of attachments, got %T", value)
	}

	attachments := make([]db.Attachment, 0, len(items))
	for i, item := range items {
		token, name, err := caster.attachmentItem(item)
		if err != nil {
			return nil, err
		}

		attachment, err := caster.attachments.ResolveAttachment(ctx, token)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to resolve attachment %d for field '%s'", i, caster.field.Name)
		}

		if attachment.ID == "" {
			attachment.ID = db.NewAttachmentID()
		}
		if name != "" {
			attachment.Name = name
		}
		attachments = append(attachments, attachment)
	}

	if len(attachments) == 0 {
		return nil, nil
	}
	return attachments, nil
}

func (caster *Caster) attachmentItem(item any) (token string, name string, err error) {
	switch item := item.(type) {
	case db.Attachment:
		token, name = item.Token, item.Name
	case string:
		if !caster.typecast {
			return "", "", caster.invalid("expected attachment object, got string")
		}
		token = strings.TrimSpace(item)
	default:
		fields, castErr := cast.ToStringMapE(item)
		if castErr != nil {
			return "", "", caster.invalid("expected attachment object, got %T", item)
		}
		token = cast.ToString(fields["token"])
		name = cast.ToString(fields["name"])
	}

	if token == "" {
		return "", "", caster.invalid("attachment is missing its upload token")
	}
	return token, name, nil
}
