package records

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/samber/lo"
	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/typecast"
	"hermannm.dev/wrap"
)

// Creates, updates and deletes records, validating and typecasting cell values on the way in.
// Every operation runs in a single store transaction.
type Service struct {
	store       db.RecordStore
	attachments typecast.AttachmentResolver
}

func NewService(store db.RecordStore, attachments typecast.AttachmentResolver) Service {
	return Service{store: store, attachments: attachments}
}

// Cell values keyed by field name or field ID, depending on the request's field key type.
type RecordInput struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type CreateRecordsInput struct {
	Records      []RecordInput   `json:"records"`
	FieldKeyType db.FieldKeyType `json:"fieldKeyType,omitempty"`
	Typecast     bool            `json:"typecast,omitempty"`
}

type UpdateRecordsInput struct {
	Records      []RecordInput   `json:"records"`
	FieldKeyType db.FieldKeyType `json:"fieldKeyType,omitempty"`
	Typecast     bool            `json:"typecast,omitempty"`
}

type UpdateRecordInput struct {
	Record       RecordInput     `json:"record"`
	FieldKeyType db.FieldKeyType `json:"fieldKeyType,omitempty"`
	Typecast     bool            `json:"typecast,omitempty"`
}

// Returns the created records with their fields keyed by the input's field key type.
func (service Service) CreateRecords(
	ctx context.Context,
	tableID string,
	input CreateRecordsInput,
) ([]db.Record, error) {
	keyType := input.FieldKeyType.OrDefault()

	var created []db.Record
	err := service.store.RunInTransaction(ctx, func(tx db.RecordTx) error {
		table, err := tx.GetTable(ctx, tableID)
		if err != nil {
			return err
		}

		records, err := service.validateFieldsAndTypecast(ctx, tx, tableID, input.Records, keyType, input.Typecast)
		if err != nil {
			return err
		}

		for i := range records {
			if records[i].ID == "" {
				records[i].ID = db.NewRecordID()
			}
		}

		fields, err := tx.GetFields(ctx, tableID)
		if err != nil {
			return err
		}

		if err := tx.InsertRecords(ctx, table, fields, records); err != nil {
			return wrap.Error(err, "failed to insert records")
		}

		ids := lo.Map(records, func(record db.RecordInput, _ int) string {
			return record.ID
		})
		created, err = tx.GetRecords(ctx, table, fields, ids)
		if err != nil {
			return wrap.Error(err, "failed to read back created records")
		}

		created = keyRecords(created, fields, keyType)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug(
		"created records",
		slog.String("tableId", tableID),
		slog.Int("count", len(created)),
	)
	return created, nil
}

// Returns the updated records with their fields keyed by the input's field key type.
func (service Service) UpdateRecords(
	ctx context.Context,
	tableID string,
	input UpdateRecordsInput,
) ([]db.Record, error) {
	for _, record := range input.Records {
		if record.ID == "" {
			return nil, db.ErrMissingRecordID
		}
	}

	keyType := input.FieldKeyType.OrDefault()

	var updated []db.Record
	err := service.store.RunInTransaction(ctx, func(tx db.RecordTx) error {
		var err error
		updated, err = service.updateRecords(ctx, tx, tableID, input.Records, keyType, input.Typecast)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Fails with "update record failed" unless the record can be read back after the update.
func (service Service) UpdateRecordByID(
	ctx context.Context,
	tableID string,
	recordID string,
	input UpdateRecordInput,
) (db.Record, error) {
	if recordID == "" {
		return db.Record{}, db.ErrMissingRecordID
	}

	keyType := input.FieldKeyType.OrDefault()
	record := RecordInput{ID: recordID, Fields: input.Record.Fields}

	var updated []db.Record
	err := service.store.RunInTransaction(ctx, func(tx db.RecordTx) error {
		var err error
		updated, err = service.updateRecords(ctx, tx, tableID, []RecordInput{record}, keyType, input.Typecast)
		if err != nil {
			return err
		}

		if len(updated) != 1 {
			return errors.New("update record failed")
		}
		return nil
	})
	if err != nil {
		return db.Record{}, err
	}

	return updated[0], nil
}

func (service Service) updateRecords(
	ctx context.Context,
	tx db.RecordTx,
	tableID string,
	inputs []RecordInput,
	keyType db.FieldKeyType,
	typecast bool,
) ([]db.Record, error) {
	table, err := tx.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	records, err := service.validateFieldsAndTypecast(ctx, tx, tableID, inputs, keyType, typecast)
	if err != nil {
		return nil, err
	}

	fields, err := tx.GetFields(ctx, tableID)
	if err != nil {
		return nil, err
	}

	if err := tx.UpdateRecords(ctx, table, fields, records); err != nil {
		return nil, wrap.Error(err, "failed to update records")
	}

	ids := lo.Map(records, func(record db.RecordInput, _ int) string {
		return record.ID
	})
	updated, err := tx.GetRecords(ctx, table, fields, lo.Uniq(ids))
	if err != nil {
		return nil, wrap.Error(err, "failed to read back updated records")
	}

	return keyRecords(updated, fields, keyType), nil
}

func (service Service) DeleteRecord(ctx context.Context, tableID string, recordID string) error {
	return service.store.RunInTransaction(ctx, func(tx db.RecordTx) error {
		table, err := tx.GetTable(ctx, tableID)
		if err != nil {
			return err
		}

		deleted, err := tx.DeleteRecords(ctx, table, []string{recordID})
		if err != nil {
			return wrap.Errorf(err, "failed to delete record '%s'", recordID)
		}
		if deleted == 0 {
			return wrap.Errorf(db.ErrRecordNotFound, "no record with ID '%s'", recordID)
		}
		return nil
	})
}

// Record IDs that do not exist are ignored.
func (service Service) DeleteRecords(ctx context.Context, tableID string, recordIDs []string) error {
	return service.store.RunInTransaction(ctx, func(tx db.RecordTx) error {
		table, err := tx.GetTable(ctx, tableID)
		if err != nil {
			return err
		}

		deleted, err := tx.DeleteRecords(ctx, table, lo.Uniq(recordIDs))
		if err != nil {
			return wrap.Error(err, "failed to delete records")
		}

		log.Debug(
			"deleted records",
			slog.String("tableId", tableID),
			slog.Int("requested", len(recordIDs)),
			slog.Int("deleted", deleted),
		)
		return nil
	})
}

// Loads the fields referenced by any of the records, failing with db.FieldsNotFoundError if a key
// matches no field. Each present cell value is then cast for its field, and the results are keyed
// by field ID. Keys absent from a record stay absent. Select choices created by typecasting are
// saved to their fields.
func (service Service) validateFieldsAndTypecast(
	ctx context.Context,
	tx db.RecordTx,
	tableID string,
	inputs []RecordInput,
	keyType db.FieldKeyType,
	typecastEnabled bool,
) ([]db.RecordInput, error) {
	keys := lo.Uniq(lo.FlatMap(inputs, func(input RecordInput, _ int) []string {
		return lo.Keys(input.Fields)
	}))

	fields, err := tx.GetFieldsByKeys(ctx, tableID, keys, keyType)
	if err != nil {
		return nil, wrap.Error(err, "failed to get fields for records")
	}

	if len(fields) != len(keys) {
		found := lo.Map(fields, func(field db.Field, _ int) string {
			return field.Key(keyType)
		})
		missing, _ := lo.Difference(keys, found)
		slices.Sort(missing)
		return nil, &db.FieldsNotFoundError{Keys: missing}
	}

	records := make([]db.RecordInput, len(inputs))
	for i, input := range inputs {
		records[i] = db.RecordInput{ID: input.ID, Fields: make(map[string]any, len(input.Fields))}
	}

	for _, field := range fields {
		caster := typecast.NewCaster(field, typecastEnabled, service.attachments)
		key := field.Key(keyType)

		for i, input := range inputs {
			value, present := input.Fields[key]
			if !present {
				continue
			}

			cast, err := caster.Cast(ctx, value)
			if err != nil {
				return nil, err
			}
			records[i].Fields[field.ID] = cast
		}

		if newChoices := caster.NewChoices(); len(newChoices) != 0 {
			options := field.Options
			options.Choices = append(append([]db.SelectChoice(nil), options.Choices...), newChoices...)

			if err := tx.UpdateFieldOptions(ctx, field.ID, options); err != nil {
				return nil, wrap.Errorf(err, "failed to add new choices to field '%s'", field.Name)
			}
		}
	}

	return records, nil
}

// Re-keys record fields from field IDs to the given key type.
func keyRecords(records []db.Record, fields []db.Field, keyType db.FieldKeyType) []db.Record {
	if keyType == db.FieldKeyTypeID {
		return records
	}

	fieldsByID := db.FieldsByID(fields)
	return lo.Map(records, func(record db.Record, _ int) db.Record {
		keyed := make(map[string]any, len(record.Fields))
		for fieldID, value := range record.Fields {
			if field, ok := fieldsByID[fieldID]; ok {
				keyed[field.Key(keyType)] = value
			}
		}
		record.Fields = keyed
		return record
	})
}
