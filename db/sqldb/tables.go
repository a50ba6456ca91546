package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

type tableModel struct {
	ID          string    `gorm:"primaryKey"`
	Name        string    `gorm:"not null"`
	DBTableName string    `gorm:"not null;uniqueIndex"`
	CreatedTime time.Time `gorm:"autoCreateTime"`
}

func (tableModel) TableName() string {
	return "table_meta"
}

type fieldModel struct {
	ID          string `gorm:"primaryKey"`
	TableID     string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Type        string `gorm:"not null"`
	DBFieldName string `gorm:"not null"`
	// JSON-encoded db.FieldOptions.
	Options     string
	Position    int
	CreatedTime time.Time `gorm:"autoCreateTime"`
	DeletedTime *time.Time
}

func (fieldModel) TableName() string {
	return "field"
}

func (model tableModel) toTable() db.Table {
	return db.Table{ID: model.ID, Name: model.Name, DBTableName: model.DBTableName}
}

func (model fieldModel) toField() (db.Field, error) {
	var fieldType db.FieldType
	if err := fieldType.UnmarshalJSON([]byte(strconv.Quote(model.Type))); err != nil {
		return db.Field{}, wrap.Errorf(err, "invalid type '%s' stored for field '%s'", model.Type, model.ID)
	}

	var options db.FieldOptions
	if model.Options != "" {
		if err := json.Unmarshal([]byte(model.Options), &options); err != nil {
			return db.Field{}, wrap.Errorf(err, "invalid options stored for field '%s'", model.ID)
		}
	}

	field := db.NewField(model.ID, db.FieldInput{Name: model.Name, Type: fieldType, Options: options})
	field.DBFieldName = model.DBFieldName
	return field, nil
}

func toFields(models []fieldModel) ([]db.Field, error) {
	fields := make([]db.Field, 0, len(models))
	for _, model := range models {
		field, err := model.toField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// Stores the table and its fields, and creates the physical table holding their records. Field
// names must be unique within the table.
func (database DB) CreateTable(
	ctx context.Context,
	name string,
	inputs []db.FieldInput,
) (db.Table, []db.Field, error) {
	var errs []error
	if strings.TrimSpace(name) == "" {
		errs = append(errs, errors.New("table name is blank"))
	}
	for i, input := range inputs {
		if err := input.Validate(); err != nil {
			errs = append(errs, wrap.Errorf(err, "invalid field at index %d", i))
		}
	}
	if duplicates := lo.FindDuplicatesBy(inputs, func(input db.FieldInput) string {
		return input.Name
	}); len(duplicates) != 0 {
		errs = append(errs, fmt.Errorf("duplicate field name '%s'", duplicates[0].Name))
	}
	if len(errs) != 0 {
		return db.Table{}, nil, &db.InvalidTableInputError{Errs: errs}
	}

	tableID := db.NewTableID()
	table := db.Table{ID: tableID, Name: name, DBTableName: db.NewDBTableName(tableID)}

	fields := make([]db.Field, 0, len(inputs))
	models := make([]fieldModel, 0, len(inputs))
	for i, input := range inputs {
		field := db.NewField(db.NewFieldID(), input)
		fields = append(fields, field)

		options, err := json.Marshal(field.Options)
		if err != nil {
			return db.Table{}, nil, wrap.Errorf(err, "failed to serialize options for field '%s'", field.Name)
		}

		models = append(models, fieldModel{
			ID:          field.ID,
			TableID:     table.ID,
			Name:        field.Name,
			Type:        field.Type.String(),
			DBFieldName: field.DBFieldName,
			Options:     string(options),
			Position:    i,
		})
	}

	statement, err := database.createTableStatement(table, fields)
	if err != nil {
		return db.Table{}, nil, err
	}

	if err := database.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tableModel{
			ID:          table.ID,
			Name:        table.Name,
			DBTableName: table.DBTableName,
		}).Error; err != nil {
			return wrap.Error(err, "failed to store table")
		}

		if len(models) != 0 {
			if err := tx.Create(&models).Error; err != nil {
				return wrap.Error(err, "failed to store fields")
			}
		}

		if err := tx.Exec(statement).Error; err != nil {
			return wrap.Error(err, "create table query failed")
		}

		return nil
	}); err != nil {
		return db.Table{}, nil, wrap.Errorf(err, "failed to create table '%s'", name)
	}

	return table, fields, nil
}

func (database DB) createTableStatement(table db.Table, fields []db.Field) (string, error) {
	quote := database.dialect.QuoteIdentifier

	dateTimeType, _ := database.columnType(db.DBFieldTypeDateTime)
	integerType, _ := database.columnType(db.DBFieldTypeInteger)

	var statement strings.Builder
	statement.WriteString("CREATE TABLE ")
	statement.WriteString(quote(table.DBTableName))
	statement.WriteString(" (")
	fmt.Fprintf(&statement, "%s TEXT PRIMARY KEY, ", quote(db.RecordIDColumn))
	fmt.Fprintf(&statement, "%s %s NOT NULL, ", quote(db.RecordCreatedTimeColumn), dateTimeType)
	fmt.Fprintf(&statement, "%s %s NULL, ", quote(db.RecordLastModifiedTimeColumn), dateTimeType)
	fmt.Fprintf(&statement, "%s %s NOT NULL DEFAULT 1", quote(db.RecordVersionColumn), integerType)

	for _, field := range fields {
		if field.IsComputed {
			continue
		}

		columnType, ok := database.columnType(field.DBFieldType)
		if !ok {
			return "", fmt.Errorf(
				"invalid storage type '%v' for field '%s'",
				field.DBFieldType,
				field.Name,
			)
		}

		fmt.Fprintf(&statement, ", %s %s NULL", quote(field.DBFieldName), columnType)
	}

	statement.WriteByte(')')
	return statement.String(), nil
}

func (database DB) GetTable(ctx context.Context, tableID string) (db.Table, error) {
	var model tableModel
	if err := database.conn(ctx).Where("id = ?", tableID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.Table{}, wrap.Errorf(db.ErrTableNotFound, "no table with ID '%s'", tableID)
		}
		return db.Table{}, wrap.Error(err, "table query failed")
	}

	return model.toTable(), nil
}

// Returns the table's fields in the order they were created.
func (database DB) GetFields(ctx context.Context, tableID string) ([]db.Field, error) {
	var models []fieldModel
	if err := database.conn(ctx).
		Where("table_id = ? AND deleted_time IS NULL", tableID).
		Order("position").
		Find(&models).Error; err != nil {
		return nil, wrap.Error(err, "field query failed")
	}

	return toFields(models)
}

func (database DB) GetFieldsByKeys(
	ctx context.Context,
	tableID string,
	keys []string,
	keyType db.FieldKeyType,
) ([]db.Field, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	keyColumn := "name"
	if keyType.OrDefault() == db.FieldKeyTypeID {
		keyColumn = "id"
	}

	var models []fieldModel
	if err := database.conn(ctx).
		Where("table_id = ? AND deleted_time IS NULL", tableID).
		Where(keyColumn+" IN ?", keys).
		Order("position").
		Find(&models).Error; err != nil {
		return nil, wrap.Error(err, "field query failed")
	}

	return toFields(models)
}

func (database DB) UpdateFieldOptions(
	ctx context.Context,
	fieldID string,
	options db.FieldOptions,
) error {
	encoded, err := json.Marshal(options)
	if err != nil {
		return wrap.Error(err, "failed to serialize field options")
	}

	result := database.conn(ctx).
		Model(&fieldModel{}).
		Where("id = ?", fieldID).
		Update("options", string(encoded))
	if result.Error != nil {
		return wrap.Errorf(result.Error, "failed to update options for field '%s'", fieldID)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no field with ID '%s'", fieldID)
	}

	return nil
}
