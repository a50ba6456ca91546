package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/samber/lo"
	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

func fieldsToElasticMappings(fields []db.Field) (*types.TypeMapping, error) {
	mappings := new(types.TypeMapping)
	mappings.Properties = map[string]types.Property{
		db.RecordIDColumn:               types.NewKeywordProperty(),
		db.RecordCreatedTimeColumn:      types.NewDateProperty(),
		db.RecordLastModifiedTimeColumn: types.NewDateProperty(),
		db.RecordVersionColumn:          types.NewLongNumberProperty(),
	}

	for _, field := range storedFields(fields) {
		property, err := fieldToElasticProperty(field)
		if err != nil {
			return nil, wrap.Errorf(
				err,
				"failed to convert field '%s' to Elasticsearch property",
				field.Name,
			)
		}

		mappings.Properties[field.DBFieldName] = property
	}

	return mappings, nil
}

func fieldToElasticProperty(field db.Field) (types.Property, error) {
	if field.Type == db.FieldTypeAttachment {
		attachment := types.NewObjectProperty()
		attachment.Properties = map[string]types.Property{
			"id":       types.NewKeywordProperty(),
			"name":     types.NewKeywordProperty(),
			"token":    types.NewKeywordProperty(),
			"path":     types.NewKeywordProperty(),
			"size":     types.NewLongNumberProperty(),
			"mimetype": types.NewKeywordProperty(),
			"hash":     types.NewKeywordProperty(),
			"width":    types.NewIntegerNumberProperty(),
			"height":   types.NewIntegerNumberProperty(),
		}
		return attachment, nil
	}

	switch field.DBFieldType {
	case db.DBFieldTypeText:
		return types.NewKeywordProperty(), nil
	case db.DBFieldTypeInteger:
		return types.NewLongNumberProperty(), nil
	case db.DBFieldTypeReal:
		return types.NewDoubleNumberProperty(), nil
	case db.DBFieldTypeDateTime:
		return types.NewDateProperty(), nil
	case db.DBFieldTypeBoolean:
		return types.NewBooleanProperty(), nil
	case db.DBFieldTypeJSON:
		// Arrays need no special mapping in Elasticsearch, so a list of strings is a keyword.
		return types.NewKeywordProperty(), nil
	default:
		return nil, fmt.Errorf("unrecognized storage type '%v'", field.DBFieldType)
	}
}

// Fields that store their own value, i.e. all but the computed ones.
func storedFields(fields []db.Field) []db.Field {
	return lo.Reject(fields, func(field db.Field, _ int) bool {
		return field.IsComputed
	})
}

func (elastic ElasticsearchDB) CreateTable(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
) error {
	mappings, err := fieldsToElasticMappings(fields)
	if err != nil {
		return wrap.Error(err, "failed to translate table fields to elastic mappings")
	}

	if _, err = elastic.client.Indices.Create(table.DBTableName).Mappings(mappings).Do(ctx); err != nil {
		return wrapElasticErrorf(
			err,
			"Elasticsearch index creation request failed for table '%s'",
			table.Name,
		)
	}

	return nil
}

func recordToDocument(fields []db.Field, record db.Record) map[string]any {
	document := map[string]any{
		db.RecordIDColumn:          record.ID,
		db.RecordCreatedTimeColumn: record.CreatedTime.UTC(),
		db.RecordVersionColumn:     record.Version,
	}
	if record.LastModifiedTime != nil {
		document[db.RecordLastModifiedTimeColumn] = record.LastModifiedTime.UTC()
	}

	for _, field := range storedFields(fields) {
		if value, ok := record.Fields[field.ID]; ok && value != nil {
			document[field.DBFieldName] = value
		}
	}

	return document
}

func (elastic ElasticsearchDB) InsertRecords(
	ctx context.Context,
	table db.Table,
	fields []db.Field,
	records []db.Record,
) error {
	bulk, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client: elastic.untypedClient,
		Index:  table.DBTableName,
		// Records must be visible to aggregations once this returns.
		Refresh: "wait_for",
	})
	if err != nil {
		return wrap.Error(err, "failed to prepare bulk data insert")
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	for _, record := range records {
		recordJSON, err := json.Marshal(recordToDocument(fields, record))
		if err != nil {
			return wrap.Errorf(
				err,
				"failed to encode record '%s' to JSON for sending to Elasticsearch",
				record.ID,
			)
		}

		recordID := record.ID
		if err := bulk.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: recordID,
			Body:       bytes.NewReader(recordJSON),
			OnFailure: func(
				ctx context.Context,
				item esutil.BulkIndexerItem,
				response esutil.BulkIndexerResponseItem,
				err error,
			) {
				if err == nil {
					err = fmt.Errorf("%s: %s", response.Error.Type, response.Error.Reason)
				}
				cancel(wrap.Errorf(err, "failed to insert record '%s'", recordID))
			},
		}); err != nil {
			return wrap.Errorf(err, "failed to add record '%s' to bulk insert", recordID)
		}
	}

	if err := bulk.Close(ctx); err != nil {
		return wrap.Error(err, "failed to finish bulk insert")
	}

	if err := ctx.Err(); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		} else {
			return wrap.Error(err, "bulk insert was canceled with error")
		}
	}

	stats := bulk.Stats()
	log.Debug(
		"finished bulk insert to Elasticsearch",
		slog.String("index", table.DBTableName),
		slog.Uint64("indexed", stats.NumIndexed),
		slog.Uint64("failed", stats.NumFailed),
	)

	return nil
}
