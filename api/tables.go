package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/attachments"
	"hermannm.dev/gridbase/csv"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/records"
	"hermannm.dev/wrap"
)

type CreateTableRequest struct {
	Name   string          `json:"name"`
	Fields []db.FieldInput `json:"fields"`
}

type TableResponse struct {
	Table  db.Table   `json:"table"`
	Fields []db.Field `json:"fields"`
}

// Creates a new table with the given fields.
//
// Expects:
//   - Body: JSON object with "name" and "fields" (each with "name", "type" and "options")
//
// Returns:
//   - 201 with the created table and its fields
func (api API) CreateTable(res http.ResponseWriter, req *http.Request) {
	var body CreateTableRequest
	if err := decodeBody(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	table, fields, err := api.tables.CreateTable(req.Context(), body.Name, body.Fields)
	if err != nil {
		sendError(res, err, "failed to create table")
		return
	}

	sendJSONWithStatus(res, http.StatusCreated, TableResponse{Table: table, Fields: fields})
}

// Computes statistics over a table's records.
//
// Expects:
//   - Path parameter: tableId
//   - Query parameter "source": "analytics" to run against the analytics database, otherwise the
//     primary store is used
//   - Body: JSON object with "aggregations", a list of {"fieldId", "statisticFunc"}
//
// Returns:
//   - 200 with {"aggregations": [{"fieldId", "statisticFunc", "value"}]}, in request order
func (api API) Aggregate(res http.ResponseWriter, req *http.Request) {
	var body struct {
		Aggregations []db.AggregationField `json:"aggregations"`
	}
	if err := decodeBody(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	ctx := req.Context()
	table, err := api.tables.GetTable(ctx, req.PathValue("tableId"))
	if err != nil {
		sendError(res, err, "failed to get table")
		return
	}
	fields, err := api.tables.GetFields(ctx, table.ID)
	if err != nil {
		sendError(res, err, "failed to get table fields")
		return
	}

	var aggregator db.AggregationDB = api.tables
	if req.URL.Query().Get("source") == "analytics" {
		if api.analytics == nil {
			sendClientError(res, nil, "no analytics database is configured")
			return
		}
		aggregator = api.analytics
	}

	result, err := aggregator.Aggregate(ctx, table, fields, body.Aggregations)
	if err != nil {
		sendError(res, err, "failed to compute aggregations")
		return
	}

	sendJSON(res, result)
}

// The number of rows checked when deducing field types of an imported CSV file.
const csvRowsToCheck = 1000

// Creates a new table from an uploaded CSV file, with one field per column, and imports its rows.
//
// Expects:
//   - Multipart form file: csvFile
//   - Form value "name": the table name (defaults to the file name)
//
// Returns:
//   - 201 with the created table, its fields and the number of imported records
func (api API) CreateTableFromCSV(res http.ResponseWriter, req *http.Request) {
	file, header, err := req.FormFile("csvFile")
	if err != nil {
		sendClientError(res, err, "failed to get file upload from request")
		return
	}
	defer file.Close()

	reader, err := csv.NewReader(file, false)
	if err != nil {
		sendClientError(res, err, "failed to read CSV file")
		return
	}

	inputs, err := reader.DeduceFieldTypes(csvRowsToCheck)
	if err != nil {
		sendClientError(res, err, "failed to deduce field types from CSV file")
		return
	}

	name := req.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, path.Ext(header.Filename))
	}

	ctx := req.Context()
	table, fields, err := api.tables.CreateTable(ctx, name, inputs)
	if err != nil {
		sendError(res, err, "failed to create table from CSV")
		return
	}

	rows, err := reader.ReadRowsByHeader()
	if err != nil {
		sendClientError(res, err, "failed to read CSV rows")
		return
	}

	imported, err := api.importRows(req, table, rows)
	if err != nil {
		sendError(res, err, "failed to import CSV rows after creating table")
		return
	}

	sendJSONWithStatus(res, http.StatusCreated, struct {
		TableResponse
		Imported int `json:"imported"`
	}{TableResponse{Table: table, Fields: fields}, imported})
}

// Imports the rows of an uploaded CSV file into an existing table. Columns are matched to fields
// by the header row, and values are typecast.
//
// Expects:
//   - Path parameter: tableId
//   - Multipart form file: csvFile
//
// Returns:
//   - 200 with {"imported": <number of created records>}
func (api API) ImportCSV(res http.ResponseWriter, req *http.Request) {
	file, _, err := req.FormFile("csvFile")
	if err != nil {
		sendClientError(res, err, "failed to get file upload from request")
		return
	}
	defer file.Close()

	table, err := api.tables.GetTable(req.Context(), req.PathValue("tableId"))
	if err != nil {
		sendError(res, err, "failed to get table")
		return
	}

	reader, err := csv.NewReader(file, false)
	if err != nil {
		sendClientError(res, err, "failed to read CSV file")
		return
	}

	rows, err := reader.ReadRowsByHeader()
	if err != nil {
		sendClientError(res, err, "failed to read CSV rows")
		return
	}

	imported, err := api.importRows(req, table, rows)
	if err != nil {
		sendError(res, err, "failed to import CSV file")
		return
	}

	sendJSON(res, struct {
		Imported int `json:"imported"`
	}{imported})
}

func (api API) importRows(req *http.Request, table db.Table, rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inputs := make([]records.RecordInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, records.RecordInput{Fields: row})
	}

	created, err := api.records.CreateRecords(req.Context(), table.ID, records.CreateRecordsInput{
		Records:      inputs,
		FieldKeyType: db.FieldKeyTypeName,
		Typecast:     true,
	})
	if err != nil {
		return 0, err
	}

	api.archiveImport(req, table)
	return len(created), nil
}

// Keeps a copy of the imported file in private storage. Failures are logged, since the import
// itself has already succeeded.
func (api API) archiveImport(req *http.Request, table db.Table) {
	if api.storage == nil {
		return
	}

	file, _, err := req.FormFile("csvFile")
	if err != nil {
		log.ErrorCause(err, "failed to reopen imported CSV file for archiving")
		return
	}
	defer file.Close()

	temporary, err := api.storage.SaveTemporaryFile(file, "text/csv")
	if err != nil {
		log.ErrorCause(err, "failed to archive imported CSV file")
		return
	}

	archivePath := fmt.Sprintf("import/%s/%s.csv", table.ID, uuid.NewString())
	readPath, err := api.storage.UploadFileWithPath(
		attachments.PrivateBucket,
		archivePath,
		temporary.Path,
	)
	if err != nil {
		log.ErrorCause(err, "failed to archive imported CSV file")
		return
	}

	log.Debug(
		"archived imported CSV file",
		slog.String("tableId", table.ID),
		slog.String("path", readPath),
	)
}

// Replaces the table's copy in the analytics database with the current records of the primary
// store.
//
// Expects:
//   - Path parameter: tableId
//
// Returns:
//   - 200 with {"synced": <number of records copied>}
func (api API) SyncAnalytics(res http.ResponseWriter, req *http.Request) {
	if api.analytics == nil {
		sendClientError(res, nil, "no analytics database is configured")
		return
	}

	synced, err := api.syncTable(req, req.PathValue("tableId"))
	if err != nil {
		sendError(res, err, "failed to sync table to analytics database")
		return
	}

	sendJSON(res, struct {
		Synced int `json:"synced"`
	}{synced})
}

func (api API) syncTable(req *http.Request, tableID string) (int, error) {
	ctx := req.Context()

	var (
		table        db.Table
		fields       []db.Field
		tableRecords []db.Record
	)
	err := api.tables.RunInTransaction(ctx, func(tx db.RecordTx) error {
		var err error
		if table, err = tx.GetTable(ctx, tableID); err != nil {
			return err
		}
		if fields, err = tx.GetFields(ctx, tableID); err != nil {
			return err
		}
		tableRecords, err = tx.GetRecords(ctx, table, fields, nil)
		return err
	})
	if err != nil {
		return 0, err
	}

	alreadyDropped, err := api.analytics.DropTable(ctx, table)
	if err != nil {
		return 0, wrap.Error(err, "failed to drop previous analytics table")
	}
	if alreadyDropped {
		log.Info("analytics table did not exist, creating it", slog.String("tableId", table.ID))
	}

	if err := api.analytics.CreateTable(ctx, table, fields); err != nil {
		return 0, wrap.Error(err, "failed to create analytics table")
	}
	if len(tableRecords) == 0 {
		return 0, nil
	}
	if err := api.analytics.InsertRecords(ctx, table, fields, tableRecords); err != nil {
		return 0, wrap.Error(err, "failed to copy records to analytics table")
	}

	return len(tableRecords), nil
}
