package api

import (
	"net/http"
	"strings"

	"github.com/samber/lo"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/records"
)

type RecordsResponse struct {
	Records []db.Record `json:"records"`
}

// Creates records in a table.
//
// Expects:
//   - Path parameter: tableId
//   - Body: JSON object with "records" (each with "fields"), and optionally "fieldKeyType"
//     ("name" or "id") and "typecast"
//
// Returns:
//   - 201 with the created records
func (api API) CreateRecords(res http.ResponseWriter, req *http.Request) {
	var body records.CreateRecordsInput
	if err := decodeBody(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	created, err := api.records.CreateRecords(req.Context(), req.PathValue("tableId"), body)
	if err != nil {
		sendError(res, err, "failed to create records")
		return
	}

	sendJSONWithStatus(res, http.StatusCreated, RecordsResponse{Records: created})
}

// Updates records in a table. Fields left out of a record are not changed.
//
// Expects:
//   - Path parameter: tableId
//   - Body: JSON object with "records" (each with "id" and "fields"), and optionally
//     "fieldKeyType" and "typecast"
//
// Returns:
//   - 200 with the updated records
func (api API) UpdateRecords(res http.ResponseWriter, req *http.Request) {
	var body records.UpdateRecordsInput
	if err := decodeBody(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	updated, err := api.records.UpdateRecords(req.Context(), req.PathValue("tableId"), body)
	if err != nil {
		sendError(res, err, "failed to update records")
		return
	}

	sendJSON(res, RecordsResponse{Records: updated})
}

// Updates a single record.
//
// Expects:
//   - Path parameters: tableId, recordId
//   - Body: JSON object with "record" (with "fields"), and optionally "fieldKeyType" and
//     "typecast"
//
// Returns:
//   - 200 with the updated record
func (api API) UpdateRecord(res http.ResponseWriter, req *http.Request) {
	var body records.UpdateRecordInput
	if err := decodeBody(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	updated, err := api.records.UpdateRecordByID(
		req.Context(),
		req.PathValue("tableId"),
		req.PathValue("recordId"),
		body,
	)
	if err != nil {
		sendError(res, err, "failed to update record")
		return
	}

	sendJSON(res, updated)
}

// Deletes a single record.
//
// Expects:
//   - Path parameters: tableId, recordId
//
// Returns:
//   - 204 on success, 404 if the record does not exist
func (api API) DeleteRecord(res http.ResponseWriter, req *http.Request) {
	err := api.records.DeleteRecord(req.Context(), req.PathValue("tableId"), req.PathValue("recordId"))
	if err != nil {
		sendError(res, err, "failed to delete record")
		return
	}

	res.WriteHeader(http.StatusNoContent)
}

// Deletes several records. IDs of records that do not exist are ignored.
//
// Expects:
//   - Path parameter: tableId
//   - Query parameter "recordIds": repeated, or comma-separated
//
// Returns:
//   - 204 on success
func (api API) DeleteRecords(res http.ResponseWriter, req *http.Request) {
	recordIDs := lo.FlatMap(req.URL.Query()["recordIds"], func(value string, _ int) []string {
		return lo.Compact(strings.Split(value, ","))
	})
	if len(recordIDs) == 0 {
		sendClientError(res, nil, "missing 'recordIds' query parameter in request")
		return
	}

	if err := api.records.DeleteRecords(req.Context(), req.PathValue("tableId"), recordIDs); err != nil {
		sendError(res, err, "failed to delete records")
		return
	}

	res.WriteHeader(http.StatusNoContent)
}
