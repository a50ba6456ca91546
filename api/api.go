package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"hermannm.dev/gridbase/attachments"
	"hermannm.dev/gridbase/config"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/records"
	"hermannm.dev/gridbase/typecast"
)

// The primary store of table metadata and records.
type TableStore interface {
	db.RecordStore
	db.AggregationDB

	CreateTable(ctx context.Context, name string, inputs []db.FieldInput) (db.Table, []db.Field, error)
	GetTable(ctx context.Context, tableID string) (db.Table, error)
	GetFields(ctx context.Context, tableID string) ([]db.Field, error)
}

type API struct {
	tables  TableStore
	records records.Service
	storage *attachments.LocalStorage
	// Nil if no analytics database is configured.
	analytics db.AnalyticsDB
	router    *http.ServeMux
	config    config.API
}

func NewAPI(
	tables TableStore,
	storage *attachments.LocalStorage,
	analytics db.AnalyticsDB,
	router *http.ServeMux,
	conf config.API,
) API {
	var attachmentResolver typecast.AttachmentResolver
	if storage != nil {
		attachmentResolver = storage
	}

	api := API{
		tables:    tables,
		records:   records.NewService(tables, attachmentResolver),
		storage:   storage,
		analytics: analytics,
		router:    router,
		config:    conf,
	}

	api.handle("POST /api/table", api.CreateTable)
	api.handle("POST /api/table/import", api.CreateTableFromCSV)
	api.handle("POST /api/table/{tableId}/aggregation", api.Aggregate)
	api.handle("POST /api/table/{tableId}/import", api.ImportCSV)
	api.handle("POST /api/table/{tableId}/analytics/sync", api.SyncAnalytics)

	api.handle("POST /api/table/{tableId}/record", api.CreateRecords)
	api.handle("PATCH /api/table/{tableId}/record", api.UpdateRecords)
	api.handle("PATCH /api/table/{tableId}/record/{recordId}", api.UpdateRecord)
	api.handle("DELETE /api/table/{tableId}/record", api.DeleteRecords)
	api.handle("DELETE /api/table/{tableId}/record/{recordId}", api.DeleteRecord)

	api.handle("POST /api/attachments/signature", api.CreateUploadSignature)
	api.handle("PUT /api/attachments/upload/{token}", api.UploadAttachment)
	api.handle("POST /api/attachments/notify/{token}", api.NotifyAttachment)
	api.handle("GET /api/attachments/read/{bucket}/{path...}", api.ReadAttachment)

	api.handle("GET /api/permission/actions", api.GetPermissionActions)

	api.router.Handle("GET /metrics", promhttp.Handler())

	return api
}

func (api API) ListenAndServe() error {
	return http.ListenAndServe(fmt.Sprintf(":%s", api.config.Port), api.router)
}

func (api API) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	api.router.ServeHTTP(res, req)
}
