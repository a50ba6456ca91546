package main

import (
	"log/slog"
	"net/http"
	"os"

	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/api"
	"hermannm.dev/gridbase/attachments"
	"hermannm.dev/gridbase/config"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/db/clickhouse"
	"hermannm.dev/gridbase/db/elasticsearch"
	"hermannm.dev/gridbase/db/sqldb"
	"hermannm.dev/wrap"
)

func main() {
	conf, err := config.ReadFromEnv()
	if err != nil {
		log.ErrorCause(err, "failed to read config from env")
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if conf.LogDebug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{Level: logLevel})))

	log.Infof("Connecting to %s...", conf.DB)
	database, err := sqldb.Open(conf)
	if err != nil {
		log.ErrorCause(err, "failed to initialize database")
		os.Exit(1)
	}
	defer database.Close()

	analytics, err := openAnalyticsDB(conf)
	if err != nil {
		log.ErrorCause(err, "failed to initialize analytics database")
		os.Exit(1)
	}

	storage, err := attachments.NewLocalStorage(conf.Storage)
	if err != nil {
		log.ErrorCause(err, "failed to initialize attachment storage")
		os.Exit(1)
	}

	gridbaseAPI := api.NewAPI(database, storage, analytics, http.NewServeMux(), conf.API)

	log.Infof("Listening on port %s...", conf.API.Port)
	if err := gridbaseAPI.ListenAndServe(); err != nil {
		log.ErrorCause(err, "server stopped")
		os.Exit(1)
	}
}

// Returns nil if no analytics database is configured.
func openAnalyticsDB(conf config.Config) (db.AnalyticsDB, error) {
	switch conf.AnalyticsDB {
	case config.AnalyticsDBClickHouse:
		log.Info("Connecting to ClickHouse...")
		analytics, err := clickhouse.NewClickHouseDB(conf)
		if err != nil {
			return nil, wrap.Error(err, "failed to connect to ClickHouse")
		}
		return analytics, nil
	case config.AnalyticsDBElasticsearch:
		log.Info("Connecting to Elasticsearch...")
		analytics, err := elasticsearch.NewElasticsearchDB(conf)
		if err != nil {
			return nil, wrap.Error(err, "failed to connect to Elasticsearch")
		}
		return analytics, nil
	default:
		return nil, nil
	}
}
