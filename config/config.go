package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

type Config struct {
	BaseConfig
	Postgres      Postgres
	SQLite        SQLite
	ClickHouse    ClickHouse
	Elasticsearch Elasticsearch
	Storage       Storage
}

type BaseConfig struct {
	IsProduction bool                 `env:"PRODUCTION"   envDefault:"false"`
	LogDebug     bool                 `env:"LOG_DEBUG"    envDefault:"false"`
	DB           SupportedDB          `env:"DATABASE"`
	AnalyticsDB  SupportedAnalyticsDB `env:"ANALYTICS_DATABASE" envDefault:""`
	API          API
}

type API struct {
	Port string `env:"API_PORT"`
}

type Postgres struct {
	DSN string `env:"POSTGRES_DSN"`
}

type SQLite struct {
	Path string `env:"SQLITE_PATH"`
}

type ClickHouse struct {
	Address      string `env:"CLICKHOUSE_ADDRESS"`
	DatabaseName string `env:"CLICKHOUSE_DB_NAME"`
	Username     string `env:"CLICKHOUSE_USERNAME"`
	Password     string `env:"CLICKHOUSE_PASSWORD"`
	Debug        bool   `env:"CLICKHOUSE_DEBUG_ENABLED" envDefault:"false"`
}

type Elasticsearch struct {
	Address string `env:"ELASTICSEARCH_ADDRESS"`
	Debug   bool   `env:"ELASTICSEARCH_DEBUG_ENABLED" envDefault:"false"`
}

type Storage struct {
	LocalPath    string `env:"STORAGE_LOCAL_PATH"    envDefault:".assets/uploads"`
	TemporaryDir string `env:"STORAGE_TEMPORARY_DIR" envDefault:".temporary"`
	// Lifetime of upload signatures.
	TokenExpireIn time.Duration `env:"STORAGE_TOKEN_EXPIRE_IN" envDefault:"10m"`
	// Default lifetime of signed read URLs.
	URLExpireIn   time.Duration `env:"STORAGE_URL_EXPIRE_IN"  envDefault:"168h"`
	EncryptionKey string        `env:"STORAGE_ENCRYPTION_KEY"`
	PublicOrigin  string        `env:"STORAGE_PUBLIC_ORIGIN" envDefault:"http://localhost:3000"`
}

type SupportedDB string

const (
	DBPostgres SupportedDB = "postgres"
	DBSQLite   SupportedDB = "sqlite"
)

type SupportedAnalyticsDB string

const (
	AnalyticsDBNone          SupportedAnalyticsDB = ""
	AnalyticsDBClickHouse    SupportedAnalyticsDB = "clickhouse"
	AnalyticsDBElasticsearch SupportedAnalyticsDB = "elasticsearch"
)

func ReadFromEnv() (Config, error) {
	// A missing .env file is fine, since variables may be set directly in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, wrap.Error(err, "failed to load .env file")
	}

	parseOptions := env.Options{RequiredIfNoDef: true}

	var config Config

	if err := env.ParseWithOptions(&config.BaseConfig, parseOptions); err != nil {
		return Config{}, err
	}

	switch config.DB {
	case DBPostgres:
		if err := env.ParseWithOptions(&config.Postgres, parseOptions); err != nil {
			return Config{}, err
		}
	case DBSQLite:
		if err := env.ParseWithOptions(&config.SQLite, parseOptions); err != nil {
			return Config{}, err
		}
	default:
		err := fmt.Errorf("must be one of: '%s', '%s'", DBPostgres, DBSQLite)
		return Config{}, wrap.Errorf(err, "unsupported value '%s' for DATABASE in env", config.DB)
	}

	switch config.AnalyticsDB {
	case AnalyticsDBNone:
	case AnalyticsDBClickHouse:
		if err := env.ParseWithOptions(&config.ClickHouse, parseOptions); err != nil {
			return Config{}, err
		}
	case AnalyticsDBElasticsearch:
		if err := env.ParseWithOptions(&config.Elasticsearch, parseOptions); err != nil {
			return Config{}, err
		}
	default:
		err := fmt.Errorf(
			"must be empty or one of: '%s', '%s'",
			AnalyticsDBClickHouse,
			AnalyticsDBElasticsearch,
		)
		return Config{}, wrap.Errorf(
			err,
			"unsupported value '%s' for ANALYTICS_DATABASE in env",
			config.AnalyticsDB,
		)
	}

	if err := env.ParseWithOptions(&config.Storage, parseOptions); err != nil {
		return Config{}, err
	}

	return config, nil
}
