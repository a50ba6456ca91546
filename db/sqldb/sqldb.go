package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"hermannm.dev/gridbase/config"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/gridbase/db/aggregation"
	"hermannm.dev/wrap"
)

// Implements db.RecordStore, db.RecordTx and db.AggregationDB on a SQL database through gorm.
// Within a transaction, the DB value wraps the transaction handle.
type DB struct {
	gorm    *gorm.DB
	dialect aggregation.Dialect
	// Maps field storage types to column types in the database.
	columnType func(db.DBFieldType) (string, bool)
}

func Open(conf config.Config) (DB, error) {
	switch conf.DB {
	case config.DBPostgres:
		return OpenPostgres(conf.Postgres.DSN)
	case config.DBSQLite:
		return OpenSQLite(conf.SQLite.Path)
	}

	return DB{}, fmt.Errorf("unsupported database '%s'", conf.DB)
}

func OpenPostgres(dsn string) (DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return DB{}, wrap.Error(err, "failed to connect to Postgres")
	}

	return newDB(conn, aggregation.Postgres, postgresColumnTypes.get)
}

func OpenSQLite(path string) (DB, error) {
	conn, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return DB{}, wrap.Errorf(err, "failed to open SQLite database at '%s'", path)
	}

	return newDB(conn, aggregation.SQLite, sqliteColumnTypes.get)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		Logger: logger.Default.LogMode(logger.Silent),
	}
}

func newDB(
	conn *gorm.DB,
	dialect aggregation.Dialect,
	columnType func(db.DBFieldType) (string, bool),
) (DB, error) {
	if err := conn.AutoMigrate(&tableModel{}, &fieldModel{}); err != nil {
		return DB{}, wrap.Error(err, "failed to migrate table metadata")
	}

	// gorm binds parameters itself, translating question marks to the driver's placeholders
	dialect.PlaceholderFormat = squirrel.Question

	return DB{gorm: conn, dialect: dialect, columnType: columnType}, nil
}

func (database DB) Close() error {
	conn, err := database.gorm.DB()
	if err != nil {
		return wrap.Error(err, "failed to get database connection")
	}
	return conn.Close()
}

func (database DB) Dialect() aggregation.Dialect {
	return database.dialect
}

func (database DB) RunInTransaction(
	ctx context.Context,
	fn func(tx db.RecordTx) error,
) error {
	return database.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(DB{gorm: tx, dialect: database.dialect, columnType: database.columnType})
	})
}

func (database DB) conn(ctx context.Context) *gorm.DB {
	return database.gorm.WithContext(ctx)
}

// Several storage types may share a column type, so this is a plain map rather than an enum name
// map.
type columnTypes map[db.DBFieldType]string

func (types columnTypes) get(dbFieldType db.DBFieldType) (string, bool) {
	columnType, ok := types[dbFieldType]
	return columnType, ok
}

var postgresColumnTypes = columnTypes{
	db.DBFieldTypeText:     "TEXT",
	db.DBFieldTypeInteger:  "BIGINT",
	db.DBFieldTypeReal:     "DOUBLE PRECISION",
	db.DBFieldTypeDateTime: "TIMESTAMPTZ",
	db.DBFieldTypeBoolean:  "BOOLEAN",
	db.DBFieldTypeJSON:     "JSONB",
}

// See https://www.sqlite.org/datatype3.html. JSON is kept in TEXT columns, which the json_*
// functions read directly.
var sqliteColumnTypes = columnTypes{
	db.DBFieldTypeText:     "TEXT",
	db.DBFieldTypeInteger:  "INTEGER",
	db.DBFieldTypeReal:     "REAL",
	db.DBFieldTypeDateTime: "DATETIME",
	db.DBFieldTypeBoolean:  "BOOLEAN",
	db.DBFieldTypeJSON:     "TEXT",
}
