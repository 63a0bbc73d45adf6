package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/util"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db  *sqlx.DB
	log zerolog.Logger
}

const maxBusyRetries = 5

// Open connects to the sqlite file at path and applies the schema.
// ":memory:" yields a private in-memory database on a single connection.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	logger = logger.With().Str("component", "db").Logger()

	memory := path == ":memory:"
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_time_format=sqlite", path)
	if memory {
		dsn = "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite"
	}

	sqlDB, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if memory {
		// every new connection would see its own empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)

		var journalMode string
		if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			logger.Warn().Err(err).Msg("Failed to enable WAL mode")
		} else {
			logger.Info().Str("journal_mode", journalMode).Msg("Database journal mode")
		}
	}

	d := &DB{db: sqlDB, log: logger}
	if err := d.RunMigrations(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return d, nil
}

// NewDB opens the configured database and returns a cleanup closing it.
func NewDB(conf *util.AppConfig, logger zerolog.Logger) (*DB, func(), error) {
	path := util.ResolveFilePath(conf.Conf.DatabasePath)
	d, err := Open(path, logger)
	if err != nil {
		return nil, nil, err
	}
	d.log.Info().Str("path", path).Msg("Database initialized")
	return d, func() { d.Close() }, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs f in a transaction, restarting it when sqlite reports the database busy.
func (db *DB) wrapTransaction(ctx context.Context, f func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		var tx *sqlx.Tx
		tx, err = db.db.BeginTxx(ctx, nil)
		if err != nil {
			if isBusy(err) {
				continue
			}
			db.log.Error().Err(err).Msg("error starting transaction")
			return errors.WithStack(err)
		}

		if err = f(tx); err != nil {
			tx.Rollback()
			if isBusy(err) {
				continue
			}
			return err
		}

		if err = tx.Commit(); err != nil {
			if isBusy(err) {
				continue
			}
			db.log.Error().Err(err).Msg("error committing transaction")
			return errors.WithStack(err)
		}
		return nil
	}
	return errors.Wrap(err, "database busy")
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code() & 0xff
	return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
}

// inserted reports whether an insert-if-absent statement wrote a row.
func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return n > 0, nil
}

// nullable stores empty strings as NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func now() time.Time {
	return time.Now().UTC()
}

// stamp sets every zero timestamp to the current time.
func stamp(ts ...*time.Time) {
	n := now()
	for _, t := range ts {
		if t.IsZero() {
			*t = n
		}
	}
}
