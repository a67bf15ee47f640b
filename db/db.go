package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/util"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries holds the statements shared by DB (autocommit) and Tx.
type queries struct {
	q       querier
	retries int
}

// DB is the database struct.
type DB struct {
	queries
	db  *sql.DB
	log *log.Logger
}

// Tx is one transaction opened by DB.InTransaction.
type Tx struct {
	queries
}

// Open opens (and creates) the database file.
func Open(path string, retries int) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	memory := path == ":memory:"
	if memory {
		// every connection would get its own empty in-memory database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	db := newDB(sqlDB, retries)

	if !memory {
		var journalMode string
		if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			db.log.Warn("Failed to enable WAL mode", "err", err)
		} else {
			db.log.Debug("Database journal mode", "mode", journalMode)
		}
	}
	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")

	if err := db.CreateSchema(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a fresh in-memory database with the schema applied.
func OpenMemory() (*DB, error) {
	return Open(":memory:", util.DefaultStoreRetries)
}

func newDB(sqlDB *sql.DB, retries int) *DB {
	if retries <= 0 {
		retries = util.DefaultStoreRetries
	}
	return &DB{
		queries: queries{q: sqlDB, retries: retries},
		db:      sqlDB,
		log:     util.Logger("DB"),
	}
}

func (db *DB) Close() error {
	return db.db.Close()
}

// InTransaction runs f within one transaction, retrying the whole
// transaction on transient errors.
func (db *DB) InTransaction(ctx context.Context, f func(tx *Tx) error) error {
	return db.wrapTransaction(ctx, func(sqlTx *sql.Tx) error {
		return f(&Tx{queries: queries{q: sqlTx, retries: db.retries}})
	})
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= db.retries; attempt++ {
		err = db.runTransaction(ctx, f)
		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		db.log.Warn("Transient error in transaction, retrying", "attempt", attempt, "err", err)
		time.Sleep(time.Duration(attempt*50) * time.Millisecond)
	}
	db.log.Error("Transaction failed after retries", "attempts", db.retries, "err", err)
	return err
}

func (db *DB) runTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// IsTransient reports store errors worth retrying: busy, locked and I/O.
func IsTransient(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED, sqlitelib.SQLITE_IOERR:
		return true
	}
	return false
}

// execWithRetry retries one statement on transient errors.
func (s *queries) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		res, err = s.q.ExecContext(ctx, query, args...)
		if err == nil || !IsTransient(err) {
			return res, err
		}
		time.Sleep(time.Duration(attempt*20) * time.Millisecond)
	}
	return res, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func collectIds(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
