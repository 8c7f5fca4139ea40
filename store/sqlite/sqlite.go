/*
Package sqlite provides the SQLite-backed store of the fulfillment engine.

PURPOSE:
  One embedded data file shared by many goroutines and, possibly, several
  local processes. This package is the connection manager, the schema
  manager, the catalog and prescription stores, and the transactional
  repository the dispensing coordinator drives.

CONNECTIONS:
  Every logical operation acquires a connection, uses it, and releases it
  (WithConnection / WithTx). Nothing holds a connection across unrelated
  operations. The DSN configures each pooled connection with:
  - _journal_mode=WAL:     readers never block the writer
  - _busy_timeout=<ms>:    bounded wait for the engine lock (default 20s)
  - _foreign_keys=on:      items cascade with their prescription
  - _txlock=immediate:     writers take the write lock at BEGIN

WHY BEGIN IMMEDIATE?
  A deferred transaction that reads and then writes must upgrade its lock.
  Two such transactions on the same prescription deadlock in WAL mode and
  one fails at once with SQLITE_BUSY, ignoring the busy timeout. Taking
  the write lock up front turns the race into a plain wait: the second
  dispenser blocks, then reads "dispensed" and short-circuits.

LOCK TIMEOUTS:
  SQLITE_BUSY and SQLITE_LOCKED surface as *pharmacy.LockTimeoutError.
  They can only happen while acquiring the lock, before the first write,
  so a retry never double-applies anything.

USAGE:
  store, err := sqlite.Open("./data/clinic.db", sqlite.WithLogger(log))
  if err != nil {
      return err
  }
  defer store.Close()

  report := store.Schema().Ensure(ctx, sqlite.CurrentPlan())
  if err := report.Err(); err != nil {
      return err // required table missing
  }

SEE ALSO:
  - schema.go: schema manager (ensure/rename/drop/backfill/retire)
  - migrations.go: the application's schema plan
  - tx.go: pharmacy.Tx implementation used by dispensing.Coordinator
*/
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/warp/clinic-rx/pharmacy"
)

// DefaultBusyTimeout is how long an operation waits for the engine lock.
const DefaultBusyTimeout = 20 * time.Second

// Store implements the persistence layer using SQLite.
type Store struct {
	db          *sqlx.DB
	path        string
	busyTimeout time.Duration
	backupDir   string
	log         zerolog.Logger
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBusyTimeout sets the bounded wait for the engine lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.busyTimeout = d }
}

// WithBackupDir sets where RetireTable writes its exports.
func WithBackupDir(dir string) Option {
	return func(s *Store) { s.backupDir = dir }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock overrides the time source used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database file at path.
// Use ":memory:" for a private in-memory database limited to one connection.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		busyTimeout: DefaultBusyTimeout,
		backupDir:   "backups",
		log:         zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		path, s.busyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	s.db = db
	s.log = s.log.With().Str("component", "store").Str("db", path).Logger()
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// =============================================================================
// SCOPED CONNECTIONS
// =============================================================================

// WithConnection acquires a dedicated connection, runs fn, and releases the
// connection on every exit path, panics included.
func (s *Store) WithConnection(ctx context.Context, fn func(conn *sqlx.Conn) error) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return classify("acquire connection", err)
	}
	defer conn.Close()

	return fn(conn)
}

// WithTx runs fn inside a write transaction on its own connection.
// If fn returns an error or panics the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.WithConnection(ctx, func(conn *sqlx.Conn) error {
		return runTx(ctx, conn, fn)
	})
}

func runTx(ctx context.Context, conn *sqlx.Conn, fn func(tx *sqlx.Tx) error) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	committed = true
	return nil
}

// Reset deletes every row of the application tables in one transaction.
// The schema is left in place. Used by the demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{TableAudit, TableItems, TablePrescriptions, TableReceipts, TableCatalog}
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
				return classify("reset "+table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// classify maps engine lock errors to LockTimeoutError and wraps the rest.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isLockError(err) {
		return &pharmacy.LockTimeoutError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isLockError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Helper functions

func quoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
