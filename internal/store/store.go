package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"livecat/internal/logging"
	"livecat/internal/metrics"
)

// connOptions tunes SQLite for a single-writer, many-reader catalog.
// WAL keeps readers unblocked during ingestion; the busy timeout covers
// checkpoint stalls instead of surfacing SQLITE_BUSY.
const connOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000"

// Store wraps the catalog database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the catalog database and ensures
// the schema is current.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+connOptions)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock
	// contention between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	metrics.DBConnectionsOpen.Set(1)
	logging.Debug("Opened catalog database at %s", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	metrics.DBConnectionsOpen.Set(0)
	return s.db.Close()
}

// Conn exposes the underlying handle for read-only query layers.
func (s *Store) Conn() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// BeginBatch starts a transaction for a batch of writes.
func (s *Store) BeginBatch() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning batch transaction: %w", err)
	}
	return tx, nil
}

// EndBatch commits the batch, or rolls it back when the batch itself
// already failed. Rollback failures are joined onto the original error
// so neither is lost.
func (s *Store) EndBatch(tx *sql.Tx, batchErr error) error {
	start := time.Now()
	if batchErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			batchErr = errors.Join(batchErr, fmt.Errorf("rollback failed: %w", rbErr))
		}
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		return batchErr
	}
	if err := tx.Commit(); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("committing batch: %w", err)
	}
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())
	return nil
}

// Maintain runs ANALYZE and an incremental optimize pass. Vacuum is
// optional because it rewrites the whole file.
func (s *Store) Maintain(vacuum bool) error {
	start := time.Now()
	if _, err := s.db.Exec("ANALYZE"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	if vacuum {
		if _, err := s.db.Exec("VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	metrics.RecordQuery("maintain", start, nil)
	logging.Info("Database maintenance finished in %v (vacuum=%t)", time.Since(start).Round(time.Millisecond), vacuum)
	return nil
}
