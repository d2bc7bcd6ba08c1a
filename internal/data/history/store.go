package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName         = "sqlite"
	maxAttempts        = 5
	defaultBusyTimeout = 2 * time.Second

	// Fixed width so ts_utc sorts lexically.
	tsLayout = "2006-01-02T15:04:05.000000000Z"
)

// Store is the parse journal. Writes are serialized on a single
// connection.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	// WAL keeps readers (the history command) off the writer's lock.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends entry and returns its row id. A zero timestamp is
// replaced with the current time.
func (s *Store) Record(entry Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(entry.Outcome) == "" {
		return 0, fmt.Errorf("history entry for %q has no outcome", entry.Path)
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var id int64
	err := s.withRetry("insert parse", func() error {
		res, err := s.db.Exec(`
INSERT INTO parses (session, path, ts_utc, outcome, message, duration_ms, import_count)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
			entry.Session,
			entry.Path,
			ts.UTC().Format(tsLayout),
			entry.Outcome,
			entry.Message,
			entry.Duration.Milliseconds(),
			entry.ImportCount,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// RecordBatch appends entries in one transaction.
func (s *Store) RecordBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if strings.TrimSpace(e.Outcome) == "" {
			return fmt.Errorf("history entry for %q has no outcome", e.Path)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	return s.withRetry("insert parse batch", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.Prepare(`
INSERT INTO parses (session, path, ts_utc, outcome, message, duration_ms, import_count)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = now
			}
			if _, err := stmt.Exec(e.Session, e.Path, ts.UTC().Format(tsLayout), e.Outcome, e.Message, e.Duration.Milliseconds(), e.ImportCount); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Recent returns up to limit entries, newest first. An empty path
// selects every file.
func (s *Store) Recent(path string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	query := `
SELECT id, session, path, ts_utc, outcome, message, duration_ms, import_count
FROM parses`
	args := []any{}
	if path != "" {
		query += ` WHERE path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY ts_utc DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var entries []Entry
	err := s.withRetry("query parses", func() error {
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			var (
				e          Entry
				tsRaw      string
				durationMS int64
			)
			if err := rows.Scan(&e.ID, &e.Session, &e.Path, &tsRaw, &e.Outcome, &e.Message, &durationMS, &e.ImportCount); err != nil {
				return fmt.Errorf("scan parse row: %w", err)
			}
			ts, err := time.Parse(tsLayout, tsRaw)
			if err != nil {
				return fmt.Errorf("parse ts_utc %q: %w", tsRaw, err)
			}
			e.Timestamp = ts.UTC()
			e.Duration = time.Duration(durationMS) * time.Millisecond
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Outcomes counts entries by outcome. An empty session counts all of them.
func (s *Store) Outcomes(session string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT outcome, COUNT(*) FROM parses`
	args := []any{}
	if session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` GROUP BY outcome`

	counts := make(map[string]int)
	err := s.withRetry("count outcomes", func() error {
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				outcome string
				n       int
			)
			if err := rows.Scan(&outcome, &n); err != nil {
				return err
			}
			counts[outcome] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Prune keeps the newest keep entries and deletes the rest. A keep of zero
// or less keeps everything.
func (s *Store) Prune(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.withRetry("prune parses", func() error {
		res, err := s.db.Exec(`
DELETE FROM parses WHERE id NOT IN (
  SELECT id FROM parses ORDER BY ts_utc DESC, id DESC LIMIT ?
)`, keep)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
