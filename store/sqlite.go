package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteStore stores one database in a single SQLite file.
//
// Tables:
//
//	documents(id, rev, deleted, seq, body)  PRIMARY KEY (id)
//
// Tombstones keep their row with deleted = 1 and a NULL body.
type SqliteStore struct {
	db   *sql.DB
	path string
	name string

	// mu is held shared by every operation and exclusively by Close, so an
	// operation that passed check never sees a closed *sql.DB.
	mu     sync.RWMutex
	closed bool
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS documents (
	id      TEXT PRIMARY KEY,
	rev     TEXT NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0,
	seq     INTEGER NOT NULL,
	body    TEXT
)`

// NewSqliteStore opens or creates the database at location. A ".db"
// extension is appended unless location already ends in ".db" or ".sqlite".
func NewSqliteStore(location string) (*SqliteStore, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}
	path := location
	if !strings.HasSuffix(path, ".db") && !strings.HasSuffix(path, ".sqlite") {
		path += ".db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SqliteStore{db: db, path: path, name: location}, nil
}

// Path returns the database file backing the store.
func (s *SqliteStore) Path() string {
	return s.path
}

// Close waits for in-flight operations and closes the database.
func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// check must be called with s.mu held.
func (s *SqliteStore) check(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record, error) {
	var (
		r       record
		deleted int
		body    sql.NullString
	)
	if err := row.Scan(&r.Rev, &deleted, &r.Seq, &body); err != nil {
		return record{}, err
	}
	r.Deleted = deleted != 0
	if body.Valid {
		if err := json.Unmarshal([]byte(body.String), &r.Body); err != nil {
			return record{}, fmt.Errorf("decode body: %w", err)
		}
	}
	return r, nil
}

func (s *SqliteStore) Put(ctx context.Context, doc Document) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	id, err := docID(doc)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	var prev *record
	r, err := scanRecord(tx.QueryRowContext(ctx,
		"SELECT rev, deleted, seq, body FROM documents WHERE id = ?", id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("put %s: select: %w", id, err)
	default:
		prev = &r
	}

	next, err := nextRecord(doc, prev)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", id, err)
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM documents").Scan(&next.Seq); err != nil {
		return nil, fmt.Errorf("put %s: next seq: %w", id, err)
	}

	var body sql.NullString
	if next.Body != nil {
		b, err := json.Marshal(next.Body)
		if err != nil {
			return nil, fmt.Errorf("put %s: %w: %v", id, ErrInvalidDocument, err)
		}
		body = sql.NullString{String: string(b), Valid: true}
	}
	deleted := 0
	if next.Deleted {
		deleted = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, rev, deleted, seq, body) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rev = excluded.rev, deleted = excluded.deleted,
			seq = excluded.seq, body = excluded.body`,
		id, next.Rev, deleted, next.Seq, body,
	); err != nil {
		return nil, fmt.Errorf("put %s: write: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put %s: commit: %w", id, err)
	}
	return &Response{OK: true, ID: id, Rev: next.Rev}, nil
}

func (s *SqliteStore) Get(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		"SELECT rev, deleted, seq, body FROM documents WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if r.Deleted {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return materialize(id, r)
}

func (s *SqliteStore) AllDocs(ctx context.Context, opts AllDocsOptions) (*AllDocsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, rev, deleted, seq, body FROM documents WHERE deleted = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("all docs: %w", err)
	}
	defer rows.Close()

	live := make(map[string]record)
	for rows.Next() {
		var id string
		r, err := scanRecord(scanFunc(func(dest ...any) error {
			return rows.Scan(append([]any{&id}, dest...)...)
		}))
		if err != nil {
			return nil, fmt.Errorf("all docs: %w", err)
		}
		live[id] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all docs: %w", err)
	}
	return buildAllDocs(live, opts)
}

func (s *SqliteStore) Info(ctx context.Context) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	info := &Info{DBName: s.name, Backend: BackendSqlite}
	if err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN deleted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(seq), 0)
		FROM documents`,
	).Scan(&info.DocCount, &info.UpdateSeq); err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}
	return info, nil
}

// scanFunc adapts a closure to rowScanner.
type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error {
	return f(dest...)
}
