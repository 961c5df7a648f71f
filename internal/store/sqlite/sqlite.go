package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/drwatch/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// Records of every store live in one table partitioned by store name, so
// primary and backup may share a database file. Use ":memory:" for in-memory.
type DB struct {
	db   *sql.DB
	name string
}

// New opens a SQLite database at path and ensures the records table exists.
func New(path, name string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("empty store name")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// every :memory: connection is its own database
	d.SetMaxOpenConns(1)
	// busy timeout helps when primary and backup share a file
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	s := &DB{db: d, name: name}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return s, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drwatch_records(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			store TEXT NOT NULL,
			line TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_drwatch_records_store ON drwatch_records(store, id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Name() string { return s.name }

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) ReadAll(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM drwatch_records WHERE store=? ORDER BY id ASC;`, s.name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]string, 0)
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (s *DB) ReadBlob(ctx context.Context) (string, error) {
	recs, err := s.ReadAll(ctx)
	if err != nil {
		return "", err
	}
	return store.Blob(recs), nil
}

func (s *DB) AppendLine(ctx context.Context, record string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO drwatch_records(store, line) VALUES(?, ?);`, s.name, record)
	return err
}

func (s *DB) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drwatch_records WHERE store=?;`, s.name)
	return err
}

func (s *DB) WriteAll(ctx context.Context, records []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM drwatch_records WHERE store=?;`, s.name); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `INSERT INTO drwatch_records(store, line) VALUES(?, ?);`, s.name, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}
