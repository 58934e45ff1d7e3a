package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	body       TEXT    NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// sqlitePoolSize bounds open connections; SQLite serializes writers anyway.
const sqlitePoolSize = 4

// SQLite keeps the snapshot as the single row of the snapshot table.
type SQLite struct {
	pool *sqlitex.Pool
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    sqlitePoolSize,
		PrepareConn: prepareSQLiteConn,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	return &SQLite{pool: pool, path: path}, nil
}

func prepareSQLiteConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
}

func (s *SQLite) Read(ctx context.Context) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		body  []byte
		found bool
	)
	err = sqlitex.Execute(conn, "SELECT body FROM snapshot WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			body = []byte(stmt.ColumnText(0))
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	if !found {
		return nil, ErrNoSnapshot
	}
	return body, nil
}

func (s *SQLite) Write(ctx context.Context, data []byte) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO snapshot (id, body, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{string(data), time.Now().UnixMilli()}},
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("store: close sqlite %s: %w", s.path, err)
	}
	return nil
}
