package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aridsondez/sqs-lite-mem/internal/catalog"
)

var _ catalog.Catalog = (*SQLiteCatalog)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS queues (
  name       TEXT PRIMARY KEY,
  attributes TEXT NOT NULL DEFAULT '{}',
  updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

// SQLiteCatalog keeps queue definitions in a local SQLite file.
type SQLiteCatalog struct {
	db *sql.DB
}

// Open creates or opens the catalog at path and applies the schema.
// It is safe to call on an existing file.
func Open(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

func (s *SQLiteCatalog) SaveQueue(ctx context.Context, def catalog.QueueDefinition) error {
	attrs, err := catalog.EncodeAttributes(def.Attributes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO queues (name, attributes) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET
  attributes = excluded.attributes,
  updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`, def.Name, string(attrs))
	if err != nil {
		return fmt.Errorf("save queue %s: %w", def.Name, err)
	}
	return nil
}

func (s *SQLiteCatalog) DeleteQueue(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queues WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete queue %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteCatalog) LoadQueues(ctx context.Context) ([]catalog.QueueDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, attributes FROM queues ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load queues: %w", err)
	}
	defer rows.Close()

	var out []catalog.QueueDefinition
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		attrs, err := catalog.DecodeAttributes([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", name, err)
		}
		out = append(out, catalog.QueueDefinition{Name: name, Attributes: attrs})
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
