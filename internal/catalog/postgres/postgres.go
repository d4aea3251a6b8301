package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aridsondez/sqs-lite-mem/internal/catalog"
)

// Ensure *PostgresCatalog implements catalog.Catalog at compile time.
var _ catalog.Catalog = (*PostgresCatalog)(nil)

type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// Connect opens a pool, checks it and makes sure the table exists.
func Connect(ctx context.Context, databaseURL string) (*PostgresCatalog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	c := New(pool)
	if err := c.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// SQL templates
const (
	sqlSchema = `
CREATE TABLE IF NOT EXISTS queues (
  name       TEXT PRIMARY KEY,
  attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

	sqlSave = `
INSERT INTO queues (name, attributes)
VALUES ($1, $2::jsonb)
ON CONFLICT (name) DO UPDATE
SET attributes = EXCLUDED.attributes,
    updated_at = now();`

	sqlDelete = `DELETE FROM queues WHERE name = $1;`

	sqlLoad = `SELECT name, attributes FROM queues ORDER BY name;`
)

func (p *PostgresCatalog) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, sqlSchema); err != nil {
		return fmt.Errorf("create queues table: %w", err)
	}
	return nil
}

// SaveQueue upserts a queue definition.
func (p *PostgresCatalog) SaveQueue(ctx context.Context, def catalog.QueueDefinition) error {
	attrs, err := catalog.EncodeAttributes(def.Attributes)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, sqlSave, def.Name, string(attrs)); err != nil {
		return fmt.Errorf("save queue %s: %w", def.Name, err)
	}
	return nil
}

// DeleteQueue removes the definition by name.
func (p *PostgresCatalog) DeleteQueue(ctx context.Context, name string) error {
	if _, err := p.pool.Exec(ctx, sqlDelete, name); err != nil {
		return fmt.Errorf("delete queue %s: %w", name, err)
	}
	return nil
}

func (p *PostgresCatalog) LoadQueues(ctx context.Context) ([]catalog.QueueDefinition, error) {
	rows, err := p.pool.Query(ctx, sqlLoad)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.QueueDefinition
	for rows.Next() {
		var (
			name string
			raw  []byte
		)
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		attrs, err := catalog.DecodeAttributes(raw)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", name, err)
		}
		out = append(out, catalog.QueueDefinition{Name: name, Attributes: attrs})
	}
	return out, rows.Err()
}

func (p *PostgresCatalog) Close() error {
	p.pool.Close()
	return nil
}
