package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	// Registers the postgres driver used by sql.Open.
	_ "github.com/lib/pq"
)

const defaultPostgresTable = "dead_letters"

// Postgres stores entries in a PostgreSQL table, creating it on first use.
type Postgres struct {
	db    *sql.DB
	table string
}

// NewPostgres connects to the database and ensures the dead-letter table
// exists. An empty table name falls back to the default table.
func NewPostgres(ctx context.Context, databaseURL, table string) (*Postgres, error) {
	if table == "" {
		table = defaultPostgresTable
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{db: db, table: table}

	err = p.ensureTable(ctx)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Postgres) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			item JSONB,
			error TEXT NOT NULL,
			attempts INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, p.table)

	_, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create dead-letter table %s: %w", p.table, err)
	}

	return nil
}

func (p *Postgres) Receive(ctx context.Context, entry Entry) error {
	item, err := json.Marshal(entry.Item)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter item: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, node_id, item, error, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, p.table)

	_, err = p.db.ExecContext(ctx, query,
		entry.RunID, entry.NodeID, item, entry.Error, entry.Attempts, entry.At)
	if err != nil {
		return fmt.Errorf("failed to insert dead-letter entry: %w", err)
	}

	return nil
}

// Close releases the database connection.
func (p *Postgres) Close() error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
