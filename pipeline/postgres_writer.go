package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-scrape-listings/models"
)

const (
	schemaSQL = `
	CREATE TABLE IF NOT EXISTS search_listings (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		price NUMERIC(14,2) NOT NULL,
		link TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_search_listings_price ON search_listings(run_id, price);
	`

	insertListingSQL = `
	INSERT INTO search_listings (run_id, position, title, price, link)
	VALUES ($1, $2, $3, $4, $5);
	`

	countListingsSQL = `SELECT COUNT(*) FROM search_listings WHERE run_id = $1;`
)

// PostgresWriter stores one run's listings in Postgres. Rows are keyed by run
// id and position, so each run keeps its own ordered copy.
type PostgresWriter struct {
	pool    *pgxpool.Pool
	runID   string
	timeout time.Duration
	written int
}

// NewPostgresWriter connects to dsn and makes sure the listings table exists.
func NewPostgresWriter(ctx context.Context, dsn, runID string) (*PostgresWriter, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	w := &PostgresWriter{
		pool:    pool,
		runID:   runID,
		timeout: 30 * time.Second,
	}
	if err := w.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

// EnsureSchema creates the listings table and its index when missing.
func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Write inserts listings in a single transaction, preserving their order in
// the position column.
func (w *PostgresWriter) Write(listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := buildInsertBatch(w.runID, w.written, listings)
	results := tx.SendBatch(ctx, batch)
	for i := range listings {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("batch insert failed at row %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit listings: %w", err)
	}
	w.written += len(listings)
	return nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}

// Validate checks that every written row is visible for this run.
func (w *PostgresWriter) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	if err := w.pool.QueryRow(ctx, countListingsSQL, w.runID).Scan(&count); err != nil {
		return fmt.Errorf("count listings: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("no listings stored for run %s", w.runID)
	}
	if count != w.written {
		return fmt.Errorf("stored %d listings for run %s, wrote %d", count, w.runID, w.written)
	}
	return nil
}

// buildInsertBatch queues one insert per listing. Positions start at offset
// and follow slice order.
func buildInsertBatch(runID string, offset int, listings []models.Listing) *pgx.Batch {
	batch := &pgx.Batch{}
	for i, listing := range listings {
		batch.Queue(insertListingSQL,
			runID,
			offset+i,
			listing.Title,
			listing.Price,
			listing.Link,
		)
	}
	return batch
}
