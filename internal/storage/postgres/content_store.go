// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finstage/content-crawler/internal/pipeline"
)

// ContentStoreConfig controls the Postgres connection pool.
type ContentStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// ContentStore implements pipeline.ContentStore on Postgres.
type ContentStore struct {
	pool dbPool
}

// NewContentStore creates a Postgres-backed ContentStore using the provided
// config.
func NewContentStore(ctx context.Context, cfg ContentStoreConfig) (*ContentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ContentStore{pool: pool}, nil
}

// NewContentStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewContentStoreWithPool(pool dbPool) (*ContentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ContentStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ContentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const contentColumns = `id, symbol, title, summary, url, source, content_hash, is_duplicate, blob_uri, crawled_at`

// StoreContent inserts the content row and its URL-index row in one
// transaction.
func (s *ContentStore) StoreContent(
	ctx context.Context,
	content pipeline.ContentRecord,
	contentURL pipeline.ContentURLRecord,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO contents (
	symbol, title, summary, url, source, content_hash, is_duplicate, blob_uri, crawled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		content.Symbol,
		content.Title,
		content.Summary,
		content.URL,
		content.Source,
		content.ContentHash,
		content.IsDuplicate,
		content.BlobURI,
		content.CrawledAt,
	)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO content_urls (symbol, url, source)
VALUES ($1,$2,$3)
ON CONFLICT (symbol, url) DO NOTHING`,
		contentURL.Symbol,
		contentURL.URL,
		contentURL.Source,
	)
	if err != nil {
		return fmt.Errorf("insert content url: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ExistingURLs returns every URL already indexed for the symbol.
func (s *ContentStore) ExistingURLs(ctx context.Context, symbol string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT url FROM content_urls WHERE symbol = $1`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		out[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return out, nil
}

// IsDuplicateURL reports whether any symbol has indexed the URL.
func (s *ContentStore) IsDuplicateURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_urls WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate url: %w", err)
	}
	return exists, nil
}

// IsDuplicateHash reports whether the content hash is already stored.
func (s *ContentStore) IsDuplicateHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contents WHERE content_hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate hash: %w", err)
	}
	return exists, nil
}

// ListContents returns one page of records, newest-first, plus the total.
func (s *ContentStore) ListContents(ctx context.Context, page, size int) ([]pipeline.ContentRecord, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM contents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contents: %w", err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM contents
ORDER BY crawled_at DESC
LIMIT $1 OFFSET $2`, contentColumns), size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	records, err := scanContents(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListContentsBySymbol returns one page of records for a symbol, newest-first.
func (s *ContentStore) ListContentsBySymbol(
	ctx context.Context,
	symbol string,
	page, size int,
) ([]pipeline.ContentRecord, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM contents WHERE symbol = $1`, symbol).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count contents: %w", err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM contents
WHERE symbol = $1
ORDER BY crawled_at DESC
LIMIT $2 OFFSET $3`, contentColumns), symbol, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	records, err := scanContents(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// GetContent fetches one record by id.
func (s *ContentStore) GetContent(ctx context.Context, id int64) (pipeline.ContentRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT %s FROM contents WHERE id = $1`, contentColumns), id)

	record, err := scanContent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.ContentRecord{}, pipeline.ErrNotFound
	}
	if err != nil {
		return pipeline.ContentRecord{}, fmt.Errorf("get content: %w", err)
	}
	return record, nil
}

func scanContents(rows pgx.Rows) ([]pipeline.ContentRecord, error) {
	records := []pipeline.ContentRecord{}
	for rows.Next() {
		record, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return records, nil
}

func scanContent(row pgx.Row) (pipeline.ContentRecord, error) {
	var record pipeline.ContentRecord
	err := row.Scan(
		&record.ID,
		&record.Symbol,
		&record.Title,
		&record.Summary,
		&record.URL,
		&record.Source,
		&record.ContentHash,
		&record.IsDuplicate,
		&record.BlobURI,
		&record.CrawledAt,
	)
	return record, err
}
