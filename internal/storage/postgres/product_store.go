package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// ProductStore writes product rows and crawl-history audit rows.
type ProductStore struct {
	pool         Pool
	productTable string
	historyTable string
}

// NewProductStore constructs a store from an existing pool.
func NewProductStore(pool Pool, productTable, historyTable string) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	products, err := tableOrDefault(productTable, "products")
	if err != nil {
		return nil, err
	}
	history, err := tableOrDefault(historyTable, "crawl_history")
	if err != nil {
		return nil, err
	}
	return &ProductStore{pool: pool, productTable: products, historyTable: history}, nil
}

// EnsureSchema creates the product and history tables if missing.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         BIGSERIAL PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	domain     TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.productTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            BIGSERIAL PRIMARY KEY,
	product_id    BIGINT NOT NULL REFERENCES %s(id),
	run_id        TEXT NOT NULL,
	crawled_at    TIMESTAMPTZ NOT NULL,
	status_code   INTEGER NOT NULL,
	success       BOOLEAN NOT NULL,
	error_message TEXT
)`, s.historyTable, s.productTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure product schema: %w", err)
		}
	}
	return nil
}

// GetByURL fetches a product by URL.
func (s *ProductStore) GetByURL(ctx context.Context, url string) (crawler.Product, bool, error) {
	query := fmt.Sprintf(`
SELECT id, url, domain, is_active, created_at, updated_at
FROM %s WHERE url = $1`, s.productTable)
	var p crawler.Product
	err := s.pool.QueryRow(ctx, query, url).Scan(&p.ID, &p.URL, &p.Domain, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Product{}, false, nil
	}
	if err != nil {
		return crawler.Product{}, false, fmt.Errorf("select product: %w", err)
	}
	return p, true, nil
}

// Create inserts a product inside a transaction, rolling back on failure.
func (s *ProductStore) Create(ctx context.Context, draft crawler.ProductDraft) (crawler.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return crawler.Product{}, fmt.Errorf("begin tx: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, domain, is_active, created_at, updated_at)
VALUES ($1, $2, TRUE, now(), now())
RETURNING id, url, domain, is_active, created_at, updated_at`, s.productTable)
	var p crawler.Product
	if err := tx.QueryRow(ctx, query, draft.URL, draft.Domain).
		Scan(&p.ID, &p.URL, &p.Domain, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return crawler.Product{}, fmt.Errorf("insert product: %w (rollback: %v)", err, rbErr)
		}
		return crawler.Product{}, fmt.Errorf("insert product: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return crawler.Product{}, fmt.Errorf("commit product: %w", err)
	}
	return p, nil
}

// LogCrawlAttempt inserts a crawl-history row.
func (s *ProductStore) LogCrawlAttempt(ctx context.Context, history crawler.CrawlHistory) error {
	query := fmt.Sprintf(`
INSERT INTO %s (product_id, run_id, crawled_at, status_code, success, error_message)
VALUES ($1, $2, $3, $4, $5, $6)`, s.historyTable)
	var errMsg *string
	if history.ErrorMessage != "" {
		msg := history.ErrorMessage
		errMsg = &msg
	}
	if _, err := s.pool.Exec(ctx, query,
		history.ProductID,
		history.RunID,
		history.CrawledAt,
		history.StatusCode,
		history.Success,
		errMsg,
	); err != nil {
		return fmt.Errorf("insert crawl history: %w", err)
	}
	return nil
}
