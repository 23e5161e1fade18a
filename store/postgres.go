// Package store implements the Postgres persistence layer for the
// catalog scraper. All cross-worker write conflicts are resolved here
// through unique-key upserts rather than in-process locking.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-scrape-marine/models"
)

// maxSlugAttempts bounds the numeric-suffix recovery for slug
// collisions before the write is surfaced as an error.
const maxSlugAttempts = 10

const uniqueViolationCode = "23505"

// Postgres is the pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects a pool against databaseURL and pings it.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// EnsureSchema creates the catalog tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY,
			slug TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			icon TEXT,
			image_url TEXT,
			product_count INT DEFAULT 0,
			display_order INT DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			external_id TEXT UNIQUE,
			name TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			description TEXT,
			short_desc TEXT,
			price DECIMAL(10,2) NOT NULL,
			original_price DECIMAL(10,2),
			discount_percent INT,
			currency TEXT DEFAULT 'EUR',
			stock_status TEXT DEFAULT 'IN_STOCK',
			category_id UUID REFERENCES categories(id),
			images TEXT[] DEFAULT '{}',
			thumbnail TEXT,
			available BOOLEAN DEFAULT TRUE,
			source_url TEXT,
			scraped_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS scraper_runs (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			products_scraped INT DEFAULT 0,
			errors INT DEFAULT 0,
			status TEXT DEFAULT 'running'
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertCategory inserts or updates a category keyed by slug and
// returns its id. Across runs only the display name may change; the
// slug is the identity.
func (p *Postgres) UpsertCategory(ctx context.Context, slug, name string, displayOrder int) (string, error) {
	var id string
	err := p.pool.QueryRow(ctx, `
		INSERT INTO categories (id, slug, name, display_order)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, uuid.NewString(), slug, name, displayOrder).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert category %q: %w", slug, err)
	}
	return id, nil
}

// SetCategoryIcon stores the configured icon name for a category.
func (p *Postgres) SetCategoryIcon(ctx context.Context, slug, icon string) error {
	if _, err := p.pool.Exec(ctx, `UPDATE categories SET icon = $1 WHERE slug = $2`, icon, slug); err != nil {
		return fmt.Errorf("set category icon %q: %w", slug, err)
	}
	return nil
}

// UpdateCategoryImage sets a representative image for a category.
func (p *Postgres) UpdateCategoryImage(ctx context.Context, categoryID, imageURL string) error {
	if _, err := p.pool.Exec(ctx, `UPDATE categories SET image_url = $1 WHERE id = $2`, imageURL, categoryID); err != nil {
		return fmt.Errorf("update category image: %w", err)
	}
	return nil
}

// UpsertProduct writes a product keyed by external id, fully replacing
// the existing row's fields. A slug unique violation is recovered
// locally by retrying with a numeric suffix; it is never surfaced as a
// run failure unless the attempt budget runs out.
func (p *Postgres) UpsertProduct(ctx context.Context, rec *models.Product, categoryID string) (string, error) {
	slug := rec.Slug
	for attempt := 1; ; attempt++ {
		id, err := p.insertProduct(ctx, rec, slug, categoryID)
		if err == nil {
			return id, nil
		}
		if !isSlugViolation(err) || attempt >= maxSlugAttempts {
			return "", fmt.Errorf("upsert product %s: %w", rec.ExternalID, err)
		}
		slug = SuffixedSlug(rec.Slug, attempt+1)
	}
}

func (p *Postgres) insertProduct(ctx context.Context, rec *models.Product, slug, categoryID string) (string, error) {
	var id string
	err := p.pool.QueryRow(ctx, `
		INSERT INTO products (
			id, external_id, name, slug, description, short_desc,
			price, original_price, discount_percent, currency,
			stock_status, category_id, images, thumbnail,
			available, source_url, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, NOW()
		)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			description = EXCLUDED.description,
			short_desc = EXCLUDED.short_desc,
			price = EXCLUDED.price,
			original_price = EXCLUDED.original_price,
			discount_percent = EXCLUDED.discount_percent,
			stock_status = EXCLUDED.stock_status,
			category_id = EXCLUDED.category_id,
			images = EXCLUDED.images,
			thumbnail = EXCLUDED.thumbnail,
			available = EXCLUDED.available,
			source_url = EXCLUDED.source_url,
			scraped_at = NOW()
		RETURNING id
	`,
		uuid.NewString(), rec.ExternalID, rec.Name, slug,
		rec.Description, rec.ShortDesc,
		rec.Price, rec.OriginalPrice, rec.DiscountPercent, rec.Currency,
		string(rec.StockStatus), categoryID, rec.Images, rec.Thumbnail,
		rec.Available, rec.SourceURL,
	).Scan(&id)
	return id, err
}

// UpdateCategoryCounts recomputes per-category product counts.
func (p *Postgres) UpdateCategoryCounts(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE categories c SET product_count = (
			SELECT COUNT(*) FROM products p WHERE p.category_id = c.id
		)
	`)
	if err != nil {
		return fmt.Errorf("update category counts: %w", err)
	}
	return nil
}

// StartRun opens a ledger entry and returns its id.
func (p *Postgres) StartRun(ctx context.Context) (string, error) {
	var id string
	err := p.pool.QueryRow(ctx, `
		INSERT INTO scraper_runs (id, status) VALUES ($1, 'running') RETURNING id
	`, uuid.NewString()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun finalizes a ledger entry with its aggregate counts and
// terminal status.
func (p *Postgres) FinishRun(ctx context.Context, runID string, scraped, errs int, status models.RunStatus) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE scraper_runs SET
			finished_at = NOW(),
			products_scraped = $1,
			errors = $2,
			status = $3
		WHERE id = $4
	`, scraped, errs, string(status), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// MarkStaleUnseen marks products whose last scrape predates since as
// unavailable. Rows are never deleted, only flagged, so a later run
// that observes them again restores availability through the upsert.
func (p *Postgres) MarkStaleUnseen(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE products SET available = FALSE
		WHERE scraped_at < $1 AND available = TRUE
		RETURNING id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("mark stale products: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale product id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale products: %w", err)
	}
	return ids, nil
}

// SuffixedSlug appends a numeric suffix used to resolve slug
// collisions: "anchor-line" becomes "anchor-line-2", "anchor-line-3"
// and so on.
func SuffixedSlug(slug string, n int) string {
	return fmt.Sprintf("%s-%d", slug, n)
}

// isSlugViolation reports whether err is a unique-key violation on the
// products slug constraint, as opposed to any other constraint error.
func isSlugViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == "products_slug_key"
}
