package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shelfwise/shelfwise-api/internal/models"
)

// SQLiteCatalogRepository implements CatalogRepository for SQLite.
type SQLiteCatalogRepository struct {
	db *sql.DB
}

// NewSQLiteCatalogRepository creates a new SQLite catalog repository.
func NewSQLiteCatalogRepository(db *sql.DB) *SQLiteCatalogRepository {
	return &SQLiteCatalogRepository{db: db}
}

// UpsertNavigation inserts or updates a navigation entry by slug and returns
// its row id. INSERT ... ON CONFLICT keeps the read-modify-write atomic.
func (r *SQLiteCatalogRepository) UpsertNavigation(ctx context.Context, nav *models.Navigation) (int64, error) {
	now := time.Now().Format(time.RFC3339)
	query := `
		INSERT INTO navigation (slug, title, url, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			position = excluded.position,
			updated_at = excluded.updated_at
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, nav.Slug, nav.Title, nav.URL, nav.Position, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert navigation: %w", err)
	}
	nav.ID = id
	return id, nil
}

// UpsertCategory inserts or updates a category by slug and returns its row id.
func (r *SQLiteCatalogRepository) UpsertCategory(ctx context.Context, cat *models.Category) (int64, error) {
	now := time.Now().Format(time.RFC3339)
	query := `
		INSERT INTO category (slug, navigation_id, parent_id, title, url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			navigation_id = excluded.navigation_id,
			parent_id = excluded.parent_id,
			title = excluded.title,
			url = excluded.url,
			updated_at = excluded.updated_at
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		cat.Slug, cat.NavigationID, nullInt64(cat.ParentID), cat.Title, cat.URL, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert category: %w", err)
	}
	cat.ID = id
	return id, nil
}

// UpsertProduct inserts or updates a product by source_id and returns its row id.
func (r *SQLiteCatalogRepository) UpsertProduct(ctx context.Context, p *models.Product) (int64, error) {
	now := time.Now().Format(time.RFC3339)
	query := `
		INSERT INTO product (source_id, category_id, title, price, currency, availability,
			rating, image_url, product_url, last_scraped_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			category_id = COALESCE(excluded.category_id, product.category_id),
			title = excluded.title,
			price = excluded.price,
			currency = excluded.currency,
			availability = excluded.availability,
			rating = excluded.rating,
			image_url = excluded.image_url,
			product_url = excluded.product_url,
			last_scraped_at = excluded.last_scraped_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		p.SourceID, nullInt64(p.CategoryID), p.Title, p.Price, p.Currency, p.Availability,
		p.Rating, p.ImageURL, p.ProductURL, now, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert product: %w", err)
	}
	p.ID = id
	return id, nil
}

// UpsertProductDetail inserts or updates the 1:1 detail row for a product.
func (r *SQLiteCatalogRepository) UpsertProductDetail(ctx context.Context, d *models.ProductDetail) error {
	now := time.Now().Format(time.RFC3339)
	query := `
		INSERT INTO product_detail (product_id, description, specs_json, publisher, isbn,
			page_count, genres_json, last_scraped_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			description = excluded.description,
			specs_json = excluded.specs_json,
			publisher = excluded.publisher,
			isbn = excluded.isbn,
			page_count = excluded.page_count,
			genres_json = excluded.genres_json,
			last_scraped_at = excluded.last_scraped_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ProductID, d.Description, d.SpecsJSON, d.Publisher, d.ISBN,
		d.PageCount, d.GenresJSON, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product detail: %w", err)
	}
	return nil
}

// UpsertReview inserts a review unless the same (product, author, date, text)
// was already stored. Returns whether a new row was inserted.
func (r *SQLiteCatalogRepository) UpsertReview(ctx context.Context, rev *models.Review) (bool, error) {
	query := `
		INSERT OR IGNORE INTO review (product_id, author, rating, review_date, text, text_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		rev.ProductID, rev.Author, rev.Rating, rev.ReviewDate, rev.Text, rev.TextHash,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// Dedup hit: the same review already exists.
		return false, nil
	}
	rev.ID, _ = result.LastInsertId()
	return true, nil
}

func (r *SQLiteCatalogRepository) GetNavigationBySlug(ctx context.Context, slug string) (*models.Navigation, error) {
	query := `SELECT id, slug, title, url, position, last_scraped_at, created_at, updated_at
		FROM navigation WHERE slug = ?`
	var nav models.Navigation
	var lastScraped sql.NullString
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&nav.ID, &nav.Slug, &nav.Title, &nav.URL, &nav.Position,
		&lastScraped, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get navigation: %w", err)
	}
	nav.LastScrapedAt = parseNullTime(lastScraped)
	nav.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	nav.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &nav, nil
}

func (r *SQLiteCatalogRepository) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	query := `SELECT id, slug, navigation_id, parent_id, title, url, product_count,
			last_scraped_at, created_at, updated_at
		FROM category WHERE slug = ?`
	return r.scanCategory(r.db.QueryRowContext(ctx, query, slug))
}

func (r *SQLiteCatalogRepository) GetProductBySourceID(ctx context.Context, sourceID string) (*models.Product, error) {
	query := `SELECT id, source_id, category_id, title, price, currency, availability,
			rating, image_url, product_url, last_scraped_at, created_at, updated_at
		FROM product WHERE source_id = ?`
	p, err := scanProductRow(r.db.QueryRowContext(ctx, query, sourceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *SQLiteCatalogRepository) GetProductDetail(ctx context.Context, productID int64) (*models.ProductDetail, error) {
	query := `SELECT id, product_id, description, specs_json, publisher, isbn, page_count,
			genres_json, reviews_count, ratings_avg, last_scraped_at, created_at, updated_at
		FROM product_detail WHERE product_id = ?`
	var d models.ProductDetail
	var lastScraped sql.NullString
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, productID).Scan(
		&d.ID, &d.ProductID, &d.Description, &d.SpecsJSON, &d.Publisher, &d.ISBN,
		&d.PageCount, &d.GenresJSON, &d.ReviewsCount, &d.RatingsAvg,
		&lastScraped, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product detail: %w", err)
	}
	d.LastScrapedAt = parseNullTime(lastScraped)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &d, nil
}

func (r *SQLiteCatalogRepository) ListNavigations(ctx context.Context) ([]*models.Navigation, error) {
	query := `SELECT id, slug, title, url, position, last_scraped_at, created_at, updated_at
		FROM navigation ORDER BY position ASC, slug ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query navigations: %w", err)
	}
	defer rows.Close()

	var navs []*models.Navigation
	for rows.Next() {
		var nav models.Navigation
		var lastScraped sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(
			&nav.ID, &nav.Slug, &nav.Title, &nav.URL, &nav.Position,
			&lastScraped, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan navigation: %w", err)
		}
		nav.LastScrapedAt = parseNullTime(lastScraped)
		nav.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		nav.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		navs = append(navs, &nav)
	}
	return navs, rows.Err()
}

func (r *SQLiteCatalogRepository) ListCategories(ctx context.Context, navigationID int64) ([]*models.Category, error) {
	query := `SELECT id, slug, navigation_id, parent_id, title, url, product_count,
			last_scraped_at, created_at, updated_at
		FROM category WHERE navigation_id = ? ORDER BY slug ASC`
	rows, err := r.db.QueryContext(ctx, query, navigationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []*models.Category
	for rows.Next() {
		cat, err := scanCategoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

func (r *SQLiteCatalogRepository) ListProducts(ctx context.Context, categoryID int64, limit, offset int) ([]*models.Product, error) {
	query := `SELECT id, source_id, category_id, title, price, currency, availability,
			rating, image_url, product_url, last_scraped_at, created_at, updated_at
		FROM product WHERE category_id = ? ORDER BY title ASC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, categoryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *SQLiteCatalogRepository) ListReviews(ctx context.Context, productID int64, limit, offset int) ([]*models.Review, error) {
	query := `SELECT id, product_id, author, rating, review_date, text, text_hash, created_at
		FROM review WHERE product_id = ? ORDER BY review_date DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		var rev models.Review
		var createdAt string
		if err := rows.Scan(
			&rev.ID, &rev.ProductID, &rev.Author, &rev.Rating,
			&rev.ReviewDate, &rev.Text, &rev.TextHash, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		rev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		reviews = append(reviews, &rev)
	}
	return reviews, rows.Err()
}

func (r *SQLiteCatalogRepository) RefreshCategoryCount(ctx context.Context, categoryID int64) error {
	query := `
		UPDATE category
		SET product_count = (SELECT COUNT(*) FROM product WHERE category_id = ?),
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, categoryID, time.Now().Format(time.RFC3339), categoryID)
	if err != nil {
		return fmt.Errorf("failed to refresh category count: %w", err)
	}
	return nil
}

func (r *SQLiteCatalogRepository) RefreshDetailAggregates(ctx context.Context, productID int64) error {
	query := `
		UPDATE product_detail
		SET reviews_count = (SELECT COUNT(*) FROM review WHERE product_id = ?),
			ratings_avg = COALESCE((SELECT AVG(rating) FROM review WHERE product_id = ?), 0),
			updated_at = ?
		WHERE product_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, productID, productID, time.Now().Format(time.RFC3339), productID)
	if err != nil {
		return fmt.Errorf("failed to refresh detail aggregates: %w", err)
	}
	return nil
}

func (r *SQLiteCatalogRepository) TouchNavigationScraped(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE navigation SET last_scraped_at = ?, updated_at = ? WHERE id = ?`,
		at.Format(time.RFC3339), time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to touch navigation: %w", err)
	}
	return nil
}

func (r *SQLiteCatalogRepository) TouchCategoryScraped(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE category SET last_scraped_at = ?, updated_at = ? WHERE id = ?`,
		at.Format(time.RFC3339), time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to touch category: %w", err)
	}
	return nil
}

func (r *SQLiteCatalogRepository) scanCategory(row *sql.Row) (*models.Category, error) {
	cat, err := scanCategoryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return cat, nil
}

func scanCategoryRow(row rowScanner) (*models.Category, error) {
	var cat models.Category
	var parentID sql.NullInt64
	var lastScraped sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&cat.ID, &cat.Slug, &cat.NavigationID, &parentID, &cat.Title, &cat.URL,
		&cat.ProductCount, &lastScraped, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		cat.ParentID = &parentID.Int64
	}
	cat.LastScrapedAt = parseNullTime(lastScraped)
	cat.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cat.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cat, nil
}

func scanProductRow(row rowScanner) (*models.Product, error) {
	var p models.Product
	var categoryID sql.NullInt64
	var lastScraped sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&p.ID, &p.SourceID, &categoryID, &p.Title, &p.Price, &p.Currency,
		&p.Availability, &p.Rating, &p.ImageURL, &p.ProductURL,
		&lastScraped, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	p.LastScrapedAt = parseNullTime(lastScraped)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
