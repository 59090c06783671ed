package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ValidationError wraps a product that failed validation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid product: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

var validate = validator.New()

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository persists products in the products table.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const productColumns = `id, title, description, image_url, price_usd, weight_kg, variations_json, active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (Product, error) {
	var (
		p                    Product
		variationsJSON       string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.ImageURL, &p.PriceUSD, &p.WeightKg,
		&variationsJSON, &p.Active, &createdAt, &updatedAt,
	); err != nil {
		return Product{}, err
	}
	if err := json.Unmarshal([]byte(variationsJSON), &p.Variations); err != nil {
		return Product{}, fmt.Errorf("decode variations of %s: %w", p.ID, err)
	}
	if p.Variations == nil {
		p.Variations = []Variation{}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// parseTime accepts RFC 3339 and the SQLite CURRENT_TIMESTAMP layout.
func parseTime(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// List returns products newest first, filtered by a case-insensitive title or
// description substring. activeOnly hides inactive products.
func (r *Repository) List(ctx context.Context, query string, activeOnly bool) ([]Product, error) {
	search := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE (? = '' OR title LIKE ? OR description LIKE ?)
			AND (? = 0 OR active = 1)
		ORDER BY created_at DESC, id DESC
	`, query, search, search, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Get returns one product, active or not.
func (r *Repository) Get(ctx context.Context, id string) (Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// Create validates p, assigns an id and timestamps, and stores it.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	return Insert(ctx, r.db, p, r.now())
}

// Insert validates p and stores it through q with a fresh id, stamping both
// timestamps with now. It lets callers add products inside their own
// transaction.
func Insert(ctx context.Context, q Execer, p Product, now time.Time) (Product, error) {
	p.normalize()
	if err := validate.Struct(p); err != nil {
		return Product{}, &ValidationError{Err: err}
	}

	variationsJSON, err := json.Marshal(p.Variations)
	if err != nil {
		return Product{}, fmt.Errorf("encode variations: %w", err)
	}

	p.ID = uuid.NewString()
	now = now.UTC().Truncate(time.Second)
	p.CreatedAt, p.UpdatedAt = now, now

	_, err = q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Title, p.Description, p.ImageURL, p.PriceUSD, p.WeightKg,
		string(variationsJSON), p.Active, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// Update replaces every editable field of product id.
func (r *Repository) Update(ctx context.Context, id string, p Product) (Product, error) {
	p.normalize()
	if err := validate.Struct(p); err != nil {
		return Product{}, &ValidationError{Err: err}
	}

	variationsJSON, err := json.Marshal(p.Variations)
	if err != nil {
		return Product{}, fmt.Errorf("encode variations: %w", err)
	}

	now := r.now().UTC().Truncate(time.Second)
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET
			title = ?,
			description = ?,
			image_url = ?,
			price_usd = ?,
			weight_kg = ?,
			variations_json = ?,
			active = ?,
			updated_at = ?
		WHERE id = ?
	`, p.Title, p.Description, p.ImageURL, p.PriceUSD, p.WeightKg,
		string(variationsJSON), p.Active, now.Format(time.RFC3339), id)
	if err != nil {
		return Product{}, fmt.Errorf("update product %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	if affected == 0 {
		return Product{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes product id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
