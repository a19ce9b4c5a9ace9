// Package catalog reads product records from PostgreSQL. The schema is owned
// by the storefront; this package only queries it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog record.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	IsFeatured  bool            `json:"is_featured"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const productColumns = `id, name, description, price::text, category, is_featured, is_available, created_at`

// Repository queries the products table.
type Repository struct {
	db DBTX
}

// NewRepository creates a product repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// List returns available products, newest first.
func (r *Repository) List(ctx context.Context) ([]Product, error) {
	products, err := r.query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_available ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// Featured returns available featured products, newest first.
func (r *Repository) Featured(ctx context.Context) ([]Product, error) {
	products, err := r.query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_available AND is_featured ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing featured products: %w", err)
	}
	return products, nil
}

// ByCategory returns available products in category. Categories are stored
// upper-case; the argument is matched case-insensitively.
func (r *Repository) ByCategory(ctx context.Context, category string) ([]Product, error) {
	category = strings.ToUpper(strings.TrimSpace(category))
	products, err := r.query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_available AND category = $1 ORDER BY created_at DESC`,
		category)
	if err != nil {
		return nil, fmt.Errorf("listing products in category %s: %w", category, err)
	}
	return products, nil
}

// Get returns a single product by ID, available or not.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("getting product %d: %w", id, err)
	}
	return p, nil
}

// IDs returns the ID of every product, available or not.
func (r *Repository) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing product ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scanning product ids: %w", err)
	}
	return ids, nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Category,
		&p.IsFeatured, &p.IsAvailable, &p.CreatedAt); err != nil {
		return Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("parsing price %q of product %d: %w", price, p.ID, err)
	}
	p.Price = d
	return p, nil
}
