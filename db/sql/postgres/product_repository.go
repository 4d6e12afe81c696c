package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/storefront-kit/storefront/catalog"
)

const productColumns = "id, name, description, price, category, inventory_count, created_at, updated_at"

// ProductRepository persists catalog.Product records inside PostgreSQL.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository wraps an existing *sql.DB connection.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product catalog.Product) error {
	const query = `INSERT INTO products (id, name, description, price, category, inventory_count, created_at, updated_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		product.ID, product.Name, product.Description, product.Price,
		product.Category, product.InventoryCount, product.CreatedAt, product.UpdatedAt)
	return err
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, id))
}

func (r *ProductRepository) ListProducts(ctx context.Context, limit, offset int) ([]catalog.Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.collectProducts(rows)
}

// UpdateProduct applies a patch in one statement; nil patch fields keep the
// stored value via COALESCE.
func (r *ProductRepository) UpdateProduct(ctx context.Context, id string, patch catalog.ProductPatch) (catalog.Product, error) {
	const query = `UPDATE products
                   SET name = COALESCE($2::text, name),
                       description = COALESCE($3::text, description),
                       price = COALESCE($4::numeric, price),
                       category = COALESCE($5::text, category),
                       inventory_count = COALESCE($6::integer, inventory_count),
                       updated_at = $7
                   WHERE id = $1
                   RETURNING ` + productColumns
	row := r.db.QueryRowContext(ctx, query,
		id, patch.Name, patch.Description, patch.Price, patch.Category,
		patch.InventoryCount, time.Now().UTC())
	return r.scanProduct(row)
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id string) error {
	const query = `DELETE FROM products WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// SearchProducts matches the query case-insensitively against names and
// descriptions.
func (r *ProductRepository) SearchProducts(ctx context.Context, query string, limit, offset int) ([]catalog.Product, error) {
	const stmt = `SELECT ` + productColumns + ` FROM products
                  WHERE name ILIKE $1 OR description ILIKE $1
                  ORDER BY created_at, id LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, stmt, "%"+escapeLike(query)+"%", limit, offset)
	if err != nil {
		return nil, err
	}
	return r.collectProducts(rows)
}

func (r *ProductRepository) scanProduct(row *sql.Row) (catalog.Product, error) {
	var product catalog.Product
	err := row.Scan(&product.ID, &product.Name, &product.Description, &product.Price,
		&product.Category, &product.InventoryCount, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Product{}, catalog.ErrProductNotFound
		}
		return catalog.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) collectProducts(rows *sql.Rows) ([]catalog.Product, error) {
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		var product catalog.Product
		err := rows.Scan(&product.ID, &product.Name, &product.Description, &product.Price,
			&product.Category, &product.InventoryCount, &product.CreatedAt, &product.UpdatedAt)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// escapeLike quotes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
