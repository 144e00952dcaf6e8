package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `id, COALESCE(category_id, ''), name, price, stock, active, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE active = TRUE ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	// Rows are locked in id order so concurrent checkouts cannot deadlock.
	lockProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	// The bigint sum keeps an out-of-range result from raising an error.
	adjustStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock::bigint + $2::bigint BETWEEN 0 AND 2147483647
		RETURNING ` + productColumns

	productStockSQL = `SELECT stock FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	q querier
}

// List returns all active products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// GetByID returns the product with the given ID, or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.q.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids, ordered by ID.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.collect(ctx, getProductsByIDsSQL, ids)
}

// LockByIDs is GetByIDs with FOR UPDATE. It must run inside a transaction.
func (r *ProductRepository) LockByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.collect(ctx, lockProductsByIDsSQL, ids)
}

func (r *ProductRepository) collect(ctx context.Context, sql string, ids []string) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, sql, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// AdjustStock applies delta with a conditional update so that stock never
// goes below zero, even without a prior lock.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*product.Product, error) {
	rows, err := r.q.Query(ctx, adjustStockSQL, id, delta)
	if err != nil {
		return nil, errors.Wrapf(err, "adjust stock of %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(err, "adjust stock of %q", id)
	}

	var stock int32
	if err := r.q.QueryRow(ctx, productStockSQL, id).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "check product %q", id)
	}
	if int64(stock)+int64(delta) < 0 {
		return nil, product.ErrNegativeStock
	}
	return nil, product.ErrStockOverflow
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		stock int32
	)
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Price, &stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.Stock = int(stock)
	return p, err
}
