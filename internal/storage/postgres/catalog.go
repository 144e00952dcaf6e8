package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	upsertCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertProductSQL = `INSERT INTO products (id, category_id, name, price, stock, active)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			category_id = EXCLUDED.category_id,
			name        = EXCLUDED.name,
			price       = EXCLUDED.price,
			stock       = EXCLUDED.stock,
			active      = EXCLUDED.active,
			updated_at  = now()`
)

// UpsertCatalog inserts or replaces categories and products in one
// transaction. Categories are written first so products can reference them.
func (s *Store) UpsertCatalog(ctx context.Context, categories []product.Category, products []product.Product) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range categories {
			batch.Queue(upsertCategorySQL, c.ID, c.Name)
		}
		for _, p := range products {
			batch.Queue(upsertProductSQL, p.ID, p.CategoryID, p.Name, p.Price, int32(p.Stock), p.Active)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "upsert catalog")
		}
		return nil
	})
}
