package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

var _ order.Transactor = (*Store)(nil)

// Store hands out repositories bound either to the pool or to a single
// transaction.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn in a read-committed transaction. A nil return commits; an
// error or a cancelled ctx rolls back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, txView{q: tx})
	})
}

func (s *Store) Products() product.Repository { return &ProductRepository{q: s.pool} }
func (s *Store) Carts() cart.Repository { return &CartRepository{q: s.pool} }
func (s *Store) Promotions() promotion.Repository { return &PromotionRepository{q: s.pool} }
func (s *Store) Orders() order.Repository { return &OrderRepository{q: s.pool} }
func (s *Store) APIKeys() auth.Repository { return &APIKeyRepository{q: s.pool} }

type txView struct {
	q pgx.Tx
}

func (t txView) Products() product.Repository { return &ProductRepository{q: t.q} }
func (t txView) Carts() cart.Repository { return &CartRepository{q: t.q} }
func (t txView) Promotions() promotion.Repository { return &PromotionRepository{q: t.q} }
func (t txView) Orders() order.Repository { return &OrderRepository{q: t.q} }

// ImportPromotions bulk-inserts promotions, skipping existing codes.
func (s *Store) ImportPromotions(ctx context.Context, promos []promotion.Promotion) (int64, error) {
	return (&PromotionRepository{q: s.pool}).Import(ctx, promos)
}

// CreateAPIKey stores an admin API key.
func (s *Store) CreateAPIKey(ctx context.Context, k *auth.APIKeyInfo) error {
	return (&APIKeyRepository{q: s.pool}).Create(ctx, k)
}
