package order

import (
	"context"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

// Tx exposes the stores bound to a single transaction.
type Tx interface {
	Carts() cart.Repository
	Products() product.Repository
	Promotions() promotion.Repository
	Orders() Repository
}

// Transactor runs fn inside a transaction. The transaction commits if fn
// returns nil and rolls back otherwise, including when ctx is cancelled.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// StockObserver is notified after a committed transaction changed the
// stock of the given products.
type StockObserver interface {
	StockChanged(ctx context.Context, productIDs []string)
}
