package product

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "product not found")
	// ErrNegativeStock is returned when a stock adjustment would leave fewer
	// than zero sellable units.
	ErrNegativeStock = apperr.New(apperr.KindBusinessRule, "stock cannot become negative")
	// ErrStockOverflow is returned when a stock adjustment would exceed
	// MaxStock.
	ErrStockOverflow = apperr.New(apperr.KindBusinessRule, "stock cannot exceed the maximum")
)

// MaxStock is the largest stock count a product can hold.
const MaxStock = math.MaxInt32

// Product represents a catalog item available for purchase.
type Product struct {
	ID         string
	CategoryID string
	Name       string
	Price      decimal.Decimal
	Stock      int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available reports whether quantity units can be sold.
func (p *Product) Available(quantity int) bool {
	return p.Active && p.Stock >= quantity
}

// Category groups products; promotions may be scoped to categories.
type Category struct {
	ID   string
	Name string
}

// UnavailableError indicates a product is missing or deactivated.
type UnavailableError struct {
	ProductID string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

// Kind implements apperr.Classified.
func (e *UnavailableError) Kind() apperr.Kind { return apperr.KindBusinessRule }

// InsufficientStockError indicates a product has fewer units than requested.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Kind implements apperr.Classified.
func (e *InsufficientStockError) Kind() apperr.Kind { return apperr.KindBusinessRule }

// Repository defines catalog reads and stock mutation.
type Repository interface {
	// List returns active products ordered by ID.
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// LockByIDs returns the products and holds them against concurrent
	// modification until the surrounding transaction ends.
	LockByIDs(ctx context.Context, ids []string) ([]Product, error)
	// AdjustStock adds delta (negative to decrement) to the stock count.
	// It returns ErrNegativeStock or ErrStockOverflow without modifying
	// anything if the result would leave [0, MaxStock], and ErrNotFound if
	// the product does not exist.
	AdjustStock(ctx context.Context, id string, delta int) (*Product, error)
}
