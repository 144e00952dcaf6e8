package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a user has no cart.
	ErrNotFound = apperr.New(apperr.KindNotFound, "cart not found")
	// ErrItemNotFound is returned when a cart line does not exist.
	ErrItemNotFound = apperr.New(apperr.KindNotFound, "cart item not found")
	// ErrInvalidQuantity is returned when a quantity is not a positive integer.
	ErrInvalidQuantity = apperr.New(apperr.KindValidation, "quantity must be greater than 0")
	// ErrNotOwner is returned when a cart line belongs to another user's cart.
	ErrNotOwner = apperr.New(apperr.KindPermissionDenied, "cart item belongs to another user")
)

// Cart is a user's collection of lines awaiting checkout. Each user has at
// most one cart.
type Cart struct {
	ID        string
	UserID    string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Total returns the sum of quantity * unit price across all lines.
func (c *Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// ItemCount returns the total number of units in the cart.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Find returns the line holding productID, if any.
func (c *Cart) Find(productID string) (Item, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return Item{}, false
}

// Item is one cart line. UnitPrice is captured when the product is first
// added and is what checkout charges.
type Item struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineTotal returns quantity * unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository defines persistence operations for carts and their lines.
type Repository interface {
	// FindByUserID returns the user's cart with its items, or ErrNotFound.
	FindByUserID(ctx context.Context, userID string) (*Cart, error)
	// Create returns the user's cart, creating an empty one if absent.
	// Concurrent calls for the same user resolve to the same cart.
	Create(ctx context.Context, userID string) (*Cart, error)
	// FindItem returns a single line by ID, or ErrItemNotFound.
	FindItem(ctx context.Context, itemID string) (*Item, error)
	// AddItem inserts a line or, if the cart already holds the product, adds
	// item.Quantity to the existing line keeping its unit price.
	AddItem(ctx context.Context, cartID string, item Item) (*Item, error)
	// UpdateItem sets the quantity of a line, or returns ErrItemNotFound.
	UpdateItem(ctx context.Context, itemID string, quantity int) (*Item, error)
	// RemoveItem deletes a line and reports whether it existed.
	RemoveItem(ctx context.Context, itemID string) (bool, error)
	// Clear deletes every line of the cart. The cart itself is kept.
	Clear(ctx context.Context, cartID string) error
	// RemoveOrdered takes the quantities of lines out of the cart. A line
	// is deleted when nothing is left of it; quantity added to it after
	// lines were read stays in the cart, as do lines added since.
	RemoveOrdered(ctx context.Context, cartID string, lines []Item) error
}
