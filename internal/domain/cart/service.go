package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// Service encapsulates cart business logic.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{
		carts:    carts,
		products: products,
	}
}

// GetOrCreateCart returns the user's cart, creating an empty one on first access.
func (s *Service) GetOrCreateCart(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.FindByUserID(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "find cart")
	}

	c, err = s.carts.Create(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// AddItem adds quantity units of a product to the user's cart. An existing
// line for the same product has its quantity increased; a new line captures
// the product's current price.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Active {
		return nil, &product.UnavailableError{ProductID: productID}
	}

	c, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	want := quantity
	if existing, ok := c.Find(productID); ok {
		want += existing.Quantity
	}
	if p.Stock < want {
		return nil, &product.InsufficientStockError{
			ProductID: productID,
			Requested: want,
			Available: p.Stock,
		}
	}

	if _, err := s.carts.AddItem(ctx, c.ID, Item{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: p.Price,
	}); err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}

	zctx.From(ctx).Debug("Cart item added",
		zap.String("cart_id", c.ID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return s.reload(ctx, userID)
}

// UpdateItemQuantity sets the quantity of a cart line. A quantity of zero or
// less removes the line. Positive quantities are checked against current stock.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*Cart, error) {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		if _, err := s.carts.RemoveItem(ctx, item.ID); err != nil {
			return nil, errors.Wrap(err, "remove cart item")
		}
		return s.reload(ctx, userID)
	}

	p, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &product.UnavailableError{ProductID: item.ProductID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Active {
		return nil, &product.UnavailableError{ProductID: item.ProductID}
	}
	if p.Stock < quantity {
		return nil, &product.InsufficientStockError{
			ProductID: item.ProductID,
			Requested: quantity,
			Available: p.Stock,
		}
	}

	if _, err := s.carts.UpdateItem(ctx, item.ID, quantity); err != nil {
		return nil, errors.Wrap(err, "update cart item")
	}
	return s.reload(ctx, userID)
}

// RemoveItem deletes a cart line. It reports false without error when the
// line does not exist.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (bool, error) {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return false, nil
		}
		return false, err
	}

	removed, err := s.carts.RemoveItem(ctx, item.ID)
	if err != nil {
		return false, errors.Wrap(err, "remove cart item")
	}
	return removed, nil
}

// ClearCart deletes every line of the user's cart. Clearing an empty or
// missing cart is a no-op.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	c, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "find cart")
	}
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (s *Service) ownedItem(ctx context.Context, userID, itemID string) (*Item, error) {
	item, err := s.carts.FindItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "find cart item")
	}

	c, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotOwner
		}
		return nil, errors.Wrap(err, "find cart")
	}
	if c.ID != item.CartID {
		return nil, ErrNotOwner
	}
	return item, nil
}

func (s *Service) reload(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "reload cart")
	}
	return c, nil
}
