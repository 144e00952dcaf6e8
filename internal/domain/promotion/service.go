package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// Service manages promotion definitions and previews them against carts.
type Service struct {
	repo     Repository
	carts    cart.Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a promotion Service.
func NewService(repo Repository, carts cart.Repository, products product.Repository) *Service {
	return &Service{
		repo:     repo,
		carts:    carts,
		products: products,
		now:      time.Now,
	}
}

// Create validates and stores a new promotion. The code is normalized and
// the usage counter starts at zero.
func (s *Service) Create(ctx context.Context, p Promotion) (*Promotion, error) {
	p.Code = NormalizeCode(p.Code)
	p.UsesCount = 0
	if p.Scope == "" {
		p.Scope = ScopeAll
	}
	if p.Scope == ScopeAll {
		p.CategoryIDs, p.ProductIDs = nil, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.ID = uuid.New().String()
	p.CreatedAt = s.now()
	if err := s.repo.Create(ctx, &p); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create promotion")
	}

	zctx.From(ctx).Info("Promotion created",
		zap.String("code", p.Code),
		zap.String("type", string(p.DiscountType)),
		zap.String("scope", string(p.Scope)),
	)
	return &p, nil
}

// UpdateScope replaces the applicability scope of a promotion.
func (s *Service) UpdateScope(ctx context.Context, id string, scope Scope, categoryIDs, productIDs []string) (*Promotion, error) {
	if err := validateScope(scope, categoryIDs, productIDs); err != nil {
		return nil, err
	}
	if scope == ScopeAll {
		categoryIDs, productIDs = nil, nil
	}

	if err := s.repo.UpdateScope(ctx, id, scope, categoryIDs, productIDs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update promotion scope")
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "reload promotion")
	}
	return p, nil
}

// Get returns a promotion by code.
func (s *Service) Get(ctx context.Context, code string) (*Promotion, error) {
	p, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find promotion")
	}
	return p, nil
}

// IsValid reports whether code can currently be redeemed for cartTotal.
func (s *Service) IsValid(ctx context.Context, code string, cartTotal decimal.Decimal) (bool, error) {
	return NewRepoValidator(s.repo, s.now).IsValid(ctx, code, cartTotal)
}

// Preview computes the discount code would give the user's current cart
// without recording a redemption.
func (s *Service) Preview(ctx context.Context, userID, code string) (*Discount, error) {
	p, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrNotApplicable
		}
		return nil, errors.Wrap(err, "find cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrNotApplicable
	}

	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	d, err := Evaluate(p, s.now(), CartItems(c, products))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CartItems converts cart lines to promotion items, attaching each line's
// category from products. Lines whose product is absent keep an empty category.
func CartItems(c *cart.Cart, products []product.Product) []Item {
	categories := make(map[string]string, len(products))
	for _, p := range products {
		categories[p.ID] = p.CategoryID
	}

	items := make([]Item, len(c.Items))
	for i, line := range c.Items {
		items[i] = Item{
			ProductID:  line.ProductID,
			CategoryID: categories[line.ProductID],
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
		}
	}
	return items
}
