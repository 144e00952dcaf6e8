package promotion

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// DiscountType enumerates the supported promotion discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the cart total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off the cart total, capped at the total.
	DiscountFixed DiscountType = "fixed_amount"
)

// Scope selects the cart lines that make a promotion applicable.
type Scope string

const (
	// ScopeAll applies to every cart.
	ScopeAll Scope = "all"
	// ScopeCategories applies when any line belongs to one of the configured categories.
	ScopeCategories Scope = "categories"
	// ScopeProducts applies when any line is one of the configured products.
	ScopeProducts Scope = "products"
)

var (
	// ErrNotFound is returned when no promotion matches a code or ID.
	ErrNotFound = apperr.New(apperr.KindNotFound, "promotion not found")
	// ErrDuplicateCode is returned when creating a promotion whose code is taken.
	ErrDuplicateCode = apperr.New(apperr.KindStateConflict, "promotion code already exists")
	// ErrInactive is returned when a promotion has been switched off.
	ErrInactive = apperr.New(apperr.KindBusinessRule, "promotion is not active")
	// ErrNotStarted is returned before a promotion's validity window opens.
	ErrNotStarted = apperr.New(apperr.KindBusinessRule, "promotion has not started")
	// ErrExpired is returned after a promotion's validity window closes.
	ErrExpired = apperr.New(apperr.KindBusinessRule, "promotion expired")
	// ErrMinPurchase is returned when the cart total is below the minimum purchase amount.
	ErrMinPurchase = apperr.New(apperr.KindBusinessRule, "cart total is below the promotion minimum")
	// ErrUsageLimitReached is returned when a promotion has exhausted its allowed uses.
	ErrUsageLimitReached = apperr.New(apperr.KindBusinessRule, "promotion usage limit reached")
	// ErrNotApplicable is returned when no cart line falls within the promotion scope.
	ErrNotApplicable = apperr.New(apperr.KindBusinessRule, "promotion does not apply to any cart item")

	// ErrPercentageTooHigh is returned when a percentage promotion exceeds 100.
	ErrPercentageTooHigh = apperr.New(apperr.KindBusinessRule, "percentage discount cannot exceed 100")
	// ErrInvalidDefinition is returned when a promotion definition is malformed.
	ErrInvalidDefinition = apperr.New(apperr.KindValidation, "invalid promotion definition")
)

// Promotion is a named discount rule.
type Promotion struct {
	ID           string
	Code         string
	Description  string
	DiscountType DiscountType
	Value        decimal.Decimal
	// MinPurchase is the minimum cart total, when set.
	MinPurchase *decimal.Decimal
	// MaxUses caps redemptions, when set.
	MaxUses     *int
	UsesCount   int
	StartsAt    time.Time
	EndsAt      time.Time
	Scope       Scope
	CategoryIDs []string
	ProductIDs  []string
	Active      bool
	CreatedAt   time.Time
}

// NormalizeCode returns the canonical (upper-cased, trimmed) form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a promotion definition before it is stored.
func (p *Promotion) Validate() error {
	if p.Code == "" {
		return invalid("code is required")
	}
	if !p.Value.IsPositive() {
		return invalid("value must be greater than 0")
	}

	switch p.DiscountType {
	case DiscountPercentage:
		if p.Value.GreaterThan(hundred) {
			return ErrPercentageTooHigh
		}
	case DiscountFixed:
	default:
		return invalid("unsupported discount type %q", p.DiscountType)
	}

	if p.StartsAt.IsZero() || p.EndsAt.IsZero() {
		return invalid("start and end dates are required")
	}
	if p.EndsAt.Before(p.StartsAt) {
		return invalid("end date must not be before start date")
	}
	if p.MinPurchase != nil && p.MinPurchase.IsNegative() {
		return invalid("minimum purchase must not be negative")
	}
	if p.MaxUses != nil && *p.MaxUses <= 0 {
		return invalid("max uses must be greater than 0")
	}
	if p.UsesCount < 0 {
		return invalid("uses count must not be negative")
	}

	return validateScope(p.Scope, p.CategoryIDs, p.ProductIDs)
}

func validateScope(scope Scope, categoryIDs, productIDs []string) error {
	switch scope {
	case ScopeAll:
	case ScopeCategories:
		if len(categoryIDs) == 0 {
			return invalid("category scope requires at least one category")
		}
	case ScopeProducts:
		if len(productIDs) == 0 {
			return invalid("product scope requires at least one product")
		}
	default:
		return invalid("unsupported scope %q", scope)
	}
	return nil
}

// Applies reports whether any cart line falls within the promotion scope.
func (p *Promotion) Applies(items []Item) bool {
	switch p.Scope {
	case ScopeAll:
		return true
	case ScopeCategories:
		return slices.ContainsFunc(items, func(it Item) bool {
			return slices.Contains(p.CategoryIDs, it.CategoryID)
		})
	case ScopeProducts:
		return slices.ContainsFunc(items, func(it Item) bool {
			return slices.Contains(p.ProductIDs, it.ProductID)
		})
	default:
		return false
	}
}

// Exhausted reports whether the usage cap has been reached.
func (p *Promotion) Exhausted() bool {
	return p.MaxUses != nil && p.UsesCount >= *p.MaxUses
}

// Item is a cart line as seen by promotion evaluation.
type Item struct {
	ProductID  string
	CategoryID string
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Discount is the computed reduction for a cart.
type Discount struct {
	Code     string
	Amount   decimal.Decimal
	Subtotal decimal.Decimal
	Total    decimal.Decimal
}

// Repository provides lookup and mutation of promotions.
type Repository interface {
	// FindByCode looks a promotion up by code, case-insensitively.
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	GetByID(ctx context.Context, id string) (*Promotion, error)
	Create(ctx context.Context, p *Promotion) error
	// UpdateScope replaces the scope and its category/product associations.
	UpdateScope(ctx context.Context, id string, scope Scope, categoryIDs, productIDs []string) error
	// IncrementUses increments the usage counter only while it is below the
	// cap, returning ErrUsageLimitReached otherwise.
	IncrementUses(ctx context.Context, id string) error
}
