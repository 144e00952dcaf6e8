package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates promotion codes against carts and redeems them.
type Validator interface {
	IsValid(ctx context.Context, code string, cartTotal decimal.Decimal) (bool, error)
	Apply(ctx context.Context, code string, items []Item) (*Discount, error)
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator on top of a Repository. Bind it to a
// transactional Repository to make redemption part of a larger unit of work.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
// A nil clock defaults to time.Now.
func NewRepoValidator(repo Repository, now func() time.Time) *RepoValidator {
	if now == nil {
		now = time.Now
	}
	return &RepoValidator{repo: repo, now: now}
}

// IsValid reports whether the promotion can currently be redeemed for a cart
// of the given total. Unknown codes are not valid; only storage failures
// produce an error.
func (v *RepoValidator) IsValid(ctx context.Context, code string, cartTotal decimal.Decimal) (bool, error) {
	p, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "lookup promotion")
	}
	return Check(p, v.now(), cartTotal) == nil, nil
}

// Apply re-validates the promotion, computes the discount for items and
// records one redemption. The increment is conditional on the usage cap, so
// two concurrent redemptions of the last use cannot both succeed.
func (v *RepoValidator) Apply(ctx context.Context, code string, items []Item) (*Discount, error) {
	p, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}

	d, err := Evaluate(p, v.now(), items)
	if err != nil {
		return nil, err
	}

	if err := v.repo.IncrementUses(ctx, p.ID); err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			return nil, ErrUsageLimitReached
		}
		return nil, errors.Wrap(err, "increment promotion uses")
	}

	return &d, nil
}
