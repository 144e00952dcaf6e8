package promotion

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidDefinition, format, args...)
}

// Check returns the reason p cannot be redeemed at now for a cart totalling
// cartTotal, or nil if it can.
func Check(p *Promotion, now time.Time, cartTotal decimal.Decimal) error {
	if !p.Active {
		return ErrInactive
	}
	if now.Before(p.StartsAt) {
		return ErrNotStarted
	}
	if now.After(p.EndsAt) {
		return ErrExpired
	}
	if p.MinPurchase != nil && cartTotal.LessThan(*p.MinPurchase) {
		return ErrMinPurchase
	}
	if p.Exhausted() {
		return ErrUsageLimitReached
	}
	return nil
}

// Compute returns the discount p grants on cartTotal. The amount is rounded
// to 2 places and is never negative nor larger than cartTotal.
func Compute(p *Promotion, cartTotal decimal.Decimal) Discount {
	var amount decimal.Decimal
	switch p.DiscountType {
	case DiscountPercentage:
		pct := decimal.Min(p.Value, hundred)
		amount = cartTotal.Mul(pct).Div(hundred)
	case DiscountFixed:
		amount = p.Value
	}

	amount = decimal.Min(floorAtZero(amount), cartTotal).Round(2)
	return Discount{
		Code:     p.Code,
		Amount:   amount,
		Subtotal: cartTotal,
		Total:    floorAtZero(cartTotal.Sub(amount)).Round(2),
	}
}

// Evaluate checks validity and scope and computes the discount without
// recording a redemption.
func Evaluate(p *Promotion, now time.Time, items []Item) (Discount, error) {
	subtotal := Subtotal(items)
	if err := Check(p, now, subtotal); err != nil {
		return Discount{}, err
	}
	if !p.Applies(items) {
		return Discount{}, ErrNotApplicable
	}
	return Compute(p, subtotal), nil
}

// Subtotal returns the sum of unit price * quantity across items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
