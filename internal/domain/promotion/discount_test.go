package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func validPromotion() *Promotion {
	return &Promotion{
		ID:           "promo-1",
		Code:         "CODE10",
		DiscountType: DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		StartsAt:     fixedNow.Add(-24 * time.Hour),
		EndsAt:       fixedNow.Add(24 * time.Hour),
		Scope:        ScopeAll,
		Active:       true,
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Promotion)
		total   string
		wantErr error
	}{
		{name: "valid", total: "20.00"},
		{name: "inactive", mutate: func(p *Promotion) { p.Active = false }, total: "20.00", wantErr: ErrInactive},
		{name: "not started", mutate: func(p *Promotion) { p.StartsAt = fixedNow.Add(time.Hour) }, total: "20.00", wantErr: ErrNotStarted},
		{name: "expired", mutate: func(p *Promotion) { p.EndsAt = fixedNow.Add(-time.Hour) }, total: "20.00", wantErr: ErrExpired},
		{name: "window bounds inclusive", mutate: func(p *Promotion) { p.StartsAt, p.EndsAt = fixedNow, fixedNow }, total: "20.00"},
		{name: "below minimum", mutate: func(p *Promotion) { p.MinPurchase = ptr(dec("50")) }, total: "49.99", wantErr: ErrMinPurchase},
		{name: "at minimum", mutate: func(p *Promotion) { p.MinPurchase = ptr(dec("50")) }, total: "50.00"},
		{name: "exhausted", mutate: func(p *Promotion) { p.MaxUses, p.UsesCount = ptr(3), 3 }, total: "20.00", wantErr: ErrUsageLimitReached},
		{name: "uses left", mutate: func(p *Promotion) { p.MaxUses, p.UsesCount = ptr(3), 2 }, total: "20.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPromotion()
			if tt.mutate != nil {
				tt.mutate(p)
			}
			err := Check(p, fixedNow, dec(tt.total))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		discountType DiscountType
		value        string
		total        string
		wantAmount   string
		wantTotal    string
	}{
		{"percentage", DiscountPercentage, "10", "20.00", "2.00", "18.00"},
		{"percentage rounds", DiscountPercentage, "15", "9.99", "1.50", "8.49"},
		{"full percentage", DiscountPercentage, "100", "42.00", "42.00", "0.00"},
		{"fixed", DiscountFixed, "5", "20.00", "5.00", "15.00"},
		{"fixed capped at total", DiscountFixed, "30", "20.00", "20.00", "0.00"},
		{"zero total", DiscountPercentage, "10", "0", "0.00", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPromotion()
			p.DiscountType = tt.discountType
			p.Value = dec(tt.value)

			d := Compute(p, dec(tt.total))
			assert.Equal(t, "CODE10", d.Code)
			assert.True(t, d.Amount.Equal(dec(tt.wantAmount)), "amount %s", d.Amount)
			assert.True(t, d.Total.Equal(dec(tt.wantTotal)), "total %s", d.Total)
			assert.True(t, d.Subtotal.Equal(dec(tt.total)))
		})
	}
}

func TestEvaluate_Scope(t *testing.T) {
	items := []Item{
		{ProductID: "P1", CategoryID: "books", UnitPrice: dec("10.00"), Quantity: 2},
		{ProductID: "P2", CategoryID: "home", UnitPrice: dec("5.00"), Quantity: 1},
	}

	tests := []struct {
		name     string
		scope    Scope
		cats     []string
		products []string
		wantErr  error
	}{
		{name: "all", scope: ScopeAll},
		{name: "matching category", scope: ScopeCategories, cats: []string{"home"}},
		{name: "other category", scope: ScopeCategories, cats: []string{"garden"}, wantErr: ErrNotApplicable},
		{name: "matching product", scope: ScopeProducts, products: []string{"P1"}},
		{name: "other product", scope: ScopeProducts, products: []string{"P9"}, wantErr: ErrNotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPromotion()
			p.Scope, p.CategoryIDs, p.ProductIDs = tt.scope, tt.cats, tt.products

			d, err := Evaluate(p, fixedNow, items)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			// The discount applies to the whole cart, not only matching lines.
			assert.True(t, d.Amount.Equal(dec("2.50")), "amount %s", d.Amount)
			assert.True(t, d.Total.Equal(dec("22.50")), "total %s", d.Total)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Promotion)
		wantErr error
	}{
		{name: "valid"},
		{name: "no code", mutate: func(p *Promotion) { p.Code = "" }, wantErr: ErrInvalidDefinition},
		{name: "zero value", mutate: func(p *Promotion) { p.Value = decimal.Zero }, wantErr: ErrInvalidDefinition},
		{name: "percentage over 100", mutate: func(p *Promotion) { p.Value = dec("100.01") }, wantErr: ErrPercentageTooHigh},
		{name: "unknown type", mutate: func(p *Promotion) { p.DiscountType = "bogo" }, wantErr: ErrInvalidDefinition},
		{name: "missing dates", mutate: func(p *Promotion) { p.EndsAt = time.Time{} }, wantErr: ErrInvalidDefinition},
		{name: "end before start", mutate: func(p *Promotion) { p.EndsAt = p.StartsAt.Add(-time.Second) }, wantErr: ErrInvalidDefinition},
		{name: "negative minimum", mutate: func(p *Promotion) { p.MinPurchase = ptr(dec("-1")) }, wantErr: ErrInvalidDefinition},
		{name: "zero max uses", mutate: func(p *Promotion) { p.MaxUses = ptr(0) }, wantErr: ErrInvalidDefinition},
		{name: "empty category scope", mutate: func(p *Promotion) { p.Scope = ScopeCategories }, wantErr: ErrInvalidDefinition},
		{name: "empty product scope", mutate: func(p *Promotion) { p.Scope = ScopeProducts }, wantErr: ErrInvalidDefinition},
		{name: "unknown scope", mutate: func(p *Promotion) { p.Scope = "vip" }, wantErr: ErrInvalidDefinition},
		{name: "large fixed amount", mutate: func(p *Promotion) { p.DiscountType, p.Value = DiscountFixed, dec("1000") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPromotion()
			if tt.mutate != nil {
				tt.mutate(p)
			}
			err := p.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SUMMER24", NormalizeCode("  summer24\t"))
}
