package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPromotionRepo struct {
	promo        *Promotion
	findErr      error
	incrementErr error
	incremented  []string
}

func (m *mockPromotionRepo) FindByCode(_ context.Context, _ string) (*Promotion, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.promo == nil {
		return nil, ErrNotFound
	}
	return m.promo, nil
}

func (m *mockPromotionRepo) GetByID(_ context.Context, _ string) (*Promotion, error) {
	return m.promo, nil
}

func (m *mockPromotionRepo) Create(_ context.Context, _ *Promotion) error { return nil }

func (m *mockPromotionRepo) UpdateScope(_ context.Context, _ string, _ Scope, _, _ []string) error {
	return nil
}

func (m *mockPromotionRepo) IncrementUses(_ context.Context, id string) error {
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.incremented = append(m.incremented, id)
	return nil
}

func TestRepoValidator_Apply(t *testing.T) {
	items := []Item{{ProductID: "P1", CategoryID: "c1", UnitPrice: dec("10.00"), Quantity: 2}}
	errDB := errors.New("connection reset")

	expired := validPromotion()
	expired.EndsAt = fixedNow.Add(-1)

	tests := []struct {
		name          string
		repo          *mockPromotionRepo
		wantAmount    string
		wantErr       error
		wantIncrement bool
	}{
		{
			name:          "valid code redeems once",
			repo:          &mockPromotionRepo{promo: validPromotion()},
			wantAmount:    "2.00",
			wantIncrement: true,
		},
		{
			name:    "unknown code",
			repo:    &mockPromotionRepo{},
			wantErr: ErrNotFound,
		},
		{
			name:    "expired is not redeemed",
			repo:    &mockPromotionRepo{promo: expired},
			wantErr: ErrExpired,
		},
		{
			name:    "lost the race for the last use",
			repo:    &mockPromotionRepo{promo: validPromotion(), incrementErr: ErrUsageLimitReached},
			wantErr: ErrUsageLimitReached,
		},
		{
			name:    "storage failure",
			repo:    &mockPromotionRepo{findErr: errDB},
			wantErr: errDB,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo, func() time.Time { return fixedNow })
			d, err := v.Apply(context.Background(), "code10", items)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, tt.repo.incremented)
				return
			}
			require.NoError(t, err)
			assert.True(t, d.Amount.Equal(dec(tt.wantAmount)), "amount %s", d.Amount)
			if tt.wantIncrement {
				assert.Equal(t, []string{"promo-1"}, tt.repo.incremented)
			}
		})
	}
}

func TestRepoValidator_IsValid(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return fixedNow }

	ok, err := NewRepoValidator(&mockPromotionRepo{promo: validPromotion()}, now).IsValid(ctx, "CODE10", dec("20"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewRepoValidator(&mockPromotionRepo{}, now).IsValid(ctx, "NOPE", dec("20"))
	require.NoError(t, err)
	assert.False(t, ok)

	inactive := validPromotion()
	inactive.Active = false
	ok, err = NewRepoValidator(&mockPromotionRepo{promo: inactive}, now).IsValid(ctx, "CODE10", dec("20"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewRepoValidator(&mockPromotionRepo{findErr: errors.New("db down")}, now).IsValid(ctx, "CODE10", dec("20"))
	require.Error(t, err)
}
