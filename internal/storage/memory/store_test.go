package memory

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

func TestStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(product.Product{ID: "p1", Price: decimal.NewFromInt(10), Stock: 5, Active: true})

	errBoom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		if _, err := tx.Products().AdjustStock(ctx, "p1", -2); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	p, err := s.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestStore_InTxCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(product.Product{ID: "p1", Price: decimal.NewFromInt(10), Stock: 5, Active: true})

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		_, err := tx.Products().AdjustStock(ctx, "p1", -2)
		return err
	}))

	p, err := s.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}

func TestStore_InTxCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(context.Context, order.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestProductRepo_AdjustStock(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(product.Product{ID: "p1", Stock: 1, Active: true})
	repo := s.Products()

	_, err := repo.AdjustStock(ctx, "p1", -2)
	require.ErrorIs(t, err, product.ErrNegativeStock)

	_, err = repo.AdjustStock(ctx, "missing", 1)
	require.ErrorIs(t, err, product.ErrNotFound)

	p, err := repo.AdjustStock(ctx, "p1", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestProductRepo_ListActiveOnly(t *testing.T) {
	s := New()
	s.PutProduct(product.Product{ID: "b", Active: true})
	s.PutProduct(product.Product{ID: "a", Active: true})
	s.PutProduct(product.Product{ID: "c"})

	list, err := s.Products().List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestCartRepo_AddItemMerges(t *testing.T) {
	ctx := context.Background()
	repo := New().Carts()

	c, err := repo.Create(ctx, "u1")
	require.NoError(t, err)
	again, err := repo.Create(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	_, err = repo.AddItem(ctx, c.ID, cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, c.ID, cart.Item{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(3)})
	require.NoError(t, err)
	merged, err := repo.AddItem(ctx, c.ID, cart.Item{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(12)})
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Quantity)
	assert.True(t, merged.UnitPrice.Equal(decimal.NewFromInt(10)))

	got, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "p1", got.Items[0].ProductID)
	assert.Equal(t, "p2", got.Items[1].ProductID)

	removed, err := repo.RemoveItem(ctx, got.Items[1].ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveItem(ctx, got.Items[1].ID)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, repo.Clear(ctx, c.ID))
	got, err = repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestCartRepo_RemoveOrderedKeepsLaterWork(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Carts()

	c, err := repo.Create(ctx, "u1")
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, c.ID, cart.Item{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, c.ID, cart.Item{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(3)})
	require.NoError(t, err)
	read, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)

	// Work that lands after the checkout read.
	_, err = repo.AddItem(ctx, c.ID, cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, c.ID, cart.Item{ProductID: "p3", Quantity: 4, UnitPrice: decimal.NewFromInt(1)})
	require.NoError(t, err)

	require.NoError(t, repo.RemoveOrdered(ctx, c.ID, read.Items))

	got, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "p1", got.Items[0].ProductID)
	assert.Equal(t, 1, got.Items[0].Quantity)
	assert.Equal(t, "p3", got.Items[1].ProductID)
	assert.Equal(t, 4, got.Items[1].Quantity)
}

func TestPromotionRepo_IncrementUses(t *testing.T) {
	ctx := context.Background()
	s := New()
	maxUses := 1
	s.PutPromotion(promotion.Promotion{ID: "pr1", Code: "save10", MaxUses: &maxUses, Active: true})
	repo := s.Promotions()

	p, err := repo.FindByCode(ctx, " SAVE10 ")
	require.NoError(t, err)
	assert.Equal(t, "pr1", p.ID)

	require.NoError(t, repo.IncrementUses(ctx, "pr1"))
	require.ErrorIs(t, repo.IncrementUses(ctx, "pr1"), promotion.ErrUsageLimitReached)

	err = repo.Create(ctx, &promotion.Promotion{ID: "pr2", Code: "Save10"})
	require.ErrorIs(t, err, promotion.ErrDuplicateCode)
}

func TestOrderRepo_UpdateStatusCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := New().Orders()
	require.NoError(t, repo.Create(ctx, &order.Order{
		ID:     "o1",
		UserID: "u1",
		Status: order.StatusPending,
		Items:  []order.Item{{ID: "i1", ProductID: "p1", Quantity: 1}},
	}))

	o, err := repo.UpdateStatus(ctx, "o1", order.StatusChange{From: order.StatusPending, To: order.StatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.NotNil(t, o.ProcessingAt)
	assert.Len(t, o.Items, 1)

	_, err = repo.UpdateStatus(ctx, "o1", order.StatusChange{From: order.StatusPending, To: order.StatusCancelled})
	require.ErrorIs(t, err, order.ErrStatusChanged)

	_, err = repo.UpdateStatus(ctx, "missing", order.StatusChange{From: order.StatusPending, To: order.StatusProcessing})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepo_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := New().Orders()
	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, repo.Create(ctx, &order.Order{ID: id, UserID: "u1"}))
	}
	require.NoError(t, repo.Create(ctx, &order.Order{ID: "other", UserID: "u2"}))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "o3", list[0].ID)
	assert.Equal(t, "o1", list[2].ID)
}
