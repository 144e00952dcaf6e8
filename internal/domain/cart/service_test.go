package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/memory"
)

func newService(t *testing.T) (*cart.Service, *memory.Store) {
	t.Helper()
	s := memory.New()
	s.PutProduct(product.Product{ID: "P1", Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 5, Active: true})
	s.PutProduct(product.Product{ID: "P2", Name: "Gadget", Price: decimal.RequireFromString("2.50"), Stock: 3, Active: true})
	s.PutProduct(product.Product{ID: "P3", Name: "Retired", Price: decimal.NewFromInt(1), Stock: 3, Active: false})
	return cart.NewService(s.Carts(), s.Products()), s
}

func TestService_GetOrCreateCart(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	c1, err := svc.GetOrCreateCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c1.Items)
	assert.True(t, c1.Total().IsZero())

	c2, err := svc.GetOrCreateCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	other, err := svc.GetOrCreateCart(ctx, "u2")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, other.ID)
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	c, err := svc.AddItem(ctx, "u1", "P1", 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, c.Total().Equal(decimal.RequireFromString("20.00")))

	// A later price change does not reprice the existing line.
	store.PutProduct(product.Product{ID: "P1", Name: "Widget", Price: decimal.RequireFromString("12.00"), Stock: 5, Active: true})
	c, err = svc.AddItem(ctx, "u1", "P1", 1)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.True(t, c.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))

	c, err = svc.AddItem(ctx, "u1", "P2", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, c.ItemCount())
	assert.Equal(t, "P1", c.Items[0].ProductID)
	assert.Equal(t, "P2", c.Items[1].ProductID)
}

func TestService_AddItem_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.AddItem(ctx, "u1", "P1", 0)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)

	_, err = svc.AddItem(ctx, "u1", "missing", 1)
	require.ErrorIs(t, err, product.ErrNotFound)

	_, err = svc.AddItem(ctx, "u1", "P3", 1)
	var unavailable *product.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "P3", unavailable.ProductID)

	_, err = svc.AddItem(ctx, "u1", "P2", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "P2", 2)
	var insufficient *product.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 4, insufficient.Requested)
	assert.Equal(t, 3, insufficient.Available)
}

func TestService_UpdateItemQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	c, err := svc.AddItem(ctx, "u1", "P1", 1)
	require.NoError(t, err)
	itemID := c.Items[0].ID

	c, err = svc.UpdateItemQuantity(ctx, "u1", itemID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)

	_, err = svc.UpdateItemQuantity(ctx, "u1", itemID, 6)
	var insufficient *product.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	_, err = svc.UpdateItemQuantity(ctx, "u2", itemID, 1)
	require.ErrorIs(t, err, cart.ErrNotOwner)

	_, err = svc.UpdateItemQuantity(ctx, "u1", "missing", 1)
	require.ErrorIs(t, err, cart.ErrItemNotFound)

	c, err = svc.UpdateItemQuantity(ctx, "u1", itemID, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	require.NoError(t, svc.ClearCart(ctx, "nobody"))

	c, err := svc.AddItem(ctx, "u1", "P1", 1)
	require.NoError(t, err)
	itemID := c.Items[0].ID

	removed, err := svc.RemoveItem(ctx, "u2", itemID)
	require.ErrorIs(t, err, cart.ErrNotOwner)
	assert.False(t, removed)

	removed, err = svc.RemoveItem(ctx, "u1", itemID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.RemoveItem(ctx, "u1", itemID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = svc.AddItem(ctx, "u1", "P1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "P2", 1)
	require.NoError(t, err)
	require.NoError(t, svc.ClearCart(ctx, "u1"))

	c, err = svc.GetOrCreateCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}
