package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/internal/storage/memory"
)

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// --- Helpers ---

type recordingObserver struct {
	mu    sync.Mutex
	calls [][]string
}

func (o *recordingObserver) StockChanged(_ context.Context, ids []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, ids)
}

// faultyTransactor fails the final cart clear of every checkout.
type faultyTransactor struct {
	inner order.Transactor
	err   error
}

func (f faultyTransactor) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return f.inner.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return fn(ctx, faultyTx{Tx: tx, err: f.err})
	})
}

type faultyTx struct {
	order.Tx
	err error
}

func (f faultyTx) Carts() cart.Repository { return faultyCarts{Repository: f.Tx.Carts(), err: f.err} }

type faultyCarts struct {
	cart.Repository
	err error
}

func (f faultyCarts) RemoveOrdered(context.Context, string, []cart.Item) error { return f.err }

type env struct {
	store    *memory.Store
	carts    *cart.Service
	orders   *order.Service
	observer *recordingObserver
}

func newEnv(t *testing.T, tx order.Transactor) *env {
	t.Helper()
	store := memory.New()
	store.PutProduct(product.Product{ID: "P1", CategoryID: "c1", Name: "Widget", Price: dec("10.00"), Stock: 5, Active: true})
	store.PutProduct(product.Product{ID: "P2", CategoryID: "c2", Name: "Gadget", Price: dec("5.00"), Stock: 3, Active: true})
	store.PutPromotion(promotion.Promotion{
		ID:           "promo-10",
		Code:         "CODE10",
		DiscountType: promotion.DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		StartsAt:     fixedNow.Add(-time.Hour),
		EndsAt:       fixedNow.Add(time.Hour),
		Scope:        promotion.ScopeAll,
		Active:       true,
	})

	if tx == nil {
		tx = store
	} else if f, ok := tx.(faultyTransactor); ok {
		f.inner = store
		tx = f
	}

	observer := &recordingObserver{}
	svc, err := order.NewService(tx, store.Orders(),
		order.WithClock(func() time.Time { return fixedNow }),
		order.WithStockObserver(observer),
	)
	require.NoError(t, err)

	return &env{
		store:    store,
		carts:    cart.NewService(store.Carts(), store.Products()),
		orders:   svc,
		observer: observer,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func request(userID, code string) order.CreateOrderRequest {
	return order.CreateOrderRequest{
		UserID:            userID,
		ShippingAddressID: "addr-1",
		PaymentMethod:     order.PaymentCard,
		PromotionCode:     code,
	}
}

func (e *env) add(t *testing.T, userID, productID string, qty int) {
	t.Helper()
	_, err := e.carts.AddItem(context.Background(), userID, productID, qty)
	require.NoError(t, err)
}

func (e *env) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := e.store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (e *env) uses(t *testing.T, code string) int {
	t.Helper()
	p, err := e.store.Promotions().FindByCode(context.Background(), code)
	require.NoError(t, err)
	return p.UsesCount
}

func (e *env) cartItems(t *testing.T, userID string) int {
	t.Helper()
	c, err := e.carts.GetOrCreateCart(context.Background(), userID)
	require.NoError(t, err)
	return len(c.Items)
}

func (e *env) orderCount(t *testing.T, userID string) int {
	t.Helper()
	orders, err := e.orders.ListOrders(context.Background(), userID)
	require.NoError(t, err)
	return len(orders)
}

// assertUntouched checks that a failed checkout left no trace.
func (e *env) assertUntouched(t *testing.T, userID string, lines int, stock map[string]int) {
	t.Helper()
	for id, want := range stock {
		assert.Equal(t, want, e.stock(t, id), "stock of %s", id)
	}
	assert.Zero(t, e.uses(t, "CODE10"))
	assert.Equal(t, lines, e.cartItems(t, userID))
	assert.Zero(t, e.orderCount(t, userID))
	assert.Empty(t, e.observer.calls)
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	e.add(t, "u1", "P1", 2)

	o, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.True(t, o.Subtotal.Equal(dec("20.00")))
	assert.True(t, o.DiscountAmount.IsZero())
	assert.True(t, o.TotalAmount.Equal(dec("20.00")))
	assert.Equal(t, fixedNow, o.CreatedAt)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget", o.Items[0].ProductName)
	assert.True(t, o.Items[0].LineTotal.Equal(dec("20.00")))

	assert.Equal(t, 3, e.stock(t, "P1"))
	assert.Zero(t, e.cartItems(t, "u1"))
	assert.Equal(t, [][]string{{"P1"}}, e.observer.calls)

	got, err := e.orders.GetOrder(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestCreateOrder_ChargesCapturedPrice(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	e.add(t, "u1", "P1", 2)

	e.store.PutProduct(product.Product{ID: "P1", CategoryID: "c1", Name: "Widget v2", Price: dec("99.00"), Stock: 5, Active: true})

	o, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.NoError(t, err)

	assert.True(t, o.TotalAmount.Equal(dec("20.00")), o.TotalAmount.String())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget v2", o.Items[0].ProductName)
	assert.True(t, o.Items[0].UnitPrice.Equal(dec("10.00")))
	assert.Equal(t, 3, e.stock(t, "P1"))
}

func TestCreateOrder_WithPromotion(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	e.add(t, "u1", "P1", 2)

	o, err := e.orders.CreateOrder(ctx, request("u1", "code10"))
	require.NoError(t, err)

	assert.True(t, o.DiscountAmount.Equal(dec("2.00")))
	assert.True(t, o.TotalAmount.Equal(dec("18.00")))
	assert.Equal(t, "CODE10", o.PromotionCode)
	assert.Equal(t, 1, e.uses(t, "CODE10"))
}

func TestCreateOrder_RollsBack(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		tx      order.Transactor
		setup   func(t *testing.T, e *env)
		code    string
		check   func(t *testing.T, err error)
		wantErr error
	}{
		{
			name: "insufficient stock on a later line",
			setup: func(t *testing.T, e *env) {
				_, err := e.store.Products().AdjustStock(context.Background(), "P2", -3)
				require.NoError(t, err)
			},
			code: "CODE10",
			check: func(t *testing.T, err error) {
				var insufficient *product.InsufficientStockError
				require.ErrorAs(t, err, &insufficient)
				assert.Equal(t, "P2", insufficient.ProductID)
				assert.Zero(t, insufficient.Available)
			},
		},
		{
			name: "product deactivated after adding",
			setup: func(t *testing.T, e *env) {
				e.store.PutProduct(product.Product{ID: "P1", Name: "Widget", Price: dec("10.00"), Stock: 5, Active: false})
			},
			check: func(t *testing.T, err error) {
				var unavailable *product.UnavailableError
				require.ErrorAs(t, err, &unavailable)
				assert.Equal(t, "P1", unavailable.ProductID)
			},
		},
		{
			name:    "unknown promotion",
			code:    "NOPE",
			wantErr: promotion.ErrNotFound,
		},
		{
			name: "exhausted promotion",
			setup: func(t *testing.T, e *env) {
				p, err := e.store.Promotions().FindByCode(context.Background(), "CODE10")
				require.NoError(t, err)
				p.MaxUses = new(int)
				*p.MaxUses = 1
				p.UsesCount = 1
				e.store.PutPromotion(*p)
			},
			code:    "CODE10",
			wantErr: promotion.ErrUsageLimitReached,
		},
		{
			name:    "failure after every write",
			tx:      faultyTransactor{err: errBoom},
			code:    "CODE10",
			wantErr: errBoom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.tx)
			e.add(t, "u1", "P1", 2)
			e.add(t, "u1", "P2", 1)
			stockBefore := map[string]int{"P1": e.stock(t, "P1"), "P2": e.stock(t, "P2")}
			if tt.setup != nil {
				tt.setup(t, e)
				stockBefore = map[string]int{"P1": e.stock(t, "P1"), "P2": e.stock(t, "P2")}
			}
			usesBefore := e.uses(t, "CODE10")

			_, err := e.orders.CreateOrder(context.Background(), request("u1", tt.code))
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, err)
			}

			for id, want := range stockBefore {
				assert.Equal(t, want, e.stock(t, id), "stock of %s", id)
			}
			assert.Equal(t, usesBefore, e.uses(t, "CODE10"))
			assert.Equal(t, 2, e.cartItems(t, "u1"))
			assert.Zero(t, e.orderCount(t, "u1"))
			assert.Empty(t, e.observer.calls)
		})
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	_, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.ErrorIs(t, err, order.ErrEmptyCart)

	_, err = e.carts.GetOrCreateCart(ctx, "u1")
	require.NoError(t, err)
	_, err = e.orders.CreateOrder(ctx, request("u1", ""))
	require.ErrorIs(t, err, order.ErrEmptyCart)

	e.add(t, "u1", "P1", 1)
	req := request("u1", "")
	req.ShippingAddressID = ""
	_, err = e.orders.CreateOrder(ctx, req)
	require.ErrorIs(t, err, order.ErrShippingAddressRequired)

	req = request("u1", "")
	req.PaymentMethod = "barter"
	_, err = e.orders.CreateOrder(ctx, req)
	require.ErrorIs(t, err, order.ErrInvalidPaymentMethod)

	e.assertUntouched(t, "u1", 1, map[string]int{"P1": 5})
}

func TestCreateOrder_ConcurrentBuyersNeverOversell(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	const buyers = 8
	users := make([]string, buyers)
	for i := range users {
		users[i] = "buyer-" + string(rune('a'+i))
		e.add(t, users[i], "P2", 1)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  int
		refused int
	)
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.orders.CreateOrder(ctx, request(u, ""))
			mu.Lock()
			defer mu.Unlock()
			var insufficient *product.InsufficientStockError
			switch {
			case err == nil:
				placed++
			case errors.As(err, &insufficient):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
	assert.Equal(t, buyers-3, refused)
	assert.Zero(t, e.stock(t, "P2"))
}

func TestCreateOrder_PromotionCapUnderContention(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	maxUses := 2
	e.store.PutPromotion(promotion.Promotion{
		ID:           "promo-cap",
		Code:         "TWICE",
		DiscountType: promotion.DiscountFixed,
		Value:        decimal.NewFromInt(1),
		MaxUses:      &maxUses,
		StartsAt:     fixedNow.Add(-time.Hour),
		EndsAt:       fixedNow.Add(time.Hour),
		Scope:        promotion.ScopeAll,
		Active:       true,
	})

	const buyers = 5
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := range buyers {
		user := "buyer-" + string(rune('a'+i))
		e.add(t, user, "P1", 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.orders.CreateOrder(ctx, request(user, "TWICE"))
		}()
	}
	wg.Wait()

	placed := 0
	for _, err := range errs {
		if err == nil {
			placed++
			continue
		}
		require.ErrorIs(t, err, promotion.ErrUsageLimitReached)
	}
	assert.Equal(t, 2, placed)
	assert.Equal(t, 2, e.uses(t, "TWICE"))
	assert.Equal(t, 3, e.stock(t, "P1"))
}

func TestUpdateOrderStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	e.add(t, "u1", "P1", 1)
	o, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.NoError(t, err)

	_, err = e.orders.UpdateOrderStatus(ctx, o.ID, order.StatusShipped, "")
	var transition *order.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, order.StatusPending, transition.From)

	_, err = e.orders.UpdateOrderStatus(ctx, o.ID, "lost", "")
	require.ErrorIs(t, err, order.ErrInvalidStatus)

	_, err = e.orders.UpdateOrderStatus(ctx, "missing", order.StatusProcessing, "")
	require.ErrorIs(t, err, order.ErrNotFound)

	got, err := e.orders.UpdateOrderStatus(ctx, o.ID, order.StatusProcessing, "")
	require.NoError(t, err)
	require.NotNil(t, got.ProcessingAt)

	got, err = e.orders.UpdateOrderStatus(ctx, o.ID, order.StatusShipped, "TRK-42")
	require.NoError(t, err)
	assert.Equal(t, "TRK-42", got.TrackingNumber)
	require.NotNil(t, got.ShippedAt)

	got, err = e.orders.UpdateOrderStatus(ctx, o.ID, order.StatusDelivered, "")
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	assert.False(t, order.IsCancellable(got))

	_, err = e.orders.CancelOrder(ctx, "u1", o.ID)
	require.ErrorIs(t, err, order.ErrNotCancellable)
	assert.Equal(t, 4, e.stock(t, "P1"))
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	e.add(t, "u1", "P1", 2)
	e.add(t, "u1", "P2", 1)
	o, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.NoError(t, err)
	require.Equal(t, 3, e.stock(t, "P1"))
	require.Equal(t, 2, e.stock(t, "P2"))

	_, err = e.orders.CancelOrder(ctx, "u2", o.ID)
	require.ErrorIs(t, err, order.ErrNotOwner)

	cancelled, err := e.orders.CancelOrder(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, e.stock(t, "P1"))
	assert.Equal(t, 3, e.stock(t, "P2"))
	assert.Len(t, e.observer.calls, 2)

	_, err = e.orders.CancelOrder(ctx, "u1", o.ID)
	require.ErrorIs(t, err, order.ErrNotCancellable)
	assert.Equal(t, 5, e.stock(t, "P1"))
}

func TestCancelOrder_RefundsPaidOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	e.add(t, "u1", "P1", 1)
	o, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.NoError(t, err)

	_, err = e.orders.UpdatePaymentStatus(ctx, o.ID, "bitcoin")
	require.ErrorIs(t, err, order.ErrInvalidStatus)
	_, err = e.orders.UpdatePaymentStatus(ctx, "missing", order.PaymentPaid)
	require.ErrorIs(t, err, order.ErrNotFound)

	paid, err := e.orders.UpdatePaymentStatus(ctx, o.ID, order.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, paid.PaymentStatus)

	cancelled, err := e.orders.UpdateOrderStatus(ctx, o.ID, order.StatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRefunded, cancelled.PaymentStatus)
	assert.Equal(t, 5, e.stock(t, "P1"))
}

func TestGetAndListOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	e.add(t, "u1", "P1", 1)
	first, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.NoError(t, err)
	e.add(t, "u1", "P2", 1)
	second, err := e.orders.CreateOrder(ctx, request("u1", ""))
	require.NoError(t, err)

	orders, err := e.orders.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)

	_, err = e.orders.GetOrder(ctx, "u2", first.ID)
	require.ErrorIs(t, err, order.ErrNotOwner)
	_, err = e.orders.GetOrder(ctx, "u1", "missing")
	require.ErrorIs(t, err, order.ErrNotFound)

	none, err := e.orders.ListOrders(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
