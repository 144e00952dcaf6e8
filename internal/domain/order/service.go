package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/order"

// CreateOrderRequest holds the input for checking out a user's cart.
type CreateOrderRequest struct {
	UserID            string
	ShippingAddressID string
	PaymentMethod     PaymentMethod
	// PromotionCode is optional.
	PromotionCode string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStockObserver registers an observer notified after committed stock changes.
func WithStockObserver(o StockObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithTracerProvider sets the tracer provider for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for checkout metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service is the checkout orchestrator: it turns carts into orders and
// drives the order lifecycle.
type Service struct {
	tx     Transactor
	orders Repository

	now            func() time.Time
	observer       StockObserver
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer    trace.Tracer
	created   metric.Int64Counter
	failed    metric.Int64Counter
	cancelled metric.Int64Counter
}

// NewService creates an order Service. orders is used for reads outside
// of transactions.
func NewService(tx Transactor, orders Repository, opts ...Option) (*Service, error) {
	s := &Service{
		tx:             tx,
		orders:         orders,
		now:            time.Now,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.created, err = meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	if s.failed, err = meter.Int64Counter("checkout.orders.failed",
		metric.WithDescription("Checkout attempts rolled back"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	if s.cancelled, err = meter.Int64Counter("checkout.orders.cancelled",
		metric.WithDescription("Orders cancelled with stock restored"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return s, nil
}

// CreateOrder checks out the user's cart. Stock is verified for every line
// before anything is written, and the order, stock decrements, promotion
// redemption and cart clearing commit together or not at all.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.String("user.id", req.UserID)),
	)
	defer func() {
		if rerr != nil {
			kind := apperr.KindOf(rerr)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
		}
		span.End()
	}()

	if req.ShippingAddressID == "" {
		return nil, ErrShippingAddressRequired
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	var o *Order
	if err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = s.checkout(ctx, tx, req)
		return err
	}); err != nil {
		return nil, err
	}

	s.stockChanged(ctx, o.Items)
	s.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.id", o.ID))

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.String("promotion", o.PromotionCode),
	)
	return o, nil
}

func (s *Service) checkout(ctx context.Context, tx Tx, req CreateOrderRequest) (*Order, error) {
	c, err := tx.Carts().FindByUserID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "find cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(c.Items))
	for i, line := range c.Items {
		ids[i] = line.ProductID
	}
	locked, err := tx.Products().LockByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}
	products := make(map[string]product.Product, len(locked))
	for _, p := range locked {
		products[p.ID] = p
	}

	// Every line is verified before the first write.
	for _, line := range c.Items {
		p, ok := products[line.ProductID]
		if !ok || !p.Active {
			return nil, &product.UnavailableError{ProductID: line.ProductID}
		}
		if p.Stock < line.Quantity {
			return nil, &product.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: p.Stock,
			}
		}
	}

	subtotal := c.Total()
	discount := decimal.Zero
	code := ""
	if req.PromotionCode != "" {
		v := promotion.NewRepoValidator(tx.Promotions(), s.now)
		d, err := v.Apply(ctx, req.PromotionCode, promotion.CartItems(c, locked))
		if err != nil {
			return nil, errors.Wrap(err, "apply promotion")
		}
		discount = d.Amount
		code = d.Code
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	o := &Order{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		Status:            StatusPending,
		Subtotal:          subtotal.Round(2),
		DiscountAmount:    discount.Round(2),
		TotalAmount:       total.Round(2),
		PromotionCode:     code,
		ShippingAddressID: req.ShippingAddressID,
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     PaymentPending,
		Items:             make([]Item, len(c.Items)),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for i, line := range c.Items {
		o.Items[i] = Item{
			ID:          uuid.New().String(),
			OrderID:     o.ID,
			ProductID:   line.ProductID,
			ProductName: products[line.ProductID].Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal().Round(2),
		}
	}

	if err := tx.Orders().Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	for _, line := range c.Items {
		if _, err := tx.Products().AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
			switch {
			case errors.Is(err, product.ErrNegativeStock):
				return nil, &product.InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: products[line.ProductID].Stock,
				}
			case errors.Is(err, product.ErrNotFound):
				return nil, &product.UnavailableError{ProductID: line.ProductID}
			default:
				return nil, errors.Wrapf(err, "decrement stock of %s", line.ProductID)
			}
		}
	}

	if err := tx.Carts().RemoveOrdered(ctx, c.ID, c.Items); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	return o, nil
}

// GetOrder returns an order owned by userID.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}
	return o, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateOrderStatus moves an order to next. Moving to cancelled restores
// stock exactly like CancelOrder. trackingNumber is recorded when shipping.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, next Status, trackingNumber string) (*Order, error) {
	if !next.Valid() {
		return nil, ErrInvalidStatus
	}
	if next == StatusCancelled {
		return s.cancel(ctx, orderID, "")
	}

	var updated *Order
	if err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(next) {
			return &TransitionError{From: o.Status, To: next}
		}

		change := StatusChange{From: o.Status, To: next, At: s.now()}
		if next == StatusShipped {
			change.TrackingNumber = trackingNumber
		}
		updated, err = tx.Orders().UpdateStatus(ctx, orderID, change)
		return err
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(next)),
	)
	return updated, nil
}

// CancelOrder cancels a pending or processing order owned by userID and
// returns every item quantity to stock.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	if userID == "" {
		return nil, ErrNotOwner
	}
	return s.cancel(ctx, orderID, userID)
}

// cancel enforces ownership unless userID is empty (administrative cancel).
func (s *Service) cancel(ctx context.Context, orderID, userID string) (*Order, error) {
	var cancelled *Order
	if err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if userID != "" && o.UserID != userID {
			return ErrNotOwner
		}
		if !IsCancellable(o) {
			return ErrNotCancellable
		}

		change := StatusChange{From: o.Status, To: StatusCancelled, At: s.now()}
		if o.PaymentStatus == PaymentPaid {
			change.PaymentStatus = PaymentRefunded
		}
		if cancelled, err = tx.Orders().UpdateStatus(ctx, orderID, change); err != nil {
			return err
		}

		for _, item := range o.Items {
			if _, err := tx.Products().AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
				return errors.Wrapf(err, "restore stock of %s", item.ProductID)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.stockChanged(ctx, cancelled.Items)
	s.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.Int("items", len(cancelled.Items)),
	)
	return cancelled, nil
}

// UpdatePaymentStatus records the settlement state of an order's payment.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, status PaymentStatus) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	o, err := s.orders.UpdatePaymentStatus(ctx, orderID, status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update payment status")
	}
	return o, nil
}

func (s *Service) stockChanged(ctx context.Context, items []Item) {
	if s.observer == nil || len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	s.observer.StockChanged(ctx, ids)
}
