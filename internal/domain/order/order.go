package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// PaymentMethod is how a customer pays for an order.
type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentPayPal, PaymentBankTransfer, PaymentCashOnDelivery:
		return true
	}
	return false
}

// PaymentStatus is the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Order is a placed purchase. Items and amounts are fixed at creation.
type Order struct {
	ID                string
	UserID            string
	Status            Status
	Subtotal          decimal.Decimal
	DiscountAmount    decimal.Decimal
	TotalAmount       decimal.Decimal
	PromotionCode     string
	ShippingAddressID string
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	TrackingNumber    string
	Items             []Item
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ProcessingAt      *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
}

// Item is an immutable snapshot of a purchased product.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// IsCancellable reports whether the order may still be cancelled.
func IsCancellable(o *Order) bool {
	return o.Status.CanTransitionTo(StatusCancelled)
}

// StatusChange describes a status transition to persist. The repository
// applies it only if the order is still in From.
type StatusChange struct {
	From           Status
	To             Status
	At             time.Time
	TrackingNumber string
	PaymentStatus  PaymentStatus
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "order not found")
	// ErrEmptyCart is returned when checking out a missing or empty cart.
	ErrEmptyCart = apperr.New(apperr.KindValidation, "cart is empty")
	// ErrShippingAddressRequired is returned when no shipping address is referenced.
	ErrShippingAddressRequired = apperr.New(apperr.KindValidation, "shipping address is required")
	// ErrInvalidPaymentMethod is returned for unsupported payment methods.
	ErrInvalidPaymentMethod = apperr.New(apperr.KindValidation, "unsupported payment method")
	// ErrInvalidStatus is returned for unknown order or payment statuses.
	ErrInvalidStatus = apperr.New(apperr.KindValidation, "unknown status")
	// ErrNotCancellable is returned when cancelling a shipped, delivered or
	// already cancelled order.
	ErrNotCancellable = apperr.New(apperr.KindStateConflict, "order cannot be cancelled")
	// ErrStatusChanged is returned when the order changed status concurrently.
	ErrStatusChanged = apperr.New(apperr.KindStateConflict, "order status changed concurrently")
	// ErrNotOwner is returned when a user accesses another user's order.
	ErrNotOwner = apperr.New(apperr.KindPermissionDenied, "order belongs to another user")
)

// TransitionError indicates a status change the lifecycle does not permit.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// Kind implements apperr.Classified.
func (e *TransitionError) Kind() apperr.Kind { return apperr.KindStateConflict }

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists an order together with its items.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus applies change if the order is still in change.From and
	// returns ErrStatusChanged otherwise.
	UpdateStatus(ctx context.Context, id string, change StatusChange) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus) (*Order, error)
}

// Apply mutates o according to change without checking change.From.
// Repositories use it after verifying the current status.
func (o *Order) Apply(change StatusChange) {
	at := change.At
	o.Status = change.To
	o.UpdatedAt = at
	switch change.To {
	case StatusProcessing:
		o.ProcessingAt = &at
	case StatusShipped:
		o.ShippedAt = &at
		if change.TrackingNumber != "" {
			o.TrackingNumber = change.TrackingNumber
		}
	case StatusDelivered:
		o.DeliveredAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	}
	if change.PaymentStatus != "" {
		o.PaymentStatus = change.PaymentStatus
	}
}
