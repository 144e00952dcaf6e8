package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/storefront/internal/domain/apperr"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusCancelled},
		StatusProcessing: {StatusShipped, StatusCancelled},
		StatusShipped:    {StatusDelivered},
	}
	all := []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				want = want || s == to
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.False(t, Status("lost").Valid())
}

func TestIsCancellable(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:    true,
		StatusProcessing: true,
		StatusShipped:    false,
		StatusDelivered:  false,
		StatusCancelled:  false,
	} {
		assert.Equal(t, want, IsCancellable(&Order{Status: status}), status)
	}
}

func TestOrder_Apply(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	o := &Order{Status: StatusProcessing, PaymentStatus: PaymentPaid}

	o.Apply(StatusChange{From: StatusProcessing, To: StatusShipped, At: at, TrackingNumber: "TRK"})
	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, "TRK", o.TrackingNumber)
	if assert.NotNil(t, o.ShippedAt) {
		assert.Equal(t, at, *o.ShippedAt)
	}
	assert.Equal(t, at, o.UpdatedAt)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)

	o = &Order{Status: StatusPending, PaymentStatus: PaymentPaid}
	o.Apply(StatusChange{From: StatusPending, To: StatusCancelled, At: at, PaymentStatus: PaymentRefunded})
	assert.NotNil(t, o.CancelledAt)
	assert.Equal(t, PaymentRefunded, o.PaymentStatus)
}

func TestTransitionError_Kind(t *testing.T) {
	err := &TransitionError{From: StatusDelivered, To: StatusPending}
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
	assert.Equal(t, "cannot change order status from delivered to pending", err.Error())
}
