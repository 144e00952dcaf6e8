package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*orderRepo)(nil)

type orderRepo struct{ tables }

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	return r.with(func(d *data) error {
		stored := *o
		stored.Items = slices.Clone(o.Items)
		d.orders[o.ID] = storedOrder{Order: stored, seq: d.next()}
		return nil
	})
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := r.with(func(d *data) error {
		stored, ok := d.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		o = stored.Order
		o.Items = slices.Clone(stored.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var stored []storedOrder
	err := r.with(func(d *data) error {
		for _, o := range d.orders {
			if o.UserID == userID {
				o.Items = slices.Clone(o.Items)
				stored = append(stored, o)
			}
		}
		return nil
	})
	slices.SortFunc(stored, func(a, b storedOrder) int { return cmp.Compare(b.seq, a.seq) })

	out := make([]order.Order, len(stored))
	for i, o := range stored {
		out[i] = o.Order
	}
	return out, err
}

func (r *orderRepo) UpdateStatus(_ context.Context, id string, change order.StatusChange) (*order.Order, error) {
	var o order.Order
	err := r.with(func(d *data) error {
		stored, ok := d.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		if stored.Status != change.From {
			return order.ErrStatusChanged
		}
		stored.Apply(change)
		d.orders[id] = stored
		o = stored.Order
		o.Items = slices.Clone(stored.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) UpdatePaymentStatus(_ context.Context, id string, status order.PaymentStatus) (*order.Order, error) {
	var o order.Order
	err := r.with(func(d *data) error {
		stored, ok := d.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		stored.PaymentStatus = status
		stored.UpdatedAt = r.clock()
		d.orders[id] = stored
		o = stored.Order
		o.Items = slices.Clone(stored.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}
