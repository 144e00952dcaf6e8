package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Repository = (*cartRepo)(nil)

type cartRepo struct{ tables }

func (r *cartRepo) FindByUserID(_ context.Context, userID string) (*cart.Cart, error) {
	var c *cart.Cart
	err := r.with(func(d *data) error {
		id, ok := d.cartByUser[userID]
		if !ok {
			return cart.ErrNotFound
		}
		c = d.assemble(id)
		return nil
	})
	return c, err
}

func (r *cartRepo) Create(_ context.Context, userID string) (*cart.Cart, error) {
	var c *cart.Cart
	err := r.with(func(d *data) error {
		if id, ok := d.cartByUser[userID]; ok {
			c = d.assemble(id)
			return nil
		}
		now := r.clock()
		stored := cart.Cart{
			ID:        uuid.New().String(),
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		d.carts[stored.ID] = stored
		d.cartByUser[userID] = stored.ID
		c = d.assemble(stored.ID)
		return nil
	})
	return c, err
}

func (r *cartRepo) FindItem(_ context.Context, itemID string) (*cart.Item, error) {
	var item cart.Item
	err := r.with(func(d *data) error {
		stored, ok := d.items[itemID]
		if !ok {
			return cart.ErrItemNotFound
		}
		item = stored.Item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepo) AddItem(_ context.Context, cartID string, item cart.Item) (*cart.Item, error) {
	var out cart.Item
	err := r.with(func(d *data) error {
		if _, ok := d.carts[cartID]; !ok {
			return cart.ErrNotFound
		}
		now := r.clock()
		for id, stored := range d.items {
			if stored.CartID == cartID && stored.ProductID == item.ProductID {
				stored.Quantity += item.Quantity
				stored.UpdatedAt = now
				d.items[id] = stored
				out = stored.Item
				return nil
			}
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.CartID = cartID
		item.CreatedAt = now
		item.UpdatedAt = now
		d.items[item.ID] = storedItem{Item: item, seq: d.next()}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *cartRepo) UpdateItem(_ context.Context, itemID string, quantity int) (*cart.Item, error) {
	var out cart.Item
	err := r.with(func(d *data) error {
		stored, ok := d.items[itemID]
		if !ok {
			return cart.ErrItemNotFound
		}
		stored.Quantity = quantity
		stored.UpdatedAt = r.clock()
		d.items[itemID] = stored
		out = stored.Item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *cartRepo) RemoveItem(_ context.Context, itemID string) (bool, error) {
	var removed bool
	err := r.with(func(d *data) error {
		_, removed = d.items[itemID]
		delete(d.items, itemID)
		return nil
	})
	return removed, err
}

func (r *cartRepo) Clear(_ context.Context, cartID string) error {
	return r.with(func(d *data) error {
		for id, stored := range d.items {
			if stored.CartID == cartID {
				delete(d.items, id)
			}
		}
		return nil
	})
}

func (r *cartRepo) RemoveOrdered(_ context.Context, cartID string, lines []cart.Item) error {
	return r.with(func(d *data) error {
		for _, line := range lines {
			stored, ok := d.items[line.ID]
			if !ok || stored.CartID != cartID {
				continue
			}
			if stored.Quantity <= line.Quantity {
				delete(d.items, line.ID)
				continue
			}
			stored.Quantity -= line.Quantity
			stored.UpdatedAt = r.clock()
			d.items[line.ID] = stored
		}
		return nil
	})
}

// assemble returns a copy of the cart with its lines in insertion order.
func (d *data) assemble(cartID string) *cart.Cart {
	c := d.carts[cartID]
	var lines []storedItem
	for _, stored := range d.items {
		if stored.CartID == cartID {
			lines = append(lines, stored)
		}
	}
	slices.SortFunc(lines, func(a, b storedItem) int { return cmp.Compare(a.seq, b.seq) })

	c.Items = make([]cart.Item, len(lines))
	for i, stored := range lines {
		c.Items[i] = stored.Item
	}
	return &c
}
