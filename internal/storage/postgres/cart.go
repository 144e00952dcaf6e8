package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getCartByUserSQL = `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`

	// A concurrent insert for the same user loses the race silently and the
	// follow-up read returns the winner's row.
	createCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`

	cartItemColumns = `id, cart_id, product_id, quantity, unit_price, created_at, updated_at`

	listCartItemsSQL = `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 ORDER BY seq`

	getCartItemSQL = `SELECT ` + cartItemColumns + ` FROM cart_items WHERE id = $1`

	// Merging keeps the unit price captured by the first insert.
	addCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING ` + cartItemColumns

	updateCartItemSQL = `UPDATE cart_items SET quantity = $2, updated_at = now()
		WHERE id = $1 RETURNING ` + cartItemColumns

	removeCartItemSQL = `DELETE FROM cart_items WHERE id = $1`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	// The ordered quantities come in as parallel arrays of line IDs and
	// quantities. Lines that grew since checkout read them keep the surplus.
	shrinkOrderedSQL = `UPDATE cart_items ci SET quantity = ci.quantity - o.quantity, updated_at = now()
		FROM unnest($2::text[], $3::int[]) AS o(id, quantity)
		WHERE ci.cart_id = $1 AND ci.id = o.id AND ci.quantity > o.quantity`

	deleteOrderedSQL = `DELETE FROM cart_items ci
		USING unnest($2::text[], $3::int[]) AS o(id, quantity)
		WHERE ci.cart_id = $1 AND ci.id = o.id AND ci.quantity <= o.quantity`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	q querier
}

// FindByUserID returns the user's cart with its lines in insertion order.
func (r *CartRepository) FindByUserID(ctx context.Context, userID string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.q.QueryRow(ctx, getCartByUserSQL, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart of user %q", userID)
	}

	rows, err := r.q.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of cart %q", c.ID)
	}
	if c.Items, err = pgx.CollectRows(rows, scanCartItem); err != nil {
		return nil, errors.Wrap(err, "scan cart items")
	}
	return &c, nil
}

// Create returns the user's cart, inserting an empty one if absent.
func (r *CartRepository) Create(ctx context.Context, userID string) (*cart.Cart, error) {
	if _, err := r.q.Exec(ctx, createCartSQL, uuid.New().String(), userID); err != nil {
		return nil, errors.Wrapf(err, "create cart for user %q", userID)
	}
	return r.FindByUserID(ctx, userID)
}

// FindItem returns a single cart line.
func (r *CartRepository) FindItem(ctx context.Context, itemID string) (*cart.Item, error) {
	return r.itemRow(ctx, getCartItemSQL, itemID)
}

// AddItem upserts a line on (cart_id, product_id).
func (r *CartRepository) AddItem(ctx context.Context, cartID string, item cart.Item) (*cart.Item, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	rows, err := r.q.Query(ctx, addCartItemSQL, item.ID, cartID, item.ProductID, item.Quantity, item.UnitPrice)
	if err == nil {
		var added cart.Item
		if added, err = pgx.CollectExactlyOneRow(rows, scanCartItem); err == nil {
			if err := r.touch(ctx, cartID); err != nil {
				return nil, err
			}
			return &added, nil
		}
	}
	if pgCode(err) == foreignKeyViolation {
		return nil, cart.ErrNotFound
	}
	return nil, errors.Wrapf(err, "add item to cart %q", cartID)
}

// UpdateItem sets the quantity of a line.
func (r *CartRepository) UpdateItem(ctx context.Context, itemID string, quantity int) (*cart.Item, error) {
	item, err := r.itemRow(ctx, updateCartItemSQL, itemID, quantity)
	if err != nil {
		return nil, err
	}
	if err := r.touch(ctx, item.CartID); err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes a line and reports whether a row was deleted.
func (r *CartRepository) RemoveItem(ctx context.Context, itemID string) (bool, error) {
	tag, err := r.q.Exec(ctx, removeCartItemSQL, itemID)
	if err != nil {
		return false, errors.Wrapf(err, "remove cart item %q", itemID)
	}
	return tag.RowsAffected() > 0, nil
}

// Clear deletes every line of a cart.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	if _, err := r.q.Exec(ctx, clearCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "clear cart %q", cartID)
	}
	return r.touch(ctx, cartID)
}

// RemoveOrdered subtracts the ordered quantities from the cart lines they
// were read from.
func (r *CartRepository) RemoveOrdered(ctx context.Context, cartID string, lines []cart.Item) error {
	if len(lines) == 0 {
		return nil
	}
	ids := make([]string, len(lines))
	quantities := make([]int32, len(lines))
	for i, line := range lines {
		ids[i] = line.ID
		quantities[i] = int32(line.Quantity)
	}

	if _, err := r.q.Exec(ctx, deleteOrderedSQL, cartID, ids, quantities); err != nil {
		return errors.Wrapf(err, "delete ordered lines of cart %q", cartID)
	}
	if _, err := r.q.Exec(ctx, shrinkOrderedSQL, cartID, ids, quantities); err != nil {
		return errors.Wrapf(err, "shrink ordered lines of cart %q", cartID)
	}
	return r.touch(ctx, cartID)
}

func (r *CartRepository) itemRow(ctx context.Context, sql string, args ...any) (*cart.Item, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query cart item")
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, errors.Wrap(err, "scan cart item")
	}
	return &item, nil
}

func (r *CartRepository) touch(ctx context.Context, cartID string) error {
	if _, err := r.q.Exec(ctx, touchCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "touch cart %q", cartID)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		item     cart.Item
		quantity int32
	)
	err := row.Scan(&item.ID, &item.CartID, &item.ProductID, &quantity, &item.UnitPrice, &item.CreatedAt, &item.UpdatedAt)
	item.Quantity = int(quantity)
	return item, err
}
