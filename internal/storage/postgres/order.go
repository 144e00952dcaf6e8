package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, status, subtotal, discount_amount, total_amount, promotion_code,
		shipping_address_id, payment_method, payment_status, tracking_number,
		created_at, updated_at, processing_at, shipped_at, delivered_at, cancelled_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT id, order_id, product_id, product_name, quantity, unit_price, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	// Compare-and-swap on the previous status.
	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4, tracking_number = $5,
		payment_status = $6, processing_at = $7, shipped_at = $8, delivered_at = $9, cancelled_at = $10
		WHERE id = $1 AND status = $2`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`
)

var orderItemColumns = []string{
	"id", "order_id", "product_id", "product_name", "quantity", "unit_price", "line_total", "position",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	q querier
}

// Create inserts the order row and copies its item snapshots.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.q.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, string(o.Status), o.Subtotal, o.DiscountAmount, o.TotalAmount, o.PromotionCode,
		o.ShippingAddressID, string(o.PaymentMethod), string(o.PaymentStatus), o.TrackingNumber,
		o.CreatedAt, o.UpdatedAt, o.ProcessingAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}

	_, err = r.q.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemColumns,
		pgx.CopyFromSlice(len(o.Items), func(i int) ([]any, error) {
			item := o.Items[i]
			return []any{
				item.ID, o.ID, item.ProductID, item.ProductName,
				int32(item.Quantity), item.UnitPrice, item.LineTotal, int32(i),
			}, nil
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "copy items of order %q", o.ID)
	}
	return nil
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of user %q", userID)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus applies change with a compare-and-swap on change.From.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, change order.StatusChange) (*order.Order, error) {
	o, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != change.From {
		return nil, order.ErrStatusChanged
	}
	o.Apply(change)

	tag, err := r.q.Exec(ctx, updateOrderStatusSQL,
		id, string(change.From), string(o.Status), o.UpdatedAt, o.TrackingNumber, string(o.PaymentStatus),
		o.ProcessingAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "update status of order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrStatusChanged
	}
	return o, nil
}

// UpdatePaymentStatus sets the payment status and returns the updated order.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) (*order.Order, error) {
	tag, err := r.q.Exec(ctx, updatePaymentStatusSQL, id, string(status))
	if err != nil {
		return nil, errors.Wrapf(err, "update payment status of order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return errors.Wrap(err, "scan order items")
	}

	for _, item := range items {
		o := &orders[index[item.OrderID]]
		o.Items = append(o.Items, item)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentMethod string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status, &o.Subtotal, &o.DiscountAmount, &o.TotalAmount, &o.PromotionCode,
		&o.ShippingAddressID, &paymentMethod, &paymentStatus, &o.TrackingNumber,
		&o.CreatedAt, &o.UpdatedAt, &o.ProcessingAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item     order.Item
		quantity int32
	)
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
		&quantity, &item.UnitPrice, &item.LineTotal)
	item.Quantity = int(quantity)
	return item, err
}
