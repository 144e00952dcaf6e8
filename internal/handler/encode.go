package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

// Money is encoded as a string with two decimals to avoid float rounding.
func money(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.StringFixed(2))
}

func timestamp(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339))
}

func optTimestamp(e *jx.Encoder, field string, t *time.Time) {
	if t == nil {
		return
	}
	timestamp(e, field, *t)
}

func str(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	e.Str(v)
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	str(e, "id", p.ID)
	str(e, "category_id", p.CategoryID)
	str(e, "name", p.Name)
	money(e, "price", p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("active")
	e.Bool(p.Active)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	str(e, "id", c.ID)
	str(e, "user_id", c.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range c.Items {
		e.ObjStart()
		str(e, "id", item.ID)
		str(e, "product_id", item.ProductID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		money(e, "unit_price", item.UnitPrice)
		money(e, "line_total", item.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("item_count")
	e.Int(c.ItemCount())
	money(e, "total", c.Total())
	e.ObjEnd()
}

func encodeDiscount(e *jx.Encoder, d *promotion.Discount) {
	e.ObjStart()
	str(e, "code", d.Code)
	money(e, "subtotal", d.Subtotal)
	money(e, "discount", d.Amount)
	money(e, "total", d.Total)
	e.ObjEnd()
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.ObjStart()
	str(e, "id", p.ID)
	str(e, "code", p.Code)
	str(e, "description", p.Description)
	str(e, "discount_type", string(p.DiscountType))
	e.FieldStart("value")
	e.Str(p.Value.String())
	if p.MinPurchase != nil {
		money(e, "min_purchase", *p.MinPurchase)
	}
	if p.MaxUses != nil {
		e.FieldStart("max_uses")
		e.Int(*p.MaxUses)
	}
	e.FieldStart("uses_count")
	e.Int(p.UsesCount)
	timestamp(e, "starts_at", p.StartsAt)
	timestamp(e, "ends_at", p.EndsAt)
	str(e, "scope", string(p.Scope))
	e.FieldStart("category_ids")
	encodeStrings(e, p.CategoryIDs)
	e.FieldStart("product_ids")
	encodeStrings(e, p.ProductIDs)
	e.FieldStart("active")
	e.Bool(p.Active)
	e.ObjEnd()
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	str(e, "id", o.ID)
	str(e, "user_id", o.UserID)
	str(e, "status", string(o.Status))
	money(e, "subtotal", o.Subtotal)
	money(e, "discount_amount", o.DiscountAmount)
	money(e, "total_amount", o.TotalAmount)
	if o.PromotionCode != "" {
		str(e, "promotion_code", o.PromotionCode)
	}
	str(e, "shipping_address_id", o.ShippingAddressID)
	str(e, "payment_method", string(o.PaymentMethod))
	str(e, "payment_status", string(o.PaymentStatus))
	if o.TrackingNumber != "" {
		str(e, "tracking_number", o.TrackingNumber)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		str(e, "id", item.ID)
		str(e, "product_id", item.ProductID)
		str(e, "product_name", item.ProductName)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		money(e, "unit_price", item.UnitPrice)
		money(e, "line_total", item.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("cancellable")
	e.Bool(order.IsCancellable(o))
	timestamp(e, "created_at", o.CreatedAt)
	timestamp(e, "updated_at", o.UpdatedAt)
	optTimestamp(e, "processing_at", o.ProcessingAt)
	optTimestamp(e, "shipped_at", o.ShippedAt)
	optTimestamp(e, "delivered_at", o.DeliveredAt)
	optTimestamp(e, "cancelled_at", o.CancelledAt)
	e.ObjEnd()
}
