package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

// CreatePromotion stores a new promotion. Active defaults to true.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	p := promotion.Promotion{Active: true}
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			p.Code, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "discount_type":
			var s string
			s, err = d.Str()
			p.DiscountType = promotion.DiscountType(s)
		case "value":
			p.Value, err = decodeDecimal(d, key)
		case "min_purchase":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, derr := decodeDecimal(d, key)
			if derr != nil {
				return derr
			}
			p.MinPurchase = &v
		case "max_uses":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, derr := d.Int()
			if derr != nil {
				return derr
			}
			p.MaxUses = &v
		case "starts_at":
			p.StartsAt, err = decodeTime(d, key)
		case "ends_at":
			p.EndsAt, err = decodeTime(d, key)
		case "scope":
			var s string
			s, err = d.Str()
			p.Scope = promotion.Scope(s)
		case "category_ids":
			p.CategoryIDs, err = decodeStrings(d)
		case "product_ids":
			p.ProductIDs, err = decodeStrings(d)
		case "active":
			p.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.promotions.Create(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		encodePromotion(e, created)
	})
}

// UpdatePromotionScope replaces the scope of a promotion.
func (h *Handler) UpdatePromotionScope(w http.ResponseWriter, r *http.Request) {
	var (
		scope       promotion.Scope
		categoryIDs []string
		productIDs  []string
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "scope":
			var s string
			s, err = d.Str()
			scope = promotion.Scope(s)
		case "category_ids":
			categoryIDs, err = decodeStrings(d)
		case "product_ids":
			productIDs, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.promotions.UpdateScope(r.Context(), chi.URLParam(r, "id"), scope, categoryIDs, productIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodePromotion(e, p)
	})
}

// UpdateOrderStatus handles {"status": "...", "tracking_number": "..."}.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var status, tracking string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			status, err = d.Str()
		case "tracking_number":
			tracking, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), order.Status(status), tracking)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// UpdatePaymentStatus handles {"payment_status": "..."}.
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "payment_status" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "orderID"), order.PaymentStatus(status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// AdjustStock handles {"delta": n} for restocking and corrections.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var (
		delta int64
		seen  bool
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "delta" {
			return d.Skip()
		}
		seen = true
		var err error
		delta, err = d.Int64()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case !seen:
		writeError(w, r, badField("delta", "is required"))
		return
	case delta < -product.MaxStock || delta > product.MaxStock:
		writeError(w, r, badField("delta", "is out of range"))
		return
	}

	p, err := h.products.AdjustStock(r.Context(), chi.URLParam(r, "id"), int(delta))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}
