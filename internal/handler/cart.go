package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) writeCart(w http.ResponseWriter, status int, c *cart.Cart) {
	writeData(w, status, func(e *jx.Encoder) {
		encodeCart(e, c)
	})
}

// GetCart returns the caller's cart, creating it on first access.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	c, err := h.carts.GetOrCreateCart(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "cart cleared")
}

// AddCartItem handles {"product_id": "...", "quantity": n}.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		quantity  int
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			productID, err = d.Str()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if productID == "" {
		writeError(w, r, badField("product_id", "is required"))
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	c, err := h.carts.AddItem(r.Context(), userID, productID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// UpdateCartItem handles {"quantity": n}. Zero removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	quantity, seen := 0, false
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		var err error
		quantity, err = d.Int()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if !seen {
		writeError(w, r, badField("quantity", "is required"))
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	c, err := h.carts.UpdateItemQuantity(r.Context(), userID, chi.URLParam(r, "itemID"), quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// RemoveCartItem reports {"removed": bool}; removing a missing line is not an error.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	removed, err := h.carts.RemoveItem(r.Context(), userID, chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("removed")
		e.Bool(removed)
		e.ObjEnd()
	})
}

// PreviewPromotion handles {"code": "..."} and returns the discount the
// code would give the current cart.
func (h *Handler) PreviewPromotion(w http.ResponseWriter, r *http.Request) {
	var code string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if code == "" {
		writeError(w, r, badField("code", "is required"))
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	d, err := h.promotions.Preview(r.Context(), userID, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeDiscount(e, d)
	})
}
