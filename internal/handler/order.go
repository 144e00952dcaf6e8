package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	writeData(w, status, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// CreateOrder checks out the caller's cart.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	req := order.CreateOrderRequest{UserID: userID}
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "shipping_address_id":
			req.ShippingAddressID, err = d.Str()
		case "payment_method":
			var s string
			s, err = d.Str()
			req.PaymentMethod = order.PaymentMethod(s)
		case "promotion_code":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.PromotionCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusCreated, o)
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	o, err := h.orders.GetOrder(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// CancelOrder cancels one of the caller's orders and restores stock.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	o, err := h.orders.CancelOrder(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}
