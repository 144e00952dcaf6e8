// Package handler exposes the storefront over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Handler serves the storefront API.
type Handler struct {
	products   product.Repository
	carts      *cart.Service
	promotions *promotion.Service
	orders     *order.Service
}

// NewHandler constructs a Handler over the domain services.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	promotions *promotion.Service,
	orders *order.Service,
) *Handler {
	return &Handler{
		products:   products,
		carts:      carts,
		promotions: promotions,
		orders:     orders,
	}
}

// Router returns the /api routes. Customer routes require a bearer token
// and admin routes an API key with the matching scope.
func (h *Handler) Router(sec *SecurityHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(sec.RequireUser)

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Patch("/cart/items/{itemID}", h.UpdateCartItem)
			r.Delete("/cart/items/{itemID}", h.RemoveCartItem)
			r.Post("/cart/promotion", h.PreviewPromotion)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{orderID}", h.GetOrder)
			r.Post("/orders/{orderID}/cancel", h.CancelOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(sec.RequireAPIKey(auth.ScopeManagePromotions)).Post("/promotions", h.CreatePromotion)
			r.With(sec.RequireAPIKey(auth.ScopeManagePromotions)).Put("/promotions/{id}/scope", h.UpdatePromotionScope)
			r.With(sec.RequireAPIKey(auth.ScopeManageOrders)).Patch("/orders/{orderID}/status", h.UpdateOrderStatus)
			r.With(sec.RequireAPIKey(auth.ScopeManageOrders)).Patch("/orders/{orderID}/payment", h.UpdatePaymentStatus)
			r.With(sec.RequireAPIKey(auth.ScopeManageCatalog)).Post("/products/{id}/stock", h.AdjustStock)
		})
	})
	return r
}
