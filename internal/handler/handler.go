// Package handler exposes the order service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/scent-shop/internal/domain/auth"
	"github.com/xenking/scent-shop/internal/domain/order"
	"github.com/xenking/scent-shop/pkg/httpmiddleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config holds optional HTTP-layer settings.
type Config struct {
	// PlaceOrderLimiter throttles POST /orders per caller. Nil disables it.
	PlaceOrderLimiter *httpmiddleware.Limiter
}

// Handler serves the /orders API.
type Handler struct {
	orders   *order.Service
	security *SecurityHandler
	cfg      Config
}

// NewHandler returns a Handler backed by the order service. Every route
// requires a bearer token accepted by verifier.
func NewHandler(orders *order.Service, verifier auth.Verifier, cfg Config) *Handler {
	return &Handler{
		orders:   orders,
		security: NewSecurityHandler(verifier),
		cfg:      cfg,
	}
}

// Routes returns the API router, meant to be mounted under /api/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.security.Authenticate)

	placeOrder := r.With()
	if h.cfg.PlaceOrderLimiter != nil {
		placeOrder = r.With(h.cfg.PlaceOrderLimiter.Middleware())
	}
	admin := r.With(RequireRole(auth.RoleAdmin))

	placeOrder.Post("/orders", h.PlaceOrder)
	admin.Get("/orders", h.ListOrders)
	r.Get("/orders/myorders", h.ListMyOrders)
	r.Get("/orders/{id}", h.GetOrder)
	admin.Put("/orders/{id}/status", h.UpdateStatus)
	return r
}

// CallerKey keys rate limits by authenticated user, falling back to the
// client address for anonymous requests.
func CallerKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok && id.UserID != "" {
		return "user:" + id.UserID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

// RoutePattern reports the chi route that served r.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
