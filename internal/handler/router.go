package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/idempotency"
	"github.com/xenking/emart-orders/pkg/httpmiddleware"
)

var errRouteNotFound = apperr.New(apperr.KindNotFound, "route not found")

// RouterConfig wires cross-cutting concerns into the router.
type RouterConfig struct {
	Auth *Authenticator
	// Idempotency enables Idempotency-Key replay on POST /orders when set.
	Idempotency idempotency.Backend
	// Middlewares run inside the router for every request, after routing
	// has started, so chi.RouteContext is available to them.
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter mounts the API under /api/v1. Callers add probes, metrics and
// the tracking socket on the returned router.
func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(cfg.Middlewares...)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, r, http.StatusMethodNotAllowed, string(apperr.KindValidation), "method not allowed")
	})

	var (
		userAdmin = RequireRole(auth.RoleUser, auth.RoleAdmin)
		admin     = RequireRole(auth.RoleAdmin)
		agent     = RequireRole(auth.RoleAgent)
		agentAdm  = RequireRole(auth.RoleAgent, auth.RoleAdmin)
	)

	create := []func(http.Handler) http.Handler{userAdmin}
	if cfg.Idempotency != nil {
		create = append(create, idempotency.Middleware(cfg.Idempotency, writeError))
	}

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.With(create...).Post("/", h.CreateOrder)
		r.With(userAdmin).Get("/my-orders", h.MyOrders)
		r.With(userAdmin).Get("/my-shop-orders", h.MyShopOrders)
		r.With(admin).Post("/assign-agent", h.AssignAgent)
		r.With(agentAdm).Get("/agent-orders/{agentId}", h.AgentOrders)
		r.With(agent).Get("/get-delivery-address/{agentId}", h.DeliveryAddress)
		r.With(agent).Patch("/pickup/{orderId}", h.Pickup)
		r.With(agentAdm).Patch("/update-delivery-status/{orderId}", h.UpdateDeliveryStatus)
		r.With(userAdmin).Get("/{orderId}", h.OrderDetails)
		r.With(userAdmin).Get("/{orderId}/history", h.OrderHistory)
		r.With(userAdmin).Patch("/{orderId}/status", h.ChangeOrderStatus)
	})

	return r
}
