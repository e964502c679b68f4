package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/listing"
	"github.com/xenking/emart-orders/internal/domain/order"
)

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateBody(createOrderLoader, body); err != nil {
		writeError(w, r, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, errors.Wrap(err, "decode order request"))
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), p, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, "Order created successfully", placedOrderDTO{
		Order:      toOrderDTO(res.Order),
		Payment:    toPaymentDTO(res.Payment),
		PaymentURL: res.PaymentURL,
	}, nil)
}

type listFunc func(*http.Request, auth.Principal, listing.Query) (*order.Page, error)

func (h *Handler) serveList(w http.ResponseWriter, r *http.Request, list listFunc) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := listing.Parse(r.URL.Query(), order.ListSchema)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := list(r, p, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := project(toSummaryDTOs(page.Items), q.Fields)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "project fields"))
		return
	}
	writeJSON(w, r, http.StatusOK, "Orders retrieved successfully", data, page.Meta)
}

// MyOrders handles GET /orders/my-orders.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, func(r *http.Request, p auth.Principal, q listing.Query) (*order.Page, error) {
		return h.orders.MyOrders(r.Context(), p, q)
	})
}

// MyShopOrders handles GET /orders/my-shop-orders.
func (h *Handler) MyShopOrders(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, func(r *http.Request, p auth.Principal, q listing.Query) (*order.Page, error) {
		return h.orders.MyShopOrders(r.Context(), p, q)
	})
}

// OrderDetails handles GET /orders/{orderId}.
func (h *Handler) OrderDetails(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.orders.Details(r.Context(), p, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, "Order retrieved successfully", toDetailsDTO(d), nil)
}

// OrderHistory handles GET /orders/{orderId}/history.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.orders.History(r.Context(), p, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []order.StatusChange{}
	}
	writeJSON(w, r, http.StatusOK, "Order history retrieved successfully", entries, nil)
}

// ChangeOrderStatus handles PATCH /orders/{orderId}/status.
func (h *Handler) ChangeOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateBody(changeStatusLoader, body); err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, errors.Wrap(err, "decode status request"))
		return
	}

	o, err := h.orders.ChangeStatus(r.Context(), p, chi.URLParam(r, "orderId"), order.Status(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, "Order status changed successfully", toOrderDTO(o), nil)
}
