package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
)

// AssignAgent handles POST /orders/assign-agent.
func (h *Handler) AssignAgent(w http.ResponseWriter, r *http.Request) {
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
	if err := validateBody(assignAgentLoader, body); err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		OrderID string `json:"orderId"`
		AgentID string `json:"agentId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, errors.Wrap(err, "decode assign request"))
		return
	}

	a, err := h.fulfillment.Assign(r.Context(), p, req.OrderID, req.AgentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, "Agent assigned successfully", toAssignmentDTO(a), nil)
}

// AgentOrders handles GET /orders/agent-orders/{agentId}.
func (h *Handler) AgentOrders(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.fulfillment.AgentOrders(r.Context(), p, chi.URLParam(r, "agentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]assignmentDTO, len(list))
	for i := range list {
		out[i] = toAssignmentDTO(&list[i])
	}
	writeJSON(w, r, http.StatusOK, "Agent orders retrieved successfully", out, nil)
}

// DeliveryAddress handles GET /orders/get-delivery-address/{agentId}.
func (h *Handler) DeliveryAddress(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.fulfillment.DeliveryAddress(r.Context(), p, chi.URLParam(r, "agentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, "Delivery address retrieved successfully", toAssignmentDTO(a), nil)
}

// Pickup handles PATCH /orders/pickup/{orderId}.
func (h *Handler) Pickup(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.fulfillment.Pickup(r.Context(), p, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, "Order picked up successfully", toAssignmentDTO(a), nil)
}

// UpdateDeliveryStatus handles PATCH /orders/update-delivery-status/{orderId}.
func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	p, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.fulfillment.UpdateDeliveryStatus(r.Context(), p, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, "Delivery status updated successfully", toAssignmentDTO(a), nil)
}
