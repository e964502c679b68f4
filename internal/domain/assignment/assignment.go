// Package assignment tracks which delivery agent carries which order.
package assignment

import (
	"context"
	"time"

	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/order"
)

// Status is the progress of a delivery.
type Status string

const (
	StatusAssigned  Status = "Assigned"
	StatusPicked    Status = "Picked"
	StatusDelivered Status = "Delivered"
)

var (
	ErrNotFound        = apperr.New(apperr.KindNotFound, "assignment not found")
	ErrAlreadyAssigned = apperr.New(apperr.KindConflict, "order is already assigned to an agent")
	ErrOrderClosed     = apperr.New(apperr.KindConflict, "order is already completed or cancelled")
	ErrAgentBusy       = apperr.New(apperr.KindConflict, "agent already has an active pickup")
	ErrInvalidStep     = apperr.New(apperr.KindConflict, "assignment cannot move to that status")
)

// next is the single legal successor of each status.
var next = map[Status]Status{
	StatusAssigned: StatusPicked,
	StatusPicked:   StatusDelivered,
}

// Advance returns ErrInvalidStep unless to directly follows from.
func Advance(from, to Status) error {
	if n, ok := next[from]; !ok || n != to {
		return ErrInvalidStep
	}
	return nil
}

// Assignment links an order to a delivery agent. Destination is a snapshot
// of the order's shipping address at assignment time.
type Assignment struct {
	ID          string
	OrderID     string
	AgentID     string
	Destination order.ShippingAddress
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository persists assignments. Implementations resolve the transaction
// from ctx.
type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	// GetByOrderForUpdate locks the assignment of an order.
	GetByOrderForUpdate(ctx context.Context, orderID string) (*Assignment, error)
	// FindByAgent returns the most recent assignment of agentID in status.
	FindByAgent(ctx context.Context, agentID string, status Status) (*Assignment, error)
	ListByAgent(ctx context.Context, agentID string, status Status) ([]Assignment, error)
	SetStatus(ctx context.Context, id string, status Status) error
}
