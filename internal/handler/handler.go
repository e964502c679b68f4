// Package handler exposes the order and fulfillment workflows over HTTP.
package handler

import (
	"context"

	"github.com/xenking/emart-orders/internal/domain/assignment"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/listing"
	"github.com/xenking/emart-orders/internal/domain/order"
)

// OrderService is the order workflow used by the handlers.
type OrderService interface {
	PlaceOrder(ctx context.Context, actor auth.Principal, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	MyOrders(ctx context.Context, actor auth.Principal, q listing.Query) (*order.Page, error)
	MyShopOrders(ctx context.Context, actor auth.Principal, q listing.Query) (*order.Page, error)
	Details(ctx context.Context, actor auth.Principal, id string) (*order.Details, error)
	History(ctx context.Context, actor auth.Principal, id string) ([]order.StatusChange, error)
	ChangeStatus(ctx context.Context, actor auth.Principal, orderID string, to order.Status) (*order.Order, error)
}

// FulfillmentService is the delivery workflow used by the handlers.
type FulfillmentService interface {
	Assign(ctx context.Context, actor auth.Principal, orderID, agentID string) (*assignment.Assignment, error)
	AgentOrders(ctx context.Context, actor auth.Principal, agentID string) ([]assignment.Assignment, error)
	DeliveryAddress(ctx context.Context, actor auth.Principal, agentID string) (*assignment.Assignment, error)
	Pickup(ctx context.Context, actor auth.Principal, orderID string) (*assignment.Assignment, error)
	UpdateDeliveryStatus(ctx context.Context, actor auth.Principal, orderID string) (*assignment.Assignment, error)
}

var (
	_ OrderService       = (*order.Service)(nil)
	_ FulfillmentService = (*assignment.Service)(nil)
)

// Handler serves the /api/v1/orders routes.
type Handler struct {
	orders      OrderService
	fulfillment FulfillmentService
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(orders OrderService, fulfillment FulfillmentService) *Handler {
	return &Handler{
		orders:      orders,
		fulfillment: fulfillment,
	}
}
