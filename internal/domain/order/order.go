package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/emart-orders/internal/domain/listing"
	"github.com/xenking/emart-orders/internal/domain/payment"
)

// Status is the fulfillment status of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusPicked     Status = "Picked"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// Order is a customer's purchase from a single shop.
type Order struct {
	ID              string
	UserID          string
	ShopID          string
	Items           []LineItem
	CouponID        string
	TotalAmount     decimal.Decimal
	Discount        decimal.Decimal
	DeliveryCharge  decimal.Decimal
	FinalAmount     decimal.Decimal
	Status          Status
	ShippingAddress ShippingAddress
	PaymentMethod   payment.Method
	PaymentStatus   payment.Status
	AssignmentID    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineItem is one product in an order. UnitPrice is the price snapshot at
// the time the order was placed.
type LineItem struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Color     string          `json:"color,omitempty"`
	Type      string          `json:"type,omitempty"`
}

// ShippingAddress is where the order is delivered.
type ShippingAddress struct {
	City                 string `json:"city"`
	ZipCode              string `json:"zip_code"`
	StreetOrBuildingName string `json:"street_or_building_name"`
	Area                 string `json:"area"`
}

// Summary is a list row: the order plus the customer fields searched on.
type Summary struct {
	Order
	CustomerName  string
	CustomerEmail string
}

// Scope restricts a listing to one customer or one shop.
type Scope struct {
	UserID string
	ShopID string
}

// ListSchema names the fields order listings can filter and sort on.
var ListSchema = listing.Schema{
	Filterable: []string{"status", "paymentStatus", "paymentMethod"},
	Sortable:   []string{"createdAt", "updatedAt", "finalAmount", "totalAmount", "status"},
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate locks the order row for the surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, scope Scope, q listing.Query) ([]Summary, int, error)
	SetStatus(ctx context.Context, id string, status Status) error
	SetAssignment(ctx context.Context, id, assignmentID string) error
	// MarkDelivered sets status Completed and payment status Paid together.
	MarkDelivered(ctx context.Context, id string) error
}

// Transactor runs fn in a single database transaction. fn's context carries
// the transaction; returning an error rolls everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
