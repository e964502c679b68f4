package payment

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/xenking/emart-orders/internal/domain/apperr"
)

// Method is how the customer pays.
type Method string

const (
	MethodCOD    Method = "COD"
	MethodOnline Method = "Online"
)

// Valid reports whether m is a known payment method.
func (m Method) Valid() bool {
	return m == MethodCOD || m == MethodOnline
}

// Status tracks the payment independently of the order status.
type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusFailed  Status = "Failed"
)

var (
	// ErrGatewayFailure wraps any failure of the hosted payment gateway.
	ErrGatewayFailure = apperr.New(apperr.KindExternal, "payment gateway failure")
	ErrNotFound       = apperr.New(apperr.KindNotFound, "payment not found")
)

// Payment is the payment record created alongside an order.
type Payment struct {
	ID            string
	UserID        string
	ShopID        string
	OrderID       string
	Method        Method
	TransactionID string
	Amount        decimal.Decimal
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTransactionID returns a fresh, lexically sortable transaction id.
func NewTransactionID() string {
	return "TXN-" + ulid.Make().String()
}

// Repository persists payment records.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	FindByOrder(ctx context.Context, orderID string) (*Payment, error)
}

// Gateway starts a hosted payment session.
type Gateway interface {
	// InitPayment returns the URL the customer must be redirected to.
	InitPayment(ctx context.Context, amount decimal.Decimal, transactionID string) (string, error)
}
