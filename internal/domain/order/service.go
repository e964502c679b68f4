package order

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/emart-orders/internal/domain/account"
	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/coupon"
	"github.com/xenking/emart-orders/internal/domain/listing"
	"github.com/xenking/emart-orders/internal/domain/payment"
	"github.com/xenking/emart-orders/internal/domain/product"
)

const instrumentationName = "github.com/xenking/emart-orders/internal/domain/order"

// PlaceOrderRequest holds the input for placing an order. UnitPrice on the
// items is ignored; it is taken from the product at placement time.
type PlaceOrderRequest struct {
	Items           []LineItem
	CouponCode      string
	ShippingAddress ShippingAddress
	PaymentMethod   payment.Method
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order   *Order
	Payment *payment.Payment
	// PaymentURL is set for online payments only.
	PaymentURL string
}

// Page is one page of an order listing.
type Page struct {
	Items []Summary
	Meta  listing.Meta
}

// Details is an order with its references resolved.
type Details struct {
	Order    *Order
	Customer *account.User
	Products []product.Product
	Coupon   *coupon.Rule
	Payment  *payment.Payment
}

// Deps are the collaborators of Service. Tracer and meter providers default
// to no-op implementations; Now defaults to time.Now.
type Deps struct {
	Tx          Transactor
	Products    product.Repository
	Coupons     coupon.Validator
	CouponRules coupon.Repository
	Orders      Repository
	Payments    payment.Repository
	Gateway     payment.Gateway
	Accounts    account.Repository
	Outbox      Outbox
	History     StatusLog
	Delivery    DeliveryRates

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Now            func() time.Time
}

// Service encapsulates order placement, queries and shop-side status changes.
type Service struct {
	tx          Transactor
	products    product.Repository
	coupons     coupon.Validator
	couponRules coupon.Repository
	orders      Repository
	payments    payment.Repository
	gateway     payment.Gateway
	accounts    account.Repository
	outbox      Outbox
	history     StatusLog
	delivery    DeliveryRates
	now         func() time.Time

	tracer        trace.Tracer
	placed        metric.Int64Counter
	statusChanges metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(d Deps) (*Service, error) {
	if d.TracerProvider == nil {
		d.TracerProvider = tracenoop.NewTracerProvider()
	}
	if d.MeterProvider == nil {
		d.MeterProvider = metricnoop.NewMeterProvider()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Delivery == (DeliveryRates{}) {
		d.Delivery = DefaultDeliveryRates
	}

	meter := d.MeterProvider.Meter(instrumentationName)
	placed, err := meter.Int64Counter("emart.orders.placed",
		metric.WithDescription("Orders placed, by payment method"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	statusChanges, err := meter.Int64Counter("emart.orders.status_changes",
		metric.WithDescription("Order status transitions, by target status"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "status changes counter")
	}

	return &Service{
		tx:            d.Tx,
		products:      d.Products,
		coupons:       d.Coupons,
		couponRules:   d.CouponRules,
		orders:        d.Orders,
		payments:      d.Payments,
		gateway:       d.Gateway,
		accounts:      d.Accounts,
		outbox:        d.Outbox,
		history:       d.History,
		delivery:      d.Delivery,
		now:           d.Now,
		tracer:        d.TracerProvider.Tracer(instrumentationName),
		placed:        placed,
		statusChanges: statusChanges,
	}, nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return &InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	if !req.PaymentMethod.Valid() {
		return ErrInvalidPayment
	}
	if req.ShippingAddress.City == "" {
		return ErrMissingCity
	}
	return nil
}

// PlaceOrder reserves stock, prices the cart, applies the coupon and
// persists the order with its payment record in one transaction. Online
// payments start a gateway session before commit; its failure rolls the
// order back.
func (s *Service) PlaceOrder(ctx context.Context, actor auth.Principal, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(
			attribute.Int("order.items", len(req.Items)),
			attribute.String("order.payment_method", string(req.PaymentMethod)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, apperr.Message(rerr))
		}
		span.End()
	}()

	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	var res *PlaceOrderResult
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		lines, shopID, err := s.reserveStock(ctx, req.Items)
		if err != nil {
			return err
		}

		var applied *coupon.Applied
		discount := decimal.Zero
		if req.CouponCode != "" {
			applied, err = s.coupons.Resolve(ctx, req.CouponCode, Subtotal(lines))
			if err != nil {
				return errors.Wrap(err, "resolve coupon")
			}
			discount = applied.Amount
		}

		totals := ComputeTotals(lines, discount, s.delivery.Charge(req.ShippingAddress.City))
		if totals.FinalAmount.IsNegative() {
			return ErrNegativeFinalAmount
		}

		now := s.now()
		o := &Order{
			ID:              uuid.NewString(),
			UserID:          actor.UserID,
			ShopID:          shopID,
			Items:           lines,
			TotalAmount:     totals.TotalAmount,
			Discount:        totals.Discount,
			DeliveryCharge:  totals.DeliveryCharge,
			FinalAmount:     totals.FinalAmount,
			Status:          StatusPending,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   req.PaymentMethod,
			PaymentStatus:   payment.StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if applied != nil {
			o.CouponID = applied.CouponID
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		p := &payment.Payment{
			ID:            uuid.NewString(),
			UserID:        actor.UserID,
			ShopID:        shopID,
			OrderID:       o.ID,
			Method:        req.PaymentMethod,
			TransactionID: payment.NewTransactionID(),
			Amount:        o.FinalAmount,
			Status:        payment.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return errors.Wrap(err, "create payment")
		}

		if err := s.outbox.Enqueue(ctx, Event{
			Type:       EventCreated,
			OrderID:    o.ID,
			ShopID:     o.ShopID,
			To:         StatusPending,
			ActorID:    actor.UserID,
			OccurredAt: now,
			Data: map[string]string{
				"finalAmount":   o.FinalAmount.StringFixed(2),
				"paymentMethod": string(o.PaymentMethod),
				"transactionId": p.TransactionID,
			},
		}); err != nil {
			return errors.Wrap(err, "enqueue event")
		}

		res = &PlaceOrderResult{Order: o, Payment: p}
		if req.PaymentMethod != payment.MethodOnline {
			return nil
		}

		url, err := s.gateway.InitPayment(ctx, o.FinalAmount, p.TransactionID)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindExternal {
				err = fmt.Errorf("%w: %w", payment.ErrGatewayFailure, err)
			}
			return err
		}
		res.PaymentURL = url
		return nil
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", res.Order.ID))
	s.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(req.PaymentMethod)),
	))
	AppendHistory(ctx, s.history, StatusChange{
		OrderID:   res.Order.ID,
		Source:    SourceCheckout,
		To:        string(StatusPending),
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		At:        res.Order.CreatedAt,
	})

	return res, nil
}

// reserveStock locks every product in id order, validates the whole cart,
// then decrements stock. No row is written unless every item passes,
// including the single-shop check. Quantities of repeated products are
// summed.
func (s *Service) reserveStock(ctx context.Context, items []LineItem) ([]LineItem, string, error) {
	want := make(map[string]int, len(items))
	for _, it := range items {
		want[it.ProductID] += it.Quantity
	}
	ids := slices.Sorted(maps.Keys(want))

	locked := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		p, err := s.products.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, "", &ProductNotFoundError{ProductID: id}
			}
			return nil, "", errors.Wrapf(err, "lock product %s", id)
		}
		locked[id] = p
	}

	var shopID string
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		p := locked[it.ProductID]
		if !p.IsActive {
			return nil, "", &ProductInactiveError{ProductID: p.ID, Name: p.Name}
		}
		if want[p.ID] > p.Stock {
			return nil, "", &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: want[p.ID],
				Available: p.Stock,
			}
		}
		switch {
		case shopID == "":
			shopID = p.ShopID
		case p.ShopID != shopID:
			return nil, "", ErrMixedShopCart
		}

		line := it
		line.UnitPrice = p.UnitPrice()
		lines = append(lines, line)
	}

	for _, id := range ids {
		if err := s.products.DecrementStock(ctx, id, want[id]); err != nil {
			if errors.Is(err, product.ErrStockExhausted) {
				p := locked[id]
				return nil, "", &InsufficientStockError{
					ProductID: id,
					Name:      p.Name,
					Requested: want[id],
					Available: p.Stock,
				}
			}
			return nil, "", errors.Wrapf(err, "decrement stock %s", id)
		}
	}

	return lines, shopID, nil
}

// MyOrders lists the caller's own orders.
func (s *Service) MyOrders(ctx context.Context, actor auth.Principal, q listing.Query) (*Page, error) {
	return s.list(ctx, Scope{UserID: actor.UserID}, q)
}

// MyShopOrders lists the orders of the caller's active shop.
func (s *Service) MyShopOrders(ctx context.Context, actor auth.Principal, q listing.Query) (*Page, error) {
	shop, err := account.ActiveShopOf(ctx, s.accounts, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, Scope{ShopID: shop.ID}, q)
}

func (s *Service) list(ctx context.Context, scope Scope, q listing.Query) (*Page, error) {
	items, total, err := s.orders.List(ctx, scope, q)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Items: items, Meta: listing.NewMeta(q, total)}, nil
}

// authorizeView lets admins see every order, customers their own, and shop
// owners the orders of their shop.
func (s *Service) authorizeView(ctx context.Context, actor auth.Principal, o *Order) error {
	if actor.HasRole(auth.RoleAdmin) || o.UserID == actor.UserID {
		return nil
	}
	shop, err := s.accounts.GetShop(ctx, o.ShopID)
	if err != nil {
		if errors.Is(err, account.ErrShopNotFound) {
			return ErrForbidden
		}
		return errors.Wrap(err, "get shop")
	}
	if shop.OwnerID != actor.UserID {
		return ErrForbidden
	}
	return nil
}

// Details returns the order with its customer, products, coupon and payment.
// Missing references are left empty rather than failing the read.
func (s *Service) Details(ctx context.Context, actor auth.Principal, id string) (*Details, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, actor, o); err != nil {
		return nil, err
	}

	d := &Details{Order: o}

	d.Customer, err = s.accounts.GetUser(ctx, o.UserID)
	if err != nil && !errors.Is(err, account.ErrUserNotFound) {
		return nil, errors.Wrap(err, "get customer")
	}

	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if !slices.Contains(ids, it.ProductID) {
			ids = append(ids, it.ProductID)
		}
	}
	if d.Products, err = s.products.GetByIDs(ctx, ids); err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	if o.CouponID != "" {
		d.Coupon, err = s.couponRules.GetByID(ctx, o.CouponID)
		if err != nil && !errors.Is(err, coupon.ErrInvalidCoupon) {
			return nil, errors.Wrap(err, "get coupon")
		}
	}

	d.Payment, err = s.payments.FindByOrder(ctx, o.ID)
	if err != nil && !errors.Is(err, payment.ErrNotFound) {
		return nil, errors.Wrap(err, "get payment")
	}

	return d, nil
}

// History returns the recorded status changes of an order, oldest first.
func (s *Service) History(ctx context.Context, actor auth.Principal, id string) ([]StatusChange, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, actor, o); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []StatusChange{}, nil
	}
	changes, err := s.history.List(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	return changes, nil
}

// ChangeStatus moves an order of the caller's shop to status to. Orders of
// other shops are reported as not found. Picked and Completed are only
// reached through the delivery workflow, and an order handed to an agent can
// no longer be cancelled here.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Principal, orderID string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	var (
		updated *Order
		from    Status
	)
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		shop, err := account.ActiveShopOf(ctx, s.accounts, actor.UserID)
		if err != nil {
			return err
		}

		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ShopID != shop.ID {
			return ErrOrderNotFound
		}
		if err := ShopTransition(o.Status, to); err != nil {
			return err
		}
		if to == StatusCancelled && o.AssignmentID != "" {
			return ErrOrderAssigned
		}
		if err := s.orders.SetStatus(ctx, o.ID, to); err != nil {
			return errors.Wrap(err, "set status")
		}

		from = o.Status
		o.Status = to
		o.UpdatedAt = s.now()

		if err := s.outbox.Enqueue(ctx, Event{
			Type:       EventStatusChanged,
			OrderID:    o.ID,
			ShopID:     o.ShopID,
			From:       from,
			To:         to,
			ActorID:    actor.UserID,
			OccurredAt: o.UpdatedAt,
		}); err != nil {
			return errors.Wrap(err, "enqueue event")
		}

		updated = o
		return nil
	}); err != nil {
		return nil, err
	}

	s.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
	AppendHistory(ctx, s.history, StatusChange{
		OrderID:   updated.ID,
		Source:    SourceShop,
		From:      string(from),
		To:        string(to),
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		At:        updated.UpdatedAt,
	})

	return updated, nil
}
