//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/emart-orders/internal/domain/account"
	"github.com/xenking/emart-orders/internal/domain/assignment"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/coupon"
	"github.com/xenking/emart-orders/internal/domain/listing"
	"github.com/xenking/emart-orders/internal/domain/order"
	"github.com/xenking/emart-orders/internal/domain/payment"
	"github.com/xenking/emart-orders/internal/domain/product"
	"github.com/xenking/emart-orders/internal/gateway"
)

// --- Mock implementations ---

// brokenPickedFlag fails the last write of a delivery completion so the
// earlier writes in the same transaction have to be undone.
type brokenPickedFlag struct {
	*AccountRepository
}

func (brokenPickedFlag) SetPicked(context.Context, string, bool) error {
	return errors.New("connection reset by peer")
}

// --- Helpers ---

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "emart",
				"POSTGRES_PASSWORD": "emart",
				"POSTGRES_DB":       "emart",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	endpoint, err := c.PortEndpoint(ctx, "5432/tcp", "")
	require.NoError(t, err)

	pool, err := NewPool(ctx, "postgres://emart:emart@"+endpoint+"/emart?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

type env struct {
	pool        *pgxpool.Pool
	products    *ProductRepository
	orders      *OrderRepository
	outbox      *OutboxRepository
	orderSvc    *order.Service
	assignments *assignment.Service
}

var (
	customer = auth.Principal{UserID: "u-customer", Role: auth.RoleUser}
	vendor   = auth.Principal{UserID: "u-vendor", Role: auth.RoleUser}
	admin    = auth.Principal{UserID: "u-admin", Role: auth.RoleAdmin}
	agent    = auth.Principal{UserID: "u-agent", Role: auth.RoleAgent}
)

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	pool := startPostgres(t)

	seeder := NewSeeder(pool)
	for _, u := range []account.User{
		{ID: customer.UserID, Name: "Rahim", Email: "rahim@example.com", Role: auth.RoleUser, IsActive: true},
		{ID: vendor.UserID, Name: "Karim", Email: "karim@example.com", Role: auth.RoleUser, IsActive: true, HasShop: true},
		{ID: admin.UserID, Name: "Admin", Email: "admin@example.com", Role: auth.RoleAdmin, IsActive: true},
		{ID: agent.UserID, Name: "Agent", Email: "agent@example.com", Role: auth.RoleAgent, IsActive: true},
	} {
		require.NoError(t, seeder.UpsertUser(ctx, u))
	}
	require.NoError(t, seeder.UpsertShop(ctx, account.Shop{ID: "s1", OwnerID: vendor.UserID, Name: "Shop", IsActive: true}))
	for _, p := range []product.Product{
		{ID: "p-shirt", ShopID: "s1", Name: "Shirt", Price: decimal.NewFromInt(500), Stock: 5, IsActive: true},
		{ID: "p-jeans", ShopID: "s1", Name: "Jeans", Price: decimal.NewFromInt(1500), Stock: 1, IsActive: true},
	} {
		require.NoError(t, seeder.UpsertProduct(ctx, p))
	}
	require.NoError(t, seeder.UpsertCoupons(ctx, []coupon.Rule{{
		ID:             "c1",
		Code:           "SAVE20",
		DiscountType:   coupon.DiscountPercentage,
		Value:          decimal.NewFromInt(20),
		StartDate:      time.Now().Add(-time.Hour),
		EndDate:        time.Now().Add(time.Hour),
		MinOrderAmount: decimal.Zero,
		IsActive:       true,
	}}))

	e := &env{
		pool:     pool,
		products: NewProductRepository(pool),
		orders:   NewOrderRepository(pool),
		outbox:   NewOutboxRepository(pool, "orders"),
	}
	tx := NewTransactor(pool)
	coupons := NewCouponRepository(pool)
	accounts := NewAccountRepository(pool)

	svc, err := order.NewService(order.Deps{
		Tx:          tx,
		Products:    e.products,
		Coupons:     coupon.NewRepoValidator(coupons),
		CouponRules: coupons,
		Orders:      e.orders,
		Payments:    NewPaymentRepository(pool),
		Gateway:     gateway.Noop{},
		Accounts:    accounts,
		Outbox:      e.outbox,
	})
	require.NoError(t, err)
	e.orderSvc = svc
	e.assignments = assignment.NewService(assignment.Deps{
		Tx:          tx,
		Orders:      e.orders,
		Assignments: NewAssignmentRepository(pool),
		Accounts:    accounts,
		Outbox:      e.outbox,
	})
	return e
}

func placeReq(items ...order.LineItem) order.PlaceOrderRequest {
	return order.PlaceOrderRequest{
		Items:           items,
		ShippingAddress: order.ShippingAddress{City: "Dhaka"},
		PaymentMethod:   payment.MethodCOD,
	}
}

func stockOf(t *testing.T, e *env, id string) int {
	t.Helper()
	ps, err := e.products.GetByIDs(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	return ps[0].Stock
}

// --- Tests ---

func TestIntegration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("concurrent orders never oversell", func(t *testing.T) {
		const buyers = 10
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			placed   int
			rejected int
		)
		for range buyers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := e.orderSvc.PlaceOrder(ctx, customer, placeReq(order.LineItem{ProductID: "p-shirt", Quantity: 1}))

				mu.Lock()
				defer mu.Unlock()
				var stockErr *order.InsufficientStockError
				switch {
				case err == nil:
					placed++
				case errors.As(err, &stockErr):
					rejected++
				default:
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, placed)
		assert.Equal(t, buyers-5, rejected)
		assert.Zero(t, stockOf(t, e, "p-shirt"))
	})

	t.Run("failed cart rolls back every item", func(t *testing.T) {
		require.NoError(t, NewSeeder(e.pool).UpsertProduct(ctx, product.Product{
			ID: "p-shirt", ShopID: "s1", Name: "Shirt", Price: decimal.NewFromInt(500), Stock: 3, IsActive: true,
		}))
		before, _, err := e.orders.List(ctx, order.Scope{UserID: customer.UserID}, listing.Query{Page: 1, Limit: 100})
		require.NoError(t, err)

		_, err = e.orderSvc.PlaceOrder(ctx, customer, placeReq(
			order.LineItem{ProductID: "p-shirt", Quantity: 2},
			order.LineItem{ProductID: "p-jeans", Quantity: 2},
		))
		var stockErr *order.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "Jeans", stockErr.Name)

		assert.Equal(t, 3, stockOf(t, e, "p-shirt"))
		assert.Equal(t, 1, stockOf(t, e, "p-jeans"))
		after, _, err := e.orders.List(ctx, order.Scope{UserID: customer.UserID}, listing.Query{Page: 1, Limit: 100})
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("coupon and delivery pricing persist", func(t *testing.T) {
		req := placeReq(order.LineItem{ProductID: "p-jeans", Quantity: 1})
		req.CouponCode = "save20"
		res, err := e.orderSvc.PlaceOrder(ctx, customer, req)
		require.NoError(t, err)

		got, err := e.orders.Get(ctx, res.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, "c1", got.CouponID)
		assert.Equal(t, "1500", got.TotalAmount.String())
		assert.Equal(t, "300", got.Discount.String())
		assert.Equal(t, "60", got.DeliveryCharge.String())
		assert.Equal(t, "1260", got.FinalAmount.String())
		require.Len(t, got.Items, 1)
		assert.Equal(t, "1500", got.Items[0].UnitPrice.String())
		assert.Equal(t, order.ShippingAddress{City: "Dhaka"}, got.ShippingAddress)
	})

	t.Run("shop listing filters and searches", func(t *testing.T) {
		q := listing.Query{Page: 1, Limit: 2, Filters: map[string]string{"status": "Pending"}, Sort: []listing.SortKey{{Field: "createdAt", Desc: true}}}
		page, err := e.orderSvc.MyShopOrders(ctx, vendor, q)
		require.NoError(t, err)
		assert.Equal(t, 6, page.Meta.Total)
		assert.Equal(t, 3, page.Meta.TotalPage)
		assert.Len(t, page.Items, 2)
		assert.Equal(t, "Rahim", page.Items[0].CustomerName)

		q = listing.Query{Page: 1, Limit: 10, Search: "jeans"}
		page, err = e.orderSvc.MyShopOrders(ctx, vendor, q)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Meta.Total)

		q = listing.Query{Page: 1, Limit: 10, Search: "nobody"}
		page, err = e.orderSvc.MyShopOrders(ctx, vendor, q)
		require.NoError(t, err)
		assert.Zero(t, page.Meta.Total)
		assert.Empty(t, page.Items)
	})

	t.Run("delivery lifecycle", func(t *testing.T) {
		page, err := e.orderSvc.MyOrders(ctx, customer, listing.Query{Page: 1, Limit: 1, Sort: []listing.SortKey{{Field: "createdAt", Desc: true}}})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		id := page.Items[0].ID

		_, err = e.orderSvc.ChangeStatus(ctx, vendor, id, order.StatusProcessing)
		require.NoError(t, err)

		a, err := e.assignments.Assign(ctx, admin, id, agent.UserID)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusAssigned, a.Status)

		_, err = e.assignments.Assign(ctx, admin, id, agent.UserID)
		assert.ErrorIs(t, err, assignment.ErrAlreadyAssigned)

		a, err = e.assignments.Pickup(ctx, agent, id)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusPicked, a.Status)

		a, err = e.assignments.UpdateDeliveryStatus(ctx, agent, id)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusDelivered, a.Status)

		got, err := e.orders.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCompleted, got.Status)
		assert.Equal(t, payment.StatusPaid, got.PaymentStatus)
		assert.Equal(t, a.ID, got.AssignmentID)
	})

	t.Run("failed delivery completion leaves every row untouched", func(t *testing.T) {
		res, err := e.orderSvc.PlaceOrder(ctx, customer, placeReq(order.LineItem{ProductID: "p-shirt", Quantity: 1}))
		require.NoError(t, err)
		id := res.Order.ID

		_, err = e.orderSvc.ChangeStatus(ctx, vendor, id, order.StatusProcessing)
		require.NoError(t, err)
		_, err = e.assignments.Assign(ctx, admin, id, agent.UserID)
		require.NoError(t, err)
		_, err = e.assignments.Pickup(ctx, agent, id)
		require.NoError(t, err)

		accounts := NewAccountRepository(e.pool)
		assignments := NewAssignmentRepository(e.pool)
		broken := assignment.NewService(assignment.Deps{
			Tx:          NewTransactor(e.pool),
			Orders:      e.orders,
			Assignments: assignments,
			Accounts:    brokenPickedFlag{accounts},
			Outbox:      e.outbox,
		})

		_, err = broken.UpdateDeliveryStatus(ctx, agent, id)
		require.ErrorContains(t, err, "connection reset by peer")

		a, err := assignments.GetByOrderForUpdate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusPicked, a.Status)

		got, err := e.orders.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPicked, got.Status)
		assert.Equal(t, payment.StatusPending, got.PaymentStatus)

		u, err := accounts.GetUser(ctx, agent.UserID)
		require.NoError(t, err)
		assert.True(t, u.Picked)

		// The healthy path still completes the same delivery afterwards.
		a, err = e.assignments.UpdateDeliveryStatus(ctx, agent, id)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusDelivered, a.Status)
		u, err = accounts.GetUser(ctx, agent.UserID)
		require.NoError(t, err)
		assert.False(t, u.Picked)
	})

	t.Run("outbox rows are claimed once", func(t *testing.T) {
		tx := NewTransactor(e.pool)
		var first []int64
		require.NoError(t, tx.InTx(ctx, func(ctx context.Context) error {
			msgs, err := e.outbox.Pending(ctx, 1000)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				first = append(first, m.ID)
			}
			return e.outbox.MarkSent(ctx, first)
		}))
		assert.NotEmpty(t, first)

		msgs, err := e.outbox.Pending(ctx, 1000)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
