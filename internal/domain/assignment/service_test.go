package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/emart-orders/internal/domain/account"
	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/listing"
	"github.com/xenking/emart-orders/internal/domain/order"
	"github.com/xenking/emart-orders/internal/domain/payment"
)

// --- Mock implementations ---

type mockTx struct {
	rolledBack bool
}

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		m.rolledBack = true
		return err
	}
	return nil
}

type mockOrders struct {
	byID map[string]*order.Order
}

func (m *mockOrders) Create(_ context.Context, o *order.Order) error {
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrders) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrders) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return m.Get(ctx, id)
}

func (m *mockOrders) List(_ context.Context, _ order.Scope, _ listing.Query) ([]order.Summary, int, error) {
	return nil, 0, nil
}

func (m *mockOrders) SetStatus(_ context.Context, id string, status order.Status) error {
	m.byID[id].Status = status
	return nil
}

func (m *mockOrders) SetAssignment(_ context.Context, id, assignmentID string) error {
	m.byID[id].AssignmentID = assignmentID
	return nil
}

func (m *mockOrders) MarkDelivered(_ context.Context, id string) error {
	m.byID[id].Status = order.StatusCompleted
	m.byID[id].PaymentStatus = payment.StatusPaid
	return nil
}

type mockAssignments struct {
	byID map[string]*Assignment
}

func (m *mockAssignments) Create(_ context.Context, a *Assignment) error {
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *mockAssignments) GetByOrderForUpdate(_ context.Context, orderID string) (*Assignment, error) {
	for _, a := range m.byID {
		if a.OrderID == orderID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockAssignments) FindByAgent(_ context.Context, agentID string, status Status) (*Assignment, error) {
	for _, a := range m.byID {
		if a.AgentID == agentID && a.Status == status {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockAssignments) ListByAgent(_ context.Context, agentID string, status Status) ([]Assignment, error) {
	var out []Assignment
	for _, a := range m.byID {
		if a.AgentID == agentID && a.Status == status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAssignments) SetStatus(_ context.Context, id string, status Status) error {
	m.byID[id].Status = status
	return nil
}

type mockAccounts struct {
	users     map[string]*account.User
	shops     map[string]*account.Shop
	pickedErr error
}

func (m *mockAccounts) GetUser(_ context.Context, id string) (*account.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockAccounts) GetUserForUpdate(ctx context.Context, id string) (*account.User, error) {
	return m.GetUser(ctx, id)
}

func (m *mockAccounts) SetPicked(_ context.Context, id string, picked bool) error {
	if m.pickedErr != nil {
		return m.pickedErr
	}
	m.users[id].Picked = picked
	return nil
}

func (m *mockAccounts) GetShop(_ context.Context, _ string) (*account.Shop, error) {
	return nil, account.ErrShopNotFound
}

func (m *mockAccounts) FindActiveShopByOwner(_ context.Context, ownerID string) (*account.Shop, error) {
	for _, sh := range m.shops {
		if sh.OwnerID == ownerID && sh.IsActive {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, account.ErrShopInactive
}

type mockOutbox struct {
	events []order.Event
}

func (m *mockOutbox) Enqueue(_ context.Context, e order.Event) error {
	m.events = append(m.events, e)
	return nil
}

type mockStatusLog struct {
	changes []order.StatusChange
}

func (m *mockStatusLog) Record(_ context.Context, c order.StatusChange) error {
	m.changes = append(m.changes, c)
	return nil
}

func (m *mockStatusLog) List(_ context.Context, _ string) ([]order.StatusChange, error) {
	return m.changes, nil
}

// --- Helpers ---

type fixture struct {
	svc         *Service
	tx          *mockTx
	orders      *mockOrders
	assignments *mockAssignments
	accounts    *mockAccounts
	outbox      *mockOutbox
	history     *mockStatusLog
}

var (
	admin     = auth.Principal{UserID: "admin", Role: auth.RoleAdmin}
	agent     = auth.Principal{UserID: "a1", Role: auth.RoleAgent}
	shopOwner = auth.Principal{UserID: "owner", Role: auth.RoleUser}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		tx: &mockTx{},
		orders: &mockOrders{byID: map[string]*order.Order{
			"o1": {
				ID:              "o1",
				ShopID:          "s1",
				Status:          order.StatusProcessing,
				ShippingAddress: order.ShippingAddress{City: "Dhaka", Area: "Banani"},
				PaymentStatus:   payment.StatusPending,
			},
		}},
		assignments: &mockAssignments{byID: map[string]*Assignment{}},
		accounts: &mockAccounts{users: map[string]*account.User{
			"a1":       {ID: "a1", Role: auth.RoleAgent, IsActive: true},
			"a2":       {ID: "a2", Role: auth.RoleAgent, IsActive: true},
			"sleeping": {ID: "sleeping", Role: auth.RoleAgent},
			"u1":       {ID: "u1", Role: auth.RoleUser, IsActive: true},
			"owner":    {ID: "owner", Role: auth.RoleUser, IsActive: true, HasShop: true},
		}, shops: map[string]*account.Shop{
			"s1": {ID: "s1", OwnerID: "owner", IsActive: true},
		}},
		outbox:  &mockOutbox{},
		history: &mockStatusLog{},
	}
	f.svc = NewService(Deps{
		Tx:          f.tx,
		Orders:      f.orders,
		Assignments: f.assignments,
		Accounts:    f.accounts,
		Outbox:      f.outbox,
		History:     f.history,
		Now:         func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	return f
}

// orderService builds the shop-facing order service over the same stores.
func (f *fixture) orderService(t *testing.T) *order.Service {
	t.Helper()
	svc, err := order.NewService(order.Deps{
		Tx:       f.tx,
		Orders:   f.orders,
		Accounts: f.accounts,
		Outbox:   f.outbox,
		History:  f.history,
	})
	require.NoError(t, err)
	return svc
}

// --- Tests ---

func TestAssign(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.Assign(context.Background(), admin, "o1", "a1")
	require.NoError(t, err)

	assert.Equal(t, StatusAssigned, a.Status)
	assert.Equal(t, "Dhaka", a.Destination.City)
	assert.Equal(t, a.ID, f.orders.byID["o1"].AssignmentID)
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, order.EventAssigned, f.outbox.events[0].Type)

	_, err = f.svc.Assign(context.Background(), admin, "o1", "a2")
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestAssign_Errors(t *testing.T) {
	tests := []struct {
		name    string
		orderID string
		agentID string
		setup   func(f *fixture)
		want    error
		kind    apperr.Kind
	}{
		{name: "missing order", orderID: "nope", agentID: "a1", want: order.ErrOrderNotFound, kind: apperr.KindNotFound},
		{name: "missing agent", orderID: "o1", agentID: "ghost", want: account.ErrUserNotFound, kind: apperr.KindNotFound},
		{name: "not an agent", orderID: "o1", agentID: "u1", want: account.ErrNotAgent, kind: apperr.KindValidation},
		{name: "inactive agent", orderID: "o1", agentID: "sleeping", want: account.ErrUserInactive, kind: apperr.KindValidation},
		{
			name: "cancelled order", orderID: "o1", agentID: "a1",
			setup: func(f *fixture) { f.orders.byID["o1"].Status = order.StatusCancelled },
			want:  ErrOrderClosed, kind: apperr.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.svc.Assign(context.Background(), admin, tt.orderID, tt.agentID)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Empty(t, f.assignments.byID)
			assert.Empty(t, f.orders.byID["o1"].AssignmentID)
			assert.Empty(t, f.outbox.events)
		})
	}
}

func TestPickupAndDeliver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, admin, "o1", "a1")
	require.NoError(t, err)

	queue, err := f.svc.AgentOrders(ctx, agent, "a1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, StatusAssigned, queue[0].Status)

	_, err = f.svc.DeliveryAddress(ctx, agent, "a1")
	require.ErrorIs(t, err, ErrNotFound)

	a, err := f.svc.Pickup(ctx, agent, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusPicked, a.Status)
	assert.True(t, f.accounts.users["a1"].Picked)
	assert.Equal(t, order.StatusPicked, f.orders.byID["o1"].Status)

	queue, err = f.svc.AgentOrders(ctx, agent, "a1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, StatusPicked, queue[0].Status)

	dest, err := f.svc.DeliveryAddress(ctx, agent, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Banani", dest.Destination.Area)

	a, err = f.svc.UpdateDeliveryStatus(ctx, agent, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, a.Status)
	assert.False(t, f.accounts.users["a1"].Picked)
	assert.Equal(t, order.StatusCompleted, f.orders.byID["o1"].Status)
	assert.Equal(t, payment.StatusPaid, f.orders.byID["o1"].PaymentStatus)

	require.Len(t, f.history.changes, 2)
	assert.Equal(t, "Picked", f.history.changes[0].To)
	assert.Equal(t, "Completed", f.history.changes[1].To)

	types := make([]string, 0, len(f.outbox.events))
	for _, e := range f.outbox.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{order.EventAssigned, order.EventPicked, order.EventDelivered}, types)
}

func TestPickup_AgentBusy(t *testing.T) {
	f := newFixture(t)
	f.accounts.users["a1"].Picked = true

	_, err := f.svc.Pickup(context.Background(), agent, "o1")
	require.ErrorIs(t, err, ErrAgentBusy)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestPickup_OtherAgentsOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Assign(context.Background(), admin, "o1", "a2")
	require.NoError(t, err)

	_, err = f.svc.Pickup(context.Background(), agent, "o1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, f.accounts.users["a1"].Picked)
}

func TestPickup_PendingOrderRejected(t *testing.T) {
	f := newFixture(t)
	f.orders.byID["o1"].Status = order.StatusPending
	_, err := f.svc.Assign(context.Background(), admin, "o1", "a1")
	require.NoError(t, err)

	_, err = f.svc.Pickup(context.Background(), agent, "o1")
	var ite *order.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.False(t, f.accounts.users["a1"].Picked)
}

func TestUpdateDeliveryStatus_RequiresPickedAssignment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateDeliveryStatus(context.Background(), agent, "o1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Assign(context.Background(), admin, "o1", "a1")
	require.NoError(t, err)

	_, err = f.svc.UpdateDeliveryStatus(context.Background(), agent, "o1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, order.StatusProcessing, f.orders.byID["o1"].Status)
}

func TestUpdateDeliveryStatus_FailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, admin, "o1", "a1")
	require.NoError(t, err)
	_, err = f.svc.Pickup(ctx, agent, "o1")
	require.NoError(t, err)

	f.accounts.pickedErr = errors.New("connection reset")
	_, err = f.svc.UpdateDeliveryStatus(ctx, agent, "o1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.True(t, f.tx.rolledBack)
	require.Len(t, f.history.changes, 1, "no history for a rolled back delivery")
}

func TestAgentAccess(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AgentOrders(context.Background(), agent, "a2")
	require.ErrorIs(t, err, order.ErrForbidden)

	_, err = f.svc.AgentOrders(context.Background(), admin, "a2")
	require.NoError(t, err)
}

func TestAdvance(t *testing.T) {
	require.NoError(t, Advance(StatusAssigned, StatusPicked))
	require.NoError(t, Advance(StatusPicked, StatusDelivered))
	require.ErrorIs(t, Advance(StatusAssigned, StatusDelivered), ErrInvalidStep)
	require.ErrorIs(t, Advance(StatusDelivered, StatusPicked), ErrInvalidStep)
}

func TestShopStatusChangeCannotBypassDelivery(t *testing.T) {
	tests := []struct {
		name   string
		pickup bool
		to     order.Status
		want   error
	}{
		{name: "complete a picked order", pickup: true, to: order.StatusCompleted},
		{name: "mark an assigned order picked", to: order.StatusPicked},
		{name: "cancel an assigned order", to: order.StatusCancelled, want: order.ErrOrderAssigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			orders := f.orderService(t)
			ctx := context.Background()

			_, err := f.svc.Assign(ctx, admin, "o1", "a1")
			require.NoError(t, err)
			if tt.pickup {
				_, err = f.svc.Pickup(ctx, agent, "o1")
				require.NoError(t, err)
			}
			before := *f.orders.byID["o1"]

			_, err = orders.ChangeStatus(ctx, shopOwner, "o1", tt.to)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			} else {
				var ite *order.InvalidTransitionError
				require.ErrorAs(t, err, &ite)
			}
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
			assert.Equal(t, before.Status, f.orders.byID["o1"].Status)

			// The agent can still finish the delivery workflow.
			if !tt.pickup {
				_, err = f.svc.Pickup(ctx, agent, "o1")
				require.NoError(t, err)
			}
			a, err := f.svc.UpdateDeliveryStatus(ctx, agent, "o1")
			require.NoError(t, err)
			assert.Equal(t, StatusDelivered, a.Status)
			assert.False(t, f.accounts.users["a1"].Picked)
			assert.Equal(t, order.StatusCompleted, f.orders.byID["o1"].Status)
			assert.Equal(t, payment.StatusPaid, f.orders.byID["o1"].PaymentStatus)
		})
	}
}

func TestShopCancelsUnassignedOrder(t *testing.T) {
	f := newFixture(t)
	orders := f.orderService(t)

	o, err := orders.ChangeStatus(context.Background(), shopOwner, "o1", order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)

	_, err = f.svc.Assign(context.Background(), admin, "o1", "a1")
	require.ErrorIs(t, err, ErrOrderClosed)
}
