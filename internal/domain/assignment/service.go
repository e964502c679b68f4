package assignment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/emart-orders/internal/domain/account"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/order"
)

// Deps are the collaborators of Service.
type Deps struct {
	Tx          order.Transactor
	Orders      order.Repository
	Assignments Repository
	Accounts    account.Repository
	Outbox      order.Outbox
	History     order.StatusLog
	Now         func() time.Time
}

// Service runs the delivery workflow. Every step that touches more than one
// record does so in a single transaction.
type Service struct {
	tx          order.Transactor
	orders      order.Repository
	assignments Repository
	accounts    account.Repository
	outbox      order.Outbox
	history     order.StatusLog
	now         func() time.Time
}

// NewService creates an assignment Service.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		tx:          d.Tx,
		orders:      d.Orders,
		assignments: d.Assignments,
		accounts:    d.Accounts,
		outbox:      d.Outbox,
		history:     d.History,
		now:         d.Now,
	}
}

// Assign hands an order to a delivery agent and back-links the assignment
// from the order.
func (s *Service) Assign(ctx context.Context, actor auth.Principal, orderID, agentID string) (*Assignment, error) {
	var a *Assignment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.AssignmentID != "" {
			return ErrAlreadyAssigned
		}
		if o.Status.Terminal() {
			return ErrOrderClosed
		}

		agent, err := s.accounts.GetUser(ctx, agentID)
		if err != nil {
			return err
		}
		if agent.Role != auth.RoleAgent {
			return account.ErrNotAgent
		}
		if !agent.IsActive {
			return account.ErrUserInactive
		}

		now := s.now()
		a = &Assignment{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			AgentID:     agent.ID,
			Destination: o.ShippingAddress,
			Status:      StatusAssigned,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.assignments.Create(ctx, a); err != nil {
			return errors.Wrap(err, "create assignment")
		}
		if err := s.orders.SetAssignment(ctx, o.ID, a.ID); err != nil {
			return errors.Wrap(err, "link assignment")
		}

		return s.enqueue(ctx, order.Event{
			Type:       order.EventAssigned,
			OrderID:    o.ID,
			ShopID:     o.ShopID,
			ActorID:    actor.UserID,
			OccurredAt: now,
			Data:       map[string]string{"agentId": agent.ID, "assignmentId": a.ID},
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// checkAgentAccess lets agents act only on their own queue. Admins may act
// on any agent.
func checkAgentAccess(actor auth.Principal, agentID string) error {
	if actor.HasRole(auth.RoleAdmin) || actor.UserID == agentID {
		return nil
	}
	return order.ErrForbidden
}

// AgentOrders lists the agent's assignments still waiting for pickup, or the
// one being carried when the agent has an active pickup.
func (s *Service) AgentOrders(ctx context.Context, actor auth.Principal, agentID string) ([]Assignment, error) {
	if err := checkAgentAccess(actor, agentID); err != nil {
		return nil, err
	}
	agent, err := s.accounts.GetUser(ctx, agentID)
	if err != nil {
		return nil, err
	}

	status := StatusAssigned
	if agent.Picked {
		status = StatusPicked
	}
	list, err := s.assignments.ListByAgent(ctx, agent.ID, status)
	if err != nil {
		return nil, errors.Wrap(err, "list assignments")
	}
	return list, nil
}

// DeliveryAddress returns the assignment the agent is currently carrying.
func (s *Service) DeliveryAddress(ctx context.Context, actor auth.Principal, agentID string) (*Assignment, error) {
	if err := checkAgentAccess(actor, agentID); err != nil {
		return nil, err
	}
	return s.assignments.FindByAgent(ctx, agentID, StatusPicked)
}

// Pickup marks the agent as carrying orderID. The agent flag, assignment and
// order move together or not at all.
func (s *Service) Pickup(ctx context.Context, actor auth.Principal, orderID string) (*Assignment, error) {
	var (
		a    *Assignment
		from order.Status
		now  time.Time
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		agent, err := s.accounts.GetUserForUpdate(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if agent.Picked {
			return ErrAgentBusy
		}

		a, err = s.assignments.GetByOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if a.AgentID != agent.ID {
			return ErrNotFound
		}
		if err := Advance(a.Status, StatusPicked); err != nil {
			return err
		}

		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Transition(o.Status, order.StatusPicked); err != nil {
			return err
		}
		from = o.Status
		now = s.now()

		if err := s.accounts.SetPicked(ctx, agent.ID, true); err != nil {
			return errors.Wrap(err, "set agent picked")
		}
		if err := s.assignments.SetStatus(ctx, a.ID, StatusPicked); err != nil {
			return errors.Wrap(err, "set assignment status")
		}
		if err := s.orders.SetStatus(ctx, o.ID, order.StatusPicked); err != nil {
			return errors.Wrap(err, "set order status")
		}
		a.Status = StatusPicked
		a.UpdatedAt = now

		return s.enqueue(ctx, order.Event{
			Type:       order.EventPicked,
			OrderID:    o.ID,
			ShopID:     o.ShopID,
			From:       from,
			To:         order.StatusPicked,
			ActorID:    agent.ID,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	order.AppendHistory(ctx, s.history, order.StatusChange{
		OrderID:   orderID,
		Source:    order.SourceFulfillment,
		From:      string(from),
		To:        string(order.StatusPicked),
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		At:        now,
	})
	return a, nil
}

// UpdateDeliveryStatus completes a picked-up order: the assignment becomes
// Delivered, the order Completed and Paid, and the agent is free again.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, actor auth.Principal, orderID string) (*Assignment, error) {
	var (
		a    *Assignment
		from order.Status
		now  time.Time
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.assignments.GetByOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if a.Status != StatusPicked {
			return ErrNotFound
		}
		if !actor.HasRole(auth.RoleAdmin) && a.AgentID != actor.UserID {
			return ErrNotFound
		}

		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Transition(o.Status, order.StatusCompleted); err != nil {
			return err
		}
		from = o.Status
		now = s.now()

		if err := s.assignments.SetStatus(ctx, a.ID, StatusDelivered); err != nil {
			return errors.Wrap(err, "set assignment status")
		}
		if err := s.orders.MarkDelivered(ctx, o.ID); err != nil {
			return errors.Wrap(err, "mark delivered")
		}
		if err := s.accounts.SetPicked(ctx, a.AgentID, false); err != nil {
			return errors.Wrap(err, "release agent")
		}
		a.Status = StatusDelivered
		a.UpdatedAt = now

		return s.enqueue(ctx, order.Event{
			Type:       order.EventDelivered,
			OrderID:    o.ID,
			ShopID:     o.ShopID,
			From:       from,
			To:         order.StatusCompleted,
			ActorID:    actor.UserID,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	order.AppendHistory(ctx, s.history, order.StatusChange{
		OrderID:   orderID,
		Source:    order.SourceFulfillment,
		From:      string(from),
		To:        string(order.StatusCompleted),
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		At:        now,
	})
	return a, nil
}

func (s *Service) enqueue(ctx context.Context, e order.Event) error {
	if err := s.outbox.Enqueue(ctx, e); err != nil {
		return errors.Wrap(err, "enqueue event")
	}
	return nil
}
