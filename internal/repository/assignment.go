package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emart-orders/internal/domain/assignment"
)

const (
	assignmentColumns = `id, order_id, agent_id, destination, status, created_at, updated_at`

	createAssignmentSQL = `INSERT INTO assignments (id, order_id, agent_id, destination, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	getAssignmentByOrderSQL = `SELECT ` + assignmentColumns + ` FROM assignments
		WHERE order_id = $1 FOR UPDATE`

	findAssignmentByAgentSQL = `SELECT ` + assignmentColumns + ` FROM assignments
		WHERE agent_id = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`

	listAssignmentsByAgentSQL = `SELECT ` + assignmentColumns + ` FROM assignments
		WHERE agent_id = $1 AND status = $2 ORDER BY created_at`

	setAssignmentStatusSQL = `UPDATE assignments SET status = $2, updated_at = now() WHERE id = $1`
)

var _ assignment.Repository = (*AssignmentRepository)(nil)

// AssignmentRepository implements assignment.Repository backed by PostgreSQL.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository returns an AssignmentRepository that uses the given pool.
func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

func (r *AssignmentRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	dest, err := json.Marshal(a.Destination)
	if err != nil {
		return fmt.Errorf("marshaling destination: %w", err)
	}
	_, err = conn(ctx, r.pool).Exec(ctx, createAssignmentSQL,
		a.ID, a.OrderID, a.AgentID, dest, string(a.Status), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating assignment for order %q: %w", a.OrderID, err)
	}
	return nil
}

func (r *AssignmentRepository) GetByOrderForUpdate(ctx context.Context, orderID string) (*assignment.Assignment, error) {
	return r.getOne(ctx, getAssignmentByOrderSQL, orderID)
}

func (r *AssignmentRepository) FindByAgent(ctx context.Context, agentID string, status assignment.Status) (*assignment.Assignment, error) {
	return r.getOne(ctx, findAssignmentByAgentSQL, agentID, string(status))
}

func (r *AssignmentRepository) ListByAgent(ctx context.Context, agentID string, status assignment.Status) ([]assignment.Assignment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listAssignmentsByAgentSQL, agentID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing assignments of %q: %w", agentID, err)
	}
	return pgx.CollectRows(rows, scanAssignment)
}

func (r *AssignmentRepository) SetStatus(ctx context.Context, id string, status assignment.Status) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setAssignmentStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating assignment %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return assignment.ErrNotFound
	}
	return nil
}

func (r *AssignmentRepository) getOne(ctx context.Context, sql string, args ...any) (*assignment.Assignment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting assignment: %w", err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAssignment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assignment.ErrNotFound
		}
		return nil, fmt.Errorf("getting assignment: %w", err)
	}
	return &a, nil
}

func scanAssignment(row pgx.CollectableRow) (assignment.Assignment, error) {
	var a assignment.Assignment
	err := row.Scan(&a.ID, &a.OrderID, &a.AgentID, &a.Destination, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
