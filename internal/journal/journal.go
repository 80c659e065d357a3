// Package journal persists an audit trail of every mutation the gateway
// applies or rolls back, and tracks notification delivery per entry.
package journal

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Outcome records how a mutation resolved.
type Outcome string

const (
	OutcomeApplied    Outcome = "APPLIED"
	OutcomeRolledBack Outcome = "ROLLED_BACK"
)

// NotifyStatus tracks delivery of the notification tied to an entry.
type NotifyStatus string

const (
	StatusNotifyNone      NotifyStatus = "NONE"
	StatusNotifyPending   NotifyStatus = "PENDING"
	StatusNotifyCompleted NotifyStatus = "COMPLETED"
	StatusNotifyFailed    NotifyStatus = "FAILED"
)

// Entry is one journaled mutation.
type Entry struct {
	ID               string       `json:"id"`
	Resource         string       `json:"resource"`
	RecordID         string       `json:"recordId"`
	EmployeeID       string       `json:"employeeId"`
	Action           string       `json:"action"`
	Outcome          Outcome      `json:"outcome"`
	Detail           string       `json:"detail,omitempty"`
	NotifyStatus     NotifyStatus `json:"notifyStatus"`
	NotifyRetryCount int          `json:"notifyRetryCount"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// Repository contract
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	UpdateNotifyStatus(ctx context.Context, id string, status NotifyStatus, retryCount int) error
}

// PostgresRepository is the concrete implementation for a PostgreSQL database.
type PostgresRepository struct {
	DB *sql.DB
}

// NewPostgresRepository create new instance
func NewPostgresRepository(db *sql.DB) Repository {
	return &PostgresRepository{DB: db}
}

// Insert writes a new journal entry.
func (r *PostgresRepository) Insert(ctx context.Context, e *Entry) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", e.EmployeeID))

	query := `INSERT INTO mutation_journal (id, resource, record_id, employee_id, action, outcome, detail, notify_status, notify_retry_count, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`

	_, err := r.DB.ExecContext(ctx, query,
		e.ID, e.Resource, e.RecordID, e.EmployeeID, e.Action, e.Outcome, e.Detail, e.NotifyStatus, e.CreatedAt)
	return err
}

// Get fetches a complete journal entry by its ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Entry, error) {
	query := `SELECT id, resource, record_id, employee_id, action, outcome, detail, notify_status, notify_retry_count, created_at
              FROM mutation_journal WHERE id = $1`

	e := &Entry{}
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Resource, &e.RecordID, &e.EmployeeID, &e.Action, &e.Outcome, &e.Detail, &e.NotifyStatus, &e.NotifyRetryCount, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateNotifyStatus updates the status and retry count for an entry's notification.
func (r *PostgresRepository) UpdateNotifyStatus(ctx context.Context, id string, status NotifyStatus, retryCount int) error {
	query := `UPDATE mutation_journal SET notify_status = $1, notify_retry_count = $2 WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, status, retryCount, id)
	return err
}
