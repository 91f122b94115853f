package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
)

// AuditRepository appends lifecycle and policy audit events.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs the repository from a generic executor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	if tx == nil {
		return r
	}
	return &AuditRepository{exec: tx, builder: r.builder}
}

var _ port.AuditRepository = (*AuditRepository)(nil)

// Append inserts one audit event.
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	details, err := marshalJSON(event.Details)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.
		Insert(schema+"audit_events").
		Columns("id", "identity_id", "event_type", "performed_by", "details", "created_at").
		Values(event.ID, event.IdentityID, string(event.EventType), event.PerformedBy, details, event.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// CountByType counts events of eventType created in [since, until].
func (r *AuditRepository) CountByType(ctx context.Context, eventType domain.AuditEventType, since, until time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From(schema+"audit_events").
		Where(squirrel.Eq{"event_type": string(eventType)}).
		Where(squirrel.GtOrEq{"created_at": since}).
		Where(squirrel.LtOrEq{"created_at": until}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count audit events sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}
