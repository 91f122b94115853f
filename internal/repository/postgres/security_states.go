package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/repository"
)

var securityStateColumns = []string{
	"identity_id",
	"biometric_registered",
	"biometric_consent",
	"consecutive_failures",
	"locked_until",
	"updated_at",
}

// SecurityStateRepository persists per-identity biometric flags and lockout counters.
type SecurityStateRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSecurityStateRepository constructs the repository from a generic executor.
func NewSecurityStateRepository(exec pgExecutor) *SecurityStateRepository {
	return &SecurityStateRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *SecurityStateRepository) WithTx(tx pgx.Tx) *SecurityStateRepository {
	if tx == nil {
		return r
	}
	return &SecurityStateRepository{exec: tx, builder: r.builder}
}

var _ port.SecurityStateRepository = (*SecurityStateRepository)(nil)

// LockForUpdate ensures the row exists and takes a row lock on it.
func (r *SecurityStateRepository) LockForUpdate(ctx context.Context, identityID string, now time.Time) (*domain.IdentitySecurityState, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	insert, args, err := r.builder.
		Insert(schema+"identity_security_states").
		Columns("identity_id", "updated_at").
		Values(identityID, now).
		Suffix("ON CONFLICT (identity_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ensure security state sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, insert, args...); err != nil {
		return nil, fmt.Errorf("ensure security state: %w", err)
	}

	stmt, args, err := r.selectState(identityID).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock security state sql: %w", err)
	}
	return r.scan(r.exec.QueryRow(ctx, stmt, args...))
}

// Get returns the state without locking it.
func (r *SecurityStateRepository) Get(ctx context.Context, identityID string) (*domain.IdentitySecurityState, error) {
	stmt, args, err := r.selectState(strings.TrimSpace(identityID)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select security state sql: %w", err)
	}
	return r.scan(r.exec.QueryRow(ctx, stmt, args...))
}

// Save writes the flags and the lockout machine.
func (r *SecurityStateRepository) Save(ctx context.Context, state domain.IdentitySecurityState) error {
	stmt, args, err := r.builder.
		Insert(schema+"identity_security_states").
		Columns(securityStateColumns...).
		Values(
			state.IdentityID,
			state.BiometricRegistered,
			state.BiometricConsent,
			state.Lockout.ConsecutiveFailures,
			state.Lockout.LockedUntil,
			state.UpdatedAt,
		).
		Suffix(`ON CONFLICT (identity_id) DO UPDATE SET
			biometric_registered = EXCLUDED.biometric_registered,
			biometric_consent = EXCLUDED.biometric_consent,
			consecutive_failures = EXCLUDED.consecutive_failures,
			locked_until = EXCLUDED.locked_until,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save security state sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("save security state: %w", err)
	}
	return nil
}

func (r *SecurityStateRepository) selectState(identityID string) squirrel.SelectBuilder {
	return r.builder.
		Select(securityStateColumns...).
		From(schema + "identity_security_states").
		Where(squirrel.Eq{"identity_id": identityID})
}

func (r *SecurityStateRepository) scan(row pgx.Row) (*domain.IdentitySecurityState, error) {
	var (
		state       domain.IdentitySecurityState
		lockedUntil sql.NullTime
	)
	if err := row.Scan(
		&state.IdentityID,
		&state.BiometricRegistered,
		&state.BiometricConsent,
		&state.Lockout.ConsecutiveFailures,
		&lockedUntil,
		&state.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan security state: %w", err)
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time
		state.Lockout.LockedUntil = &value
	}
	return &state, nil
}
