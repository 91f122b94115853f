package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/workforce-biometric/internal/core/port"
)

// RateLimitRepository stores sliding-window attempts in PostgreSQL so they commit with the attempt they gate.
type RateLimitRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRateLimitRepository constructs the repository from a generic executor.
func NewRateLimitRepository(exec pgExecutor) *RateLimitRepository {
	return &RateLimitRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *RateLimitRepository) WithTx(tx pgx.Tx) *RateLimitRepository {
	if tx == nil {
		return r
	}
	return &RateLimitRepository{exec: tx, builder: r.builder}
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)

// TrimWindow removes attempts that fell out of the window.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	stmt, args, err := r.builder.
		Delete(schema+"rate_limit_attempts").
		Where(squirrel.Eq{"identifier": identifier}).
		Where(squirrel.LtOrEq{"attempted_at": reference.Add(-window)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build trim rate limit sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("trim rate limit window: %w", err)
	}
	return nil
}

// CountAttempts counts attempts inside the window ending at reference.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From(schema+"rate_limit_attempts").
		Where(squirrel.Eq{"identifier": identifier}).
		Where(squirrel.Gt{"attempted_at": reference.Add(-window)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count rate limit sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limit attempts: %w", err)
	}
	return count, nil
}

// RecordAttempt stores an attempt at the given instant.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	stmt, args, err := r.builder.
		Insert(schema+"rate_limit_attempts").
		Columns("identifier", "attempted_at").
		Values(identifier, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record rate limit sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("record rate limit attempt: %w", err)
	}
	return nil
}

// OldestAttempt returns the oldest attempt inside the window.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	stmt, args, err := r.builder.
		Select("attempted_at").
		From(schema+"rate_limit_attempts").
		Where(squirrel.Eq{"identifier": identifier}).
		Where(squirrel.Gt{"attempted_at": reference.Add(-window)}).
		OrderBy("attempted_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build oldest rate limit sql: %w", err)
	}

	var oldest time.Time
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&oldest); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("oldest rate limit attempt: %w", err)
	}
	return oldest, true, nil
}

// PurgeBefore drops every attempt older than cutoff regardless of identifier.
func (r *RateLimitRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.
		Delete(schema + "rate_limit_attempts").
		Where(squirrel.Lt{"attempted_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge rate limit sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge rate limit attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
