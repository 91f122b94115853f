package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
)

var verificationLogColumns = []string{
	"id",
	"verification_id",
	"identity_id",
	"session_ref",
	"attempt_type",
	"success",
	"confidence",
	"liveness_detected",
	"liveness_score",
	"quality_score",
	"lighting_condition",
	"failure_reason",
	"device_fingerprint",
	"device_info",
	"network_origin",
	"lockout_triggered",
	"metadata",
	"created_at",
}

// VerificationLogRepository appends verification attempts. Rows are never updated.
type VerificationLogRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewVerificationLogRepository constructs the repository from a generic executor.
func NewVerificationLogRepository(exec pgExecutor) *VerificationLogRepository {
	return &VerificationLogRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *VerificationLogRepository) WithTx(tx pgx.Tx) *VerificationLogRepository {
	if tx == nil {
		return r
	}
	return &VerificationLogRepository{exec: tx, builder: r.builder}
}

var _ port.VerificationLogRepository = (*VerificationLogRepository)(nil)

// Append inserts one log row.
func (r *VerificationLogRepository) Append(ctx context.Context, entry domain.VerificationLog) error {
	deviceInfo, err := marshalJSON(entry.DeviceInfo)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(entry.Metadata)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.
		Insert(schema+"verification_logs").
		Columns(verificationLogColumns...).
		Values(
			entry.ID,
			entry.VerificationID,
			entry.IdentityID,
			entry.SessionRef,
			string(entry.AttemptType),
			entry.Success,
			entry.Confidence,
			entry.LivenessDetected,
			entry.LivenessScore,
			entry.QualityScore,
			entry.LightingCondition,
			string(entry.FailureReason),
			entry.DeviceFingerprint,
			deviceInfo,
			entry.NetworkOrigin,
			entry.LockoutTriggered,
			metadata,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification log sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert verification log: %w", err)
	}
	return nil
}

// ListByIdentity returns the most recent log rows of identityID.
func (r *VerificationLogRepository) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.VerificationLog, error) {
	if limit <= 0 {
		limit = 50
	}

	stmt, args, err := r.builder.
		Select(verificationLogColumns...).
		From(schema + "verification_logs").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list verification logs sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query verification logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.VerificationLog
	for rows.Next() {
		var (
			entry         domain.VerificationLog
			sessionRef    sql.NullString
			attemptType   string
			livenessScore sql.NullFloat64
			qualityScore  sql.NullFloat64
			failureReason string
			deviceInfo    []byte
			metadata      []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.VerificationID,
			&entry.IdentityID,
			&sessionRef,
			&attemptType,
			&entry.Success,
			&entry.Confidence,
			&entry.LivenessDetected,
			&livenessScore,
			&qualityScore,
			&entry.LightingCondition,
			&failureReason,
			&entry.DeviceFingerprint,
			&deviceInfo,
			&entry.NetworkOrigin,
			&entry.LockoutTriggered,
			&metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification log: %w", err)
		}
		entry.AttemptType = domain.AttemptType(attemptType)
		entry.FailureReason = domain.FailureReason(failureReason)
		if sessionRef.Valid {
			value := sessionRef.String
			entry.SessionRef = &value
		}
		if livenessScore.Valid {
			value := livenessScore.Float64
			entry.LivenessScore = &value
		}
		if qualityScore.Valid {
			value := qualityScore.Float64
			entry.QualityScore = &value
		}
		if err := unmarshalJSON(deviceInfo, &entry.DeviceInfo); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(metadata, &entry.Metadata); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification logs: %w", err)
	}
	return logs, nil
}

// Statistics aggregates log rows created in [since, until].
func (r *VerificationLogRepository) Statistics(ctx context.Context, since, until time.Time) (domain.VerificationStatistics, error) {
	stats := domain.VerificationStatistics{
		WindowStart:   since,
		WindowEnd:     until,
		ByAttemptType: make(map[domain.AttemptType]domain.AttemptTypeStats),
	}

	stmt, args, err := r.builder.
		Select(
			"attempt_type",
			"COUNT(*)",
			"COUNT(*) FILTER (WHERE success)",
			"COALESCE(AVG(confidence), 0)",
			"COUNT(*) FILTER (WHERE lockout_triggered)",
		).
		From(schema+"verification_logs").
		Where(squirrel.GtOrEq{"created_at": since}).
		Where(squirrel.LtOrEq{"created_at": until}).
		GroupBy("attempt_type").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build verification statistics sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return stats, fmt.Errorf("query verification statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attemptType string
			st          domain.AttemptTypeStats
		)
		if err := rows.Scan(&attemptType, &st.Total, &st.Successes, &st.AverageConfidence, &st.LockoutsTriggered); err != nil {
			return stats, fmt.Errorf("scan verification statistics: %w", err)
		}
		st.Failures = st.Total - st.Successes
		stats.ByAttemptType[domain.AttemptType(attemptType)] = st
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate verification statistics: %w", err)
	}

	stats.Finalize()
	return stats, nil
}

// DeleteBefore purges rows older than cutoff.
func (r *VerificationLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.
		Delete(schema + "verification_logs").
		Where(squirrel.Lt{"created_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge verification logs sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge verification logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
