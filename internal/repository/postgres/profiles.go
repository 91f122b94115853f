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

var profileColumns = []string{
	"id",
	"identity_id",
	"encoding_fingerprint",
	"sealed_encoding",
	"dimension",
	"encoding_format",
	"quality_score",
	"lifecycle",
	"verification_count",
	"last_verified_at",
	"device_info",
	"enrolled_at",
	"updated_at",
	"deactivated_at",
	"deactivated_by",
}

// ProfileRepository persists biometric profiles in PostgreSQL.
type ProfileRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewProfileRepository constructs the repository from a generic executor.
func NewProfileRepository(exec pgExecutor) *ProfileRepository {
	return &ProfileRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *ProfileRepository) WithTx(tx pgx.Tx) *ProfileRepository {
	if tx == nil {
		return r
	}
	return &ProfileRepository{exec: tx, builder: r.builder}
}

var _ port.ProfileRepository = (*ProfileRepository)(nil)

// GetByIdentity returns the profile of identityID in any lifecycle state.
func (r *ProfileRepository) GetByIdentity(ctx context.Context, identityID string) (*domain.BiometricProfile, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	stmt, args, err := r.builder.
		Select(profileColumns...).
		From(schema + "biometric_profiles").
		Where(squirrel.Eq{"identity_id": identityID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select profile sql: %w", err)
	}

	var (
		profile        domain.BiometricProfile
		format         string
		lifecycle      string
		quality        sql.NullFloat64
		lastVerifiedAt sql.NullTime
		deviceInfo     []byte
		deactivatedAt  sql.NullTime
		deactivatedBy  sql.NullString
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&profile.ID,
		&profile.IdentityID,
		&profile.EncodingFingerprint,
		&profile.SealedEncoding,
		&profile.Dimension,
		&format,
		&quality,
		&lifecycle,
		&profile.VerificationCount,
		&lastVerifiedAt,
		&deviceInfo,
		&profile.EnrolledAt,
		&profile.UpdatedAt,
		&deactivatedAt,
		&deactivatedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	profile.EncodingFormat = domain.EncodingFormat(format)
	profile.Lifecycle = domain.ProfileLifecycle(lifecycle)
	if quality.Valid {
		value := quality.Float64
		profile.QualityScore = &value
	}
	if lastVerifiedAt.Valid {
		value := lastVerifiedAt.Time
		profile.LastVerifiedAt = &value
	}
	if deactivatedAt.Valid {
		value := deactivatedAt.Time
		profile.DeactivatedAt = &value
	}
	if deactivatedBy.Valid {
		value := deactivatedBy.String
		profile.DeactivatedBy = &value
	}
	if err := unmarshalJSON(deviceInfo, &profile.DeviceInfo); err != nil {
		return nil, err
	}

	return &profile, nil
}

// Create inserts a new profile row.
func (r *ProfileRepository) Create(ctx context.Context, profile domain.BiometricProfile) error {
	deviceInfo, err := marshalJSON(profile.DeviceInfo)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.
		Insert(schema+"biometric_profiles").
		Columns(profileColumns...).
		Values(
			profile.ID,
			profile.IdentityID,
			profile.EncodingFingerprint,
			profile.SealedEncoding,
			profile.Dimension,
			string(profile.EncodingFormat),
			profile.QualityScore,
			string(profile.Lifecycle),
			profile.VerificationCount,
			profile.LastVerifiedAt,
			deviceInfo,
			profile.EnrolledAt,
			profile.UpdatedAt,
			profile.DeactivatedAt,
			profile.DeactivatedBy,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// Update overwrites the mutable columns of an existing profile.
func (r *ProfileRepository) Update(ctx context.Context, profile domain.BiometricProfile) error {
	deviceInfo, err := marshalJSON(profile.DeviceInfo)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.
		Update(schema+"biometric_profiles").
		SetMap(map[string]any{
			"encoding_fingerprint": profile.EncodingFingerprint,
			"sealed_encoding":      profile.SealedEncoding,
			"dimension":            profile.Dimension,
			"encoding_format":      string(profile.EncodingFormat),
			"quality_score":        profile.QualityScore,
			"lifecycle":            string(profile.Lifecycle),
			"verification_count":   profile.VerificationCount,
			"last_verified_at":     profile.LastVerifiedAt,
			"device_info":          deviceInfo,
			"enrolled_at":          profile.EnrolledAt,
			"updated_at":           profile.UpdatedAt,
			"deactivated_at":       profile.DeactivatedAt,
			"deactivated_by":       profile.DeactivatedBy,
		}).
		Where(squirrel.Eq{"id": profile.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update profile sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordVerification increments the verification counter of an active profile.
func (r *ProfileRepository) RecordVerification(ctx context.Context, profileID string, at time.Time) error {
	stmt, args, err := r.builder.
		Update(schema+"biometric_profiles").
		Set("verification_count", squirrel.Expr("verification_count + 1")).
		Set("last_verified_at", at).
		Where(squirrel.Eq{"id": profileID, "lifecycle": string(domain.ProfileActive)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record verification sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
