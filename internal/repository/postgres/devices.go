package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/repository"
)

var deviceColumns = []string{
	"identity_id",
	"device_hash",
	"device_info",
	"trusted",
	"blocked",
	"risk_score",
	"first_seen",
	"last_seen",
	"updated_by",
}

// DeviceRepository persists device fingerprints.
type DeviceRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewDeviceRepository constructs the repository from a generic executor.
func NewDeviceRepository(exec pgExecutor) *DeviceRepository {
	return &DeviceRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *DeviceRepository) WithTx(tx pgx.Tx) *DeviceRepository {
	if tx == nil {
		return r
	}
	return &DeviceRepository{exec: tx, builder: r.builder}
}

var _ port.DeviceRepository = (*DeviceRepository)(nil)

// Get returns a device of identityID by hash.
func (r *DeviceRepository) Get(ctx context.Context, identityID, deviceHash string) (*domain.DeviceFingerprint, error) {
	stmt, args, err := r.builder.
		Select(deviceColumns...).
		From(schema + "device_fingerprints").
		Where(squirrel.Eq{"identity_id": identityID, "device_hash": deviceHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select device sql: %w", err)
	}

	device, err := scanDevice(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

// Touch registers a first sighting or refreshes last_seen of a known device.
func (r *DeviceRepository) Touch(ctx context.Context, device domain.DeviceFingerprint) (domain.DeviceFingerprint, error) {
	deviceInfo, err := marshalJSON(device.DeviceInfo)
	if err != nil {
		return domain.DeviceFingerprint{}, err
	}

	stmt, args, err := r.builder.
		Insert(schema+"device_fingerprints").
		Columns(deviceColumns...).
		Values(
			device.IdentityID,
			device.DeviceHash,
			deviceInfo,
			device.Trusted,
			device.Blocked,
			device.RiskScore,
			device.FirstSeen,
			device.LastSeen,
			device.UpdatedBy,
		).
		Suffix(`ON CONFLICT (identity_id, device_hash) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			device_info = EXCLUDED.device_info
			RETURNING ` + joinColumns(deviceColumns)).
		ToSql()
	if err != nil {
		return domain.DeviceFingerprint{}, fmt.Errorf("build touch device sql: %w", err)
	}

	stored, err := scanDevice(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return domain.DeviceFingerprint{}, fmt.Errorf("touch device: %w", err)
	}
	return stored, nil
}

// Save writes the trust state of an existing device.
func (r *DeviceRepository) Save(ctx context.Context, device domain.DeviceFingerprint) error {
	stmt, args, err := r.builder.
		Update(schema+"device_fingerprints").
		Set("trusted", device.Trusted).
		Set("blocked", device.Blocked).
		Set("risk_score", device.RiskScore).
		Set("updated_by", device.UpdatedBy).
		Where(squirrel.Eq{"identity_id": device.IdentityID, "device_hash": device.DeviceHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save device sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByIdentity returns devices of identityID, most recently seen first.
func (r *DeviceRepository) ListByIdentity(ctx context.Context, identityID string) ([]domain.DeviceFingerprint, error) {
	return r.list(ctx, r.builder.
		Select(deviceColumns...).
		From(schema+"device_fingerprints").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("last_seen DESC"))
}

// ListByRisk returns devices whose risk is at least minRisk, riskiest first.
func (r *DeviceRepository) ListByRisk(ctx context.Context, minRisk, limit int) ([]domain.DeviceFingerprint, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, r.builder.
		Select(deviceColumns...).
		From(schema+"device_fingerprints").
		Where(squirrel.GtOrEq{"risk_score": minRisk}).
		OrderBy("risk_score DESC", "last_seen DESC").
		Limit(uint64(limit)))
}

func (r *DeviceRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]domain.DeviceFingerprint, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list devices sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.DeviceFingerprint
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

func scanDevice(row pgx.Row) (domain.DeviceFingerprint, error) {
	var (
		device     domain.DeviceFingerprint
		deviceInfo []byte
		updatedBy  sql.NullString
	)
	if err := row.Scan(
		&device.IdentityID,
		&device.DeviceHash,
		&deviceInfo,
		&device.Trusted,
		&device.Blocked,
		&device.RiskScore,
		&device.FirstSeen,
		&device.LastSeen,
		&updatedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return device, err
		}
		return device, fmt.Errorf("scan device: %w", err)
	}
	if updatedBy.Valid {
		value := updatedBy.String
		device.UpdatedBy = &value
	}
	if err := unmarshalJSON(deviceInfo, &device.DeviceInfo); err != nil {
		return device, err
	}
	return device, nil
}
