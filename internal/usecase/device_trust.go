package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/repository"
)

// DeviceTrustAction is an administrative change to a device record.
type DeviceTrustAction string

const (
	DeviceActionTrust   DeviceTrustAction = "trust"
	DeviceActionUntrust DeviceTrustAction = "untrust"
	DeviceActionBlock   DeviceTrustAction = "block"
)

// ErrUnknownDeviceAction indicates an unsupported admin action.
var ErrUnknownDeviceAction = errors.New("unknown device trust action")

// DeviceTrustService applies administrative trust decisions to device fingerprints.
type DeviceTrustService struct {
	repos  port.Repositories
	tx     BiometricTxFunc
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewDeviceTrustService constructs the service.
func NewDeviceTrustService(repos port.Repositories, tx BiometricTxFunc, events port.EventPublisher) *DeviceTrustService {
	return &DeviceTrustService{
		repos:  repos,
		tx:     tx,
		events: events,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// WithLogger attaches a structured logger.
func (s *DeviceTrustService) WithLogger(logger *zap.Logger) *DeviceTrustService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *DeviceTrustService) WithNow(now func() time.Time) *DeviceTrustService {
	if now != nil {
		s.now = now
	}
	return s
}

// Apply performs action on the device identified by identityID and deviceHash.
func (s *DeviceTrustService) Apply(ctx context.Context, identityID, deviceHash string, action DeviceTrustAction, performedBy string) (*domain.DeviceFingerprint, error) {
	identityID, err := normalizeIdentity(identityID)
	if err != nil {
		return nil, err
	}
	deviceHash = strings.TrimSpace(deviceHash)
	if deviceHash == "" {
		return nil, domain.ErrDeviceNotFound
	}
	actor := performer(performedBy, "system")
	now := s.now().UTC()

	var updated domain.DeviceFingerprint
	txErr := s.tx(ctx, func(repos port.Repositories) error {
		device, err := repos.Devices.Get(ctx, identityID, deviceHash)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrDeviceNotFound
		}
		if err != nil {
			return fmt.Errorf("load device: %w", err)
		}

		previous := *device
		switch action {
		case DeviceActionTrust:
			updated = device.Trust(actor)
		case DeviceActionUntrust:
			updated = device.Untrust(actor)
		case DeviceActionBlock:
			updated = device.Block(actor)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownDeviceAction, action)
		}

		if err := repos.Devices.Save(ctx, updated); err != nil {
			return fmt.Errorf("save device: %w", err)
		}
		return repos.Audit.Append(ctx, domain.AuditEvent{
			ID:          newRowID(),
			IdentityID:  identityID,
			EventType:   domain.AuditDeviceTrustChanged,
			PerformedBy: actor,
			Details: map[string]any{
				"device_hash":      deviceHash,
				"action":           string(action),
				"previous_trusted": previous.Trusted,
				"previous_blocked": previous.Blocked,
				"previous_risk":    previous.RiskScore,
				"trusted":          updated.Trusted,
				"blocked":          updated.Blocked,
				"risk_score":       updated.RiskScore,
			},
			CreatedAt: now,
		})
	})
	if txErr != nil {
		if errors.Is(txErr, domain.ErrDeviceNotFound) || errors.Is(txErr, ErrUnknownDeviceAction) {
			return nil, txErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, txErr)
	}

	s.logger.Info("device trust changed",
		zap.String("identity_id", identityID),
		zap.String("device_hash", deviceHash),
		zap.String("action", string(action)),
		zap.String("performed_by", actor),
	)
	if s.events != nil {
		event := domain.DeviceTrustChangedEvent{
			EventID:    newRowID(),
			IdentityID: identityID,
			DeviceHash: deviceHash,
			Trusted:    updated.Trusted,
			Blocked:    updated.Blocked,
			RiskScore:  updated.RiskScore,
			ChangedBy:  actor,
			ChangedAt:  now,
		}
		if err := s.events.PublishDeviceTrustChanged(ctx, event); err != nil {
			s.logger.Warn("failed to publish device trust event", zap.String("identity_id", identityID), zap.Error(err))
		}
	}
	return &updated, nil
}

// List returns the devices seen for identityID.
func (s *DeviceTrustService) List(ctx context.Context, identityID string) ([]domain.DeviceFingerprint, error) {
	identityID, err := normalizeIdentity(identityID)
	if err != nil {
		return nil, err
	}
	return s.repos.Devices.ListByIdentity(ctx, identityID)
}
