package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/port"
)

// NewRepositories wires all repositories against the provided executor.
// A non-nil rateLimits overrides the PostgreSQL sliding-window store.
func NewRepositories(exec pgExecutor, rateLimits port.RateLimitStore) port.Repositories {
	if rateLimits == nil {
		rateLimits = NewRateLimitRepository(exec)
	}
	return port.Repositories{
		Profiles:   NewProfileRepository(exec),
		States:     NewSecurityStateRepository(exec),
		Logs:       NewVerificationLogRepository(exec),
		Devices:    NewDeviceRepository(exec),
		Audit:      NewAuditRepository(exec),
		RateLimits: rateLimits,
	}
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxManager runs biometric units of work inside a single PostgreSQL transaction.
type TxManager struct {
	db         txBeginner
	rateLimits port.RateLimitStore
	logger     *zap.Logger
}

// NewTxManager constructs a transaction manager. rateLimits may be nil to keep the window in PostgreSQL.
func NewTxManager(db txBeginner, rateLimits port.RateLimitStore, logger *zap.Logger) *TxManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxManager{db: db, rateLimits: rateLimits, logger: logger}
}

// Run executes fn with repositories bound to a fresh transaction. The transaction commits only when fn returns nil.
func (m *TxManager) Run(ctx context.Context, fn func(repos port.Repositories) error) (err error) {
	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.Warn("rollback biometric tx", zap.Error(rbErr))
		}
	}()

	if err := fn(NewRepositories(tx, m.rateLimits)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
