package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/repository"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestProfileRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	now := time.Now().UTC()
	profile := domain.BiometricProfile{
		ID:                  "profile-1",
		IdentityID:          "identity-1",
		EncodingFingerprint: "hmac-sha256:abc",
		SealedEncoding:      "argon2id$v=19$m=8192,t=1,p=1$salt$key",
		Dimension:           128,
		EncodingFormat:      domain.EncodingFormatLegacy,
		Lifecycle:           domain.ProfileActive,
		EnrolledAt:          now,
		UpdatedAt:           now,
	}

	args := anyArgs(len(profileColumns))
	args[0] = profile.ID
	args[1] = profile.IdentityID
	mock.ExpectExec(`INSERT INTO biometric\.biometric_profiles`).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), profile); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProfileRepository_GetByIdentity(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(profileColumns).AddRow(
		"profile-1", "identity-1", "hmac-sha256:abc", "sealed", 1002, "enhanced", 0.91, "active",
		int(4), nil, []byte(`{"model":"Pixel"}`), now, now, nil, nil,
	)
	mock.ExpectQuery(`SELECT .* FROM biometric\.biometric_profiles WHERE identity_id = \$1`).
		WithArgs("identity-1").
		WillReturnRows(rows)

	profile, err := repo.GetByIdentity(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("GetByIdentity returned error: %v", err)
	}
	if profile.EncodingFormat != domain.EncodingFormatEnhanced || !profile.IsActive() {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.QualityScore == nil || *profile.QualityScore != 0.91 {
		t.Fatalf("unexpected quality score: %v", profile.QualityScore)
	}
	if profile.DeviceInfo["model"] != "Pixel" {
		t.Fatalf("unexpected device info: %v", profile.DeviceInfo)
	}
	if profile.LastVerifiedAt != nil || profile.DeactivatedAt != nil {
		t.Fatalf("expected nil optional timestamps: %+v", profile)
	}
}

func TestProfileRepository_GetByIdentityNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	mock.ExpectQuery(`FROM biometric\.biometric_profiles`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByIdentity(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSecurityStateRepository_LockForUpdate(t *testing.T) {
	mock := newMock(t)
	repo := NewSecurityStateRepository(mock)

	now := time.Now().UTC()
	until := now.Add(10 * time.Minute)

	mock.ExpectExec(`INSERT INTO biometric\.identity_security_states .* ON CONFLICT \(identity_id\) DO NOTHING`).
		WithArgs("identity-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT .* FROM biometric\.identity_security_states WHERE identity_id = \$1 FOR UPDATE`).
		WithArgs("identity-1").
		WillReturnRows(pgxmock.NewRows(securityStateColumns).AddRow("identity-1", true, true, 3, until, now))

	state, err := repo.LockForUpdate(context.Background(), "identity-1", now)
	if err != nil {
		t.Fatalf("LockForUpdate returned error: %v", err)
	}
	if state.Lockout.ConsecutiveFailures != 3 || state.Lockout.LockedUntil == nil || !state.Lockout.LockedUntil.Equal(until) {
		t.Fatalf("unexpected lockout state: %+v", state.Lockout)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerificationLogRepository_Statistics(t *testing.T) {
	mock := newMock(t)
	repo := NewVerificationLogRepository(mock)

	since := time.Now().Add(-time.Hour).UTC()
	until := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"attempt_type", "count", "successes", "avg", "lockouts"}).
		AddRow("start", 8, 6, 0.9, 1).
		AddRow("end", 2, 0, 0.4, 0)
	mock.ExpectQuery(`FROM biometric\.verification_logs WHERE created_at >= \$1 AND created_at <= \$2 GROUP BY attempt_type`).
		WithArgs(since, until).
		WillReturnRows(rows)

	stats, err := repo.Statistics(context.Background(), since, until)
	if err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if stats.Total != 10 || stats.Successes != 6 || stats.Failures != 4 || stats.LockoutsTriggered != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if got := stats.AverageConfidence; got < 0.799 || got > 0.801 {
		t.Fatalf("unexpected weighted average: %v", got)
	}
	if stats.ByAttemptType[domain.AttemptEnd].Failures != 2 {
		t.Fatalf("unexpected per-type stats: %+v", stats.ByAttemptType)
	}
}

func TestAuditRepository_CountByTypeIncludesWindowEnd(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepository(mock)

	since := time.Now().Add(-time.Hour).UTC()
	until := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM biometric\.audit_events WHERE event_type = \$1 AND created_at >= \$2 AND created_at <= \$3`).
		WithArgs(string(domain.AuditRateLimited), since, until).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByType(context.Background(), domain.AuditRateLimited, since, until)
	if err != nil {
		t.Fatalf("CountByType returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeviceRepository_TouchReturnsStoredRow(t *testing.T) {
	mock := newMock(t)
	repo := NewDeviceRepository(mock)

	now := time.Now().UTC()
	first := now.Add(-24 * time.Hour)
	device := domain.NewDeviceFingerprint("identity-1", "hash-1", domain.DeviceInfo{"os": "ios"}, now)

	args := anyArgs(len(deviceColumns))
	args[0] = "identity-1"
	args[1] = "hash-1"
	mock.ExpectQuery(`INSERT INTO biometric\.device_fingerprints .* ON CONFLICT \(identity_id, device_hash\) DO UPDATE SET .* RETURNING`).
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows(deviceColumns).
			AddRow("identity-1", "hash-1", []byte(`{"os":"ios"}`), true, false, domain.DeviceRiskTrusted, first, now, "admin"))

	stored, err := repo.Touch(context.Background(), device)
	if err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}
	if !stored.Trusted || stored.RiskScore != domain.DeviceRiskTrusted || !stored.FirstSeen.Equal(first) {
		t.Fatalf("expected stored trust state, got %+v", stored)
	}
	if stored.UpdatedBy == nil || *stored.UpdatedBy != "admin" {
		t.Fatalf("unexpected updated_by: %v", stored.UpdatedBy)
	}
}

func TestRateLimitRepository_OldestAttemptEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewRateLimitRepository(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT attempted_at FROM biometric\.rate_limit_attempts`).
		WithArgs("verify:identity-1", now.Add(-time.Minute)).
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := repo.OldestAttempt(context.Background(), "verify:identity-1", time.Minute, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if ok {
		t.Fatal("expected no attempts")
	}
}

func TestTxManager_CommitsOnSuccess(t *testing.T) {
	mock := newMock(t)
	manager := NewTxManager(mock, nil, nil)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`INSERT INTO biometric\.audit_events`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := manager.Run(context.Background(), func(repos port.Repositories) error {
		return repos.Audit.Append(context.Background(), domain.AuditEvent{
			ID:         "event-1",
			IdentityID: "identity-1",
			EventType:  domain.AuditProfileCreated,
			CreatedAt:  time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	manager := NewTxManager(mock, nil, nil)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := manager.Run(context.Background(), func(port.Repositories) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
