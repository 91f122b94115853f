package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

func TestComplianceStatistics(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)

	for i := 0; i < 3; i++ {
		if _, err := h.verify("identity-1", vector, true); err != nil {
			t.Fatalf("Verify returned error: %v", err)
		}
	}
	if _, err := h.verify("identity-1", sampleVector(4, 128), true); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	stats, err := h.reports.Statistics(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	start := stats.ByAttemptType[domain.AttemptStart]
	if start.Total != 4 || start.Successes != 3 || start.Failures != 1 {
		t.Fatalf("unexpected start stats: %+v", start)
	}
	if reg := stats.ByAttemptType[domain.AttemptRegistration]; reg.Total != 1 || reg.Successes != 1 {
		t.Fatalf("unexpected registration stats: %+v", reg)
	}
	if stats.Total != 5 || stats.Successes != 4 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.RateLimited != 0 {
		t.Fatalf("expected no rate limited attempts, got %d", stats.RateLimited)
	}
}

func TestComplianceStatisticsIncludesRowsAtReportInstant(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 32)
	h.enroll(t, "identity-1", vector)
	if _, err := h.verify("identity-1", vector, true); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	// The clock is not advanced: every row shares the report's end instant.
	stats, err := h.reports.Statistics(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if stats.Total != 2 || stats.Successes != 2 {
		t.Fatalf("expected rows stamped at the window end to be counted, got %+v", stats)
	}
	if !stats.WindowEnd.Equal(h.clock.Now().UTC()) {
		t.Fatalf("unexpected window end %s", stats.WindowEnd)
	}
}

func TestComplianceStatisticsCountsRateLimited(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.RateLimitMaxAttempts = 1
	h := newHarness(t, cfg)
	vector := sampleVector(1, 64)
	h.enroll(t, "identity-1", vector)

	if _, err := h.verify("identity-1", vector, true); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	_, _ = h.verify("identity-1", vector, true)

	stats, err := h.reports.Statistics(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if stats.RateLimited != 1 {
		t.Fatalf("expected one rate limited attempt, got %d", stats.RateLimited)
	}
}

func TestComplianceRetentionPurgesOldRows(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 64)
	for _, id := range []string{"identity-1", "identity-2"} {
		h.enroll(t, id, vector)
		if _, err := h.verify(id, vector, true); err != nil {
			t.Fatalf("Verify returned error: %v", err)
		}
	}

	h.clock.Advance(366 * 24 * time.Hour)
	if _, err := h.verify("identity-1", vector, true); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	report, err := h.reports.RunRetention(context.Background())
	if err != nil {
		t.Fatalf("RunRetention returned error: %v", err)
	}
	if report.VerificationLogs != 4 {
		t.Fatalf("expected registrations and first verifications purged, got %d", report.VerificationLogs)
	}
	if report.RateLimitAttempts != 1 {
		t.Fatalf("expected the stale attempt of identity-2 purged, got %d", report.RateLimitAttempts)
	}
	if got := len(h.store.logsFor("identity-1")); got != 1 {
		t.Fatalf("expected one log row to survive, got %d", got)
	}
	if got := len(h.store.auditOf(domain.AuditRetentionCleanup)); got != 1 {
		t.Fatalf("expected retention run to be audited, got %d", got)
	}

	purged, err := h.reports.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if purged != 0 {
		t.Fatalf("expected nothing left to purge, got %d", purged)
	}
}

func TestComplianceDeviceRiskReport(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 64)
	h.enroll(t, "identity-1", vector)
	if _, err := h.verify("identity-1", vector, true); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	devices, err := h.devices.List(context.Background(), "identity-1")
	if err != nil || len(devices) != 1 {
		t.Fatalf("expected one device, got %d (%v)", len(devices), err)
	}
	if _, err := h.devices.Apply(context.Background(), "identity-1", devices[0].DeviceHash, DeviceActionBlock, "admin-1"); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	risky, err := h.reports.DeviceRiskReport(context.Background(), domain.DeviceRiskBlocked, 10)
	if err != nil {
		t.Fatalf("DeviceRiskReport returned error: %v", err)
	}
	if len(risky) != 1 || !risky[0].Blocked {
		t.Fatalf("expected the blocked device in the report, got %+v", risky)
	}
}
