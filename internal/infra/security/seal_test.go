package security

import (
	"strings"
	"testing"
	"time"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

func testSealer(t *testing.T) *VectorSealer {
	t.Helper()
	cfg := Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	sealer, err := NewVectorSealer(cfg, "pepper-for-unit-tests")
	if err != nil {
		t.Fatalf("NewVectorSealer returned error: %v", err)
	}
	return sealer
}

func vector(t *testing.T, values ...float64) domain.FeatureVector {
	t.Helper()
	v, err := domain.ParseFeatureVector(values)
	if err != nil {
		t.Fatalf("ParseFeatureVector returned error: %v", err)
	}
	return v
}

func TestSealAndConfirm(t *testing.T) {
	sealer := testSealer(t)
	v := vector(t, 0.1, 0.2, 0.3)

	sealed, err := sealer.Seal(v)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	parts := strings.Split(sealed, "$")
	if len(parts) != 5 || parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected seal format: %q", sealed)
	}

	ok, err := sealer.Confirm(v, sealed)
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if !ok {
		t.Fatal("Confirm returned false for the sealed vector")
	}

	ok, err = sealer.Confirm(vector(t, 0.1, 0.2, 0.31), sealed)
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if ok {
		t.Fatal("Confirm returned true for a different vector")
	}
}

func TestSealIsSalted(t *testing.T) {
	sealer := testSealer(t)
	v := vector(t, 1, 2, 3)

	a, err := sealer.Seal(v)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	b, err := sealer.Seal(v)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct seals for repeated sealing")
	}
}

func TestFingerprintIsDeterministicAndKeyed(t *testing.T) {
	sealer := testSealer(t)
	v := vector(t, 1, 2, 3)

	if sealer.Fingerprint(v) != sealer.Fingerprint(vector(t, 1, 2, 3)) {
		t.Fatal("fingerprint is not deterministic")
	}
	if sealer.Fingerprint(v) == sealer.Fingerprint(vector(t, 1, 2, 3.0000001)) {
		t.Fatal("fingerprint collides for different vectors")
	}

	other, err := NewVectorSealer(DefaultArgon2Config(), "a-different-pepper-value")
	if err != nil {
		t.Fatalf("NewVectorSealer returned error: %v", err)
	}
	if sealer.Fingerprint(v) == other.Fingerprint(v) {
		t.Fatal("fingerprint does not depend on the pepper")
	}
}

func TestConfirmRejectsMalformedSeal(t *testing.T) {
	sealer := testSealer(t)
	if _, err := sealer.Confirm(vector(t, 1), "argon2id$v=19$bogus"); err == nil {
		t.Fatal("expected error for malformed seal")
	}
}

func TestNewVectorSealerValidatesConfig(t *testing.T) {
	if _, err := NewVectorSealer(Argon2Config{Memory: 1}, "pepper-for-unit-tests"); err == nil {
		t.Fatal("expected error for weak argon2 parameters")
	}
	if _, err := NewVectorSealer(DefaultArgon2Config(), "short"); err == nil {
		t.Fatal("expected error for short pepper")
	}
}

func TestHashDeviceIgnoresKeyOrder(t *testing.T) {
	var h DeviceHasher
	a := h.HashDevice(domain.DeviceInfo{"model": "Pixel", "os": "android"})
	b := h.HashDevice(domain.DeviceInfo{"os": "android", "model": "Pixel"})
	if a == "" || a != b {
		t.Fatalf("expected stable non-empty fingerprint, got %q and %q", a, b)
	}
	if h.HashDevice(nil) != "" {
		t.Fatal("expected empty fingerprint for missing device info")
	}
}

func TestGateVerifierRoundTrip(t *testing.T) {
	v, err := NewGateVerifier(strings.Repeat("s", 32), "biometric", "biometric-api")
	if err != nil {
		t.Fatalf("NewGateVerifier returned error: %v", err)
	}

	token, err := v.Issue("identity-1", true, []string{RoleBiometricAdmin}, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	claims, err := v.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.IdentityID != "identity-1" || !claims.HasRole(RoleBiometricAdmin) {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	pending, err := v.Issue("identity-1", false, nil, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := v.Parse(pending); err != ErrSecondFactorRequired {
		t.Fatalf("expected ErrSecondFactorRequired, got %v", err)
	}

	expired, err := v.Issue("identity-1", true, nil, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := v.Parse(expired); err != ErrExpiredGateToken {
		t.Fatalf("expected ErrExpiredGateToken, got %v", err)
	}
}
