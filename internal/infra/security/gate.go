package security

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// RoleBiometricAdmin grants access to administrative biometric endpoints.
const RoleBiometricAdmin = "biometric_admin"

var (
	// ErrInvalidGateToken indicates a malformed, unsigned or foreign gate token.
	ErrInvalidGateToken = errors.New("gate: invalid token")
	// ErrExpiredGateToken indicates the gate token is past its expiry.
	ErrExpiredGateToken = errors.New("gate: token expired")
	// ErrSecondFactorRequired indicates the caller has not completed the second factor.
	ErrSecondFactorRequired = errors.New("gate: second factor required")
)

// GateClaims carries the caller identity and the result of the upstream second factor.
type GateClaims struct {
	IdentityID  string   `json:"iid"`
	OTPVerified bool     `json:"otp_verified"`
	Roles       []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role.
func (c *GateClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// GateVerifier issues and validates HS256 gate tokens.
type GateVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewGateVerifier constructs a verifier bound to issuer and audience.
func NewGateVerifier(secret, issuer, audience string) (*GateVerifier, error) {
	if len(strings.TrimSpace(secret)) < 32 {
		return nil, fmt.Errorf("gate: secret must be at least 32 characters")
	}
	return &GateVerifier{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// Issue signs a gate token for identityID.
func (v *GateVerifier) Issue(identityID string, otpVerified bool, roles []string, ttl time.Duration, now time.Time) (string, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return "", fmt.Errorf("gate: identity is required")
	}
	now = now.UTC()
	claims := &GateClaims{
		IdentityID:  identityID,
		OTPVerified: otpVerified,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identityID,
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates token and returns its claims. Tokens without a completed second factor are rejected.
func (v *GateVerifier) Parse(token string) (*GateClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidGateToken
	}

	claims := &GateClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithAudience(v.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredGateToken
		}
		return nil, ErrInvalidGateToken
	}
	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.IdentityID) == "" {
		return nil, ErrInvalidGateToken
	}
	if !claims.OTPVerified {
		return nil, ErrSecondFactorRequired
	}
	return claims, nil
}
