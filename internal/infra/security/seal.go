package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
)

const (
	argon2Variant     = "argon2id"
	argon2Version     = "v=19"
	fingerprintPrefix = "hmac-sha256:"
	minPepperLength   = 16
)

var (
	errInvalidSealFormat = errors.New("seal: invalid encoded seal format")
	errInvalidConfig     = errors.New("seal: invalid configuration")
)

// Argon2Config defines tunable parameters for the Argon2id seal.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the production seal parameters.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func validateArgon2Config(cfg Argon2Config) error {
	if cfg.Memory < 8*1024 {
		return fmt.Errorf("%w: memory must be at least 8192", errInvalidConfig)
	}
	if cfg.Iterations == 0 {
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidConfig)
	}
	if cfg.Parallelism == 0 {
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidConfig)
	}
	if cfg.SaltLength < 8 {
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidConfig)
	}
	if cfg.KeyLength < 16 {
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

// VectorSealer derives the fingerprint and the Argon2id seal of feature vectors.
// Both are keyed with a server-side pepper so stored values cannot be recomputed offline.
type VectorSealer struct {
	cfg    Argon2Config
	pepper []byte
}

var _ port.VectorSealer = (*VectorSealer)(nil)

// NewVectorSealer validates the configuration and returns a sealer.
func NewVectorSealer(cfg Argon2Config, pepper string) (*VectorSealer, error) {
	if err := validateArgon2Config(cfg); err != nil {
		return nil, err
	}
	if len(pepper) < minPepperLength {
		return nil, fmt.Errorf("%w: pepper must be at least %d bytes", errInvalidConfig, minPepperLength)
	}
	return &VectorSealer{cfg: cfg, pepper: []byte(pepper)}, nil
}

// Fingerprint returns a fast keyed digest of the canonical vector bytes.
func (s *VectorSealer) Fingerprint(vector domain.FeatureVector) string {
	return fingerprintPrefix + hex.EncodeToString(s.mac(vector))
}

// Seal derives a salted Argon2id value from the keyed vector digest.
// Format: argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>
func (s *VectorSealer) Seal(vector domain.FeatureVector) (string, error) {
	if vector.IsZero() {
		return "", domain.ErrMalformedVector
	}

	salt := make([]byte, s.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("seal: generate salt: %w", err)
	}

	key := argon2.IDKey(s.mac(vector), salt, s.cfg.Iterations, s.cfg.Memory, s.cfg.Parallelism, s.cfg.KeyLength)

	return strings.Join([]string{
		argon2Variant,
		argon2Version,
		fmt.Sprintf("m=%d,t=%d,p=%d", s.cfg.Memory, s.cfg.Iterations, s.cfg.Parallelism),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	}, "$"), nil
}

// Confirm re-derives the seal for vector using the parameters embedded in sealed.
func (s *VectorSealer) Confirm(vector domain.FeatureVector, sealed string) (bool, error) {
	if vector.IsZero() || sealed == "" {
		return false, nil
	}

	params, salt, expected, err := decodeSeal(sealed)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(s.mac(vector), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (s *VectorSealer) mac(vector domain.FeatureVector) []byte {
	h := hmac.New(sha256.New, s.pepper)
	h.Write(canonicalBytes(vector))
	return h.Sum(nil)
}

// canonicalBytes encodes the format tag, the length and each component as big-endian IEEE-754 bits.
func canonicalBytes(vector domain.FeatureVector) []byte {
	values := vector.Values()
	format := string(vector.Format())

	buf := make([]byte, 0, len(format)+1+4+8*len(values))
	buf = append(buf, format...)
	buf = append(buf, 0)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(values)))
	for _, v := range values {
		if v == 0 {
			v = 0 // fold negative zero
		}
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

func decodeSeal(encoded string) (Argon2Config, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return Argon2Config{}, nil, nil, errInvalidSealFormat
	}
	if parts[0] != argon2Variant {
		return Argon2Config{}, nil, nil, fmt.Errorf("seal: unexpected variant %q", parts[0])
	}
	if parts[1] != argon2Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("seal: unsupported version %q", parts[1])
	}

	memory, iterations, parallelism, err := parseArgon2Params(parts[2])
	if err != nil {
		return Argon2Config{}, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("seal: decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("seal: decode key: %w", err)
	}

	cfg := Argon2Config{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	if err := validateArgon2Config(cfg); err != nil {
		return Argon2Config{}, nil, nil, err
	}
	return cfg, salt, key, nil
}

func parseArgon2Params(segment string) (uint32, uint32, uint8, error) {
	var (
		memory      uint32
		iterations  uint32
		parallelism uint8
	)

	entries := strings.Split(segment, ",")
	if len(entries) != 3 {
		return 0, 0, 0, errInvalidSealFormat
	}
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return 0, 0, 0, errInvalidSealFormat
		}

		bits := 32
		if key == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("seal: parse %s: %w", key, err)
		}

		switch key {
		case "m":
			memory = uint32(v)
		case "t":
			iterations = uint32(v)
		case "p":
			parallelism = uint8(v)
		default:
			return 0, 0, 0, errInvalidSealFormat
		}
	}
	return memory, iterations, parallelism, nil
}
