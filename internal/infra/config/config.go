package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BIOMETRIC"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	Matching  MatchingSettings  `mapstructure:"matching"`
	Seal      SealSettings      `mapstructure:"seal"`
	Gate      GateSettings      `mapstructure:"gate"`
	Policy    PolicySettings    `mapstructure:"policy"`
	Retention RetentionSettings `mapstructure:"retention"`
}

type AppSettings struct {
	Name        string `mapstructure:"name"`
	Env         string `mapstructure:"env"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the optional Redis connection. Enabled is implied by rate_limit.backend=redis.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the domain event producer. No brokers selects the logging stub publisher.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures the verification sliding window and the HTTP per-IP limiter.
type RateLimitSettings struct {
	Backend         string        `mapstructure:"backend"`
	WindowDuration  time.Duration `mapstructure:"window_duration"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	HTTPMaxAttempts int           `mapstructure:"http_max_attempts"`
}

type LockoutSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Duration    time.Duration `mapstructure:"duration"`
}

type MatchingSettings struct {
	ConfidenceThreshold   float64 `mapstructure:"confidence_threshold"`
	MismatchThreshold     float64 `mapstructure:"mismatch_threshold"`
	ExactMatchConfidence  float64 `mapstructure:"exact_match_confidence"`
	EnhancedDimension     int     `mapstructure:"enhanced_dimension"`
	MinQuality            float64 `mapstructure:"min_quality"`
	ConfirmationThreshold float64 `mapstructure:"confirmation_threshold"`
}

// SealSettings configures the Argon2id seal over enrolled feature vectors.
type SealSettings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
	Pepper      string `mapstructure:"pepper"`
}

// GateSettings configures validation of upstream gate tokens.
type GateSettings struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

type PolicySettings struct {
	RejectBlockedDevices bool `mapstructure:"reject_blocked_devices"`
}

type RetentionSettings struct {
	Enabled           bool          `mapstructure:"enabled"`
	VerificationLogs  time.Duration `mapstructure:"verification_logs"`
	RateLimitAttempts time.Duration `mapstructure:"rate_limit_attempts"`
	Schedule          time.Duration `mapstructure:"schedule"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.log_level",
		"app.auto_migrate",
		"app.cors_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.backend",
		"rate_limit.window_duration",
		"rate_limit.max_attempts",
		"rate_limit.http_max_attempts",
		"lockout.max_attempts",
		"lockout.duration",
		"matching.confidence_threshold",
		"matching.mismatch_threshold",
		"matching.exact_match_confidence",
		"matching.enhanced_dimension",
		"matching.min_quality",
		"matching.confirmation_threshold",
		"seal.memory",
		"seal.iterations",
		"seal.parallelism",
		"seal.salt_length",
		"seal.key_length",
		"seal.pepper",
		"gate.secret",
		"gate.issuer",
		"gate.audience",
		"policy.reject_blocked_devices",
		"retention.enabled",
		"retention.verification_logs",
		"retention.rate_limit_attempts",
		"retention.schedule",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.RateLimit.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("config: rate_limit.backend must be postgres or redis, got %q", c.RateLimit.Backend)
	}
	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("config: rate_limit.max_attempts and rate_limit.window_duration must be positive")
	}
	if c.Lockout.MaxAttempts <= 0 || c.Lockout.Duration <= 0 {
		return fmt.Errorf("config: lockout.max_attempts and lockout.duration must be positive")
	}
	m := c.Matching
	if m.MismatchThreshold < 0 || m.MismatchThreshold > m.ConfidenceThreshold || m.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: matching thresholds must satisfy 0 <= mismatch <= confidence <= 1")
	}
	if m.ExactMatchConfidence < m.ConfidenceThreshold || m.ExactMatchConfidence > 1 {
		return fmt.Errorf("config: matching.exact_match_confidence must lie in [confidence_threshold, 1]")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "workforce-biometric")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.auto_migrate", false)
	v.SetDefault("app.cors_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "biometric")
	v.SetDefault("postgres.password", "biometric_password")
	v.SetDefault("postgres.database", "workforce")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "biometric:ratelimit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "biometric")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "workforce-biometric")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.backend", "postgres")
	v.SetDefault("rate_limit.window_duration", "60s")
	v.SetDefault("rate_limit.max_attempts", 10)
	v.SetDefault("rate_limit.http_max_attempts", 60)

	v.SetDefault("lockout.max_attempts", 3)
	v.SetDefault("lockout.duration", "15m")

	v.SetDefault("matching.confidence_threshold", 0.85)
	v.SetDefault("matching.mismatch_threshold", 0.5)
	v.SetDefault("matching.exact_match_confidence", 0.95)
	v.SetDefault("matching.enhanced_dimension", 1002)
	v.SetDefault("matching.min_quality", 0.3)
	v.SetDefault("matching.confirmation_threshold", 0.85)

	v.SetDefault("seal.memory", 65536) // 64 MB
	v.SetDefault("seal.iterations", 3)
	v.SetDefault("seal.parallelism", 4)
	v.SetDefault("seal.salt_length", 16)
	v.SetDefault("seal.key_length", 32)
	v.SetDefault("seal.pepper", "")

	v.SetDefault("gate.secret", "")
	v.SetDefault("gate.issuer", "workforce-gate")
	v.SetDefault("gate.audience", "workforce-biometric")

	v.SetDefault("policy.reject_blocked_devices", false)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.verification_logs", "8760h")
	v.SetDefault("retention.rate_limit_attempts", "24h")
	v.SetDefault("retention.schedule", "1h")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
