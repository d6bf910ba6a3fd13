// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// them through the deployment environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server    Server
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Token     TokenConfig
	Referral  ReferralConfig
	AccessKey AccessKeyConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// PostgresConfig selects the durable referral store. An empty URL keeps the
// service on in-memory stores, which is what local development and most tests
// want.
type PostgresConfig struct {
	URL string
}

// RedisConfig selects the distributed access-key store. An empty URL keeps
// access keys in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig selects the audit event sink. No brokers means audit events go
// to the in-process store only.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TokenConfig signs the staff-referral tokens minted on access-key validation.
type TokenConfig struct {
	SigningKey string
	Issuer     string
	TTL        time.Duration
}

// ReferralConfig carries the lifecycle engine tunables.
type ReferralConfig struct {
	CoolDownDays int
}

// AccessKeyConfig carries the access-key engine tunables.
type AccessKeyConfig struct {
	MaxActiveKeys int
	MaxAttempts   int
	ExpireAfter   time.Duration
	CodeLength    int

	// EchoCode includes the plaintext code in the issue response. For test
	// environments only; production delivers codes out of band.
	EchoCode bool
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: envOr("REFERRAL_INTAKE_ADDR", ":8080"),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "referral-intake.audit"),
		},
		Token: TokenConfig{
			// Development default; production must override.
			SigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     envOr("JWT_ISSUER", "referral-intake"),
			TTL:        envDuration("STAFF_TOKEN_TTL", 30*time.Minute),
		},
		Referral: ReferralConfig{
			CoolDownDays: envInt("REFERRAL_COOLDOWN_DAYS", 42),
		},
		AccessKey: AccessKeyConfig{
			MaxActiveKeys: envInt("ACCESS_KEY_MAX_ACTIVE", 2),
			MaxAttempts:   envInt("ACCESS_KEY_MAX_ATTEMPTS", 3),
			ExpireAfter:   envDuration("ACCESS_KEY_EXPIRY", 10*time.Minute),
			CodeLength:    envInt("ACCESS_KEY_CODE_LENGTH", 6),
			EchoCode:      os.Getenv("ACCESS_KEY_ECHO_CODE") == "true",
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
