package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

// Auth modes for room token validation.
const (
	AuthModePostgres = "postgres"
	AuthModeJWT      = "jwt"
	AuthModeNone     = "none"
)

type Config struct {
	Port           string          `mapstructure:"port"`
	Environment    string          `mapstructure:"environment"`
	AllowedOrigins []string        `mapstructure:"-"`
	JWTSecret      string          `mapstructure:"jwt_secret"`
	Redis          RedisConfig     `mapstructure:"redis"`
	Postgres       PostgresConfig  `mapstructure:"postgres"`
	Auth           AuthConfig      `mapstructure:"auth"`
	Signaling      SignalingConfig `mapstructure:"signaling"`
	Log            LogConfig       `mapstructure:"log"`
}

type RedisConfig struct {
	Host          string        `mapstructure:"host"`
	Port          string        `mapstructure:"port"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PresenceTTL   time.Duration `mapstructure:"presence_ttl"`
	PresenceQueue int           `mapstructure:"presence_queue"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type AuthConfig struct {
	// One of AuthModePostgres, AuthModeJWT, AuthModeNone.
	Mode string `mapstructure:"mode"`
	// HMAC secret for room tokens in jwt mode. Falls back to JWTSecret.
	RoomSecret string `mapstructure:"room_secret"`
}

type SignalingConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Environment variables recognised on top of the config file.
var envBindings = map[string]string{
	"port":                    "PORT",
	"environment":             "ENVIRONMENT",
	"allowed_origins":         "ALLOWED_ORIGINS",
	"jwt_secret":              "JWT_SECRET",
	"redis.host":              "REDIS_HOST",
	"redis.port":              "REDIS_PORT",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"redis.presence_ttl":      "REDIS_PRESENCE_TTL",
	"redis.presence_queue":    "REDIS_PRESENCE_QUEUE",
	"postgres.dsn":            "POSTGRES_DSN",
	"postgres.max_conns":      "POSTGRES_MAX_CONNS",
	"auth.mode":               "AUTH_MODE",
	"auth.room_secret":        "ROOM_TOKEN_SECRET",
	"signaling.idle_timeout":  "SIGNALING_IDLE_TIMEOUT",
	"signaling.send_timeout":  "SIGNALING_SEND_TIMEOUT",
	"signaling.reap_interval": "SIGNALING_REAP_INTERVAL",
	"signaling.stale_after":   "SIGNALING_STALE_AFTER",
	"signaling.read_limit":    "SIGNALING_READ_LIMIT",
	"signaling.rate_limit":    "SIGNALING_RATE_LIMIT",
	"signaling.rate_burst":    "SIGNALING_RATE_BURST",
	"log.level":               "LOG_LEVEL",
	"log.pretty":              "LOG_PRETTY",
}

// Load reads the optional yaml file named by CONFIG_PATH (default
// config/config.yaml), applies environment overrides and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := os.Getenv("CONFIG_PATH")
	if fileName == "" {
		fileName = "config/config.yaml"
	}
	v.SetConfigFile(fileName)

	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("jwt_secret", defaultJWTSecret)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presence_ttl", "24h")
	v.SetDefault("redis.presence_queue", 1024)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("auth.mode", AuthModeJWT)
	v.SetDefault("auth.room_secret", "")
	v.SetDefault("signaling.idle_timeout", "30s")
	v.SetDefault("signaling.send_timeout", "3s")
	v.SetDefault("signaling.reap_interval", "60s")
	v.SetDefault("signaling.stale_after", "120s")
	v.SetDefault("signaling.read_limit", 64*1024)
	v.SetDefault("signaling.rate_limit", 50)
	v.SetDefault("signaling.rate_burst", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults and environment")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AllowedOrigins = stringList(v.Get("allowed_origins"))
	if cfg.Auth.RoomSecret == "" {
		cfg.Auth.RoomSecret = cfg.JWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Auth.Mode {
	case AuthModePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("auth.mode=postgres requires postgres.dsn"))
		}
	case AuthModeJWT:
		if c.Auth.RoomSecret == "" {
			errs = append(errs, errors.New("auth.mode=jwt requires a room token secret"))
		}
	case AuthModeNone:
		if c.IsProduction() {
			errs = append(errs, errors.New("auth.mode=none is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}

	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}

	s := c.Signaling
	if s.IdleTimeout <= 0 || s.SendTimeout <= 0 || s.ReapInterval <= 0 || s.StaleAfter <= 0 {
		errs = append(errs, errors.New("signaling timeouts must be positive"))
	}
	if s.ReadLimit <= 0 {
		errs = append(errs, errors.New("signaling.read_limit must be positive"))
	}
	if s.RateLimit < 0 || s.RateBurst < 0 {
		errs = append(errs, errors.New("signaling rate limits must not be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// stringList accepts either a yaml list or a comma-separated string.
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
