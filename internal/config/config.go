package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AuthModeDevelopment = "development"
	AuthModeStandalone  = "standalone"
	AuthModeExternal    = "external"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`

	ClinicTimezone string `mapstructure:"CLINIC_TIMEZONE"`
	MigrationsDir  string `mapstructure:"MIGRATIONS_DIR"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LOG_MAX_AGE_DAYS"`

	ReminderSweepEnabled bool   `mapstructure:"REMINDER_SWEEP_ENABLED"`
	ReminderSweepCron    string `mapstructure:"REMINDER_SWEEP_CRON"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
}

var envKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "DEFAULT_TENANT",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"CLINIC_TIMEZONE", "MIGRATIONS_DIR",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"REMINDER_SWEEP_ENABLED", "REMINDER_SWEEP_CRON",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
}

func Load() (*Config, error) {
	// Values already in the environment win over .env.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred, see ResolvedAuthMode
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("MIGRATIONS_DIR", "") // "" -> embedded migrations
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
	v.SetDefault("REMINDER_SWEEP_ENABLED", false)
	v.SetDefault("REMINDER_SWEEP_CRON", "@every 1m")
	v.SetDefault("SMTP_PORT", 587)

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments get the permissive dev mode, an AUTH_ISSUER selects external
// JWKS verification, and anything else verifies HS256 tokens signed with
// AUTH_SIGNING_KEY.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	if c.AuthIssuer != "" {
		return AuthModeExternal
	}
	return AuthModeStandalone
}

// Location resolves CLINIC_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	name := c.ClinicTimezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

// SMTPEnabled reports whether reminder e-mail goes out over SMTP rather than
// to the log.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE %q is not allowed when ENV=production", mode)
		}
	case AuthModeExternal:
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set when AUTH_MODE is %q", mode)
		}
	case AuthModeStandalone:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters when AUTH_MODE is %q", mode)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q, %q, or %q, got %q",
			AuthModeDevelopment, AuthModeStandalone, AuthModeExternal, mode)
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive and DB_MIN_CONNS non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ReminderSweepEnabled && c.ReminderSweepCron == "" {
		return fmt.Errorf("REMINDER_SWEEP_CRON is required when REMINDER_SWEEP_ENABLED is true")
	}
	if c.SMTPEnabled() && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}
