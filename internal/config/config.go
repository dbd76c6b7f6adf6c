package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// devResumeSecret signs resume tokens when no secret is configured outside
// production.
const devResumeSecret = "eyeexam-development-resume-secret"

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultClinic     string        `mapstructure:"DEFAULT_CLINIC"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	LockTTL           time.Duration `mapstructure:"LOCK_TTL"`
	ResumeTokenSecret string        `mapstructure:"RESUME_TOKEN_SECRET"`
	ResumeTokenTTL    time.Duration `mapstructure:"RESUME_TOKEN_TTL"`
	BackendURL        string        `mapstructure:"BACKEND_URL"`
	HTTPTimeout       time.Duration `mapstructure:"HTTP_TIMEOUT"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_CLINIC", "CORS_ORIGINS", "REDIS_URL", "LOCK_TTL",
	"RESUME_TOKEN_SECRET", "RESUME_TOKEN_TTL", "BACKEND_URL", "HTTP_TIMEOUT",
	"MIGRATIONS_DIR", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_CLINIC", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("RESUME_TOKEN_TTL", "12h")
	v.SetDefault("BACKEND_URL", "http://localhost:8000/api/v1")
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. DATABASE_URL is
// checked separately by RequireDatabase, since not every command needs it.
func (c *Config) Validate() error {
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.ResumeTokenTTL <= 0 {
		return fmt.Errorf("RESUME_TOKEN_TTL must be positive, got %s", c.ResumeTokenTTL)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive, got %g/%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.IsProduction() && len(c.ResumeTokenSecret) < 32 {
		return fmt.Errorf("RESUME_TOKEN_SECRET must be at least 32 bytes in production, got %d", len(c.ResumeTokenSecret))
	}
	return nil
}

// RequireDatabase is called by commands that open a pool.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// ResumeSecret returns the signing secret, falling back to a fixed
// development secret outside production.
func (c *Config) ResumeSecret() []byte {
	if c.ResumeTokenSecret == "" && !c.IsProduction() {
		return []byte(devResumeSecret)
	}
	return []byte(c.ResumeTokenSecret)
}
