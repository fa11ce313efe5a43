package config

import (
	"fmt"
	"strings"
	"time"

	pkgauth "github.com/agrirent/agrirent/pkg/auth"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	URLs     URLConfig
	Redis    RedisConfig
}

type DatabaseConfig struct {
	Host              string        `envconfig:"DB_HOST" default:"localhost"`
	Port              int           `envconfig:"DB_PORT" default:"5432"`
	User              string        `envconfig:"DB_USER" default:"postgres"`
	Password          string        `envconfig:"DB_PASSWORD" required:"true"`
	Name              string        `envconfig:"DB_NAME" default:"agrirent"`
	SSLMode           string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"5"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"5m"`
	MaxConnIdleTime   time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"1m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

type ServerConfig struct {
	Port           string   `envconfig:"PORT" default:"5000"`
	Env            string   `envconfig:"ENV" default:"development"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	MigrateOnStart bool     `envconfig:"MIGRATE_ON_START" default:"true"`
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

type AuthConfig struct {
	JWTSecret           string        `envconfig:"JWT_SECRET" required:"true"`
	ActivationSecret    string        `envconfig:"JWT_ACTIVATION_SECRET" required:"true"`
	ResetSecret         string        `envconfig:"JWT_RESET_SECRET" required:"true"`
	SessionTTL          TTL           `envconfig:"JWT_EXPIRE" default:"1d"`
	ResetTTL            TTL           `envconfig:"JWT_RESET_EXPIRE" default:"1h"`
	BcryptCost          int           `envconfig:"BCRYPT_COST" default:"12"`
	TimingDelayBaseMs   int           `envconfig:"TIMING_DELAY_BASE_MS" default:"200"`
	TimingDelayRandomMs int           `envconfig:"TIMING_DELAY_RANDOM_MS" default:"100"`
	CleanupInterval     time.Duration `envconfig:"RESET_CLEANUP_INTERVAL" default:"1h"`
	RateLimitPerMinute  int           `envconfig:"AUTH_RATE_LIMIT_PER_MINUTE" default:"10"`
}

type EmailConfig struct {
	Provider    string        `envconfig:"EMAIL_PROVIDER" default:"ses"`
	FromAddress string        `envconfig:"EMAIL_FROM"`
	AWSRegion   string        `envconfig:"AWS_REGION" default:"us-east-1"`
	SendTimeout time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
	MaxInFlight int           `envconfig:"EMAIL_MAX_INFLIGHT" default:"32"`
}

type URLConfig struct {
	Frontend         string   `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	UserFrontend     string   `envconfig:"USER_FRONTEND_URL"`
	ProviderFrontend string   `envconfig:"PROVIDER_FRONTEND_URL"`
	Backend          string   `envconfig:"BACKEND_URL" default:"http://localhost:5000"`
	FrontendURLs     []string `envconfig:"FRONTEND_URLS" default:"http://localhost:3000,http://localhost:3001,http://localhost:3002"`
	FrontendPorts    []string `envconfig:"FRONTEND_PORTS" default:"3000,3001,3002"`
}

type RedisConfig struct {
	URL                string        `envconfig:"REDIS_URL"`
	ResetRequestLimit  int           `envconfig:"RESET_REQUEST_LIMIT" default:"5"`
	ResetRequestWindow time.Duration `envconfig:"RESET_REQUEST_WINDOW" default:"1h"`
}

// TTL is a token lifetime written in the compact grammar accepted by pkg/auth.ParseTTL
type TTL time.Duration

// Decode implements envconfig.Decoder
func (t *TTL) Decode(value string) error {
	*t = TTL(pkgauth.ParseTTL(value))
	return nil
}

func (t TTL) Duration() time.Duration {
	return time.Duration(t)
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	sections := []struct {
		name string
		target interface{}
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"auth", &cfg.Auth},
		{"email", &cfg.Email},
		{"urls", &cfg.URLs},
		{"redis", &cfg.Redis},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("%s config: %w", s.name, err)
		}
	}

	cfg.URLs.FrontendURLs = trimAll(cfg.URLs.FrontendURLs)
	cfg.URLs.FrontendPorts = trimAll(cfg.URLs.FrontendPorts)
	cfg.Server.TrustedProxies = trimAll(cfg.Server.TrustedProxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	secrets := map[string]string{
		"JWT_SECRET":            c.Auth.JWTSecret,
		"JWT_ACTIVATION_SECRET": c.Auth.ActivationSecret,
		"JWT_RESET_SECRET":      c.Auth.ResetSecret,
	}
	for name, secret := range secrets {
		if err := validateJWTSecret(name, secret, c.Server.Env); err != nil {
			return err
		}
	}

	// A shared secret would let one token kind be replayed as another
	if c.IsProduction() &&
		(c.Auth.JWTSecret == c.Auth.ActivationSecret ||
			c.Auth.JWTSecret == c.Auth.ResetSecret ||
			c.Auth.ActivationSecret == c.Auth.ResetSecret) {
		return fmt.Errorf("JWT_SECRET, JWT_ACTIVATION_SECRET and JWT_RESET_SECRET must differ in production")
	}

	switch c.Email.Provider {
	case "ses":
		if c.Email.FromAddress == "" {
			return fmt.Errorf("EMAIL_FROM is required when EMAIL_PROVIDER=ses")
		}
	case "log":
		if c.IsProduction() {
			return fmt.Errorf("EMAIL_PROVIDER=log is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider)
	}

	if c.URLs.Frontend == "" {
		return fmt.Errorf("FRONTEND_URL is required")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// validateJWTSecret enforces minimum security standards for a signing secret
func validateJWTSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
