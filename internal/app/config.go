package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     StorageConfig
	Auth        AuthConfig
	Order       OrderConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// StorageConfig selects where products and orders live.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Storage driver: postgres or memory"`
	CatalogFile string `default:"db/seed/products.json" usage:"Catalog loaded by the memory driver (.json or .json.gz)"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string        `usage:"HS256 signing secret (SHOP_AUTH_SECRET)" flag:"auth-secret"`
	Issuer string        `default:"scent-shop" usage:"Expected token issuer"`
	TTL    time.Duration `default:"15m" usage:"Lifetime of tokens issued by the seed tool"`
}

// OrderConfig bounds the release of reserved stock after a failed placement.
type OrderConfig struct {
	RestoreAttempts   int           `default:"5" usage:"Attempts per stock restore"`
	RestoreBackoff    time.Duration `default:"50ms" usage:"Initial delay between restore attempts"`
	RestoreMaxBackoff time.Duration `default:"1s" usage:"Maximum delay between restore attempts"`
	RestoreTimeout    time.Duration `default:"10s" usage:"Overall deadline for releasing one order's reservations"`
}

// RateLimitConfig throttles order placement per authenticated user.
type RateLimitConfig struct {
	PerMinute int `default:"30" usage:"Sustained order placements per user per minute"`
	Burst     int `default:"10" usage:"Order placement burst per user"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		Files: []string{"config.yaml", "/etc/scent-shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(base aconfig.Config) (*Config, error) {
	var cfg Config
	base.EnvPrefix = "SHOP"
	if err := aconfig.LoaderFor(&cfg, base).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided DATABASE_URL and PORT onto the
// SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
		if c.Storage.CatalogFile == "" {
			return errors.New("memory storage needs a catalog file")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required: set SHOP_AUTH_SECRET")
	}
	if c.Order.RestoreAttempts < 1 {
		return errors.New("order restore attempts must be at least 1")
	}
	return nil
}
