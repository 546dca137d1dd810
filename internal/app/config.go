package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// Config holds the complete application configuration, loadable from
// environment variables (DISCOUNT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DISCOUNT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Engine      EngineConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// EngineConfig controls stacking strategy selection and amount computation.
type EngineConfig struct {
	Strategy          string `default:"sequential" usage:"Stacking strategy: sequential, best, or all"`
	MaxPercentageCap  string `default:"100" usage:"Cap on total discount as a percentage of the original amount" flag:"max-percentage-cap"`
	RoundingMode      string `default:"half_up" usage:"Rounding mode: up, down, half_up, half_down, or half_even" flag:"rounding-mode"`
	RoundingPrecision int32  `default:"2" usage:"Decimal places for rounded amounts" flag:"rounding-precision"`
	DisableAudit      bool   `default:"false" usage:"Turn off audit trail writes" flag:"disable-audit"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// StrategyConfig converts the engine section into a discount.StrategyConfig,
// validating the cap and rounding settings.
func (c EngineConfig) StrategyConfig() (discount.StrategyConfig, error) {
	cfg := discount.DefaultStrategyConfig()

	capPct, err := decimal.NewFromString(c.MaxPercentageCap)
	if err != nil {
		return cfg, errors.Wrap(err, "parse max percentage cap")
	}
	// A cap above 100 would let a >100% rule drive the final amount negative.
	if capPct.Sign() < 0 || capPct.GreaterThan(decimal.NewFromInt(100)) {
		return cfg, errors.Errorf("max percentage cap must be between 0 and 100, got %s", capPct)
	}
	cfg.MaxPercentageCap = capPct

	mode, err := discount.ParseRoundingMode(c.RoundingMode)
	if err != nil {
		return cfg, err
	}
	cfg.RoundingMode = mode

	if c.RoundingPrecision < 0 {
		return cfg, errors.New("rounding precision must not be negative")
	}
	cfg.Precision = c.RoundingPrecision

	return cfg, nil
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DISCOUNT",
		Files:     []string{"config.yaml", "/etc/discount-engine/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DISCOUNT_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's DISCOUNT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
