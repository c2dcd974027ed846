package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Logger   Logger   `mapstructure:"logger"`
	Market   Market   `mapstructure:"market"`
	Engine   Engine   `mapstructure:"engine"`
	Risk     Risk     `mapstructure:"risk"`
	Auth     Auth     `mapstructure:"auth"`
	Plans    []Plan   `mapstructure:"plans"`
}

// Server holds the configuration for the HTTP API.
type Server struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Market holds the configuration for the price sources.
type Market struct {
	ProviderURL     string        `mapstructure:"provider_url"`
	RegionalURL     string        `mapstructure:"regional_url"`
	RegionalSymbols []string      `mapstructure:"regional_symbols"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	JitterPct       float64       `mapstructure:"jitter_pct"`
	// Offline disables both network tiers; quotes come from the static table only.
	Offline bool `mapstructure:"offline"`
}

// Engine holds the configuration for trade execution.
type Engine struct {
	CommissionRate float64       `mapstructure:"commission_rate"`
	LockWait       time.Duration `mapstructure:"lock_wait"`
}

// Risk holds the default limits stamped on new challenges.
type Risk struct {
	MaxDailyLossPct float64 `mapstructure:"max_daily_loss_pct"`
	MaxTotalLossPct float64 `mapstructure:"max_total_loss_pct"`
	ProfitTargetPct float64 `mapstructure:"profit_target_pct"`
}

// Auth holds the token signing secret shared with the identity service.
type Auth struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// Plan is one entry of the plan catalog seeded into the database.
type Plan struct {
	Slug         string   `mapstructure:"slug"`
	Name         string   `mapstructure:"name"`
	Fee          float64  `mapstructure:"fee"`
	StartBalance float64  `mapstructure:"start_balance"`
	Features     []string `mapstructure:"features"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.dsn", "propdesk.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("market.provider_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.regional_url", "https://www.boursenews.ma")
	v.SetDefault("market.regional_symbols", []string{"IAM", "ATW"})
	v.SetDefault("market.timeout", "5s")
	v.SetDefault("market.rate_limit", 5)       // requests per second
	v.SetDefault("market.rate_limit_burst", 2) // burst size
	v.SetDefault("market.cache_ttl", "60s")
	v.SetDefault("market.jitter_pct", 0.1)
	v.SetDefault("market.offline", false)

	v.SetDefault("engine.commission_rate", 0.001)
	v.SetDefault("engine.lock_wait", "3s")

	v.SetDefault("risk.max_daily_loss_pct", 5.0)
	v.SetDefault("risk.max_total_loss_pct", 10.0)
	v.SetDefault("risk.profit_target_pct", 10.0)

	v.SetDefault("auth.secret", "dev-secret")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("plans", []map[string]any{
		{"slug": "starter", "name": "Starter", "fee": 200.0, "start_balance": 5000.0},
		{"slug": "pro", "name": "Pro", "fee": 500.0, "start_balance": 10000.0},
		{"slug": "elite", "name": "Elite", "fee": 1000.0, "start_balance": 25000.0},
	})
}
