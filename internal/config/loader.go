package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("config: unsupported file format (want .toml, .yaml or .yml)")

// Load reads the configuration file at path, merges it on top of the
// built-in defaults, applies EXCHANGE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

// applyEnvOverrides reads well-known EXCHANGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. The
// bare PORT, DATABASE_URL and REDIS_URL names are honoured first so the
// prefixed names win when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "EXCHANGE_MODE")
	setStr(&cfg.LogLevel, "EXCHANGE_LOG_LEVEL")
	setStr(&cfg.StartDate, "EXCHANGE_START_DATE")

	// ── Market ──
	setInt64(&cfg.Market.Seed, "EXCHANGE_SEED")
	setFloat64(&cfg.Market.News.ProbPerDay, "EXCHANGE_NEWS_PROB_PER_DAY")

	// ── Execution ──
	setFloat64(&cfg.Execution.InitialCash, "EXCHANGE_INITIAL_CASH")
	setFloat64(&cfg.Execution.FeePerTrade, "EXCHANGE_FEE")
	setFloat64(&cfg.Execution.SlippageBps, "EXCHANGE_SLIPPAGE_BPS")
	setStr(&cfg.Execution.PriceField, "EXCHANGE_PRICE_FIELD")
	setFloat64(&cfg.Execution.MaxPositionWeight, "EXCHANGE_MAX_POSITION_WEIGHT")

	// ── Paths ──
	setStr(&cfg.Paths.StateDir, "EXCHANGE_STATE_DIR")
	setStr(&cfg.Paths.MarketState, "EXCHANGE_MARKET_STATE")
	setStr(&cfg.Paths.PricesOut, "EXCHANGE_PRICES_OUT")
	setStr(&cfg.Paths.NewsOut, "EXCHANGE_NEWS_OUT")
	setStr(&cfg.Paths.ReportsDir, "EXCHANGE_REPORTS_DIR")
	setStr(&cfg.Paths.LeaderboardsDir, "EXCHANGE_LEADERBOARDS_DIR")
	setStr(&cfg.Paths.SiteDataDir, "EXCHANGE_SITE_DATA_DIR")
	setStr(&cfg.Paths.SecurityMaster, "EXCHANGE_SECURITY_MASTER")
	setStr(&cfg.Paths.OrdersJSON, "EXCHANGE_ORDERS_JSON")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "EXCHANGE_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "EXCHANGE_CORS_ORIGINS")
	setDuration(&cfg.Server.TickInterval, "EXCHANGE_TICK_INTERVAL")

	// ── Database / Redis ──
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Database.URL, "EXCHANGE_DATABASE_URL")
	setBool(&cfg.Database.RunMigrations, "EXCHANGE_RUN_MIGRATIONS")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.URL, "EXCHANGE_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "EXCHANGE_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "EXCHANGE_REDIS_LOCK_TTL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
