// Package config defines the exchange configuration and the conversions to
// the per-package config structs.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/classroom-exchange/internal/execution"
	"github.com/atmx/classroom-exchange/internal/sim"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root configuration. Fields come from a TOML or YAML file and
// are then optionally overridden by EXCHANGE_* environment variables.
type Config struct {
	Mode      string `toml:"mode" yaml:"mode"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	StartDate string `toml:"start_date" yaml:"start_date"`

	Market    sim.Config      `toml:"market" yaml:"market"`
	Execution ExecutionConfig `toml:"execution" yaml:"execution"`
	Paths     PathsConfig     `toml:"paths" yaml:"paths"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Database  DatabaseConfig  `toml:"database" yaml:"database"`
	Redis     RedisConfig     `toml:"redis" yaml:"redis"`
}

// ExecutionConfig holds trading costs and limits.
type ExecutionConfig struct {
	InitialCash       float64 `toml:"initial_cash" yaml:"initial_cash"`
	FeePerTrade       float64 `toml:"fee_per_trade" yaml:"fee_per_trade"`
	SlippageBps       float64 `toml:"slippage_bps" yaml:"slippage_bps"`
	PriceField        string  `toml:"price_field" yaml:"price_field"`
	MaxPositionWeight float64 `toml:"max_position_weight" yaml:"max_position_weight"`
}

// PathsConfig locates every file the exchange reads or writes.
type PathsConfig struct {
	StateDir        string `toml:"state_dir" yaml:"state_dir"`
	MarketState     string `toml:"market_state" yaml:"market_state"`
	PricesOut       string `toml:"prices_out" yaml:"prices_out"`
	NewsOut         string `toml:"news_out" yaml:"news_out"`
	ReportsDir      string `toml:"reports_dir" yaml:"reports_dir"`
	LeaderboardsDir string `toml:"leaderboards_dir" yaml:"leaderboards_dir"`
	SiteDataDir     string `toml:"site_data_dir" yaml:"site_data_dir"`
	SecurityMaster  string `toml:"security_master" yaml:"security_master"`
	OrdersJSON      string `toml:"orders_json" yaml:"orders_json"`
}

// ServerConfig holds the display API settings.
type ServerConfig struct {
	Port         int      `toml:"port" yaml:"port"`
	CORSOrigins  []string `toml:"cors_origins" yaml:"cors_origins"`
	TickInterval duration `toml:"tick_interval" yaml:"tick_interval"`
	HistoryLen   int      `toml:"history_len" yaml:"history_len"`
}

// DatabaseConfig selects the PostgreSQL portfolio store. An empty URL keeps
// portfolios in files under Paths.StateDir.
type DatabaseConfig struct {
	URL           string `toml:"url" yaml:"url"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig enables the portfolio cache and the cross-process tick lock.
type RedisConfig struct {
	URL      string   `toml:"url" yaml:"url"`
	CacheTTL duration `toml:"cache_ttl" yaml:"cache_ttl"`
	LockTTL  duration `toml:"lock_ttl" yaml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that decodes from strings like
// "5m" or "30s" in both TOML and YAML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// Defaults returns a Config populated with the classroom defaults.
func Defaults() Config {
	return Config{
		Mode:      sim.Intraday.Name,
		LogLevel:  "info",
		StartDate: "2025-01-06",
		Market:    sim.DefaultConfig(),
		Execution: ExecutionConfig{
			InitialCash:       100_000,
			FeePerTrade:       1.0,
			SlippageBps:       5.0,
			PriceField:        string(execution.PriceClose),
			MaxPositionWeight: 0.20,
		},
		Paths: PathsConfig{
			StateDir:        "data/state",
			MarketState:     "data/state/market_state.json",
			PricesOut:       "data/market/prices_hourly.csv",
			NewsOut:         "data/market/news_hourly.jsonl",
			ReportsDir:      "data/reports",
			LeaderboardsDir: "data/leaderboards",
			SiteDataDir:     "site/data",
			SecurityMaster:  "data/reference/ticker_info.csv",
			OrdersJSON:      "data/orders/issues.json",
		},
		Server: ServerConfig{
			Port:         8080,
			CORSOrigins:  []string{"*"},
			TickInterval: duration{time.Hour},
			HistoryLen:   35,
		},
		Database: DatabaseConfig{RunMigrations: true},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
			LockTTL:  duration{2 * time.Minute},
		},
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := sim.ModeByName(c.Mode); !ok {
		errs = append(errs, fmt.Sprintf("mode must be daily or intraday, got %q", c.Mode))
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if _, err := time.Parse(sim.DateLayout, c.StartDate); err != nil {
		errs = append(errs, fmt.Sprintf("start_date must be YYYY-MM-DD, got %q", c.StartDate))
	}
	if err := c.Market.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	e := c.Execution
	if e.InitialCash <= 0 {
		errs = append(errs, "execution.initial_cash must be > 0")
	}
	if e.MaxPositionWeight <= 0 || e.MaxPositionWeight > 1 {
		errs = append(errs, fmt.Sprintf("execution.max_position_weight must be in (0, 1], got %g", e.MaxPositionWeight))
	}
	if err := c.ExecutionConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	for name, p := range map[string]string{
		"paths.state_dir":        c.Paths.StateDir,
		"paths.market_state":     c.Paths.MarketState,
		"paths.prices_out":       c.Paths.PricesOut,
		"paths.news_out":         c.Paths.NewsOut,
		"paths.reports_dir":      c.Paths.ReportsDir,
		"paths.leaderboards_dir": c.Paths.LeaderboardsDir,
		"paths.site_data_dir":    c.Paths.SiteDataDir,
	} {
		if p == "" {
			errs = append(errs, name+" is required")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.TickInterval.Duration < 0 {
		errs = append(errs, "server.tick_interval must not be negative")
	}
	if c.Redis.URL != "" && c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis.lock_ttl must be > 0 when redis is enabled")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// SimMode resolves the configured generator granularity.
func (c *Config) SimMode() sim.Mode {
	m, ok := sim.ModeByName(c.Mode)
	if !ok {
		return sim.Intraday
	}
	return m
}

// SimConfig returns the market configuration. Regime entries in the file
// replace the defaults regime by regime; an emptied model falls back to the
// defaults.
func (c *Config) SimConfig() sim.Config {
	m := c.Market
	if m.Regimes.Params == nil {
		m.Regimes = sim.DefaultRegimeModel()
	}
	return m
}

// Start is the first simulated business day.
func (c *Config) Start() time.Time {
	t, err := time.Parse(sim.DateLayout, c.StartDate)
	if err != nil {
		return sim.BusinessDayOnOrAfter(time.Now().UTC())
	}
	return sim.BusinessDayOnOrAfter(t)
}

// ExecutionConfig converts the float settings to the decimal pipeline config.
func (c *Config) ExecutionConfig() execution.Config {
	return execution.Config{
		FeePerTrade: decimal.NewFromFloat(c.Execution.FeePerTrade),
		SlippageBps: decimal.NewFromFloat(c.Execution.SlippageBps),
		PriceField:  execution.PriceField(strings.ToLower(c.Execution.PriceField)),
	}
}

// InitialCash is the starting cash of every new team.
func (c *Config) InitialCash() decimal.Decimal {
	return decimal.NewFromFloat(c.Execution.InitialCash)
}

// MaxPositionWeight is the risk gate's concentration limit.
func (c *Config) MaxPositionWeight() decimal.Decimal {
	return decimal.NewFromFloat(c.Execution.MaxPositionWeight)
}

// PortfolioDir is where the file store keeps one JSON file per team.
func (c *Config) PortfolioDir() string {
	return filepath.Clean(c.Paths.StateDir)
}
