package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/execution"
	"github.com/atmx/classroom-exchange/internal/model"
	"github.com/atmx/classroom-exchange/internal/sim"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.SimMode().Name != sim.Intraday.Name {
		t.Errorf("expected intraday default mode, got %s", cfg.SimMode().Name)
	}
	ex := cfg.ExecutionConfig()
	if !ex.FeePerTrade.Equal(decimal.NewFromInt(1)) || !ex.SlippageBps.Equal(decimal.NewFromInt(5)) || ex.PriceField != execution.PriceClose {
		t.Errorf("unexpected execution config: %+v", ex)
	}
	if !cfg.InitialCash().Equal(decimal.NewFromInt(100000)) || !cfg.MaxPositionWeight().Equal(decimal.NewFromFloat(0.2)) {
		t.Errorf("unexpected cash/weight: %s %s", cfg.InitialCash(), cfg.MaxPositionWeight())
	}
	if err := cfg.SimConfig().Validate(); err != nil {
		t.Errorf("sim config should validate: %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "exchange.toml", `
mode = "daily"
log_level = "debug"

[market]
seed = 42
universe = ["AAA", "BBB"]

[market.news]
news_prob_per_day = 0.05

[execution]
fee_per_trade = 2.5
price_field = "open"

[server]
tick_interval = "15m"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Mode != "daily" || cfg.Market.Seed != 42 || cfg.Market.Universe[0] != "AAA" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Market.News.ProbPerDay != 0.05 || cfg.Market.News.MacroProb != sim.DefaultNewsConfig().MacroProb {
		t.Errorf("nested news config not merged over defaults: %+v", cfg.Market.News)
	}
	if cfg.Execution.FeePerTrade != 2.5 || cfg.Execution.SlippageBps != 5 {
		t.Errorf("execution not merged: %+v", cfg.Execution)
	}
	if cfg.Server.TickInterval.Duration != 15*time.Minute {
		t.Errorf("expected 15m tick interval, got %s", cfg.Server.TickInterval)
	}
	if cfg.Market.Regimes.Params == nil {
		t.Error("regime model must survive file decoding")
	}
}

func TestLoad_RegimeOverrides(t *testing.T) {
	path := writeFile(t, "exchange.toml", `
[market.regimes.params.crisis]
mu = -0.002
sigma = 0.04

[market.regimes.transitions]
bull = [0.5, 0.3, 0.15, 0.05]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	m := cfg.SimConfig().Regimes
	if p := m.Params[model.RegimeCrisis]; p.Mu != -0.002 || p.Sigma != 0.04 {
		t.Errorf("crisis params not applied: %+v", p)
	}
	if m.Params[model.RegimeBull] != sim.DefaultRegimeModel().Params[model.RegimeBull] {
		t.Errorf("unlisted regime lost its defaults: %+v", m.Params[model.RegimeBull])
	}
	if row := m.Transitions[model.RegimeBull]; row[0] != 0.5 || row[3] != 0.05 {
		t.Errorf("bull transition row not applied: %v", row)
	}
	if len(m.Transitions[model.RegimeCrisis]) != 4 {
		t.Errorf("crisis transition row lost: %v", m.Transitions[model.RegimeCrisis])
	}
}

func TestLoad_InvalidRegimeRow(t *testing.T) {
	path := writeFile(t, "exchange.toml", `
[market.regimes.transitions]
bear = [0.5, 0.5, 0.5]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "bear") {
		t.Errorf("expected the bad bear row to fail validation, got %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "exchange.yaml", `
mode: intraday
market:
  seed: 9
  initial_regime: bull
execution:
  max_position_weight: 0.35
redis:
  lock_ttl: 45s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Market.Seed != 9 || cfg.Market.InitialRegime != "bull" || cfg.Execution.MaxPositionWeight != 0.35 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.Redis.LockTTL.Duration != 45*time.Second {
		t.Errorf("expected 45s lock ttl, got %s", cfg.Redis.LockTTL)
	}
	if len(cfg.Market.Universe) != len(sim.DefaultUniverse) {
		t.Errorf("universe default lost")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://bare")
	t.Setenv("EXCHANGE_DATABASE_URL", "postgres://prefixed")
	t.Setenv("EXCHANGE_SEED", "123")
	t.Setenv("EXCHANGE_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("PORT alias not honoured: %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://prefixed" {
		t.Errorf("prefixed name should win, got %q", cfg.Database.URL)
	}
	if cfg.Market.Seed != 123 {
		t.Errorf("seed override not applied: %d", cfg.Market.Seed)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.Server.CORSOrigins)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "exchange.ini", "mode=daily")
	if _, err := Load(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "weekly"
	cfg.Execution.InitialCash = 0
	cfg.Execution.PriceField = "mid"
	cfg.Server.Port = 0

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, want := range []string{"mode", "initial_cash", "price field", "server.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}
