package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
env: test
baseAsset: BTC
markets:
  - BTC-LTC
  - BTC-ETH
exchange:
  baseURL: https://exchange.test/api/v1.1
  apiKey: key-1
  apiSecret: secret-1
store:
  path: /tmp/crocket.db
aggregator:
  intervalSec: 60
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "test" || cfg.BaseAsset != "BTC" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Markets) != 2 || cfg.Markets[0] != "BTC-LTC" {
		t.Fatalf("markets = %v", cfg.Markets)
	}
	// 未配置的字段落到默认值
	if cfg.Aggregator.PollShortSec != 30 || cfg.Aggregator.StaleThreshold != 2 {
		t.Fatalf("aggregator defaults = %+v", cfg.Aggregator)
	}
	if cfg.Executor.RetryBudget != 3 || cfg.Executor.BufferPercent != 5 {
		t.Fatalf("executor defaults = %+v", cfg.Executor)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("CROCKET_API_KEY", "env-key")
	t.Setenv("CROCKET_API_SECRET", "env-secret")
	t.Setenv("CROCKET_STORE_PATH", "/tmp/other.db")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg.Exchange)
	}
	if cfg.Store.Path != "/tmp/other.db" {
		t.Fatalf("store path = %s", cfg.Store.Path)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing env", func(c *AppConfig) { c.Env = "" }},
		{"missing base url", func(c *AppConfig) { c.Exchange.BaseURL = "" }},
		{"trading without credentials", func(c *AppConfig) {
			c.Exchange.APIKey = ""
			c.Exchange.CredentialsFile = ""
			c.Tradebot.Enabled = true
			c.Tradebot.BaseQuantity = 0.01
			c.Tradebot.VolumeSpike = 3
			c.Tradebot.Lookback = 5
		}},
		{"bad market symbol", func(c *AppConfig) { c.Markets = []string{"BTCLTC"} }},
		{"zero interval", func(c *AppConfig) { c.Aggregator.IntervalSec = 0 }},
		{"buffer out of range", func(c *AppConfig) { c.Executor.BufferPercent = 150 }},
		{"missing store path", func(c *AppConfig) { c.Store.Path = "" }},
		{"tradebot without quantity", func(c *AppConfig) {
			c.Tradebot.Enabled = true
			c.Tradebot.BaseQuantity = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tc.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("validate accepted bad config")
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Defaults()
	if cfg.Aggregator.Interval().Seconds() != 60 {
		t.Fatalf("interval = %v", cfg.Aggregator.Interval())
	}
	if cfg.Executor.ConfirmDelay().Seconds() != 3 {
		t.Fatalf("confirm delay = %v", cfg.Executor.ConfirmDelay())
	}
}
