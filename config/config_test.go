package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if got := strings.Join(c.Service.Symbols, ","); got != "BTC,ETH,SOL,ADA,DOT" {
		t.Errorf("symbols = %s", got)
	}
	if c.Feed.ReconnectDelay != 30*time.Second || c.Feed.Backoff != "fixed" {
		t.Errorf("feed = %+v", c.Feed)
	}
	if c.Cache.Capacity != 20000 || c.Cache.BootstrapLimit != 1000 {
		t.Errorf("cache = %+v", c.Cache)
	}
	if c.Analysis.Pattern.MinPoints != 20 || c.Analysis.Pattern.ClusterTolerance != 0.02 {
		t.Errorf("pattern = %+v", c.Analysis.Pattern)
	}
	if c.Analysis.ProviderBudget != time.Second {
		t.Errorf("provider budget = %v, want 1s", c.Analysis.ProviderBudget)
	}
	if c.Model.MaxFailures != 3 || c.Model.ResetAfter != 30*time.Second {
		t.Errorf("model breaker = %d/%v", c.Model.MaxFailures, c.Model.ResetAfter)
	}
	if c.Redis.Prefix != "aitrading" || c.Redis.Enabled {
		t.Errorf("redis = %+v", c.Redis)
	}
	if c.HTTP.Addr != ":8080" || c.HTTP.WebSocket.SendBuffer != 256 {
		t.Errorf("http = %+v", c.HTTP)
	}
	if c.History.Source != HistoryBinance || c.History.Binance.Interval != "1d" {
		t.Errorf("history = %+v", c.History)
	}
	if c.Log.Level != "info" || c.Log.Format != "json" {
		t.Errorf("log = %+v", c.Log)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeFile(t, `
service:
  symbols: [btc, eth, btc]
feed:
  backoff: exponential
  reconnect_delay: 5s
redis:
  enabled: true
  addr: redis:6379
log:
  level: debug
`)
	t.Setenv("AITRADING_REDIS_ADDR", "cache:6380")
	t.Setenv("AITRADING_LOG_FORMAT", "console")
	t.Setenv("AITRADING_FEED_RECONNECT_DELAY", "7s")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := strings.Join(c.Service.Symbols, ","); got != "BTC,ETH" {
		t.Errorf("symbols = %s, want BTC,ETH", got)
	}
	if c.Feed.Backoff != "exponential" || c.Feed.ReconnectDelay != 7*time.Second {
		t.Errorf("feed = %+v", c.Feed)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "cache:6380" {
		t.Errorf("redis = %+v", c.Redis)
	}
	if c.Log.Level != "debug" || c.Log.Format != "console" {
		t.Errorf("log = %+v", c.Log)
	}
	if c.Cache.Capacity != 20000 {
		t.Errorf("capacity default not applied: %d", c.Cache.Capacity)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"bad yaml", "service: [", nil},
		{"bad backoff", "feed:\n  backoff: random\n", nil},
		{"bad history source", "history:\n  source: s3\n", nil},
		{"model without url", "model:\n  enabled: true\n", nil},
		{"trainer without model", "trainer:\n  enabled: true\n", nil},
		{"bad bool env", "", map[string]string{"AITRADING_REDIS_ENABLED": "maybe"}},
		{"bad duration env", "", map[string]string{"AITRADING_FEED_RECONNECT_DELAY": "soon"}},
		{"bad symbol", "service:\n  symbols: [\"BTC-USD\"]\n", nil},
		{"bad log level", "log:\n  level: loud\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(writeFile(t, tt.yaml)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load without file: %v", err)
	}
}

func TestLoad_SymbolsEnv(t *testing.T) {
	t.Setenv("AITRADING_SYMBOLS", "sol, ada")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := strings.Join(c.Service.Symbols, ","); got != "SOL,ADA" {
		t.Errorf("symbols = %s, want SOL,ADA", got)
	}
}
