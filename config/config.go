// Package config loads service configuration from an optional .env file, an
// optional YAML file and AITRADING_* environment variables, in that order of
// increasing precedence. Zero fields then take their struct-tag defaults and
// the result is validated.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pxbt-dev/AiTradingCharts/internal/gateway"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/marketdata/binance"
	"github.com/pxbt-dev/AiTradingCharts/internal/marketdata/history"
	"github.com/pxbt-dev/AiTradingCharts/internal/modelclient"
	"github.com/pxbt-dev/AiTradingCharts/internal/pattern"
	"github.com/pxbt-dev/AiTradingCharts/internal/relay"
	"github.com/pxbt-dev/AiTradingCharts/internal/trainer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AITRADING_"

// History sources.
const (
	HistoryBinance = "binance"
	HistorySQLite  = "sqlite"
	HistoryNone    = "none"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig      `yaml:"service"`
	Feed     binance.Config     `yaml:"feed"`
	Cache    CacheConfig        `yaml:"cache"`
	Analysis AnalysisConfig     `yaml:"analysis"`
	HTTP     HTTPConfig         `yaml:"http"`
	Redis    relay.Config       `yaml:"redis"`
	Model    modelclient.Config `yaml:"model"`
	History  HistoryConfig      `yaml:"history"`
	Trainer  trainer.Config     `yaml:"trainer"`
	Log      logger.Config      `yaml:"log"`
}

type ServiceConfig struct {
	Name           string        `yaml:"name" default:"aitrading"`
	Symbols        []string      `yaml:"symbols" default:"[\"BTC\",\"ETH\",\"SOL\",\"ADA\",\"DOT\"]" validate:"min=1,dive,required,alphanum"`
	HealthInterval time.Duration `yaml:"health_interval" default:"15s"`
}

type CacheConfig struct {
	Capacity       int `yaml:"capacity" default:"20000" validate:"gte=1"`
	BootstrapLimit int `yaml:"bootstrap_limit" default:"1000" validate:"gte=1"`
	// AnalysisWindow bounds how many recent points each analysis reads;
	// zero reads the whole series.
	AnalysisWindow int `yaml:"analysis_window" validate:"gte=0"`
}

type AnalysisConfig struct {
	Pattern pattern.Config `yaml:"pattern"`

	// ProviderBudget caps the model service time spent on one tick across
	// all timeframes.
	ProviderBudget time.Duration `yaml:"provider_budget" default:"1s"`
}

type HTTPConfig struct {
	Addr            string               `yaml:"addr" default:":8080" validate:"required"`
	ShutdownTimeout time.Duration        `yaml:"shutdown_timeout" default:"10s"`
	WebSocket       gateway.ClientConfig `yaml:"websocket"`
}

type HistoryConfig struct {
	Source     string                `yaml:"source" default:"binance" validate:"oneof=binance sqlite none"`
	SQLitePath string                `yaml:"sqlite_path" default:"data/klines.db"`
	Binance    history.BinanceConfig `yaml:"binance"`
}

// Load reads configuration. path may be empty to skip the YAML file; a
// missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	c.normalize()
	return &c
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Model.Enabled && c.Model.BaseURL == "" {
		return fmt.Errorf("model.base_url is required when model.enabled is true")
	}
	if c.Trainer.Enabled && !c.Model.Enabled {
		return fmt.Errorf("trainer.enabled requires model.enabled")
	}
	if c.History.Source == HistorySQLite && c.History.SQLitePath == "" {
		return fmt.Errorf("history.sqlite_path is required for the sqlite source")
	}
	return nil
}

func (c *Config) normalize() {
	seen := make(map[string]bool, len(c.Service.Symbols))
	out := c.Service.Symbols[:0]
	for _, s := range c.Service.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	c.Service.Symbols = out
}

// applyEnv overrides fields from AITRADING_* variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SERVICE_NAME":      &c.Service.Name,
		"FEED_URL_TEMPLATE": &c.Feed.URLTemplate,
		"FEED_BACKOFF":      &c.Feed.Backoff,
		"HTTP_ADDR":         &c.HTTP.Addr,
		"REDIS_ADDR":        &c.Redis.Addr,
		"REDIS_PASSWORD":    &c.Redis.Password,
		"REDIS_PREFIX":      &c.Redis.Prefix,
		"MODEL_URL":         &c.Model.BaseURL,
		"HISTORY_SOURCE":    &c.History.Source,
		"SQLITE_PATH":       &c.History.SQLitePath,
		"TRAINER_SCHEDULE":  &c.Trainer.Schedule,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FORMAT":        &c.Log.Format,
		"LOG_OUTPUT":        &c.Log.Output,
	}
	for key, dst := range strs {
		if v, ok := getEnv(key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"REDIS_ENABLED":        &c.Redis.Enabled,
		"MODEL_ENABLED":        &c.Model.Enabled,
		"TRAINER_ENABLED":      &c.Trainer.Enabled,
		"TRAINER_RUN_ON_START": &c.Trainer.RunOnStart,
	}
	for key, dst := range bools {
		if v, ok := getEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"FEED_RECONNECT_DELAY": &c.Feed.ReconnectDelay,
		"REDIS_ANALYSIS_TTL":   &c.Redis.AnalysisTTL,
	}
	for key, dst := range durations {
		if v, ok := getEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"REDIS_DB":       &c.Redis.DB,
		"CACHE_CAPACITY": &c.Cache.Capacity,
	}
	for key, dst := range ints {
		if v, ok := getEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := getEnv("SYMBOLS"); ok {
		c.Service.Symbols = strings.Split(v, ",")
	}
	return nil
}

func getEnv(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return "", false
	}
	return v, true
}
