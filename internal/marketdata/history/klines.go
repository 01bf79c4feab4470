package history

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// maxKlines is the largest page the klines endpoint returns.
const maxKlines = 1000

// BinanceConfig configures the klines source.
type BinanceConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Quote        string        `yaml:"quote" default:"USDT"`
	Interval     string        `yaml:"interval" default:"1d"`
	RateLimit    float64       `yaml:"rate_limit" default:"10" validate:"gt=0"`
	Burst        int           `yaml:"burst" default:"20" validate:"gte=1"`
	MaxRetries   int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	RetryBackoff time.Duration `yaml:"retry_backoff" default:"100ms"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
}

func (c *BinanceConfig) defaults() {
	if c.Quote == "" {
		c.Quote = "USDT"
	}
	if c.Interval == "" {
		c.Interval = "1d"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// BinanceSource reads spot klines through the public REST API.
type BinanceSource struct {
	cfg     BinanceConfig
	client  *binance.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewBinanceSource creates an unauthenticated klines client.
func NewBinanceSource(cfg BinanceConfig, log zerolog.Logger) *BinanceSource {
	cfg.defaults()
	client := binance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &BinanceSource{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		log:     logger.Component(log, "binance_klines"),
	}
}

// Name implements Source.
func (s *BinanceSource) Name() string { return "binance" }

// Load implements Source.
func (s *BinanceSource) Load(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	if limit <= 0 || limit > maxKlines {
		limit = maxKlines
	}
	pair := strings.ToUpper(symbol) + s.cfg.Quote

	var (
		klines []*binance.Kline
		err    error
	)
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if err = s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		klines, err = s.client.NewKlinesService().
			Symbol(pair).
			Interval(s.cfg.Interval).
			Limit(limit).
			Do(ctx)
		if err == nil {
			break
		}
		if attempt == s.cfg.MaxRetries {
			return nil, fmt.Errorf("%w: klines %s: %v", model.ErrTransport, pair, err)
		}

		wait := s.cfg.RetryBackoff << attempt
		s.log.Debug().Err(err).Str("pair", pair).Int("attempt", attempt+1).Dur("wait", wait).Msg("klines request failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	points := make([]model.PricePoint, 0, len(klines))
	for _, k := range klines {
		p, err := klinePoint(strings.ToUpper(symbol), k)
		if err != nil {
			s.log.Warn().Err(err).Str("pair", pair).Int64("open_time", k.OpenTime).Msg("skipping malformed kline")
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

func klinePoint(symbol string, k *binance.Kline) (model.PricePoint, error) {
	var vals [5]float64
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return model.PricePoint{}, fmt.Errorf("%w: %q: %v", model.ErrInvalidTick, raw, err)
		}
		vals[i] = d.InexactFloat64()
	}
	return model.PricePoint{
		Symbol:    symbol,
		Timestamp: k.OpenTime,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
