// Package relay mirrors broadcast updates into Redis so other processes can
// follow the analysis stream without a websocket. The relay is best effort:
// failures are logged and counted, never returned to the ingest path.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Config configures the Redis relay.
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr" default:"localhost:6379"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" validate:"gte=0"`
	Prefix      string        `yaml:"prefix" default:"aitrading"`
	AnalysisTTL time.Duration `yaml:"analysis_ttl" default:"30m"`
	QueueSize   int           `yaml:"queue_size" default:"1024" validate:"gte=1"`
	Timeout     time.Duration `yaml:"timeout" default:"2s"`
	MaxFailures int           `yaml:"max_failures" default:"5" validate:"gte=1"`
	ResetAfter  time.Duration `yaml:"reset_after" default:"10s"`
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "aitrading"
	}
	if c.AnalysisTTL <= 0 {
		c.AnalysisTTL = 30 * time.Minute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	return c
}

// Relay is a model.Publisher backed by Redis pub/sub. Publish only enqueues;
// Run drains the queue and pipelines PUBLISH and SET for each update.
type Relay struct {
	cfg    Config
	client *goredis.Client
	cb     *CircuitBreaker
	queue  chan model.PriceUpdate

	// Encode renders the broadcast payload. It defaults to json.Marshal and
	// is normally set to the hub's encoder so both transports carry the
	// same bytes.
	Encode func(model.PriceUpdate) ([]byte, error)

	exec    func(ctx context.Context, channel string, payload []byte, key string, analysis []byte) error
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New connects to Redis and verifies the connection with PING.
func New(cfg Config, log zerolog.Logger) (*Relay, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	r := NewWithClient(client, cfg, log)
	r.log.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return r, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, log zerolog.Logger) *Relay {
	cfg = cfg.withDefaults()
	r := &Relay{
		cfg:    cfg,
		client: client,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetAfter),
		queue:  make(chan model.PriceUpdate, cfg.QueueSize),
		Encode: func(u model.PriceUpdate) ([]byte, error) { return json.Marshal(u) },
		log:    logger.Component(log, "relay"),
	}
	r.exec = r.pipeline
	r.cb.OnStateChange = r.onStateChange
	return r
}

// SetMetrics attaches Prometheus metrics. m may be nil.
func (r *Relay) SetMetrics(m *metrics.Metrics) { r.metrics = m }

// Client returns the underlying Redis client for health checks.
func (r *Relay) Client() *goredis.Client { return r.client }

// Breaker exposes the relay's circuit breaker state.
func (r *Relay) Breaker() *CircuitBreaker { return r.cb }

// ChannelFor returns the pub/sub channel for symbol.
func (r *Relay) ChannelFor(symbol string) string {
	return r.cfg.Prefix + ":price_update:" + symbol
}

// KeyFor returns the key holding the latest analysis for symbol.
func (r *Relay) KeyFor(symbol string) string {
	return r.cfg.Prefix + ":analysis:" + symbol
}

// Publish queues update for relaying. A full queue drops the update.
func (r *Relay) Publish(update model.PriceUpdate) {
	select {
	case r.queue <- update:
	default:
		r.countError("queue_full")
		r.log.Debug().Str("symbol", update.Symbol).Msg("relay queue full, dropping update")
	}
}

// Run relays queued updates until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-r.queue:
			r.relay(ctx, update)
		}
	}
}

func (r *Relay) relay(ctx context.Context, update model.PriceUpdate) {
	if update.Type == "" {
		update.Type = model.MessagePriceUpdate
	}
	payload, err := r.Encode(update)
	if err != nil {
		r.countError("encode")
		r.log.Warn().Err(err).Str("symbol", update.Symbol).Msg("relay encode failed")
		return
	}
	var analysis []byte
	if update.Analysis != nil {
		if analysis, err = json.Marshal(update.Analysis); err != nil {
			analysis = nil
		}
	}

	err = r.cb.Execute(func() error {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		return r.exec(cctx, r.ChannelFor(update.Symbol), payload, r.KeyFor(update.Symbol), analysis)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		r.countError("circuit_open")
	default:
		r.countError("pipeline")
		r.log.Warn().Err(err).Str("symbol", update.Symbol).Msg("relay pipeline failed")
	}
}

func (r *Relay) pipeline(ctx context.Context, channel string, payload []byte, key string, analysis []byte) error {
	pipe := r.client.Pipeline()
	pipe.Publish(ctx, channel, payload)
	if analysis != nil {
		pipe.Set(ctx, key, analysis, r.cfg.AnalysisTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Latest reads the stored analysis for symbol. A missing key returns
// (nil, nil).
func (r *Relay) Latest(ctx context.Context, symbol string) (*model.AnalysisResult, error) {
	raw, err := r.client.Get(ctx, r.KeyFor(symbol)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", r.KeyFor(symbol), err)
	}
	var res model.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.KeyFor(symbol), err)
	}
	return &res, nil
}

// Close closes the Redis client.
func (r *Relay) Close() error {
	return r.client.Close()
}

func (r *Relay) onStateChange(from, to State) {
	r.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("redis circuit breaker transition")
	if r.metrics == nil {
		return
	}
	r.metrics.RedisCircuitBreakerState.Set(float64(to))
	if to == StateOpen {
		r.metrics.RedisCircuitBreakerTrips.Inc()
	}
}

func (r *Relay) countError(op string) {
	if r.metrics != nil {
		r.metrics.RelayErrors.WithLabelValues(op).Inc()
	}
}
