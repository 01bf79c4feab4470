// Package binance streams live ticker updates from the Binance public
// websocket API.
//
// Each symbol gets its own connection to the 24h ticker stream:
//
//	wss://stream.binance.com:9443/ws/btcusdt@ticker
//
// Only the last price ("c") and base volume ("v") are used. Both arrive as
// decimal strings.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// DefaultURLTemplate is formatted with the lowercase base asset.
const DefaultURLTemplate = "wss://stream.binance.com:9443/ws/%susdt@ticker"

// Backoff strategies.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Config configures the ticker stream.
type Config struct {
	URLTemplate       string        `yaml:"url_template" default:"wss://stream.binance.com:9443/ws/%susdt@ticker"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"30s"`
	Backoff           string        `yaml:"backoff" default:"fixed" validate:"oneof=fixed exponential"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" default:"5m"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" default:"10s"`

	// ReadTimeout drops a connection that delivers neither a frame nor a
	// ping for this long.
	ReadTimeout time.Duration `yaml:"read_timeout" default:"60s"`
}

func (c *Config) defaults() {
	if c.URLTemplate == "" {
		c.URLTemplate = DefaultURLTemplate
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 30 * time.Second
	}
	if c.Backoff == "" {
		c.Backoff = BackoffFixed
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = c.ReconnectDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
}

// Stream dials one ticker connection per Run call and reconnects on failure.
type Stream struct {
	cfg    Config
	dialer *websocket.Dialer
	log    zerolog.Logger

	// Optional hooks, called from the Run goroutine.
	OnConnect    func(symbol string)
	OnDisconnect func(symbol string, err error)
}

// New creates a Stream.
func New(cfg Config, log zerolog.Logger) *Stream {
	cfg.defaults()
	return &Stream{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		log:    logger.Component(log, "binance_stream"),
	}
}

// URL returns the stream URL for symbol.
func (s *Stream) URL(symbol string) string {
	return fmt.Sprintf(s.cfg.URLTemplate, strings.ToLower(symbol))
}

// Run streams ticks for symbol into handle until ctx is cancelled. handle
// is called synchronously, so ticks for one symbol are delivered in order.
// It always returns nil once ctx is done.
func (s *Stream) Run(ctx context.Context, symbol string, handle func(model.Tick)) error {
	delay := s.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := s.runOnce(ctx, symbol, handle)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = s.cfg.ReconnectDelay
		}

		s.log.Warn().Err(err).Str("symbol", symbol).Dur("retry_in", delay).Msg("ticker stream disconnected")
		if s.OnDisconnect != nil {
			s.OnDisconnect(symbol, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if s.cfg.Backoff == BackoffExponential {
			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}
		}
	}
}

// runOnce makes one connection and reads until it fails. connected reports
// whether the dial succeeded.
func (s *Stream) runOnce(ctx context.Context, symbol string, handle func(model.Tick)) (connected bool, err error) {
	url := s.URL(symbol)
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: dial %s: %v", model.ErrTransport, url, err)
	}
	defer conn.Close()

	s.log.Info().Str("symbol", symbol).Str("url", url).Msg("ticker stream connected")
	if s.OnConnect != nil {
		s.OnConnect(symbol)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	extend := func() { conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)) }
	conn.SetPingHandler(func(data string) error {
		extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	extend()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("%w: read: %v", model.ErrTransport, err)
		}
		extend()
		tick, err := parseTicker(symbol, raw, time.Now())
		if err != nil {
			s.log.Debug().Err(err).Str("symbol", symbol).Bytes("raw", raw).Msg("dropping ticker frame")
			continue
		}
		handle(tick)
	}
}

// tickerEvent is the subset of the 24hrTicker payload we read. The upper
// case keys are declared so they never fold onto the lower case fields.
type tickerEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Last      string `json:"c"`
	CloseTime int64  `json:"C"`
	Volume    string `json:"v"`
}

var errMissingPrice = errors.New("missing last price")

func parseTicker(symbol string, raw []byte, now time.Time) (model.Tick, error) {
	var ev tickerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.Tick{}, fmt.Errorf("%w: %v", model.ErrInvalidTick, err)
	}
	if ev.Last == "" {
		return model.Tick{}, fmt.Errorf("%w: %v", model.ErrInvalidTick, errMissingPrice)
	}
	price, err := decimal.NewFromString(ev.Last)
	if err != nil {
		return model.Tick{}, fmt.Errorf("%w: price %q: %v", model.ErrInvalidTick, ev.Last, err)
	}
	volume := decimal.Zero
	if ev.Volume != "" {
		if volume, err = decimal.NewFromString(ev.Volume); err != nil {
			return model.Tick{}, fmt.Errorf("%w: volume %q: %v", model.ErrInvalidTick, ev.Volume, err)
		}
	}

	ts := now.UTC()
	if ev.EventTime > 0 {
		ts = time.UnixMilli(ev.EventTime).UTC()
	}
	return model.Tick{
		Symbol:   strings.ToUpper(symbol),
		Price:    price.InexactFloat64(),
		Volume:   volume.InexactFloat64(),
		TickTS:   ts,
		Received: now,
	}, nil
}
