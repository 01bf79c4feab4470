// Package modelclient is a model.ModelProvider backed by an external
// prediction service reachable over HTTP.
//
//	POST <base>/train    {"timeframe":"1d","features":[[...]],"targets":[...]}
//	POST <base>/predict  {"timeframe":"1d","features":[...]}
//	                  -> {"prediction":0.012,"confidence":0.71}
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
	"github.com/pxbt-dev/AiTradingCharts/internal/relay"
)

// Config configures the HTTP provider.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" default:"3s"`
	TrainTimeout time.Duration `yaml:"train_timeout" default:"2m"`
	Attempts     int           `yaml:"attempts" default:"2" validate:"gte=1"`
	Timeframes   []string      `yaml:"timeframes" default:"[\"1h\",\"4h\",\"1d\"]"`

	// MaxFailures consecutive failed predictions open the breaker; while
	// open, Predict fails immediately until ResetAfter has passed.
	MaxFailures int           `yaml:"max_failures" default:"3" validate:"gte=1"`
	ResetAfter  time.Duration `yaml:"reset_after" default:"30s"`
}

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("model service not configured")

// Client calls the model service. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	cb   *relay.CircuitBreaker
	log  zerolog.Logger
}

var (
	_ model.ModelProvider    = (*Client)(nil)
	_ model.ContextPredictor = (*Client)(nil)
)

// New creates a client for cfg.BaseURL.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = 2 * time.Minute
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
		cb:   relay.NewCircuitBreaker(cfg.MaxFailures, cfg.ResetAfter),
		log:  logger.Component(log, "modelclient"),
	}
	c.cb.OnStateChange = func(from, to relay.State) {
		c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("model service breaker state change")
	}
	return c
}

// Breaker exposes the predict circuit breaker.
func (c *Client) Breaker() *relay.CircuitBreaker { return c.cb }

type trainRequest struct {
	Timeframe string      `json:"timeframe"`
	Features  [][]float64 `json:"features"`
	Targets   []float64   `json:"targets"`
}

type predictRequest struct {
	Timeframe string    `json:"timeframe"`
	Features  []float64 `json:"features"`
}

type predictResponse struct {
	Prediction *float64 `json:"prediction"`
	Confidence float64  `json:"confidence"`
}

// Train implements model.ModelProvider. Training is not retried.
func (c *Client) Train(timeframe string, features [][]float64, targets []float64) error {
	if len(features) != len(targets) {
		return fmt.Errorf("train %s: %d feature rows for %d targets", timeframe, len(features), len(targets))
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TrainTimeout)
	defer cancel()

	err := c.postJSON(ctx, "/train", trainRequest{Timeframe: timeframe, Features: features, Targets: targets}, nil)
	if err != nil {
		return fmt.Errorf("train %s: %w", timeframe, err)
	}
	c.log.Info().Str("timeframe", timeframe).Int("samples", len(targets)).Msg("model trained")
	return nil
}

// Predict implements model.ModelProvider.
func (c *Client) Predict(features []float64, timeframe string) (float64, float64, error) {
	return c.PredictContext(context.Background(), features, timeframe)
}

// PredictContext is Predict bounded by ctx as well as the configured
// timeouts. An open breaker yields model.ErrProviderUnavailable without a
// request.
func (c *Client) PredictContext(ctx context.Context, features []float64, timeframe string) (float64, float64, error) {
	if c.cfg.BaseURL == "" {
		return 0, 0, fmt.Errorf("predict %s: %w", timeframe, ErrNotConfigured)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout*time.Duration(c.cfg.Attempts))
	defer cancel()

	var resp predictResponse
	err := c.cb.Execute(func() error {
		return c.postJSONWithRetry(ctx, "/predict", predictRequest{Timeframe: timeframe, Features: features}, &resp)
	})
	if errors.Is(err, relay.ErrCircuitOpen) {
		return 0, 0, fmt.Errorf("predict %s: %w: %v", timeframe, model.ErrProviderUnavailable, err)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("predict %s: %w", timeframe, err)
	}
	if resp.Prediction == nil {
		return 0, 0, fmt.Errorf("predict %s: response has no prediction", timeframe)
	}
	return *resp.Prediction, resp.Confidence, nil
}

func (c *Client) postJSONWithRetry(ctx context.Context, path string, payload, dest any) error {
	var err error
	for i := 1; i <= c.cfg.Attempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err = c.postJSON(attemptCtx, path, payload, dest)
		cancel()
		if err == nil || i == c.cfg.Attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// postJSON posts payload to path and decodes the JSON reply into dest when
// dest is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, payload, dest any) error {
	if c.cfg.BaseURL == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrSerialization, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", model.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
