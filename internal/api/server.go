// Package api exposes the HTTP query surface: health, status, cached series,
// latest analyses, manual refresh, the websocket endpoint and Prometheus.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/analysis"
	"github.com/pxbt-dev/AiTradingCharts/internal/cache"
	"github.com/pxbt-dev/AiTradingCharts/internal/gateway"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
)

// Refresher re-broadcasts the latest analysis. An empty symbol means all.
type Refresher interface {
	Refresh(symbol string) error
}

// Deps are the components the handlers read from. Health, Gatherer and
// WebSocket may be nil.
type Deps struct {
	Service   string
	Symbols   []string
	Cache     *cache.Cache
	Store     *analysis.Store
	Hub       *gateway.Hub
	Refresher Refresher
	Health    *metrics.HealthStatus
	Gatherer  prometheus.Gatherer
	WebSocket http.Handler
}

// Server wraps the echo instance.
type Server struct {
	echo *echo.Echo
	addr string
	log  zerolog.Logger
}

// NewServer builds the router and registers every route.
func NewServer(addr string, deps Deps, log zerolog.Logger) *Server {
	log = logger.Component(log, "api")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(Recover(log))
	e.Use(RequestLogging(log))

	h := &handler{deps: deps, runtime: newRuntimeSampler(), started: time.Now()}
	h.register(e)

	var metricsHandler http.Handler
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}
	e.GET("/metrics", echo.WrapHandler(metricsHandler))
	if deps.WebSocket != nil {
		e.GET("/ws", echo.WrapHandler(deps.WebSocket))
	}

	return &Server{echo: e, addr: addr, log: log}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves in a goroutine. Listen errors other than a clean shutdown are
// logged.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}
