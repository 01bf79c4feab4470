package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pxbt-dev/AiTradingCharts/internal/gateway"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// maxSeriesLimit caps /api/series responses.
const maxSeriesLimit = 5000

type errorBody struct {
	Error string `json:"error"`
}

type healthBody struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

type statusBody struct {
	Service     string               `json:"service"`
	Health      *metrics.Report      `json:"health,omitempty"`
	Subscribers int                  `json:"subscribers"`
	Cache       map[string]int       `json:"cache"`
	Latency     gateway.LatencyStats `json:"latency"`
	Runtime     RuntimeStats         `json:"runtime"`
	TS          string               `json:"ts"`
}

type seriesBody struct {
	Symbol string             `json:"symbol"`
	Count  int                `json:"count"`
	Points []model.PricePoint `json:"points"`
}

type refreshBody struct {
	Status string `json:"status"`
	Symbol string `json:"symbol,omitempty"`
}

type handler struct {
	deps    Deps
	runtime *runtimeSampler
	started time.Time
}

func (h *handler) register(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.health)
	g.GET("/status", h.status)
	g.GET("/symbols", h.symbols)
	g.GET("/series/:symbol", h.series)
	g.GET("/analysis/:symbol", h.analysis)
	g.POST("/refresh", h.refresh)
	g.POST("/refresh/:symbol", h.refresh)
	g.GET("/connections", h.connections)
	if h.deps.Health != nil {
		e.GET("/healthz", echo.WrapHandler(h.deps.Health))
	}
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthBody{
		Status:    "UP",
		Service:   h.deps.Service,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *handler) status(c echo.Context) error {
	body := statusBody{
		Service: h.deps.Service,
		Runtime: h.runtime.collect(h.started),
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if h.deps.Health != nil {
		r := h.deps.Health.Report()
		body.Health = &r
	}
	if h.deps.Hub != nil {
		body.Subscribers = h.deps.Hub.Count()
		body.Latency = h.deps.Hub.Latency.Stats()
	}
	if h.deps.Cache != nil {
		body.Cache = h.deps.Cache.Stats()
	}
	return c.JSON(http.StatusOK, body)
}

func (h *handler) symbols(c echo.Context) error {
	out := h.deps.Symbols
	if out == nil {
		out = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"symbols": out})
}

func (h *handler) series(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
		}
		limit = n
	}
	if limit == 0 || limit > maxSeriesLimit {
		limit = maxSeriesLimit
	}

	points := h.deps.Cache.Snapshot(symbol, limit)
	if len(points) == 0 {
		return c.JSON(http.StatusNotFound, errorBody{Error: "no data for " + symbol})
	}
	return c.JSON(http.StatusOK, seriesBody{Symbol: symbol, Count: len(points), Points: points})
}

func (h *handler) analysis(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	res, ok := h.deps.Store.Get(symbol)
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody{Error: "no analysis for " + symbol})
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handler) refresh(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	if h.deps.Refresher == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "refresh unavailable"})
	}
	if err := h.deps.Refresher.Refresh(symbol); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, model.ErrInsufficientData) {
			code = http.StatusNotFound
		}
		return c.JSON(code, errorBody{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, refreshBody{Status: "refreshed", Symbol: symbol})
}

func (h *handler) connections(c echo.Context) error {
	n := 0
	if h.deps.Hub != nil {
		n = h.deps.Hub.Count()
	}
	return c.JSON(http.StatusOK, map[string]int{"connections": n})
}
