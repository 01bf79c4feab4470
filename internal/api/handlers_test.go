package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/analysis"
	"github.com/pxbt-dev/AiTradingCharts/internal/cache"
	"github.com/pxbt-dev/AiTradingCharts/internal/gateway"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

type fakeRefresher struct {
	calls []string
	err   error
}

func (f *fakeRefresher) Refresh(symbol string) error {
	f.calls = append(f.calls, symbol)
	return f.err
}

type fixture struct {
	srv       *Server
	cache     *cache.Cache
	store     *analysis.Store
	hub       *gateway.Hub
	refresher *fakeRefresher
	metrics   *metrics.Metrics
	health    *metrics.HealthStatus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	f := &fixture{
		cache:     cache.New(100),
		store:     analysis.NewStore(),
		hub:       gateway.NewHub(zerolog.Nop(), m),
		refresher: &fakeRefresher{},
		metrics:   m,
		health:    metrics.NewHealthStatus(),
	}
	for i := 0; i < 10; i++ {
		p := float64(100 + i)
		if err := f.cache.Append("BTC", model.PricePoint{Symbol: "BTC", Timestamp: int64(1000 + i), Open: p, High: p, Low: p, Close: p}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	f.store.Put(&model.AnalysisResult{Symbol: "BTC", CurrentPrice: 109, TradingSignal: model.SignalHold, Timestamp: 2000})
	f.health.SetFeedConnected("BTC", true)

	f.srv = NewServer(":0", Deps{
		Service:   "aitrading",
		Symbols:   []string{"BTC", "ETH"},
		Cache:     f.cache,
		Store:     f.store,
		Hub:       f.hub,
		Refresher: f.refresher,
		Health:    f.health,
		Gatherer:  reg,
	}, zerolog.Nop())
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body healthBody
	decode(t, rec, &body)
	if body.Status != "UP" || body.Service != "aitrading" || body.Timestamp == 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body statusBody
	decode(t, rec, &body)
	if body.Cache["BTC"] != 10 {
		t.Errorf("cache stats = %v", body.Cache)
	}
	if body.Health == nil || body.Health.Status != "healthy" || len(body.Health.Feeds) != 1 {
		t.Errorf("health = %+v", body.Health)
	}
	if body.Runtime.CPUCores == 0 || body.Runtime.Goroutines == 0 {
		t.Errorf("runtime = %+v", body.Runtime)
	}
}

func TestSymbols(t *testing.T) {
	f := newFixture(t)
	var body map[string][]string
	decode(t, f.do(t, http.MethodGet, "/api/symbols"), &body)
	if got := strings.Join(body["symbols"], ","); got != "BTC,ETH" {
		t.Errorf("symbols = %s", got)
	}
}

func TestSeries(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		code      int
		count     int
		lastClose float64
	}{
		{"all", "/api/series/BTC", http.StatusOK, 10, 109},
		{"limited", "/api/series/btc?limit=3", http.StatusOK, 3, 109},
		{"unknown symbol", "/api/series/XRP", http.StatusNotFound, 0, 0},
		{"bad limit", "/api/series/BTC?limit=abc", http.StatusBadRequest, 0, 0},
		{"negative limit", "/api/series/BTC?limit=-1", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodGet, tt.path)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var body seriesBody
			decode(t, rec, &body)
			if body.Count != tt.count || len(body.Points) != tt.count {
				t.Fatalf("count = %d points = %d, want %d", body.Count, len(body.Points), tt.count)
			}
			if last := body.Points[len(body.Points)-1].Close; last != tt.lastClose {
				t.Errorf("last close = %v, want %v", last, tt.lastClose)
			}
		})
	}
}

func TestAnalysis(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/analysis/btc")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res model.AnalysisResult
	decode(t, rec, &res)
	if res.Symbol != "BTC" || res.CurrentPrice != 109 || res.TradingSignal != model.SignalHold {
		t.Errorf("result = %+v", res)
	}

	if rec := f.do(t, http.MethodGet, "/api/analysis/ETH"); rec.Code != http.StatusNotFound {
		t.Errorf("missing analysis status = %d, want 404", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		code int
		want string
	}{
		{"all", "/api/refresh", nil, http.StatusOK, ""},
		{"one", "/api/refresh/eth", nil, http.StatusOK, "ETH"},
		{"no data", "/api/refresh/XRP", fmt.Errorf("refresh XRP: %w", model.ErrInsufficientData), http.StatusNotFound, "XRP"},
		{"failure", "/api/refresh/BTC", errors.New("boom"), http.StatusInternalServerError, "BTC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.refresher.err = tt.err
			rec := f.do(t, http.MethodPost, tt.path)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if len(f.refresher.calls) != 1 || f.refresher.calls[0] != tt.want {
				t.Errorf("calls = %q, want [%q]", f.refresher.calls, tt.want)
			}
		})
	}
}

func TestRefresh_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/api/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestConnections(t *testing.T) {
	f := newFixture(t)
	var body map[string]int
	decode(t, f.do(t, http.MethodGet, "/api/connections"), &body)
	if body["connections"] != 0 {
		t.Errorf("connections = %d", body["connections"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.metrics.TicksTotal.WithLabelValues("BTC").Inc()
	rec := f.do(t, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `aitrading_ticks_total{symbol="BTC"} 1`) {
		t.Errorf("metrics body missing tick counter:\n%s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}
	f.health.SetFeedConnected("BTC", false)
	if rec := f.do(t, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	f := newFixture(t)
	f.srv.Echo().GET("/boom", func(c echo.Context) error { panic("kaboom") })
	rec := f.do(t, http.MethodGet, "/boom")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
