package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the analysis service.
type Metrics struct {
	TicksTotal   *prometheus.CounterVec // labels: symbol
	DroppedTicks *prometheus.CounterVec // labels: reason
	WSReconnects *prometheus.CounterVec // labels: symbol

	// Analysis pipeline
	AnalysisDur      prometheus.Histogram
	PredictionSource *prometheus.CounterVec // labels: timeframe, source
	PatternPanics    *prometheus.CounterVec // labels: family

	// Broadcast hub
	E2ELatency         prometheus.Histogram // tick-to-broadcast latency
	Subscribers        prometheus.Gauge
	SubscriberRemovals prometheus.Counter
	SubscriberDrops    prometheus.Counter // messages dropped on a full client buffer
	FallbackPayloads   prometheus.Counter

	// Redis relay
	RelayErrors              *prometheus.CounterVec // labels: op
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Bootstrap and training
	HistoryPoints *prometheus.CounterVec // labels: source
	TrainingRuns  *prometheus.CounterVec // labels: timeframe, result
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// means the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_ticks_total",
			Help: "Total ticks accepted from the feed",
		}, []string{"symbol"}),
		DroppedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_dropped_ticks_total",
			Help: "Ticks dropped before analysis (by reason)",
		}, []string{"reason"}),
		WSReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_ws_reconnects_total",
			Help: "Feed reconnection attempts",
		}, []string{"symbol"}),

		AnalysisDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aitrading_analysis_duration_seconds",
			Help:    "Time to compute one analysis result",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		PredictionSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_predictions_total",
			Help: "Predictions produced (by timeframe and source)",
		}, []string{"timeframe", "source"}),
		PatternPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_pattern_panics_total",
			Help: "Recovered panics inside a pattern family",
		}, []string{"family"}),

		E2ELatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aitrading_e2e_latency_seconds",
			Help:    "End-to-end latency from tick receipt to broadcast",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aitrading_subscribers",
			Help: "Currently registered subscribers",
		}),
		SubscriberRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aitrading_subscriber_removals_total",
			Help: "Subscribers removed after a failed send",
		}),
		SubscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aitrading_subscriber_drops_total",
			Help: "Messages dropped because a client send buffer was full",
		}),
		FallbackPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aitrading_fallback_payloads_total",
			Help: "Broadcasts sent with the degraded analysis payload",
		}),

		RelayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_relay_errors_total",
			Help: "Redis relay failures (by operation)",
		}, []string{"op"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aitrading_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aitrading_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		HistoryPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_history_points_total",
			Help: "Historical points seeded into the cache (by source)",
		}, []string{"source"}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrading_training_runs_total",
			Help: "Model training attempts (by timeframe and result)",
		}, []string{"timeframe", "result"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.DroppedTicks,
		m.WSReconnects,
		m.AnalysisDur,
		m.PredictionSource,
		m.PatternPanics,
		m.E2ELatency,
		m.Subscribers,
		m.SubscriberRemovals,
		m.SubscriberDrops,
		m.FallbackPayloads,
		m.RelayErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.HistoryPoints,
		m.TrainingRuns,
	)

	return m
}

// FeedState is the connectivity of one symbol's feed.
type FeedState struct {
	Connected    bool      `json:"connected"`
	LastTickTime time.Time `json:"last_tick_time"`
	Reconnects   int       `json:"reconnects"`
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	feeds map[string]FeedState

	RedisEnabled   bool
	RedisConnected bool
	ArchiveEnabled bool
	ArchiveOK      bool

	// Liveness probe results
	RedisLatencyMs   float64
	ArchiveLatencyMs float64
	LastCheckAt      time.Time
	StartedAt        time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		feeds:     make(map[string]FeedState),
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(symbol string, v bool) {
	h.mu.Lock()
	st := h.feeds[symbol]
	if st.Connected && !v {
		st.Reconnects++
	}
	st.Connected = v
	h.feeds[symbol] = st
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(symbol string, t time.Time) {
	h.mu.Lock()
	st := h.feeds[symbol]
	st.LastTickTime = t
	h.feeds[symbol] = st
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetArchiveEnabled(v bool) {
	h.mu.Lock()
	h.ArchiveEnabled = v
	h.mu.Unlock()
}

// Feed returns the state recorded for symbol.
func (h *HealthStatus) Feed(symbol string) (FeedState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.feeds[symbol]
	return st, ok
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckArchive pings the SQLite archive and records latency + health.
func (h *HealthStatus) CheckArchive(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.ArchiveOK = err == nil
	h.ArchiveLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, archive *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if archive != nil {
					h.CheckArchive(probeCtx, archive)
				}
				cancel()
			}
		}
	}()
}

// FeedReport is one row of the health report.
type FeedReport struct {
	Symbol       string `json:"symbol"`
	Connected    bool   `json:"connected"`
	LastTickTime string `json:"last_tick_time"`
	TickAge      string `json:"tick_age"`
	Reconnects   int    `json:"reconnects"`
}

// Report is the JSON health document.
type Report struct {
	Status           string       `json:"status"`
	Uptime           string       `json:"uptime"`
	Feeds            []FeedReport `json:"feeds"`
	RedisEnabled     bool         `json:"redis_enabled"`
	RedisConnected   bool         `json:"redis_connected"`
	RedisLatencyMs   float64      `json:"redis_latency_ms"`
	ArchiveEnabled   bool         `json:"archive_enabled"`
	ArchiveOK        bool         `json:"archive_ok"`
	ArchiveLatencyMs float64      `json:"archive_latency_ms"`
	LastCheckAt      string       `json:"last_check_at"`
}

// Report summarizes health. The status is "healthy" when every feed is
// connected and every enabled dependency answers, "degraded" when some feed
// or dependency is down, and "unhealthy" when no feed is connected.
func (h *HealthStatus) Report() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{
		Status:           "healthy",
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:     h.RedisEnabled,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		ArchiveEnabled:   h.ArchiveEnabled,
		ArchiveOK:        h.ArchiveOK,
		ArchiveLatencyMs: h.ArchiveLatencyMs,
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}

	symbols := make([]string, 0, len(h.feeds))
	for s := range h.feeds {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	connected := 0
	for _, s := range symbols {
		st := h.feeds[s]
		fr := FeedReport{Symbol: s, Connected: st.Connected, Reconnects: st.Reconnects}
		if !st.LastTickTime.IsZero() {
			fr.LastTickTime = st.LastTickTime.Format(time.RFC3339)
			fr.TickAge = time.Since(st.LastTickTime).Round(time.Millisecond).String()
		}
		if st.Connected {
			connected++
		}
		r.Feeds = append(r.Feeds, fr)
	}

	if connected < len(symbols) ||
		(h.RedisEnabled && !h.RedisConnected) ||
		(h.ArchiveEnabled && !h.ArchiveOK) {
		r.Status = "degraded"
	}
	if len(symbols) > 0 && connected == 0 {
		r.Status = "unhealthy"
	}
	return r
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if report.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}
