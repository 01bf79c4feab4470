package trainer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/cache"
	"github.com/pxbt-dev/AiTradingCharts/internal/indicator"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

func series(sym string, n int) []model.PricePoint {
	pts := make([]model.PricePoint, n)
	for i := range pts {
		c := 100 + 0.5*float64(i) + math.Sin(float64(i))
		pts[i] = model.PricePoint{Symbol: sym, Timestamp: int64(i) * 86400000, Open: c, High: c, Low: c, Close: c, Volume: 10}
	}
	return pts
}

func TestFutureOffset(t *testing.T) {
	for tf, want := range map[string]int{"1h": 24, "4h": 12, "1d": 7, "1w": 24} {
		if got := FutureOffset(tf); got != want {
			t.Errorf("FutureOffset(%s) = %d, want %d", tf, got, want)
		}
	}
}

func TestBuildDataset(t *testing.T) {
	pts := series("BTC", 60)
	ds := BuildDataset(pts, indicator.BucketMedium, 7)
	if ds.Len() != 3 {
		t.Fatalf("samples = %d, want 3", ds.Len())
	}
	for i, row := range ds.Features {
		if len(row) != indicator.FeatureCount {
			t.Errorf("row %d has %d features", i, len(row))
		}
	}
	want := (pts[57].Close - pts[50].Close) / pts[50].Close
	if math.Abs(ds.Targets[0]-want) > 1e-12 {
		t.Errorf("target[0] = %v, want %v", ds.Targets[0], want)
	}

	pts[57].Close = pts[50].Close * 2
	if got := BuildDataset(pts, indicator.BucketMedium, 7).Len(); got != 2 {
		t.Errorf("samples with outlier = %d, want 2", got)
	}

	if got := BuildDataset(series("BTC", 55), indicator.BucketShort, 7).Len(); got != 0 {
		t.Errorf("short series samples = %d, want 0", got)
	}
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  map[string]int
	failTF string
}

func (f *fakeProvider) Train(tf string, features [][]float64, targets []float64) error {
	if tf == f.failTF {
		return errors.New("model service down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[tf] = len(targets)
	return nil
}

func (f *fakeProvider) Predict([]float64, string) (float64, float64, error) { return 0, 0, nil }

type mapSource map[string][]model.PricePoint

func (m mapSource) Load(_ context.Context, sym string, _ int) ([]model.PricePoint, error) {
	pts, ok := m[sym]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return pts, nil
}

func TestTrainer_RunOnce(t *testing.T) {
	src := mapSource{
		"BTC": series("BTC", 200),
		"ETH": series("ETH", 200),
		"SOL": series("SOL", 80),
	}
	prov := &fakeProvider{failTF: "4h"}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	tr := New(Config{}, []string{"BTC", "ETH", "SOL", "DOGE"}, src, prov, zerolog.Nop())
	tr.SetMetrics(m)

	trained, err := tr.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected the 4h failure to be reported")
	}
	// (200 - 50 - offset) samples per symbol, pooled over BTC and ETH.
	want := map[string]int{"1h": 2 * 126, "1d": 2 * 143}
	for tf, n := range want {
		if trained[tf] != n || prov.calls[tf] != n {
			t.Errorf("%s: trained %d, provider got %d, want %d", tf, trained[tf], prov.calls[tf], n)
		}
	}
	if _, ok := trained["4h"]; ok {
		t.Error("4h reported as trained")
	}
	if got := testutil.ToFloat64(m.TrainingRuns.WithLabelValues("4h", "error")); got != 1 {
		t.Errorf("4h error runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TrainingRuns.WithLabelValues("1d", "ok")); got != 1 {
		t.Errorf("1d ok runs = %v, want 1", got)
	}
}

func TestTrainer_TooFewSamples(t *testing.T) {
	c := cache.New(0)
	c.Seed("BTC", series("BTC", 120), 0)
	tr := New(Config{Timeframes: []string{"1d"}, MinSamples: 500}, []string{"BTC"}, CacheSource{Cache: c}, &fakeProvider{}, zerolog.Nop())

	trained, err := tr.RunOnce(context.Background())
	if !errors.Is(err, ErrTooFewSamples) {
		t.Fatalf("err = %v, want ErrTooFewSamples", err)
	}
	if len(trained) != 0 {
		t.Errorf("trained = %v, want none", trained)
	}
}

func TestTrainer_StartRunsOnStart(t *testing.T) {
	prov := &fakeProvider{}
	tr := New(Config{Timeframes: []string{"1d"}, RunOnStart: true}, []string{"BTC"}, mapSource{"BTC": series("BTC", 200)}, prov, zerolog.Nop())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	deadline := time.After(2 * time.Second)
	for {
		prov.mu.Lock()
		n := prov.calls["1d"]
		prov.mu.Unlock()
		if n > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("run-on-start training never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTrainer_BadSchedule(t *testing.T) {
	tr := New(Config{Schedule: "not a schedule"}, nil, mapSource{}, &fakeProvider{}, zerolog.Nop())
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected a schedule parse error")
	}
}
