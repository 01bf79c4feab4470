package analysis

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
	"github.com/pxbt-dev/AiTradingCharts/internal/pattern"
	"github.com/pxbt-dev/AiTradingCharts/internal/predict"
)

var fixedNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func rising(n int) []model.PricePoint {
	pts := make([]model.PricePoint, n)
	base := fixedNow.Add(-time.Duration(n) * time.Hour)
	for i := range pts {
		c := 100 + float64(i)
		pts[i] = model.PricePoint{
			Symbol:    "BTC",
			Timestamp: base.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 5,
		}
	}
	return pts
}

func newAnalyzer(opts ...Option) *Analyzer {
	log := zerolog.Nop()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(pattern.NewDetector(pattern.Config{}, log), predict.New(nil, log), log, opts...)
}

func TestAnalyze_EmptySeries(t *testing.T) {
	res := newAnalyzer().Analyze("BTC", nil)
	if res.Patterns == nil || res.FibonacciZones == nil || res.RetracementLevels == nil || res.Predictions == nil {
		t.Fatalf("collections must be non-nil: %+v", res)
	}
	if res.TradingSignal != model.SignalHold {
		t.Errorf("expected HOLD, got %s", res.TradingSignal)
	}
	if res.Timestamp != fixedNow.UnixMilli() {
		t.Errorf("unexpected timestamp %d", res.Timestamp)
	}
}

func TestAnalyze_AssemblesResult(t *testing.T) {
	store := NewStore()
	pts := rising(101)
	res := newAnalyzer(WithStore(store)).Analyze("BTC", pts)

	if res.Symbol != "BTC" || res.CurrentPrice != 200 {
		t.Fatalf("unexpected header: %s %v", res.Symbol, res.CurrentPrice)
	}
	if len(res.Predictions) != 5 {
		t.Errorf("expected 5 timeframe predictions, got %d", len(res.Predictions))
	}
	found := false
	for _, p := range res.Patterns {
		if p.Type == model.PatternUptrend {
			found = true
		}
	}
	if !found {
		t.Errorf("expected UPTREND among %d patterns", len(res.Patterns))
	}
	if len(res.RetracementLevels) != 7 {
		t.Errorf("expected 7 retracement levels, got %d", len(res.RetracementLevels))
	}
	if want := Signal(res.Predictions[predict.Day], 200); res.TradingSignal != want {
		t.Errorf("signal %s, want %s", res.TradingSignal, want)
	}

	stored, ok := store.Get("BTC")
	if !ok || stored != res {
		t.Error("expected result recorded in the store")
	}
}

func TestAnalyze_DoesNotMutateInput(t *testing.T) {
	pts := rising(150)
	orig := append([]model.PricePoint(nil), pts...)
	a := newAnalyzer()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Analyze("BTC", pts)
		}()
	}
	wg.Wait()

	if !reflect.DeepEqual(orig, pts) {
		t.Fatal("Analyze mutated its input")
	}
}

func TestSignal(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		conf  float64
		want  model.TradingSignal
	}{
		{"strong buy", 103, 0.8, model.SignalStrongBuy},
		{"buy on lower confidence", 103, 0.65, model.SignalBuy},
		{"buy", 101, 0.65, model.SignalBuy},
		{"hold on low confidence", 103, 0.5, model.SignalHold},
		{"hold on small move", 100.2, 0.9, model.SignalHold},
		{"sell", 99, 0.65, model.SignalSell},
		{"strong sell", 97, 0.75, model.SignalStrongSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Signal(model.Prediction{PredictedPrice: tt.price, Confidence: tt.conf}, 100)
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
	if got := Signal(model.Prediction{PredictedPrice: 1, Confidence: 1}, 0); got != model.SignalHold {
		t.Errorf("zero current price should hold, got %s", got)
	}
}

func TestStore_KeepsNewest(t *testing.T) {
	s := NewStore()
	s.Put(&model.AnalysisResult{Symbol: "SOL", Timestamp: 20})
	s.Put(&model.AnalysisResult{Symbol: "SOL", Timestamp: 10})
	s.Put(&model.AnalysisResult{Symbol: "BTC", Timestamp: 5})
	s.Put(nil)

	got, ok := s.Get("SOL")
	if !ok || got.Timestamp != 20 {
		t.Errorf("expected newest SOL result, got %+v", got)
	}
	if _, ok := s.Get("WIF"); ok {
		t.Error("unexpected result for unknown symbol")
	}
	if syms := s.Symbols(); !reflect.DeepEqual(syms, []string{"BTC", "SOL"}) {
		t.Errorf("symbols: %v", syms)
	}
}

func TestAnalysisResult_WireFormat(t *testing.T) {
	res := newAnalyzer().Analyze("BTC", rising(101))
	update := model.PriceUpdate{
		Type:      model.MessagePriceUpdate,
		Symbol:    "BTC",
		Price:     res.CurrentPrice,
		Volume:    5,
		Timestamp: res.Timestamp,
		Analysis:  res,
	}

	data, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"type", "symbol", "price", "volume", "timestamp", "analysis"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing top-level key %q", key)
		}
	}

	var analysis map[string]json.RawMessage
	if err := json.Unmarshal(raw["analysis"], &analysis); err != nil {
		t.Fatalf("analysis: %v", err)
	}
	for _, key := range []string{"symbol", "currentPrice", "timeframePredictions", "chartPatterns",
		"fibonacciTimeZones", "retracementLevels", "tradingSignal", "timestamp"} {
		if _, ok := analysis[key]; !ok {
			t.Errorf("missing analysis key %q", key)
		}
	}

	var back model.PriceUpdate
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Analysis == nil || back.Analysis.Symbol != "BTC" ||
		len(back.Analysis.Predictions) != len(res.Predictions) ||
		len(back.Analysis.Patterns) != len(res.Patterns) {
		t.Errorf("round trip lost data: %+v", back.Analysis)
	}
	if back.Analysis.Predictions[predict.Day].Trend != res.Predictions[predict.Day].Trend {
		t.Error("daily trend changed across the wire")
	}
}
