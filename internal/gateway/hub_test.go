package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

type fakeSub struct {
	id   string
	fail bool

	mu   sync.Mutex
	msgs [][]byte
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(msg []byte) error {
	if f.fail {
		return ErrSubscriberClosed
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSub) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestHub_BroadcastRemovesFailingSubscribers(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := NewHub(zerolog.Nop(), m)

	good1 := &fakeSub{id: "a"}
	good2 := &fakeSub{id: "b"}
	bad := &fakeSub{id: "c", fail: true}
	h.Register(good1)
	h.Register(good2)
	h.Register(bad)

	if got := h.Broadcast([]byte("x")); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	if got := h.Count(); got != 2 {
		t.Fatalf("count after failure = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.SubscriberRemovals); got != 1 {
		t.Errorf("removals = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Subscribers); got != 2 {
		t.Errorf("subscribers gauge = %v, want 2", got)
	}

	h.Broadcast([]byte("y"))
	if good1.received() != 2 || good2.received() != 2 {
		t.Errorf("received = %d/%d, want 2/2", good1.received(), good2.received())
	}
}

func TestNewHub_TagsComponentOnce(t *testing.T) {
	var out strings.Builder
	h := NewHub(zerolog.New(&out), nil)
	h.Register(&fakeSub{id: "a"})

	line := out.String()
	if !strings.Contains(line, `"component":"hub"`) {
		t.Fatalf("log line %q has no hub component", line)
	}
	if n := strings.Count(line, `"component"`); n != 1 {
		t.Errorf("component field appears %d times in %q", n, line)
	}
}

func TestHub_UnregisterUnknownIsNoop(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	h.Register(&fakeSub{id: "a"})
	h.Unregister("missing")
	if got := h.Count(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	h.Unregister("a")
	if got := h.Count(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}

func TestHub_PublishEncodesPriceUpdate(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	sub := &fakeSub{id: "a"}
	h.Register(sub)

	h.Publish(model.PriceUpdate{
		Symbol:    "BTC",
		Price:     100,
		Volume:    3,
		Timestamp: 1700000000000,
		Analysis:  &model.AnalysisResult{Symbol: "BTC", CurrentPrice: 100, TradingSignal: model.SignalHold},
	})

	if sub.received() != 1 {
		t.Fatalf("received = %d, want 1", sub.received())
	}
	var got map[string]any
	if err := json.Unmarshal(sub.msgs[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != model.MessagePriceUpdate {
		t.Errorf("type = %v, want %s", got["type"], model.MessagePriceUpdate)
	}
	analysis, ok := got["analysis"].(map[string]any)
	if !ok || analysis["tradingSignal"] != "HOLD" {
		t.Errorf("analysis = %v", got["analysis"])
	}
}

func TestHub_EncodeFallsBackOnMarshalError(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := NewHub(zerolog.Nop(), m)
	calls := 0
	h.marshal = func(v any) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return json.Marshal(v)
	}

	msg, err := h.Encode(model.PriceUpdate{Symbol: "ETH", Price: 10, Timestamp: 5})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got model.DegradedPriceUpdate
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != model.MessagePriceUpdate || got.Symbol != "ETH" || got.Price != 10 || got.Timestamp != 5 {
		t.Errorf("fallback header = %+v", got)
	}
	if got.Analysis.Error != fallbackAnalysis {
		t.Errorf("analysis error = %q, want %q", got.Analysis.Error, fallbackAnalysis)
	}
	if got := testutil.ToFloat64(m.FallbackPayloads); got != 1 {
		t.Errorf("fallback payloads = %v, want 1", got)
	}
}

func TestHub_EncodeRealMarshalFailure(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	msg, err := h.Encode(model.PriceUpdate{
		Symbol:   "SOL",
		Price:    20,
		Analysis: &model.AnalysisResult{CurrentPrice: math.NaN()},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(msg), fallbackAnalysis) {
		t.Errorf("msg = %s, want fallback payload", msg)
	}
}

func TestHub_EncodeBothFail(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	h.marshal = func(any) ([]byte, error) { return nil, errors.New("boom") }
	if _, err := h.Encode(model.PriceUpdate{Symbol: "X"}); !errors.Is(err, model.ErrSerialization) {
		t.Fatalf("err = %v, want ErrSerialization", err)
	}
}

func TestHub_ConcurrentRegisterAndBroadcast(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h.Register(&fakeSub{id: fmt.Sprintf("s%d", i), fail: i%5 == 0})
		}(i)
		go func() {
			defer wg.Done()
			h.Broadcast([]byte("tick"))
		}()
	}
	wg.Wait()
	h.Broadcast([]byte("final"))
	if got := h.Count(); got != 16 {
		t.Fatalf("count = %d, want 16", got)
	}
}

func TestHub_JoinDuringPublishKeepsOrder(t *testing.T) {
	const updates = 200
	h := NewHub(zerolog.Nop(), nil)
	h.Publish(model.PriceUpdate{Symbol: "BTC", Price: 0})

	subs := make([]*fakeSub, 50)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= updates; i++ {
			h.Publish(model.PriceUpdate{Symbol: "BTC", Price: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := range subs {
			subs[i] = &fakeSub{id: fmt.Sprintf("late%d", i)}
			h.join(subs[i])
		}
	}()
	wg.Wait()

	for _, s := range subs {
		s.mu.Lock()
		msgs := s.msgs
		s.mu.Unlock()
		if len(msgs) == 0 {
			t.Fatalf("%s received nothing", s.id)
		}
		last := -1.0
		for _, raw := range msgs {
			var u model.PriceUpdate
			if err := json.Unmarshal(raw, &u); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if u.Price != last+1 && last >= 0 {
				t.Fatalf("%s saw price %v after %v", s.id, u.Price, last)
			}
			last = u.Price
		}
		if last != updates {
			t.Errorf("%s ended at %v, want %d", s.id, last, updates)
		}
	}
}

type fakeRequests struct {
	mu        sync.Mutex
	refreshed []string
}

func (f *fakeRequests) AnalyzeAt(symbol string, price float64) (*model.AnalysisResult, error) {
	if symbol == "FAIL" {
		return nil, errors.New("no data")
	}
	return &model.AnalysisResult{Symbol: symbol, CurrentPrice: price, TradingSignal: model.SignalBuy}, nil
}

func (f *fakeRequests) Refresh(symbol string) error {
	f.mu.Lock()
	f.refreshed = append(f.refreshed, symbol)
	f.mu.Unlock()
	return nil
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(msg)
}

func TestServeWS_Protocol(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	reqs := &fakeRequests{}
	srv := httptest.NewServer(h.ServeWS(ClientConfig{AnalyzeRate: 100, AnalyzeBurst: 10}, reqs))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var hello map[string]any
	if err := json.Unmarshal([]byte(readText(t, conn)), &hello); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if hello["type"] != model.MessageWelcome || hello["message"] != "Connected to AI Trading Data" {
		t.Errorf("welcome = %v", hello)
	}
	if got := h.Count(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}

	h.Publish(model.PriceUpdate{Symbol: "BTC", Price: 100, Timestamp: 1})
	if msg := readText(t, conn); !strings.Contains(msg, `"type":"price_update"`) {
		t.Errorf("broadcast = %s", msg)
	}

	tests := []struct {
		name   string
		send   string
		prefix string
	}{
		{"analyze", "analyze:btc,101.5", "analysis:"},
		{"analyze failure", "analyze:FAIL,1", "error:Analysis failed - no data"},
		{"malformed", "analyze:BTC", "error:Analysis failed - "},
		{"bad price", "analyze:BTC,-3", "error:Analysis failed - "},
		{"ping", `{"ping":7}`, `{"ping":7`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatalf("write: %v", err)
			}
			msg := readText(t, conn)
			if !strings.HasPrefix(msg, tt.prefix) {
				t.Fatalf("reply = %q, want prefix %q", msg, tt.prefix)
			}
			if tt.name == "analyze" {
				var res model.AnalysisResult
				if err := json.Unmarshal([]byte(strings.TrimPrefix(msg, "analysis:")), &res); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if res.Symbol != "BTC" || res.CurrentPrice != 101.5 {
					t.Errorf("result = %+v", res)
				}
			}
		})
	}

	conn.WriteMessage(websocket.TextMessage, []byte("refresh:eth"))
	conn.WriteMessage(websocket.TextMessage, []byte("refresh"))
	deadline := time.Now().Add(2 * time.Second)
	for {
		reqs.mu.Lock()
		n := len(reqs.refreshed)
		reqs.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("refresh calls = %d, want 2", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
	reqs.mu.Lock()
	if reqs.refreshed[0] != "ETH" || reqs.refreshed[1] != "" {
		t.Errorf("refreshed = %q", reqs.refreshed)
	}
	reqs.mu.Unlock()

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeWS_AnalyzeRateLimited(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	srv := httptest.NewServer(h.ServeWS(ClientConfig{AnalyzeRate: 0.001, AnalyzeBurst: 1}, &fakeRequests{}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readText(t, conn)

	conn.WriteMessage(websocket.TextMessage, []byte("analyze:BTC,1"))
	if msg := readText(t, conn); !strings.HasPrefix(msg, "analysis:") {
		t.Fatalf("first reply = %q", msg)
	}
	conn.WriteMessage(websocket.TextMessage, []byte("analyze:BTC,1"))
	if msg := readText(t, conn); msg != "error:Analysis failed - rate limit exceeded" {
		t.Fatalf("second reply = %q", msg)
	}
}

func TestClientSend_DropsWhenFull(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := NewHub(zerolog.Nop(), m)
	c := &wsClient{id: "x", hub: h, log: zerolog.Nop(), send: make(chan []byte, 1)}

	if err := c.Send([]byte("1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send([]byte("2")); err != nil {
		t.Fatalf("Send on full buffer: %v", err)
	}
	if got := testutil.ToFloat64(m.SubscriberDrops); got != 1 {
		t.Errorf("drops = %v, want 1", got)
	}
	c.close()
	c.close()
	if err := c.Send([]byte("3")); !errors.Is(err, ErrSubscriberClosed) {
		t.Errorf("Send after close = %v, want ErrSubscriberClosed", err)
	}
}

func TestServeWS_SendsLatestFramePerSymbol(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	h.Publish(model.PriceUpdate{Symbol: "ETH", Price: 10, Timestamp: 1})
	h.Publish(model.PriceUpdate{Symbol: "BTC", Price: 100, Timestamp: 1})
	h.Publish(model.PriceUpdate{Symbol: "ETH", Price: 11, Timestamp: 2})

	srv := httptest.NewServer(h.ServeWS(ClientConfig{}, nil))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if msg := readText(t, conn); !strings.Contains(msg, `"type":"welcome"`) {
		t.Fatalf("first frame = %s, want welcome", msg)
	}
	want := []struct {
		symbol string
		price  float64
	}{{"BTC", 100}, {"ETH", 11}}
	for _, w := range want {
		var u model.PriceUpdate
		if err := json.Unmarshal([]byte(readText(t, conn)), &u); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if u.Symbol != w.symbol || u.Price != w.price {
			t.Errorf("replayed %s@%v, want %s@%v", u.Symbol, u.Price, w.symbol, w.price)
		}
	}
}
