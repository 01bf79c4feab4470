package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	if _, err := Init("test-service", Config{Level: "info"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Init("test-service", Config{Level: "nonsense"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNew_EmbedsServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(&buf, "aitrading"), "hub")
	l.Info().Str("symbol", "BTC").Msg("hello")

	var evt map[string]any
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if evt["service"] != "aitrading" {
		t.Errorf("expected service=aitrading, got %v", evt["service"])
	}
	if evt["component"] != "hub" {
		t.Errorf("expected component=hub, got %v", evt["component"])
	}
	if evt["symbol"] != "BTC" {
		t.Errorf("expected symbol=BTC, got %v", evt["symbol"])
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("BTC", ts)

	if !strings.HasPrefix(tid, "BTC-") {
		t.Errorf("expected trace id to start with 'BTC-', got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "svc")

	l := FromContext(context.Background(), base)
	l.Info().Msg("no trace")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected trace_id without context value: %s", buf.String())
	}

	buf.Reset()
	ctx := WithTraceID(context.Background(), "abc-123")
	l = FromContext(ctx, base)
	l.Info().Msg("traced")
	if !strings.Contains(buf.String(), `"trace_id":"abc-123"`) {
		t.Errorf("expected trace_id in output, got %s", buf.String())
	}
}
