package ringbuf

import (
	"sync"
	"testing"
	"time"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

func point(ts int64, price float64) model.PricePoint {
	return model.PricePoint{Symbol: "BTC", Timestamp: ts, Open: price, High: price, Low: price, Close: price}
}

func TestRing_BasicPushLast(t *testing.T) {
	r := New(4)

	if err := r.Push(point(1, 100)); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := r.Push(point(2, 200)); err != nil {
		t.Fatalf("push 2: %v", err)
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got := r.Last(0)
	if len(got) != 2 || got[0].Close != 100 || got[1].Close != 200 {
		t.Fatalf("unexpected contents: %+v", got)
	}

	latest, ok := r.Latest()
	if !ok || latest.Close != 200 {
		t.Fatalf("expected latest=200, got %v ok=%v", latest.Close, ok)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New(3)
	for i := int64(1); i <= 5; i++ {
		if err := r.Push(point(i, float64(i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	if r.Evicted() != 2 {
		t.Fatalf("expected evicted=2, got %d", r.Evicted())
	}

	got := r.Last(0)
	for i, want := range []float64{3, 4, 5} {
		if got[i].Close != want {
			t.Errorf("index %d: expected %v, got %v", i, want, got[i].Close)
		}
	}
}

func TestRing_LastN(t *testing.T) {
	r := New(10)
	for i := int64(1); i <= 7; i++ {
		r.Push(point(i, float64(i)))
	}

	cases := []struct {
		n     int
		want  int
		first float64
	}{
		{0, 7, 1}, {-1, 7, 1}, {3, 3, 5}, {7, 7, 1}, {50, 7, 1},
	}
	for _, tc := range cases {
		got := r.Last(tc.n)
		if len(got) != tc.want {
			t.Errorf("Last(%d): expected %d points, got %d", tc.n, tc.want, len(got))
			continue
		}
		if got[0].Close != tc.first {
			t.Errorf("Last(%d): expected first=%v, got %v", tc.n, tc.first, got[0].Close)
		}
	}
}

func TestRing_SnapshotIsCopy(t *testing.T) {
	r := New(2)
	r.Push(point(1, 1))
	snap := r.Last(0)
	snap[0].Close = 999

	got := r.Last(0)
	if got[0].Close != 1 {
		t.Fatalf("snapshot aliased ring storage: got %v", got[0].Close)
	}
}

func TestRing_RejectsOutOfOrder(t *testing.T) {
	r := New(4)
	r.Push(point(10, 1))

	if err := r.Push(point(5, 2)); err != ErrOutOfOrder {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	// Equal timestamps are allowed.
	if err := r.Push(point(10, 3)); err != nil {
		t.Fatalf("equal timestamp rejected: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
}

func TestRing_EmptyAndMinimumCapacity(t *testing.T) {
	r := New(0)
	if r.Cap() != 1 {
		t.Fatalf("expected cap=1, got %d", r.Cap())
	}
	if _, ok := r.Latest(); ok {
		t.Fatal("latest on empty ring should return false")
	}
	if got := r.Last(5); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %d", len(got))
	}
}

func TestRing_ConcurrentPushAndRead(t *testing.T) {
	const count = 50_000
	r := New(1000)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			r.Push(point(int64(i), float64(i)))
		}
	}()

	torn := make(chan string, 1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			snap := r.Last(0)
			for j := 1; j < len(snap); j++ {
				if snap[j].Timestamp != snap[j-1].Timestamp+1 {
					select {
					case torn <- "non-contiguous snapshot":
					default:
					}
					return
				}
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent test timed out")
	}

	select {
	case msg := <-torn:
		t.Fatal(msg)
	default:
	}

	if r.Len() != 1000 {
		t.Fatalf("expected len=1000, got %d", r.Len())
	}
	latest, _ := r.Latest()
	if latest.Timestamp != count-1 {
		t.Fatalf("expected latest ts=%d, got %d", count-1, latest.Timestamp)
	}
}
