// Package ringbuf provides a fixed-capacity, overwrite-oldest ring buffer of
// model.PricePoint guarded by its own lock. Readers always receive copies, so
// a snapshot never aliases the ring's backing array.
package ringbuf

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// ErrOutOfOrder is returned when a point is older than the newest stored one.
var ErrOutOfOrder = errors.New("ringbuf: point older than latest")

// Ring is a bounded FIFO of price points. When full, Push evicts the oldest.
type Ring struct {
	mu    sync.RWMutex
	buf   []model.PricePoint
	start int // index of the oldest element
	size  int

	evicted atomic.Uint64
}

// New creates a ring holding at most capacity points. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.PricePoint, capacity)}
}

// Push appends p, evicting the oldest point if the ring is full.
// Timestamps must be non-decreasing; an older point is rejected.
func (r *Ring) Push(p model.PricePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size > 0 && p.Timestamp < r.buf[r.index(r.size-1)].Timestamp {
		return ErrOutOfOrder
	}

	if r.size == len(r.buf) {
		r.buf[r.start] = p
		r.start = (r.start + 1) % len(r.buf)
		r.evicted.Add(1)
		return nil
	}
	r.buf[r.index(r.size)] = p
	r.size++
	return nil
}

// Last returns up to n of the most recent points, oldest first.
// n <= 0 returns everything.
func (r *Ring) Last(n int) []model.PricePoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]model.PricePoint, n)
	first := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[r.index(first+i)]
	}
	return out
}

// Latest returns the newest point, if any.
func (r *Ring) Latest() (model.PricePoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return model.PricePoint{}, false
	}
	return r.buf[r.index(r.size-1)], true
}

// Len returns the number of stored points.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Evicted returns how many points have been overwritten since creation.
func (r *Ring) Evicted() uint64 {
	return r.evicted.Load()
}

// index maps a logical offset from the oldest element to a buffer slot.
func (r *Ring) index(offset int) int {
	return (r.start + offset) % len(r.buf)
}
