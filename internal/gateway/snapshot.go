package gateway

import (
	"sort"
	"sync"
)

// lastFrames keeps the most recent encoded update per symbol so a new
// subscriber starts with current prices instead of waiting for the next tick.
type lastFrames struct {
	mu     sync.RWMutex
	frames map[string][]byte
}

func newLastFrames() *lastFrames {
	return &lastFrames{frames: make(map[string][]byte)}
}

// put stores a private copy of msg as symbol's latest frame.
func (l *lastFrames) put(symbol string, msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	l.mu.Lock()
	l.frames[symbol] = cp
	l.mu.Unlock()
}

// all returns the stored frames ordered by symbol.
func (l *lastFrames) all() [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	symbols := make([]string, 0, len(l.frames))
	for s := range l.frames {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	out := make([][]byte, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, l.frames[s])
	}
	return out
}
