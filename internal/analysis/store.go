package analysis

import (
	"sort"
	"sync"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Store keeps the most recent result per symbol.
type Store struct {
	mu     sync.RWMutex
	latest map[string]*model.AnalysisResult
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{latest: make(map[string]*model.AnalysisResult)}
}

// Put replaces the symbol's latest result unless it is older than the one
// already held.
func (s *Store) Put(res *model.AnalysisResult) {
	if res == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[res.Symbol]; ok && cur.Timestamp > res.Timestamp {
		return
	}
	s.latest[res.Symbol] = res
}

// Get returns the latest result for symbol.
func (s *Store) Get(symbol string) (*model.AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.latest[symbol]
	return res, ok
}

// Symbols lists the symbols with a stored result.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.latest))
	for sym := range s.latest {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
