// Package history loads the historical series a symbol's cache is seeded
// with before live ticks arrive.
package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/cache"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Source returns up to limit of the most recent points for symbol, oldest
// first.
type Source interface {
	Name() string
	Load(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error)
}

// Seeder bootstraps cache series from a Source.
type Seeder struct {
	src     Source
	cache   *cache.Cache
	limit   int
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewSeeder creates a Seeder. limit <= 0 uses cache.DefaultBootstrapLimit.
func NewSeeder(src Source, c *cache.Cache, limit int, log zerolog.Logger, m *metrics.Metrics) *Seeder {
	if limit <= 0 {
		limit = cache.DefaultBootstrapLimit
	}
	return &Seeder{
		src:     src,
		cache:   c,
		limit:   limit,
		log:     logger.Component(log, "history").With().Str("source", src.Name()).Logger(),
		metrics: m,
	}
}

// Seed loads and stores history for symbol and returns the number of points
// kept.
func (s *Seeder) Seed(ctx context.Context, symbol string) (int, error) {
	points, err := s.src.Load(ctx, symbol, s.limit)
	if err != nil {
		return 0, fmt.Errorf("load %s history from %s: %w", symbol, s.src.Name(), err)
	}
	n := s.cache.Seed(symbol, points, s.limit)
	if s.metrics != nil {
		s.metrics.HistoryPoints.WithLabelValues(s.src.Name()).Add(float64(n))
	}
	s.log.Info().Str("symbol", symbol).Int("loaded", len(points)).Int("kept", n).Msg("history seeded")
	return n, nil
}

// SeedAll seeds every symbol. A failing symbol is logged and skipped so one
// bad market never blocks startup.
func (s *Seeder) SeedAll(ctx context.Context, symbols []string) map[string]int {
	out := make(map[string]int, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		n, err := s.Seed(ctx, sym)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", sym).Msg("history bootstrap failed, starting empty")
			continue
		}
		out[sym] = n
	}
	return out
}
