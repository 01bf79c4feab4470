package gateway

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// ErrSubscriberClosed is returned by Send once a subscriber has gone away.
var ErrSubscriberClosed = errors.New("subscriber closed")

// fallbackAnalysis replaces an analysis payload that cannot be encoded.
const fallbackAnalysis = "Analysis temporarily unavailable"

// Subscriber is one broadcast receiver. Send must not block; a non-nil error
// removes the subscriber from the hub.
type Subscriber interface {
	ID() string
	Send(msg []byte) error
}

// Hub fans encoded price updates out to every registered subscriber.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber

	// Latency records tick-to-broadcast samples for the status endpoint.
	Latency *LatencyTracker

	// publishMu orders Publish against join so a joining subscriber sees
	// each symbol's frames in publish order with nothing skipped.
	publishMu sync.Mutex
	last      *lastFrames

	log     zerolog.Logger
	metrics *metrics.Metrics
	marshal func(v any) ([]byte, error)
}

// NewHub creates an empty hub. m may be nil.
func NewHub(log zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		subs:    make(map[string]Subscriber),
		Latency: NewLatencyTracker(10000),
		last:    newLastFrames(),
		log:     logger.Component(log, "hub"),
		metrics: m,
		marshal: json.Marshal,
	}
}

// Register adds s, replacing any subscriber with the same ID.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	count := len(h.subs)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Set(float64(count))
	}
	h.log.Info().Str("subscriber", s.ID()).Int("total", count).Msg("subscriber registered")
}

// join registers s and then replays the latest frame of every symbol.
// Frames published while s joins arrive after its replay.
func (h *Hub) join(s Subscriber) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	h.Register(s)
	for _, msg := range h.last.all() {
		if err := s.Send(msg); err != nil {
			h.Unregister(s.ID())
			return
		}
	}
}

// Unregister removes the subscriber with id. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	count := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.Subscribers.Set(float64(count))
	}
	h.log.Info().Str("subscriber", id).Int("total", count).Msg("subscriber unregistered")
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast sends msg to every subscriber and returns how many accepted it.
// The set is copied under the read lock and sends happen outside it, so a
// slow or failing subscriber never blocks registration. Subscribers whose
// Send fails are removed.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var failed []string
	delivered := 0
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			h.log.Debug().Err(err).Str("subscriber", s.ID()).Msg("send failed, removing subscriber")
			failed = append(failed, s.ID())
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.remove(failed)
	}
	return delivered
}

func (h *Hub) remove(ids []string) {
	h.mu.Lock()
	removed := 0
	for _, id := range ids {
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			removed++
		}
	}
	count := len(h.subs)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SubscriberRemovals.Add(float64(removed))
		h.metrics.Subscribers.Set(float64(count))
	}
}

// Publish encodes update and broadcasts it. If the analysis cannot be
// encoded the update still goes out with a degraded analysis payload. The
// frame is also kept as the symbol's latest for subscribers that join later.
func (h *Hub) Publish(update model.PriceUpdate) {
	msg, err := h.Encode(update)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", update.Symbol).Msg("dropping unencodable update")
		return
	}
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	h.last.put(update.Symbol, msg)
	h.Broadcast(msg)
}

// Encode renders update for the wire, degrading the analysis payload when
// it fails to encode.
func (h *Hub) Encode(update model.PriceUpdate) ([]byte, error) {
	if update.Type == "" {
		update.Type = model.MessagePriceUpdate
	}
	msg, err := h.marshal(update)
	if err == nil {
		return msg, nil
	}

	h.log.Warn().Err(err).Str("symbol", update.Symbol).Msg("analysis encode failed, sending fallback")
	if h.metrics != nil {
		h.metrics.FallbackPayloads.Inc()
	}
	msg, ferr := h.marshal(model.DegradedPriceUpdate{
		Type:      update.Type,
		Symbol:    update.Symbol,
		Price:     update.Price,
		Volume:    update.Volume,
		Timestamp: update.Timestamp,
		Analysis:  model.DegradedAnalysis{Error: fallbackAnalysis},
	})
	if ferr != nil {
		return nil, errors.Join(model.ErrSerialization, err, ferr)
	}
	return msg, nil
}
