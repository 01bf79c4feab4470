package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Requests answers messages initiated by a websocket client.
type Requests interface {
	// AnalyzeAt analyzes the cached series for symbol as if its latest
	// price were price.
	AnalyzeAt(symbol string, price float64) (*model.AnalysisResult, error)
	// Refresh re-broadcasts the latest analysis for symbol, or for every
	// symbol when symbol is empty.
	Refresh(symbol string) error
}

// ClientConfig tunes websocket subscribers.
type ClientConfig struct {
	SendBuffer   int     `yaml:"send_buffer" default:"256" validate:"gte=1"`
	AnalyzeRate  float64 `yaml:"analyze_rate" default:"1" validate:"gt=0"`
	AnalyzeBurst int     `yaml:"analyze_burst" default:"3" validate:"gte=1"`
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.AnalyzeRate <= 0 {
		c.AnalyzeRate = 1
	}
	if c.AnalyzeBurst <= 0 {
		c.AnalyzeBurst = 3
	}
	return c
}

// wsClient is a websocket peer registered with the hub. All writes go
// through send and are serialized by writePump.
type wsClient struct {
	id       string
	conn     *websocket.Conn
	hub      *Hub
	requests Requests
	limiter  *rate.Limiter
	log      zerolog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *wsClient) ID() string { return c.id }

// Send queues msg without blocking. A full buffer drops the message for
// this client only.
func (c *wsClient) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSubscriberClosed
	}
	select {
	case c.send <- msg:
	default:
		if c.hub.metrics != nil {
			c.hub.metrics.SubscriberDrops.Inc()
		}
		c.log.Debug().Msg("send buffer full, dropping message")
	}
	return nil
}

func (c *wsClient) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// ServeWS upgrades the request and registers the connection with the hub.
// requests may be nil, in which case analyze and refresh messages are
// answered with an error.
func (h *Hub) ServeWS(cfg ClientConfig, requests Requests) http.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn.EnableWriteCompression(true)

		id := uuid.NewString()
		c := &wsClient{
			id:       id,
			conn:     conn,
			hub:      h,
			requests: requests,
			limiter:  rate.NewLimiter(rate.Limit(cfg.AnalyzeRate), cfg.AnalyzeBurst),
			log:      h.log.With().Str("subscriber", id).Logger(),
			send:     make(chan []byte, cfg.SendBuffer),
		}

		c.Send(welcome())
		h.join(c)

		go c.writePump()
		go c.readPump()
	}
}

func welcome() []byte {
	msg, _ := json.Marshal(map[string]any{
		"type":      model.MessageWelcome,
		"message":   "Connected to AI Trading Data",
		"timestamp": time.Now().UnixMilli(),
	})
	return msg
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.handle(strings.TrimSpace(string(msg)))
	}
}

// handle dispatches one inbound text message.
func (c *wsClient) handle(msg string) {
	switch {
	case strings.HasPrefix(msg, "analyze:"):
		c.handleAnalyze(strings.TrimPrefix(msg, "analyze:"))
	case msg == "refresh" || strings.HasPrefix(msg, "refresh:"):
		c.handleRefresh(strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(msg, "refresh"), ":")))
	default:
		var ping struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal([]byte(msg), &ping) == nil && ping.Ping > 0 {
			pong, _ := json.Marshal(map[string]any{
				"type":      "pong",
				"ping":      ping.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.Send(pong)
			return
		}
		c.log.Trace().Str("payload", msg).Msg("ignoring unknown message")
	}
}

// handleAnalyze answers "analyze:SYM,price" with "analysis:<json>".
func (c *wsClient) handleAnalyze(args string) {
	if !c.limiter.Allow() {
		c.sendError("Analysis failed - rate limit exceeded")
		return
	}
	symbol, price, err := parseAnalyze(args)
	if err != nil {
		c.sendError("Analysis failed - " + err.Error())
		return
	}
	if c.requests == nil {
		c.sendError("Analysis failed - analysis unavailable")
		return
	}

	res, err := c.requests.AnalyzeAt(symbol, price)
	if err != nil {
		c.sendError("Analysis failed - " + err.Error())
		return
	}
	body, err := json.Marshal(res)
	if err != nil {
		c.sendError("Analysis failed - " + fallbackAnalysis)
		return
	}
	c.Send(append([]byte("analysis:"), body...))
	c.log.Info().Str("symbol", symbol).Float64("price", price).Str("signal", string(res.TradingSignal)).Msg("analysis request served")
}

func (c *wsClient) handleRefresh(symbol string) {
	if c.requests == nil {
		c.sendError("Refresh failed - refresh unavailable")
		return
	}
	if err := c.requests.Refresh(symbol); err != nil {
		c.sendError("Refresh failed - " + err.Error())
	}
}

func (c *wsClient) sendError(text string) {
	c.Send([]byte("error:" + text))
}

func parseAnalyze(args string) (string, float64, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected SYMBOL,PRICE")
	}
	symbol := strings.ToUpper(strings.TrimSpace(parts[0]))
	if symbol == "" {
		return "", 0, fmt.Errorf("missing symbol")
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || price <= 0 {
		return "", 0, fmt.Errorf("invalid price %q", parts[1])
	}
	return symbol, price, nil
}
