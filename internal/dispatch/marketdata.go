package dispatch

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"venuecore/internal/common"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// fillMessage is the wire shape pushed to every subscribed market-data
// client. It intentionally carries less detail than common.Fill: venue
// clients see public trade prints, never the counterparty order id.
type fillMessage struct {
	Type     string  `json:"type"`
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Quantity uint64  `json:"quantity"`
	Ts       int64   `json:"ts"`
}

// MarketDataHub fans out public trade prints to WebSocket subscribers over
// gorilla/websocket. It is registered on the dispatch Bus as a Listener and
// never blocks the matching thread: OnFill only ever does a non-blocking
// channel send, dropping the print for a client whose send buffer is full
// rather than stalling the engine.
type MarketDataHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	log     zerolog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewMarketDataHub constructs an empty hub.
func NewMarketDataHub(log zerolog.Logger) *MarketDataHub {
	return &MarketDataHub{
		clients: make(map[*wsClient]struct{}),
		log:     log.With().Str("component", "marketdata").Logger(),
	}
}

// ServeHTTP upgrades the connection and registers it as a subscriber. Every
// connected client receives every symbol's trade prints; per-channel
// subscription filtering is left to the client.
func (h *MarketDataHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *MarketDataHub) readPump(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *MarketDataHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *MarketDataHub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

func (h *MarketDataHub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow consumer: drop the print rather than block dispatch.
		}
	}
}

func (h *MarketDataHub) OnExecution(common.ExecutionReport) error { return nil }

func (h *MarketDataHub) OnFill(fill common.Fill) error {
	payload, err := json.Marshal(fillMessage{
		Type:     "trade",
		Symbol:   string(fill.Symbol),
		Price:    fill.Price.Float64(),
		Quantity: fill.Quantity,
		Ts:       fill.Timestamp,
	})
	if err != nil {
		return err
	}
	h.broadcast(payload)
	return nil
}

func (h *MarketDataHub) OnError(EngineError) error { return nil }
