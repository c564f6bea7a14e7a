package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/engine"
)

// Websocket event types pushed to dashboard clients.
const (
	EventExecutionStarted   = "execution_started"
	EventStateChanged       = "state_changed"
	EventSpreadTick         = "spread_tick"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
)

// Hub maintains the set of connected dashboard clients and broadcasts
// execution events to them. It implements engine.EventSink; sends are
// best-effort and a dead client is pruned on its first write failure, so
// the engine never blocks on a slow dashboard.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
	logger    *log.Logger
}

// Verify interface compliance at compile time.
var _ engine.EventSink = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stdout, "[hub] ", log.LstdFlags)
	}
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			// The dashboard is served from its own origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleWebSocket upgrades the connection and parks it in the client set.
// Inbound messages are drained only to detect disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade: %v", err)
		return
	}

	h.register(conn)
	defer func() {
		h.unregister(conn)
		conn.Close()
	}()

	conn.WriteJSON(map[string]any{
		"type":      "connection_init",
		"status":    "connected",
		"timestamp": time.Now().UnixMilli(),
	})

	const (
		writeWait  = 10 * time.Second
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[conn] = true
	h.logger.Printf("client connected, %d total", len(h.clients))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.logger.Printf("client disconnected, %d total", len(h.clients))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Broadcast sends one event to every connected client, dropping clients
// whose writes fail.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(map[string]any{
		"type":      event,
		"timestamp": time.Now().UnixMilli(),
		"data":      payload,
	})
	if err != nil {
		h.logger.Printf("marshal %s event: %v", event, err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) ExecutionStarted(exec *domain.FailsafeExecution) {
	h.Broadcast(EventExecutionStarted, executionJSON(exec))
}

func (h *Hub) StateChanged(exec *domain.FailsafeExecution, from domain.ExecutionState) {
	payload := executionJSON(exec)
	payload["from_state"] = string(from)
	h.Broadcast(EventStateChanged, payload)
}

func (h *Hub) SpreadTick(sample *domain.SpreadSample) {
	h.Broadcast(EventSpreadTick, map[string]any{
		"execution_id": sample.ExecutionID,
		"observed_at":  sample.ObservedAt,
		"buy_price":    sample.BuyPrice,
		"sell_price":   sample.SellPrice,
		"spread_pct":   sample.SpreadPct,
	})
}

func (h *Hub) ExecutionCompleted(exec *domain.FailsafeExecution) {
	h.Broadcast(EventExecutionCompleted, executionJSON(exec))
}

func (h *Hub) ExecutionFailed(exec *domain.FailsafeExecution) {
	h.Broadcast(EventExecutionFailed, executionJSON(exec))
}

// executionJSON renders an execution for event payloads and REST
// responses alike.
func executionJSON(e *domain.FailsafeExecution) map[string]any {
	out := map[string]any{
		"execution_id":   e.ExecutionID,
		"opportunity_id": e.OpportunityID,
		"state":          string(e.State),
		"capital":        e.Capital.String(),
		"base_amount":    e.BaseAmount.String(),
		"current_spread": e.CurrentSpread.String(),
		"target_spread":  e.TargetSpread.String(),
		"live":           e.Live,
		"started_at":     e.StartedAt,
		"updated_at":     e.UpdatedAt,
	}
	if e.Profit.Valid {
		out["profit"] = e.Profit.Decimal.String()
	}
	if e.FailureReason != "" {
		out["failure_reason"] = e.FailureReason
	}
	return out
}
