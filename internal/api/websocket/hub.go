// Package websocket pushes assessment events to connected dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/anomaly"
	domaininvoice "github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// AssessmentEvent is the wire format for a completed analysis
type AssessmentEvent struct {
	Type        string    `json:"type"`
	InvoiceID   uuid.UUID `json:"invoice_id"`
	VendorName  string    `json:"vendor_name"`
	RiskScore   int       `json:"risk_score"`
	Suspicious  bool      `json:"is_suspicious"`
	Status      string    `json:"status"`
	Anomalies   int       `json:"anomalies"`
	AssessedAt  time.Time `json:"assessed_at"`
	Explanation []string  `json:"explanation"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans assessment events out to all connected clients. Slow clients are
// dropped rather than allowed to block the broadcast loop.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHub creates a hub; call Run before serving connections
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is canceled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("websocket client connected", zap.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// PublishAssessment broadcasts a completed analysis to all clients. It never
// blocks the caller; when the hub is saturated the event is dropped.
func (h *Hub) PublishAssessment(inv *domaininvoice.Invoice, assessment *anomaly.Assessment) {
	event := AssessmentEvent{
		Type:        "invoice.assessed",
		InvoiceID:   inv.ID,
		VendorName:  inv.VendorName,
		RiskScore:   assessment.RiskScore,
		Suspicious:  assessment.Suspicious,
		Status:      assessment.Status(),
		Anomalies:   len(assessment.Anomalies),
		AssessedAt:  time.Now().UTC(),
		Explanation: assessment.Explanation,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode assessment event", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("assessment event dropped, broadcast queue full")
	}
}

// ServeHTTP upgrades the connection and attaches it to the hub
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only listen; any inbound frame besides control traffic is
	// read and discarded until the connection closes.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
