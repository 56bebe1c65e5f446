// Package dashboard serves the bidirectional dashboard websocket endpoint:
// it accepts connections, tracks each client's requested view, and relays
// historical-performance queries to the store.
package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/cuemby/storjmonitor/pkg/broadcast"
	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/store"
	"github.com/cuemby/storjmonitor/pkg/types"
)

// clientMessage is the envelope for client -> server messages.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type setViewPayload struct {
	View json.RawMessage `json:"view"` // either "Aggregate" or ["n1","n2"]
}

type historicalPerformancePayload struct {
	View        json.RawMessage `json:"view"`
	Points      int             `json:"points"`
	IntervalSec int             `json:"interval_sec"`
}

// Client wraps one websocket connection and implements
// broadcast.Subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *broadcast.Hub
	hist *store.Writer

	mu   sync.Mutex
	view types.ViewSubscription
}

// NewClient wraps conn, registers it with hub, and sends the initial
// state payload for nodes.
func NewClient(conn *websocket.Conn, hub *broadcast.Hub, hist *store.Writer, nodeNames []string) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		hub:  hub,
		hist: hist,
	}
	hub.Subscribe(c)
	_ = c.Send(broadcast.Message{Type: broadcast.TypeInit, Data: map[string]interface{}{"nodes": nodeNames}})
	return c
}

// View implements broadcast.Subscriber.
func (c *Client) View() types.ViewSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Send implements broadcast.Subscriber. Write errors are surfaced to the
// caller so the hub can drop this client.
func (c *Client) Send(msg broadcast.Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

// Serve reads client messages until the connection closes or errors,
// handling set_view and get_historical_performance. It unregisters the
// client from hub on return.
func (c *Client) Serve() {
	defer c.hub.Unsubscribe(c)
	defer c.conn.Close()

	logger := log.WithComponent("dashboard")

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "set_view":
			c.handleSetView(msg.Data)
		case "get_historical_performance":
			c.handleHistoricalPerformance(msg.Data)
		default:
			logger.Debug().Str("type", msg.Type).Msg("unrecognized client message")
		}
	}
}

func (c *Client) handleSetView(data json.RawMessage) {
	var payload setViewPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	view := parseView(payload.View)

	c.mu.Lock()
	c.view = view
	c.mu.Unlock()
}

func parseView(raw json.RawMessage) types.ViewSubscription {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return types.ViewSubscription{} // "Aggregate" sentinel -> empty Nodes
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return types.ViewSubscription{Nodes: asList}
	}

	return types.ViewSubscription{}
}

func (c *Client) handleHistoricalPerformance(data json.RawMessage) {
	var payload historicalPerformancePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	view := parseView(payload.View)
	interval := payload.IntervalSec
	if interval <= 0 {
		interval = 3600
	}
	points := payload.Points
	if points <= 0 {
		points = 24
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(points*interval) * time.Second)

	bins, err := c.hist.HistoricalPerformance(context.Background(), view.Nodes, from, to)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("historical performance query failed")
		return
	}

	_ = c.Send(broadcast.Message{
		Type: broadcast.TypePerformanceBatchUpdate,
		Data: map[string]interface{}{"bins": bins},
	})
}
