// Package broadcast batches small dashboard-destined messages and fans
// them out to subscribers, tolerating slow or dead sockets. It adapts the
// publish/subscribe broker idiom used elsewhere in this codebase to a
// batched, typed message set.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/storjmonitor/pkg/metrics"
	"github.com/cuemby/storjmonitor/pkg/types"
)

// MessageType tags the payload carried by a Message, matching the
// dashboard wire protocol's server-to-client message types.
type MessageType string

const (
	TypeInit                   MessageType = "init"
	TypeStatsUpdate            MessageType = "stats_update"
	TypeLogEntryBatch          MessageType = "log_entry_batch"
	TypePerformanceBatchUpdate MessageType = "performance_batch_update"
	TypeActiveCompactions      MessageType = "active_compactions"
	TypeHashstoreUpdated       MessageType = "hashstore_updated"
	TypeConnectionStatus       MessageType = "connection_status"
)

// Message is one envelope sent to a dashboard subscriber.
type Message struct {
	Type MessageType
	Node string      // empty for view-scoped / global messages
	Data interface{}
}

// Subscriber receives Messages. A Send error drops the subscriber from
// the hub; other subscribers are unaffected.
type Subscriber interface {
	Send(Message) error
	View() types.ViewSubscription
}

// annotatedEntry pairs a log entry with the time it was queued, for batch
// annotation with arrival offsets.
type annotatedEntry struct {
	entry    types.LogEntry
	arrival  time.Time
}

const (
	defaultBatchInterval = 100 * time.Millisecond
	defaultBatchSize     = 500
)

// Hub batches log entries and fans out both batched and immediate
// messages to subscribers.
type Hub struct {
	batchInterval time.Duration
	batchSize     int

	mu          sync.RWMutex
	subscribers map[Subscriber]bool

	logMu    sync.Mutex
	logQueue []annotatedEntry
}

// NewHub builds a Hub. A zero interval/size falls back to the defaults
// (100ms, 500 records).
func NewHub(batchInterval time.Duration, batchSize int) *Hub {
	if batchInterval <= 0 {
		batchInterval = defaultBatchInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Hub{
		batchInterval: batchInterval,
		batchSize:     batchSize,
		subscribers:   make(map[Subscriber]bool),
	}
}

// Subscribe registers a subscriber.
func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[s] = true
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, s)
}

// SubscriberCount reports the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ActiveViews returns the distinct ViewSubscriptions currently held by
// connected subscribers, deduplicated by key.
func (h *Hub) ActiveViews() []types.ViewSubscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]types.ViewSubscription)
	for s := range h.subscribers {
		v := s.View()
		seen[v.Key()] = v
	}

	out := make([]types.ViewSubscription, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	return out
}

// Run drains the log-entry queue every batchInterval (or sooner if
// batchSize is reached) until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.batchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.flushLogBatch()
		}
	}
}

// PublishLogEntry enqueues a log entry for the next batch flush, flushing
// immediately if the batch size cap is reached.
func (h *Hub) PublishLogEntry(entry types.LogEntry) {
	h.logMu.Lock()
	h.logQueue = append(h.logQueue, annotatedEntry{entry: entry, arrival: time.Now()})
	full := len(h.logQueue) >= h.batchSize
	h.logMu.Unlock()

	if full {
		h.flushLogBatch()
	}
}

func (h *Hub) flushLogBatch() {
	h.logMu.Lock()
	if len(h.logQueue) == 0 {
		h.logMu.Unlock()
		return
	}
	batch := h.logQueue
	h.logQueue = nil
	h.logMu.Unlock()

	first := batch[0].arrival
	type wireEntry struct {
		types.LogEntry
		ArrivalOffsetMS int64 `json:"arrival_offset_ms"`
	}
	entries := make([]wireEntry, len(batch))
	for i, a := range batch {
		entries[i] = wireEntry{
			LogEntry:        a.entry,
			ArrivalOffsetMS: a.arrival.Sub(first).Milliseconds(),
		}
	}

	h.publishToMatching(Message{Type: TypeLogEntryBatch, Data: entries}, "")
}

// PublishActiveCompactions broadcasts the current active-compaction
// snapshot for one node.
func (h *Hub) PublishActiveCompactions(node string, active []types.HashstoreBegin) {
	h.publishToMatching(Message{Type: TypeActiveCompactions, Node: node, Data: active}, node)
}

// PublishHashstoreUpdated notifies dashboards that node's hashstore_log
// history has changed.
func (h *Hub) PublishHashstoreUpdated(node string) {
	h.publishToMatching(Message{Type: TypeHashstoreUpdated, Node: node}, node)
}

// PublishConnectionStatus broadcasts a node's connection-status change.
func (h *Hub) PublishConnectionStatus(status types.ConnectionStatus) {
	h.publishToMatching(Message{Type: TypeConnectionStatus, Node: status.Node, Data: status}, status.Node)
}

// PublishStatsUpdate sends a view-scoped stats payload only to the
// subscribers whose view key exactly matches viewKey.
func (h *Hub) PublishStatsUpdate(viewKey string, data interface{}) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		if s.View().Key() == viewKey {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	msg := Message{Type: TypeStatsUpdate, Data: data}
	var failed []Subscriber
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			failed = append(failed, s)
		}
	}
	if len(failed) > 0 {
		metrics.BroadcastSendFailuresTotal.Add(float64(len(failed)))
		h.mu.Lock()
		for _, s := range failed {
			delete(h.subscribers, s)
		}
		h.mu.Unlock()
	}
}

// publishToMatching sends msg to every subscriber whose view matches node
// (or every subscriber, if node is empty). A send error drops the
// subscriber.
func (h *Hub) publishToMatching(msg Message, node string) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		if node == "" || s.View().Matches(node) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	var failed []Subscriber
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			failed = append(failed, s)
		}
	}

	if len(failed) > 0 {
		metrics.BroadcastSendFailuresTotal.Add(float64(len(failed)))
		h.mu.Lock()
		for _, s := range failed {
			delete(h.subscribers, s)
		}
		h.mu.Unlock()
	}
}
