// Package stats maintains one incrementally-updated aggregate per active
// dashboard view (the Aggregate view or a named node subset), recomputing
// from each node's newly-arrived events. Every interval it publishes each
// view's full cumulative snapshot; it does not compute or send diffs.
package stats

import (
	"context"
	"time"

	"github.com/cuemby/storjmonitor/pkg/broadcast"
	"github.com/cuemby/storjmonitor/pkg/node"
	"github.com/cuemby/storjmonitor/pkg/types"
)

// NodeSource is the subset of node.Processor the engine needs to read a
// consistent snapshot of newly-arrived events.
type NodeSource interface {
	Snapshot(afterIndex int) ([]types.TrafficEvent, int, bool)
}

// ViewSource reports which views currently have connected subscribers.
type ViewSource interface {
	ActiveViews() []types.ViewSubscription
}

// Publisher pushes a view's recomputed snapshot to its subscribers.
type Publisher interface {
	PublishStatsUpdate(node string, data interface{})
}

// Engine is the per-view incremental stats aggregator (C5).
type Engine struct {
	nodes    map[string]NodeSource
	views    ViewSource
	hub      Publisher
	interval time.Duration

	state map[string]*viewState // keyed by ViewSubscription.Key()
}

// NewEngine builds an Engine over the given nodes, recomputing every
// interval (falling back to 5s if non-positive).
func NewEngine(nodes map[string]*node.Processor, hub *broadcast.Hub, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	wrapped := make(map[string]NodeSource, len(nodes))
	for name, p := range nodes {
		wrapped[name] = p
	}
	return &Engine{
		nodes:    wrapped,
		views:    hub,
		hub:      hub,
		interval: interval,
		state:    make(map[string]*viewState),
	}
}

// Run recomputes and publishes every interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	active := e.views.ActiveViews()

	wanted := make(map[string]bool, len(active))
	for _, sub := range active {
		wanted[sub.Key()] = true
		vs, ok := e.state[sub.Key()]
		if !ok {
			vs = newViewState(sub)
			e.state[sub.Key()] = vs
		}
		e.refreshView(vs)
		e.hub.PublishStatsUpdate(sub.Key(), vs.snapshot())
	}

	// Orphaned-view cleanup: drop state for views with no connected
	// subscriber.
	for key := range e.state {
		if !wanted[key] {
			delete(e.state, key)
		}
	}
}

func (e *Engine) refreshView(vs *viewState) {
	now := time.Now().UTC()
	for name, src := range e.nodes {
		if !vs.sub.Matches(name) {
			continue
		}
		after := vs.lastIndex[name]
		events, next, hadNew := src.Snapshot(after)
		if !hadNew {
			continue
		}
		vs.merge(events, now)
		vs.lastIndex[name] = next
	}
}
