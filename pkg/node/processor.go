// Package node owns one storage daemon's live state: pairing operation
// starts with their completions, tracking active hashstore compactions,
// and sampling storage snapshots, then fanning the results out to the
// store writer and dashboard broadcaster.
package node

import (
	"sync"
	"time"

	"github.com/cuemby/storjmonitor/pkg/metrics"
	"github.com/cuemby/storjmonitor/pkg/parser"
	"github.com/cuemby/storjmonitor/pkg/types"
)

const (
	maxTrackedOperations = 10000
	evictFraction        = 0.2
	snapshotMinInterval  = 5 * time.Minute
	snapshotMinDeltaGiB  = 1 << 30
	// arrivalDurationCeiling is the point past which arrival-time delta is
	// assumed to be a buffering artifact rather than true latency.
	arrivalDurationCeiling = 4000 * time.Millisecond
)

// StoreWriter is the subset of the store package's write API the
// processor needs. Implemented by *store.Writer.
type StoreWriter interface {
	EnqueueEvent(types.TrafficEvent)
	EnqueueSnapshot(types.StorageSnapshot)
	EnqueueHashstoreEnd(types.HashstoreEnd)
}

// Broadcaster is the subset of the broadcast package's API the processor
// needs. Implemented by *broadcast.Hub.
type Broadcaster interface {
	PublishLogEntry(types.LogEntry)
	PublishActiveCompactions(node string, active []types.HashstoreBegin)
	PublishHashstoreUpdated(node string)
}

// Processor owns one node's pairing state and live event buffer.
type Processor struct {
	Node string

	Store       StoreWriter
	Broadcaster Broadcaster

	mu sync.Mutex

	starts      map[types.StartKey]types.OperationStartRecord
	startOrder  []types.StartKey
	active      map[string]types.HashstoreBegin // key: satellite:store

	liveEvents   []types.TrafficEvent
	hasNewEvents bool

	unprocessed []PerformanceSample

	lastSnapshotAt  time.Time
	lastAvailable   int64
	haveLastAvailable bool
}

// PerformanceSample is a compact record fed to the stats engine's binning.
type PerformanceSample struct {
	Timestamp time.Time
	Category  types.Category
	Status    types.Status
	Size      int64
}

// NewProcessor builds a Processor for the given node name.
func NewProcessor(nodeName string, store StoreWriter, broadcaster Broadcaster) *Processor {
	return &Processor{
		Node:        nodeName,
		Store:       store,
		Broadcaster: broadcaster,
		starts:      make(map[types.StartKey]types.OperationStartRecord),
		active:      make(map[string]types.HashstoreBegin),
	}
}

// Process dispatches one parsed event.
func (p *Processor) Process(ev parser.Event) {
	switch ev.Kind {
	case parser.KindOperationStart:
		p.processStart(*ev.Start)
	case parser.KindTraffic:
		p.processTraffic(*ev.Traffic)
	case parser.KindHashstoreBegin:
		p.processHashstoreBegin(*ev.HashstoreBegin)
	case parser.KindHashstoreEnd:
		p.processHashstoreEnd(*ev.HashstoreEnd)
	}
}

// PendingStarts reports how many operation-start records are currently
// awaiting a matching traffic event.
func (p *Processor) PendingStarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.starts)
}

func (p *Processor) processStart(rec types.OperationStartRecord) {
	p.mu.Lock()
	p.starts[rec.Key] = rec
	p.startOrder = append(p.startOrder, rec.Key)
	if len(p.starts) > maxTrackedOperations {
		p.evictOldestStartsLocked()
	}
	p.mu.Unlock()

	if rec.HasAvailable {
		p.maybeSnapshot(rec.Timestamp, rec.AvailableSpace)
	}
}

// evictOldestStartsLocked drops the oldest 20% of tracked starts. Caller
// must hold p.mu.
func (p *Processor) evictOldestStartsLocked() {
	live := p.startOrder[:0]
	for _, k := range p.startOrder {
		if _, ok := p.starts[k]; ok {
			live = append(live, k)
		}
	}
	p.startOrder = live
	n := int(float64(len(p.startOrder)) * evictFraction)
	if n < 1 {
		n = 1
	}
	for _, k := range p.startOrder[:n] {
		delete(p.starts, k)
	}
	p.startOrder = p.startOrder[n:]
}

func (p *Processor) maybeSnapshot(ts time.Time, available int64) {
	p.mu.Lock()
	sinceLast := ts.Sub(p.lastSnapshotAt)
	delta := available - p.lastAvailable
	if delta < 0 {
		delta = -delta
	}
	shouldSample := sinceLast >= snapshotMinInterval && (!p.haveLastAvailable || delta > snapshotMinDeltaGiB)
	if shouldSample {
		p.lastSnapshotAt = ts
		p.lastAvailable = available
		p.haveLastAvailable = true
	}
	p.mu.Unlock()

	if !shouldSample {
		return
	}
	p.Store.EnqueueSnapshot(types.StorageSnapshot{
		Node:           p.Node,
		Timestamp:      ts,
		AvailableBytes: available,
	})
}

func (p *Processor) processTraffic(ev types.TrafficEvent) {
	if ev.DurationMS == 0 {
		if dur, source, ok := p.pairWithStart(ev); ok {
			ev.DurationMS = dur
			metrics.PairedDurationSource.WithLabelValues(p.Node, source).Inc()
		}
	} else {
		metrics.PairedDurationSource.WithLabelValues(p.Node, "explicit").Inc()
	}

	switch ev.Action {
	case types.CategoryGet, types.CategoryPut, types.CategoryGetAudit, types.CategoryGetRepair, types.CategoryPutRepair:
		p.mu.Lock()
		p.unprocessed = append(p.unprocessed, PerformanceSample{
			Timestamp: ev.Timestamp,
			Category:  ev.Action,
			Status:    ev.Status,
			Size:      ev.Size,
		})
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.liveEvents = append(p.liveEvents, ev)
	p.hasNewEvents = true
	p.mu.Unlock()

	p.Broadcaster.PublishLogEntry(types.LogEntry{
		Node:      p.Node,
		Timestamp: ev.Timestamp,
		Level:     string(ev.Status),
		Message:   logMessage(ev),
	})

	p.Store.EnqueueEvent(ev)
}

func logMessage(ev types.TrafficEvent) string {
	return string(ev.Action) + " " + ev.SizeBucket + " " + ev.Location.Country
}

// pairWithStart finds and removes the matching start record (if any) and
// derives duration_ms via the hybrid arrival/timestamp heuristic. An
// explicit log-supplied duration (already set on ev before this is called)
// always wins and this is never invoked in that case.
func (p *Processor) pairWithStart(ev types.TrafficEvent) (ms float64, source string, ok bool) {
	key := types.StartKey{Node: p.Node, PieceID: ev.PieceID, SatelliteID: ev.SatelliteID, Action: ev.Action}

	p.mu.Lock()
	start, found := p.starts[key]
	if found {
		delete(p.starts, key)
	}
	p.mu.Unlock()

	if !found {
		return 0, "", false
	}

	arrivalDur := ev.ArrivalTime.Sub(start.ArrivalTime)
	if arrivalDur > arrivalDurationCeiling {
		return float64(ev.Timestamp.Sub(start.Timestamp).Milliseconds()), "timestamp", true
	}
	return float64(arrivalDur.Milliseconds()), "arrival", true
}

func (p *Processor) processHashstoreBegin(b types.HashstoreBegin) {
	key := b.SatelliteID + ":" + b.Store

	p.mu.Lock()
	p.active[key] = b
	snapshot := p.activeSnapshotLocked()
	p.mu.Unlock()

	p.Broadcaster.PublishActiveCompactions(p.Node, snapshot)
}

func (p *Processor) processHashstoreEnd(e types.HashstoreEnd) {
	key := e.SatelliteID + ":" + e.Store

	p.mu.Lock()
	if b, ok := p.active[key]; ok {
		e.StartedAt = b.StartedAt
	}
	delete(p.active, key)
	snapshot := p.activeSnapshotLocked()
	p.mu.Unlock()

	p.Broadcaster.PublishActiveCompactions(p.Node, snapshot)
	p.Store.EnqueueHashstoreEnd(e)
	p.Broadcaster.PublishHashstoreUpdated(p.Node)
}

func (p *Processor) activeSnapshotLocked() []types.HashstoreBegin {
	out := make([]types.HashstoreBegin, 0, len(p.active))
	for _, b := range p.active {
		out = append(out, b)
	}
	return out
}

// Snapshot returns the events appended since afterIndex, the index to
// resume from next time, and whether any events lie past afterIndex. Each
// caller keeps its own index, so several views can read the same node. It
// is the consistent-snapshot read path the stats engine uses (§5).
func (p *Processor) Snapshot(afterIndex int) ([]types.TrafficEvent, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.hasNewEvents = false

	if afterIndex >= len(p.liveEvents) {
		return nil, len(p.liveEvents), false
	}
	return append([]types.TrafficEvent(nil), p.liveEvents[afterIndex:]...), len(p.liveEvents), true
}
