package stats

import (
	"testing"
	"time"

	"github.com/cuemby/storjmonitor/pkg/types"
)

type fakeNodeSource struct {
	events []types.TrafficEvent
}

func (f *fakeNodeSource) Snapshot(afterIndex int) ([]types.TrafficEvent, int, bool) {
	if afterIndex >= len(f.events) {
		return nil, len(f.events), false
	}
	return append([]types.TrafficEvent(nil), f.events[afterIndex:]...), len(f.events), true
}

type fakeViewSource struct {
	views []types.ViewSubscription
}

func (f *fakeViewSource) ActiveViews() []types.ViewSubscription { return f.views }

type fakePublisher struct {
	published map[string]interface{}
}

func (f *fakePublisher) PublishStatsUpdate(viewKey string, data interface{}) {
	if f.published == nil {
		f.published = make(map[string]interface{})
	}
	f.published[viewKey] = data
}

func newTestEngine(nodes map[string]NodeSource, views *fakeViewSource, pub *fakePublisher) *Engine {
	return &Engine{
		nodes:    nodes,
		views:    views,
		hub:      pub,
		interval: time.Second,
		state:    make(map[string]*viewState),
	}
}

func TestEngineTickPublishesOnlyMatchingNodesPerView(t *testing.T) {
	n1 := &fakeNodeSource{events: []types.TrafficEvent{{Action: types.CategoryGet, SizeBucket: "<1 KB"}}}
	n2 := &fakeNodeSource{events: []types.TrafficEvent{{Action: types.CategoryPut, SizeBucket: "<1 KB"}}}

	views := &fakeViewSource{views: []types.ViewSubscription{
		{Nodes: []string{"node1"}},
		{Nodes: []string{"node2"}},
		{},
	}}
	pub := &fakePublisher{}

	e := newTestEngine(map[string]NodeSource{"node1": n1, "node2": n2}, views, pub)
	e.tick()

	node1Snap := pub.published["node1"].(Snapshot)
	if node1Snap.ByCategory[types.CategoryGet] == nil || node1Snap.ByCategory[types.CategoryPut] != nil {
		t.Errorf("node1 view snapshot should only include node1's GET, got %+v", node1Snap.ByCategory)
	}

	aggSnap := pub.published["aggregate"].(Snapshot)
	if aggSnap.ByCategory[types.CategoryGet] == nil || aggSnap.ByCategory[types.CategoryPut] == nil {
		t.Errorf("aggregate view snapshot should include both categories, got %+v", aggSnap.ByCategory)
	}
}

func TestEngineTickDropsStateForDisconnectedViews(t *testing.T) {
	n1 := &fakeNodeSource{events: []types.TrafficEvent{{Action: types.CategoryGet}}}
	views := &fakeViewSource{views: []types.ViewSubscription{{Nodes: []string{"node1"}}}}
	pub := &fakePublisher{}

	e := newTestEngine(map[string]NodeSource{"node1": n1}, views, pub)
	e.tick()
	if len(e.state) != 1 {
		t.Fatalf("state size after first tick = %d, want 1", len(e.state))
	}

	views.views = nil
	e.tick()
	if len(e.state) != 0 {
		t.Errorf("state size after view disconnects = %d, want 0", len(e.state))
	}
}

func TestEngineTickOnlyRefreshesNodesWithNewEvents(t *testing.T) {
	n1 := &fakeNodeSource{events: []types.TrafficEvent{{Action: types.CategoryGet}}}
	views := &fakeViewSource{views: []types.ViewSubscription{{}}}
	pub := &fakePublisher{}

	e := newTestEngine(map[string]NodeSource{"node1": n1}, views, pub)
	e.tick()
	e.tick() // no new events the second time; lastIndex should prevent re-merge

	snap := pub.published["aggregate"].(Snapshot)
	total := snap.ByCategory[types.CategoryGet].Success + snap.ByCategory[types.CategoryGet].Fail
	if total != 1 {
		t.Errorf("expected the single event to be merged exactly once across both ticks, got total=%d", total)
	}
}
