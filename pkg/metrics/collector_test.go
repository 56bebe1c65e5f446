package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeNodeSource struct{ pending int }

func (f fakeNodeSource) PendingStarts() int { return f.pending }

type fakeQueueSource struct{ depth int }

func (f fakeQueueSource) QueueDepth() int { return f.depth }

func TestCollectSamplesNodeAndQueueGauges(t *testing.T) {
	nodes := map[string]NodeSource{"node1": fakeNodeSource{pending: 3}}
	c := NewCollector(nodes, fakeQueueSource{depth: 7}, nil, nil)

	c.collect()

	if got := testutil.ToFloat64(UnpairedStartsGauge.WithLabelValues("node1")); got != 3 {
		t.Errorf("UnpairedStartsGauge[node1] = %v, want 3", got)
	}
	if got := testutil.ToFloat64(StoreQueueDepth); got != 7 {
		t.Errorf("StoreQueueDepth = %v, want 7", got)
	}
}

func TestCollectSkipsHubGaugesWhenClosuresNil(t *testing.T) {
	c := NewCollector(nil, nil, nil, nil)
	if c.hub != nil {
		t.Error("expected hub sampler to be nil when both closures are nil")
	}
	c.collect() // must not panic
}

func TestCollectSamplesHubGaugesWhenProvided(t *testing.T) {
	c := NewCollector(nil, nil, func() int { return 4 }, func() int { return 2 })
	c.collect()

	if got := testutil.ToFloat64(DashboardClientsConnected); got != 4 {
		t.Errorf("DashboardClientsConnected = %v, want 4", got)
	}
	if got := testutil.ToFloat64(ActiveViewsGauge); got != 2 {
		t.Errorf("ActiveViewsGauge = %v, want 2", got)
	}
}
