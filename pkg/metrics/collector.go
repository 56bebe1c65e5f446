package metrics

import "time"

// NodeSource is the subset of node.Processor the collector samples.
type NodeSource interface {
	PendingStarts() int
}

// QueueSource is the subset of store.Writer the collector samples.
type QueueSource interface {
	QueueDepth() int
}

// Collector periodically samples gauges that aren't naturally updated at
// the point of the event (queue depth, subscriber counts, pending pairs).
type Collector struct {
	nodes  map[string]NodeSource
	store  QueueSource
	hub    *hubSampler
	stopCh chan struct{}
}

// hubSampler adapts whatever concrete hub type is passed to NewCollector
// without importing the broadcast package (which would cycle back here).
type hubSampler struct {
	subscriberCount func() int
	activeViewCount func() int
}

// NewCollector builds a Collector over the given per-node processors,
// store writer, and the hub's subscriber and active-view counters. Either
// counter may be nil; when both are nil the hub gauges are not sampled.
func NewCollector(nodes map[string]NodeSource, st QueueSource, subscriberCount, activeViewCount func() int) *Collector {
	var hub *hubSampler
	if subscriberCount != nil || activeViewCount != nil {
		hub = &hubSampler{subscriberCount: subscriberCount, activeViewCount: activeViewCount}
	}
	return &Collector{
		nodes:  nodes,
		store:  st,
		hub:    hub,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling on a 15s interval until Stop is called.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for name, p := range c.nodes {
		UnpairedStartsGauge.WithLabelValues(name).Set(float64(p.PendingStarts()))
	}

	if c.store != nil {
		StoreQueueDepth.Set(float64(c.store.QueueDepth()))
	}

	if c.hub != nil {
		if c.hub.subscriberCount != nil {
			DashboardClientsConnected.Set(float64(c.hub.subscriberCount()))
		}
		if c.hub.activeViewCount != nil {
			ActiveViewsGauge.Set(float64(c.hub.activeViewCount()))
		}
	}
}
