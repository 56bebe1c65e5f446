// Package ingest produces (line, arrival_time) tuples from a node's log
// stream, either a tailed local file or a TCP line forwarder. Both variants
// share the same output contract and never terminate the process on error.
package ingest

import (
	"context"
	"time"
)

// Line is one raw log line paired with the moment the source first
// observed it.
type Line struct {
	Node        string
	Text        string
	ArrivalTime time.Time
}

// Source produces Lines onto out until ctx is canceled. Implementations
// retry internally on transient error and never close out; the caller owns
// the channel, which may be shared by several sources.
type Source interface {
	Run(ctx context.Context, out chan<- Line)
}

// StatusReporter receives connection-status transitions from a Source so
// they can be broadcast to dashboards.
type StatusReporter func(connected bool, lastErr error)
