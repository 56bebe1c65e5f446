package apiclient

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/cuemby/storjmonitor/pkg/broadcast"
	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/metrics"
	"github.com/cuemby/storjmonitor/pkg/store"
	"github.com/cuemby/storjmonitor/pkg/types"
)

// Poller runs one node's reputation/storage/earnings polling loops,
// persisting each result through store and reporting failures through
// connection status rather than propagating them.
type Poller struct {
	Client *Client
	Store  *store.Writer
	Hub    *broadcast.Hub

	// Limiter paces requests across every node's poller so a fleet of
	// many nodes never fires its immediate first poll as one burst
	// against whatever shares the host's network stack. Nil disables
	// pacing.
	Limiter *rate.Limiter
}

// Run starts the three interval-class loops and blocks until ctx is
// canceled.
func (p *Poller) Run(ctx context.Context) {
	go p.loop(ctx, "storage", storageInterval, p.pollStorage)
	go p.loop(ctx, "reputation", reputationInterval, p.pollReputation)
	p.loop(ctx, "earnings", earningsInterval, p.pollEarnings)
}

func (p *Poller) loop(ctx context.Context, class string, interval time.Duration, poll func(context.Context) error) {
	logger := log.WithNode(p.Client.NodeName)
	wasFailing := false

	report := func(err error) {
		if err != nil {
			logger.Warn().Err(err).Str("class", class).Msg("admin API poll failed")
			metrics.APIPollsTotal.WithLabelValues(p.Client.NodeName, class, "error").Inc()
			p.reportStatus(false, err)
			wasFailing = true
			return
		}
		metrics.APIPollsTotal.WithLabelValues(p.Client.NodeName, class, "success").Inc()
		if wasFailing {
			p.reportStatus(true, nil)
			wasFailing = false
		}
	}

	// Run once immediately so a restart doesn't wait a full interval
	// before the first data point lands.
	if p.wait(ctx) {
		report(poll(ctx))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.wait(ctx) {
				report(poll(ctx))
			}
		}
	}
}

// wait blocks until Limiter admits one request, returning false if ctx
// was canceled first. A nil Limiter never blocks.
func (p *Poller) wait(ctx context.Context) bool {
	if p.Limiter == nil {
		return true
	}
	return p.Limiter.Wait(ctx) == nil
}

// reportStatus pushes a connection-status transition to the dashboard hub.
// Failures are local to this node and never interrupt polling.
func (p *Poller) reportStatus(connected bool, err error) {
	if p.Hub == nil {
		return
	}
	status := types.ConnectionStatus{
		Node:      p.Client.NodeName,
		Connected: connected,
		UpdatedAt: time.Now().UTC(),
	}
	if err != nil {
		status.LastError = err.Error()
	}
	p.Hub.PublishConnectionStatus(status)
}

func (p *Poller) pollStorage(ctx context.Context) error {
	data, err := p.Client.Dashboard(ctx)
	if err != nil {
		return err
	}
	return p.Store.SetPersistentState("storage_stats_"+p.Client.NodeName, data)
}

func (p *Poller) pollReputation(ctx context.Context) error {
	data, err := p.Client.Satellites(ctx)
	if err != nil {
		return err
	}
	return p.Store.SetPersistentState("reputation_stats_"+p.Client.NodeName, data)
}

func (p *Poller) pollEarnings(ctx context.Context) error {
	data, err := p.Client.EstimatedPayout(ctx)
	if err != nil {
		return err
	}
	return p.Store.SetPersistentState("earnings_stats_"+p.Client.NodeName, data)
}
