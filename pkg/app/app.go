// Package app wires the monitor's components together: one ingest source,
// parser, and processor per configured node; a shared store writer,
// broadcast hub, and stats engine; and an optional per-node admin-API
// poller. It owns the background-task lifecycle and graceful shutdown.
package app

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cuemby/storjmonitor/pkg/apiclient"
	"github.com/cuemby/storjmonitor/pkg/broadcast"
	"github.com/cuemby/storjmonitor/pkg/config"
	"github.com/cuemby/storjmonitor/pkg/geoip"
	"github.com/cuemby/storjmonitor/pkg/ingest"
	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/metrics"
	"github.com/cuemby/storjmonitor/pkg/node"
	"github.com/cuemby/storjmonitor/pkg/parser"
	"github.com/cuemby/storjmonitor/pkg/stats"
	"github.com/cuemby/storjmonitor/pkg/store"
	"github.com/cuemby/storjmonitor/pkg/types"
)

// App holds every long-lived component for one monitor process.
type App struct {
	cfg *config.Config

	Store      *store.Writer
	Hub        *broadcast.Hub
	Stats      *stats.Engine
	GeoCache   *geoip.Cache
	geoLookup  *geoip.MaxMindLookup
	Processors map[string]*node.Processor
	Collector  *metrics.Collector

	apiLimiter *rate.Limiter
	sources    []ingest.Source

	lineCh chan ingest.Line
	wg     sync.WaitGroup
}

// New builds an App from cfg but starts nothing yet.
func New(cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.Store.DatabaseFile, store.Config{
		WriteBatchInterval:     cfg.Store.WriteBatchInterval,
		QueueMaxSize:           cfg.Store.QueueMaxSize,
		EventsRetentionDays:    cfg.Store.EventsRetentionDays,
		HashstoreRetentionDays: cfg.Store.HashstoreRetentionDays,
		PruneInterval:          cfg.Store.PruneInterval,
		HourlyAggInterval:      cfg.Store.HourlyAggInterval,
	})
	if err != nil {
		return nil, err
	}

	hub := broadcast.NewHub(cfg.Broadcast.BatchInterval, cfg.Broadcast.BatchSize)

	var lookup geoip.Lookup
	var mm *geoip.MaxMindLookup
	if cfg.GeoIP.DatabasePath != "" {
		var err error
		mm, err = geoip.OpenMaxMind(cfg.GeoIP.DatabasePath)
		if err != nil {
			log.Logger.Warn().Err(err).Msg("geoip database unavailable, locations will report Unknown")
			mm = nil
		} else {
			lookup = mm
		}
	}
	geoCache := geoip.NewCache(lookup, cfg.GeoIP.CacheSize)

	a := &App{
		cfg:        cfg,
		Store:      st,
		Hub:        hub,
		GeoCache:   geoCache,
		geoLookup:  mm,
		Processors: make(map[string]*node.Processor),
		lineCh:     make(chan ingest.Line, 4096),
		apiLimiter: rate.NewLimiter(rate.Limit(2), 4),
	}

	for _, n := range cfg.Nodes {
		proc := node.NewProcessor(n.Name, st, hub)
		a.Processors[n.Name] = proc
		a.sources = append(a.sources, newSource(n))
	}

	a.Stats = stats.NewEngine(a.Processors, hub, cfg.Stats.RecomputeInterval)

	nodeSources := make(map[string]metrics.NodeSource, len(a.Processors))
	for name, p := range a.Processors {
		nodeSources[name] = p
	}
	a.Collector = metrics.NewCollector(nodeSources, st, hub.SubscriberCount, func() int { return len(hub.ActiveViews()) })

	return a, nil
}

func newSource(n types.Node) ingest.Source {
	switch n.Source {
	case types.SourceNetwork:
		return &ingest.NetworkSource{Node: n.Name, Address: n.Address}
	default:
		return &ingest.FileSource{Node: n.Name, Path: n.Path}
	}
}

// Run starts every background loop and blocks until ctx is canceled, then
// shuts each component down in turn.
func (a *App) Run(ctx context.Context) {
	for _, src := range a.sources {
		src := src
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			src.Run(ctx, a.lineCh)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatchLoop(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Store.Run(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Hub.Run(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Stats.Run(ctx)
	}()

	a.Collector.Start()

	a.startAPIPollers(ctx)

	<-ctx.Done()
	a.shutdown()
}

// dispatchLoop parses every ingested line and hands recognized events to
// that node's processor. Unrecognized lines are counted and dropped.
func (a *App) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-a.lineCh:
			if !ok {
				return
			}
			ev, recognized := parser.Parse(line.Node, line.Text, line.ArrivalTime, a.GeoCache)
			if !recognized {
				metrics.LinesRejectedTotal.WithLabelValues(line.Node).Inc()
				continue
			}
			metrics.EventsParsedTotal.WithLabelValues(line.Node, string(ev.Kind)).Inc()

			proc, ok := a.Processors[line.Node]
			if !ok {
				continue
			}
			proc.Process(ev)
		}
	}
}

// startAPIPollers discovers each node's admin-API endpoint (when enabled)
// and launches its poller. Discovery and polling never block ingest.
func (a *App) startAPIPollers(ctx context.Context) {
	for _, n := range a.cfg.Nodes {
		n := n
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()

			host := ""
			if n.Source == types.SourceNetwork {
				host = hostOnly(n.Address)
			}

			endpoint := apiclient.DiscoverEndpoint(ctx, n.Name, n.APIAddress,
				n.Source == types.SourceNetwork, host, a.cfg.API.DefaultPort, a.cfg.API.AllowRemoteAPI)
			if endpoint == "" {
				return
			}

			client := apiclient.NewClient(n.Name, endpoint, a.cfg.API.Timeout)
			poller := &apiclient.Poller{Client: client, Store: a.Store, Hub: a.Hub, Limiter: a.apiLimiter}
			poller.Run(ctx)
		}()
	}
}

func hostOnly(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

func (a *App) shutdown() {
	log.Logger.Info().Msg("shutting down")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Logger.Warn().Msg("shutdown timed out waiting for background loops")
	}

	a.Collector.Stop()

	if a.geoLookup != nil {
		_ = a.geoLookup.Close()
	}

	if err := a.Store.Close(); err != nil {
		log.Logger.Warn().Err(err).Msg("error closing store")
	}
}

// NodeNames returns the configured node names, in configuration order.
func (a *App) NodeNames() []string {
	names := make([]string, 0, len(a.cfg.Nodes))
	for _, n := range a.cfg.Nodes {
		names = append(names, n.Name)
	}
	return names
}

// NodesHandler serves the supplemental GET /api/nodes endpoint.
func (a *App) NodesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		names := a.NodeNames()
		var b strings.Builder
		b.WriteString("{\"nodes\":[")
		for i, n := range names {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.Quote(n))
		}
		b.WriteString("]}")
		_, _ = w.Write([]byte(b.String()))
	}
}
