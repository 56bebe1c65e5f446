package stats

import (
	"sort"
	"time"

	"github.com/cuemby/storjmonitor/pkg/types"
)

// categoryCounter tracks success/fail counts for one category.
type categoryCounter struct {
	Success int64 `json:"success"`
	Fail    int64 `json:"fail"`
}

// pieceCount tracks how often and how much data moved for one piece.
type pieceCount struct {
	PieceID string `json:"piece_id"`
	Count   int64  `json:"count"`
	Bytes   int64  `json:"bytes"`
}

// viewState is one ViewSubscription's incrementally maintained counters.
type viewState struct {
	sub types.ViewSubscription

	lastIndex map[string]int // per node

	byCategory map[types.Category]*categoryCounter
	bySatellite map[string]*categoryCounter
	bySizeBucket map[string]int64
	byCountry   map[string]*ioBytes

	pieces map[string]*pieceCount
	errors *templateTracker

	recentWindow []windowSample
}

type ioBytes struct {
	Ingress int64 `json:"ingress_bytes"`
	Egress  int64 `json:"egress_bytes"`
}

type windowSample struct {
	at   time.Time
	size int64
}

func newViewState(sub types.ViewSubscription) *viewState {
	return &viewState{
		sub:          sub,
		lastIndex:    make(map[string]int),
		byCategory:   make(map[types.Category]*categoryCounter),
		bySatellite:  make(map[string]*categoryCounter),
		bySizeBucket: make(map[string]int64),
		byCountry:    make(map[string]*ioBytes),
		pieces:       make(map[string]*pieceCount),
		errors:       newTemplateTracker(),
	}
}

func (v *viewState) merge(events []types.TrafficEvent, now time.Time) {
	for _, ev := range events {
		cc, ok := v.byCategory[ev.Action]
		if !ok {
			cc = &categoryCounter{}
			v.byCategory[ev.Action] = cc
		}
		sc, ok := v.bySatellite[ev.SatelliteID]
		if !ok {
			sc = &categoryCounter{}
			v.bySatellite[ev.SatelliteID] = sc
		}
		if ev.Status == types.StatusSuccess {
			cc.Success++
			sc.Success++
		} else {
			cc.Fail++
			sc.Fail++
		}

		v.bySizeBucket[ev.SizeBucket]++

		country := v.byCountry[ev.Location.Country]
		if country == nil {
			country = &ioBytes{}
			v.byCountry[ev.Location.Country] = country
		}
		switch ev.Action {
		case types.CategoryGet, types.CategoryGetRepair, types.CategoryGetAudit:
			country.Egress += ev.Size
		case types.CategoryPut, types.CategoryPutRepair:
			country.Ingress += ev.Size
		}

		pc, ok := v.pieces[ev.PieceID]
		if !ok {
			pc = &pieceCount{PieceID: ev.PieceID}
			v.pieces[ev.PieceID] = pc
		}
		pc.Count++
		pc.Bytes += ev.Size

		if ev.ErrorMessage != "" {
			v.errors.observe(ev.ErrorMessage)
		}

		v.recentWindow = append(v.recentWindow, windowSample{at: ev.Timestamp, size: ev.Size})
	}

	v.pruneWindow(now)
}

const throughputWindow = time.Minute

func (v *viewState) pruneWindow(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	i := 0
	for ; i < len(v.recentWindow); i++ {
		if v.recentWindow[i].at.After(cutoff) {
			break
		}
	}
	v.recentWindow = v.recentWindow[i:]
}

func (v *viewState) throughputBytesPerSecond() float64 {
	if len(v.recentWindow) == 0 {
		return 0
	}
	var total int64
	for _, s := range v.recentWindow {
		total += s.size
	}
	return float64(total) / throughputWindow.Seconds()
}

func (v *viewState) topPieces(n int) []pieceCount {
	out := make([]pieceCount, 0, len(v.pieces))
	for _, p := range v.pieces {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Snapshot is the JSON-serializable payload pushed to dashboards for one
// view.
type Snapshot struct {
	View         string                         `json:"view"`
	ByCategory   map[types.Category]*categoryCounter `json:"by_category"`
	BySatellite  map[string]*categoryCounter    `json:"by_satellite"`
	BySizeBucket map[string]int64               `json:"by_size_bucket"`
	ByCountry    map[string]*ioBytes            `json:"by_country"`
	TopPieces    []pieceCount                   `json:"top_pieces"`
	TopErrors    []TopTemplate                  `json:"top_errors"`
	ThroughputBytesPerSecond float64            `json:"throughput_bytes_per_second"`
}

func (v *viewState) snapshot() Snapshot {
	return Snapshot{
		View:                     v.sub.Key(),
		ByCategory:               v.byCategory,
		BySatellite:              v.bySatellite,
		BySizeBucket:             v.bySizeBucket,
		ByCountry:                v.byCountry,
		TopPieces:                v.topPieces(10),
		TopErrors:                v.errors.Top(10),
		ThroughputBytesPerSecond: v.throughputBytesPerSecond(),
	}
}
