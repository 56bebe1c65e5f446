package stats

import (
	"testing"
	"time"

	"github.com/cuemby/storjmonitor/pkg/types"
)

func TestViewStateMergeAggregatesCounters(t *testing.T) {
	v := newViewState(types.ViewSubscription{})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	events := []types.TrafficEvent{
		{Action: types.CategoryGet, Status: types.StatusSuccess, SatelliteID: "sat1", SizeBucket: "<1 KB", Size: 100, PieceID: "p1", Location: types.Location{Country: "US"}, Timestamp: now},
		{Action: types.CategoryGet, Status: types.StatusFailed, SatelliteID: "sat1", SizeBucket: "<1 KB", Size: 100, PieceID: "p1", ErrorMessage: "boom", Location: types.Location{Country: "US"}, Timestamp: now},
		{Action: types.CategoryPut, Status: types.StatusSuccess, SatelliteID: "sat2", SizeBucket: "1-4 KB", Size: 2000, PieceID: "p2", Location: types.Location{Country: "DE"}, Timestamp: now},
	}
	v.merge(events, now)

	if v.byCategory[types.CategoryGet].Success != 1 || v.byCategory[types.CategoryGet].Fail != 1 {
		t.Errorf("byCategory[get] = %+v, want 1 success 1 fail", v.byCategory[types.CategoryGet])
	}
	if v.bySatellite["sat2"].Success != 1 {
		t.Errorf("bySatellite[sat2].Success = %d, want 1", v.bySatellite["sat2"].Success)
	}
	if v.bySizeBucket["<1 KB"] != 2 {
		t.Errorf("bySizeBucket[<1 KB] = %d, want 2", v.bySizeBucket["<1 KB"])
	}
	if v.byCountry["US"].Egress != 200 {
		t.Errorf("byCountry[US].Egress = %d, want 200 (failed GETs still count toward egress)", v.byCountry["US"].Egress)
	}
	if v.byCountry["DE"].Ingress != 2000 {
		t.Errorf("byCountry[DE].Ingress = %d, want 2000", v.byCountry["DE"].Ingress)
	}
	if v.pieces["p1"].Count != 2 || v.pieces["p1"].Bytes != 200 {
		t.Errorf("pieces[p1] = %+v, want count 2 bytes 200", v.pieces["p1"])
	}
}

func TestViewStatePruneWindowDropsStaleSamples(t *testing.T) {
	v := newViewState(types.ViewSubscription{})
	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	v.merge([]types.TrafficEvent{
		{Action: types.CategoryGet, Timestamp: base.Add(-2 * time.Minute), Size: 1000},
	}, base.Add(-2*time.Minute))
	v.merge([]types.TrafficEvent{
		{Action: types.CategoryGet, Timestamp: base, Size: 2000},
	}, base)

	if got := v.throughputBytesPerSecond(); got != float64(2000)/60 {
		t.Errorf("throughputBytesPerSecond() = %v, want %v (stale sample pruned)", got, float64(2000)/60)
	}
}

func TestTopPiecesOrdersByCountDescending(t *testing.T) {
	v := newViewState(types.ViewSubscription{})
	now := time.Now()
	v.merge([]types.TrafficEvent{
		{PieceID: "low", Action: types.CategoryGet, Timestamp: now},
		{PieceID: "high", Action: types.CategoryGet, Timestamp: now},
		{PieceID: "high", Action: types.CategoryGet, Timestamp: now},
	}, now)

	top := v.topPieces(10)
	if len(top) != 2 || top[0].PieceID != "high" {
		t.Fatalf("topPieces() = %+v, want high first", top)
	}
}

func TestTopPiecesRespectsLimit(t *testing.T) {
	v := newViewState(types.ViewSubscription{})
	now := time.Now()
	for i := 0; i < 5; i++ {
		v.merge([]types.TrafficEvent{{PieceID: string(rune('a' + i)), Action: types.CategoryGet, Timestamp: now}}, now)
	}

	top := v.topPieces(2)
	if len(top) != 2 {
		t.Errorf("len(topPieces(2)) = %d, want 2", len(top))
	}
}
