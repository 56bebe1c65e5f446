package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/storjmonitor/pkg/types"
)

func openTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := Open(":memory:", Config{EventsRetentionDays: 2, HashstoreRetentionDays: 30})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestEnqueueEventDrainsToEventsTable(t *testing.T) {
	w := openTestWriter(t)

	w.EnqueueEvent(types.TrafficEvent{
		Node: "node1", Action: types.CategoryGet, Status: types.StatusSuccess,
		Size: 1024, PieceID: "p1", SatelliteID: "sat1", Timestamp: time.Now().UTC(),
	})
	if got := w.QueueDepth(); got != 1 {
		t.Fatalf("QueueDepth() before drain = %d, want 1", got)
	}

	w.drainBatch()

	if got := w.QueueDepth(); got != 0 {
		t.Errorf("QueueDepth() after drain = %d, want 0", got)
	}

	var count int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if count != 1 {
		t.Errorf("events row count = %d, want 1", count)
	}
}

func TestBackfillIsIdempotent(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)

	w.EnqueueEvent(types.TrafficEvent{Node: "node1", Action: types.CategoryGet, Status: types.StatusSuccess, Size: 500, Timestamp: now})
	w.EnqueueEvent(types.TrafficEvent{Node: "node1", Action: types.CategoryPut, Status: types.StatusFailed, Size: 300, Timestamp: now.Add(10 * time.Minute)})
	w.drainBatch()

	if err := w.Backfill(ctx); err != nil {
		t.Fatalf("Backfill (first run): %v", err)
	}
	first := readHourlyStats(t, w)

	if err := w.Backfill(ctx); err != nil {
		t.Fatalf("Backfill (second run): %v", err)
	}
	second := readHourlyStats(t, w)

	if first != second {
		t.Errorf("Backfill not idempotent: first=%q second=%q", first, second)
	}
	if first == "" {
		t.Fatal("expected at least one hourly_stats row after backfill")
	}
}

func readHourlyStats(t *testing.T, w *Writer) string {
	t.Helper()
	rows, err := w.db.Query(`SELECT hour_timestamp, node_name, dl_success, dl_fail, ul_success, ul_fail FROM hourly_stats ORDER BY hour_timestamp, node_name`)
	if err != nil {
		t.Fatalf("query hourly_stats: %v", err)
	}
	defer rows.Close()

	var out string
	for rows.Next() {
		var hour, node string
		var dlS, dlF, ulS, ulF int64
		if err := rows.Scan(&hour, &node, &dlS, &dlF, &ulS, &ulF); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out += fmt.Sprintf("%s|%s|%d,%d,%d,%d;", hour, node, dlS, dlF, ulS, ulF)
	}
	return out
}

func TestPruneDeletesOnlyExpiredRows(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -10)
	recent := time.Now().UTC()

	w.EnqueueEvent(types.TrafficEvent{Node: "node1", Action: types.CategoryGet, Timestamp: old})
	w.EnqueueEvent(types.TrafficEvent{Node: "node1", Action: types.CategoryGet, Timestamp: recent})
	w.drainBatch()

	if err := w.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	var count int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if count != 1 {
		t.Errorf("events row count after prune = %d, want 1 (only the recent row survives)", count)
	}
}

func TestHistoricalPerformanceFiltersByNodeAndRange(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()
	hour := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	w.EnqueueEvent(types.TrafficEvent{Node: "node1", Action: types.CategoryGet, Status: types.StatusSuccess, Size: 100, Timestamp: hour.Add(time.Minute)})
	w.EnqueueEvent(types.TrafficEvent{Node: "node2", Action: types.CategoryGet, Status: types.StatusSuccess, Size: 200, Timestamp: hour.Add(time.Minute)})
	w.drainBatch()

	if err := w.Backfill(ctx); err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	bins, err := w.HistoricalPerformance(ctx, []string{"node1"}, hour, hour.Add(time.Hour))
	if err != nil {
		t.Fatalf("HistoricalPerformance: %v", err)
	}
	if len(bins) != 1 || bins[0].DLSuccess != 1 || bins[0].TotalDownloadSize != 100 {
		t.Fatalf("unexpected bins for node1 filter: %+v", bins)
	}

	all, err := w.HistoricalPerformance(ctx, nil, hour, hour.Add(time.Hour))
	if err != nil {
		t.Fatalf("HistoricalPerformance (all nodes): %v", err)
	}
	if len(all) != 1 || all[0].DLSuccess != 2 {
		t.Fatalf("unexpected bins for all nodes: %+v", all)
	}
}

func TestSetAndGetPersistentState(t *testing.T) {
	w := openTestWriter(t)

	type payload struct {
		Value int `json:"value"`
	}

	if err := w.SetPersistentState("k1", payload{Value: 42}); err != nil {
		t.Fatalf("SetPersistentState: %v", err)
	}

	var out payload
	ok, err := w.GetPersistentState("k1", &out)
	if err != nil {
		t.Fatalf("GetPersistentState: %v", err)
	}
	if !ok || out.Value != 42 {
		t.Errorf("GetPersistentState = ok=%v out=%+v, want ok=true value=42", ok, out)
	}

	_, err = w.GetPersistentState("k1", &out)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}

	if err := w.SetPersistentState("k1", payload{Value: 43}); err != nil {
		t.Fatalf("overwrite SetPersistentState: %v", err)
	}
	ok, err = w.GetPersistentState("k1", &out)
	if err != nil || !ok || out.Value != 43 {
		t.Errorf("GetPersistentState after overwrite = ok=%v out=%+v err=%v, want value=43", ok, out, err)
	}

	_, err = w.GetPersistentState("missing", &out)
	if err != nil {
		t.Fatalf("GetPersistentState for missing key returned error: %v", err)
	}
}
