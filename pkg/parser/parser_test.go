package parser

import (
	"testing"
	"time"

	"github.com/cuemby/storjmonitor/pkg/geoip"
	"github.com/cuemby/storjmonitor/pkg/types"
)

func TestParseTrafficEvent(t *testing.T) {
	line := `2026-07-31T10:00:00.000000000Z	INFO	piecestore	downloaded	{"Piece ID": "abc123", "Satellite ID": "sat1", "Action": "GET", "Remote Address": "203.0.113.5:1001", "Size": 2048, "duration": "150ms"}`

	ev, ok := Parse("node1", line, time.Now(), geoip.NewCache(nil, 0))
	if !ok {
		t.Fatalf("expected line to be recognized")
	}
	if ev.Kind != KindTraffic {
		t.Fatalf("expected KindTraffic, got %v", ev.Kind)
	}
	tr := ev.Traffic
	if tr.Action != types.CategoryGet {
		t.Errorf("Action = %v, want get", tr.Action)
	}
	if tr.Status != types.StatusSuccess {
		t.Errorf("Status = %v, want success", tr.Status)
	}
	if tr.Size != 2048 {
		t.Errorf("Size = %d, want 2048", tr.Size)
	}
	if tr.SizeBucket != "1-4 KB" {
		t.Errorf("SizeBucket = %q, want 1-4 KB", tr.SizeBucket)
	}
	if tr.RemoteIP != "203.0.113.5" {
		t.Errorf("RemoteIP = %q, want 203.0.113.5", tr.RemoteIP)
	}
	if tr.DurationMS != 150 {
		t.Errorf("DurationMS = %v, want 150", tr.DurationMS)
	}
}

func TestParseTrafficEventFailure(t *testing.T) {
	line := `2026-07-31T10:00:00.000000000Z	ERROR	piecestore	download failed	{"Piece ID": "abc123", "Satellite ID": "sat1", "Action": "GET", "Remote Address": "203.0.113.5:1001", "Size": 2048, "error": "context canceled"}`

	ev, ok := Parse("node1", line, time.Now(), geoip.NewCache(nil, 0))
	if !ok {
		t.Fatalf("expected line to be recognized")
	}
	if ev.Traffic.Status != types.StatusFailed {
		t.Errorf("Status = %v, want failed", ev.Traffic.Status)
	}
	if ev.Traffic.ErrorMessage != "context canceled" {
		t.Errorf("ErrorMessage = %q, want context canceled", ev.Traffic.ErrorMessage)
	}
}

func TestParseOperationStart(t *testing.T) {
	line := `2026-07-31T10:00:00.000000000Z	INFO	piecestore	download started	{"Piece ID": "abc123", "Satellite ID": "sat1", "Action": "GET", "Available Space": 5000000000}`

	ev, ok := Parse("node1", line, time.Now(), nil)
	if !ok {
		t.Fatalf("expected line to be recognized")
	}
	if ev.Kind != KindOperationStart {
		t.Fatalf("expected KindOperationStart, got %v", ev.Kind)
	}
	if !ev.Start.HasAvailable || ev.Start.AvailableSpace != 5000000000 {
		t.Errorf("unexpected available space: %+v", ev.Start)
	}
	if ev.Start.Key.Action != types.CategoryGet {
		t.Errorf("Action = %v, want get", ev.Start.Key.Action)
	}
}

func TestParseHashstoreBeginAndEnd(t *testing.T) {
	begin := `2026-07-31T10:00:00.000000000Z	INFO	hashstore	beginning compaction	{"satellite": "sat1", "store": "s0"}`
	ev, ok := Parse("node1", begin, time.Now(), nil)
	if !ok || ev.Kind != KindHashstoreBegin {
		t.Fatalf("expected recognized hashstore begin, got ok=%v kind=%v", ok, ev.Kind)
	}

	end := `2026-07-31T11:00:00.000000000Z	INFO	hashstore	finished compaction	{"satellite": "sat1", "store": "s0", "duration": "45m", "stats": {"DataReclaimed": "2GiB", "DataRewritten": "512MiB", "Table": {"Load": 0.5}, "TrashPercent": 0.1}}`
	ev, ok = Parse("node1", end, time.Now(), nil)
	if !ok || ev.Kind != KindHashstoreEnd {
		t.Fatalf("expected recognized hashstore end, got ok=%v kind=%v", ok, ev.Kind)
	}
	he := ev.HashstoreEnd
	if he.DurationS != 45*60 {
		t.Errorf("DurationS = %v, want 2700", he.DurationS)
	}
	if he.DataReclaimedBytes != 2*(1<<30) {
		t.Errorf("DataReclaimedBytes = %d, want %d", he.DataReclaimedBytes, 2*(1<<30))
	}
	if he.DataRewrittenBytes != 512*(1<<20) {
		t.Errorf("DataRewrittenBytes = %d, want %d", he.DataRewrittenBytes, 512*(1<<20))
	}
	if he.TableLoad != 50 {
		t.Errorf("TableLoad = %v, want 50", he.TableLoad)
	}
	if he.TrashPercent != 10 {
		t.Errorf("TrashPercent = %v, want 10", he.TrashPercent)
	}
}

func TestParseHashstoreEndMissingDurationDefaultsToZero(t *testing.T) {
	line := `2026-07-31T11:00:00.000000000Z	INFO	hashstore	finished compaction	{"satellite": "sat1", "store": "s0", "stats": {"DataReclaimed": "1GiB"}}`
	ev, ok := Parse("node1", line, time.Now(), nil)
	if !ok || ev.Kind != KindHashstoreEnd {
		t.Fatalf("expected recognized hashstore end despite missing duration, got ok=%v kind=%v", ok, ev.Kind)
	}
	if ev.HashstoreEnd.DurationS != 0 {
		t.Errorf("DurationS = %v, want 0", ev.HashstoreEnd.DurationS)
	}
}

func TestParseTrafficEventCanceled(t *testing.T) {
	line := `2026-07-31T10:00:00.000000000Z	INFO	piecestore	download canceled	{"Piece ID": "abc123", "Satellite ID": "sat1", "Action": "GET", "Remote Address": "203.0.113.5:1001", "Size": 2048, "reason": "client disconnected"}`

	ev, ok := Parse("node1", line, time.Now(), nil)
	if !ok {
		t.Fatalf("expected line to be recognized")
	}
	if ev.Traffic.Status != types.StatusCanceled {
		t.Errorf("Status = %v, want canceled", ev.Traffic.Status)
	}
	if ev.Traffic.ErrorMessage != "client disconnected" {
		t.Errorf("ErrorMessage = %q, want client disconnected", ev.Traffic.ErrorMessage)
	}
}

func TestParseRejectsUnrelatedLines(t *testing.T) {
	tests := []string{
		"",
		"2026-07-31T10:00:00Z INFO	some other component	nothing to see here",
		`2026-07-31T10:00:00.000000000Z INFO piecestore no level match {malformed`,
	}
	for _, line := range tests {
		if _, ok := Parse("node1", line, time.Now(), nil); ok {
			t.Errorf("expected line to be rejected: %q", line)
		}
	}
}
