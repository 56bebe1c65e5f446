// Package parser turns raw storage-daemon log lines into typed events. It
// is pure and side-effect free on success; any line that is not actionable
// is simply rejected, never an error.
package parser

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cuemby/storjmonitor/pkg/geoip"
	"github.com/cuemby/storjmonitor/pkg/types"
)

// Kind discriminates the variant carried by an Event.
type Kind string

const (
	KindTraffic         Kind = "traffic_event"
	KindOperationStart  Kind = "operation_start"
	KindHashstoreBegin  Kind = "hashstore_begin"
	KindHashstoreEnd    Kind = "hashstore_end"
)

// Event is the discriminated union the parser emits. Exactly one payload
// field is set, matching Kind.
type Event struct {
	Kind Kind

	Traffic        *types.TrafficEvent
	Start          *types.OperationStartRecord
	HashstoreBegin *types.HashstoreBegin
	HashstoreEnd   *types.HashstoreEnd
}

var levelTokens = []string{"INFO", "DEBUG", "ERROR"}

// Parse attempts to turn one raw log line into an Event. ok is false when
// the line is not relevant or is malformed; callers must not treat that as
// an error.
func Parse(node, line string, arrivalTime time.Time, geoCache *geoip.Cache) (Event, bool) {
	if !strings.Contains(line, "piecestore") && !strings.Contains(line, "hashstore") {
		return Event{}, false
	}

	levelIdx, level := findLevel(line)
	if levelIdx < 0 {
		return Event{}, false
	}

	ts, ok := parseTimestamp(line[:levelIdx])
	if !ok {
		return Event{}, false
	}

	obj, ok := extractJSON(line[levelIdx+len(level):])
	if !ok {
		return Event{}, false
	}

	verb := line[levelIdx+len(level):]

	switch {
	case strings.Contains(verb, "beginning compaction"):
		return parseHashstoreBegin(node, ts, obj)
	case strings.Contains(verb, "finished compaction"):
		return parseHashstoreEnd(node, ts, obj)
	case strings.Contains(verb, "download started"), strings.Contains(verb, "upload started"):
		return parseOperationStart(node, ts, arrivalTime, obj)
	default:
		return parseTrafficEvent(node, ts, arrivalTime, verb, level, obj, geoCache)
	}
}

func findLevel(line string) (int, string) {
	best := -1
	bestTok := ""
	for _, tok := range levelTokens {
		if idx := indexWord(line, tok); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			bestTok = tok
		}
	}
	return best, bestTok
}

// indexWord finds tok as a whole-word occurrence (surrounded by
// non-alphanumerics or string boundaries).
func indexWord(line, tok string) int {
	start := 0
	for {
		idx := strings.Index(line[start:], tok)
		if idx < 0 {
			return -1
		}
		pos := start + idx
		before := pos == 0 || !isAlnum(line[pos-1])
		afterPos := pos + len(tok)
		after := afterPos >= len(line) || !isAlnum(line[afterPos])
		if before && after {
			return pos
		}
		start = pos + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// extractJSON decodes the first JSON object found in s, tolerating
// trailing non-JSON text.
func extractJSON(s string) (map[string]interface{}, bool) {
	idx := strings.Index(s, "{")
	if idx < 0 {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(s[idx:]))
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

func str(obj map[string]interface{}, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func num(obj map[string]interface{}, key string) (float64, bool) {
	v, ok := obj[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

func parseOperationStart(node string, ts, arrival time.Time, obj map[string]interface{}) (Event, bool) {
	pieceID, ok1 := str(obj, "Piece ID")
	satelliteID, ok2 := str(obj, "Satellite ID")
	action, ok3 := str(obj, "Action")
	if !ok1 || !ok2 || !ok3 {
		return Event{}, false
	}

	rec := &types.OperationStartRecord{
		Key: types.StartKey{
			Node:        node,
			PieceID:     pieceID,
			SatelliteID: satelliteID,
			Action:      CategorizeAction(action),
		},
		Timestamp:   ts,
		ArrivalTime: arrival,
	}
	if space, ok := num(obj, "Available Space"); ok {
		rec.AvailableSpace = int64(space)
		rec.HasAvailable = true
	}

	return Event{Kind: KindOperationStart, Start: rec}, true
}

func parseTrafficEvent(node string, ts, arrival time.Time, verb, level string, obj map[string]interface{}, geoCache *geoip.Cache) (Event, bool) {
	action, ok1 := str(obj, "Action")
	pieceID, ok2 := str(obj, "Piece ID")
	satelliteID, ok3 := str(obj, "Satellite ID")
	remoteAddr, ok4 := str(obj, "Remote Address")
	size, ok5 := num(obj, "Size")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || size < 0 {
		return Event{}, false
	}

	status := types.StatusSuccess
	errMsg := ""
	switch {
	case strings.Contains(verb, "download canceled"):
		status = types.StatusCanceled
		reason, ok := str(obj, "reason")
		if !ok {
			reason = "context canceled"
		}
		errMsg = reason
	case strings.Contains(verb, "failed"), level == "ERROR":
		status = types.StatusFailed
		if e, ok := str(obj, "error"); ok {
			errMsg = e
		}
	}

	var durationMS float64
	if d, ok := str(obj, "duration"); ok {
		if secs, ok := ParseDurationSeconds(d); ok {
			durationMS = secs * 1000
		}
	}

	remoteIP := remoteAddr
	if host, _, ok := strings.Cut(remoteAddr, ":"); ok {
		remoteIP = host
	}

	loc := geoip.Unknown
	if geoCache != nil {
		loc = geoCache.Resolve(remoteIP)
	}

	return Event{
		Kind: KindTraffic,
		Traffic: &types.TrafficEvent{
			Node:         node,
			Timestamp:    ts,
			ArrivalTime:  arrival,
			Action:       CategorizeAction(action),
			Status:       status,
			Size:         int64(size),
			SizeBucket:   SizeBucket(int64(size)),
			PieceID:      pieceID,
			SatelliteID:  satelliteID,
			RemoteIP:     remoteIP,
			Location:     loc,
			DurationMS:   durationMS,
			ErrorMessage: errMsg,
		},
	}, true
}

func parseHashstoreBegin(node string, ts time.Time, obj map[string]interface{}) (Event, bool) {
	satellite, ok1 := str(obj, "satellite")
	store, ok2 := str(obj, "store")
	if !ok1 || !ok2 {
		return Event{}, false
	}
	return Event{
		Kind: KindHashstoreBegin,
		HashstoreBegin: &types.HashstoreBegin{
			Node:        node,
			SatelliteID: satellite,
			Store:       store,
			StartedAt:   ts,
		},
	}, true
}

func parseHashstoreEnd(node string, ts time.Time, obj map[string]interface{}) (Event, bool) {
	satellite, ok1 := str(obj, "satellite")
	store, ok2 := str(obj, "store")
	if !ok1 || !ok2 {
		return Event{}, false
	}

	var durationS float64
	if durationStr, ok := str(obj, "duration"); ok {
		if secs, ok := ParseDurationSeconds(durationStr); ok {
			durationS = secs
		}
	}

	stats, _ := obj["stats"].(map[string]interface{})

	var reclaimed int64
	if s, ok := str(stats, "DataReclaimed"); ok {
		reclaimed = ParseSizeBytes(s)
	}

	var rewritten int64
	if s, ok := str(stats, "DataRewritten"); ok {
		rewritten = ParseSizeBytes(s)
	}

	var tableLoad float64
	if table, ok := stats["Table"].(map[string]interface{}); ok {
		if load, ok := num(table, "Load"); ok {
			tableLoad = load * 100
		}
	}

	var trashPercent float64
	if tp, ok := num(stats, "TrashPercent"); ok {
		trashPercent = tp * 100
	}

	return Event{
		Kind: KindHashstoreEnd,
		HashstoreEnd: &types.HashstoreEnd{
			Node:               node,
			SatelliteID:        satellite,
			Store:              store,
			FinishedAt:         ts,
			DurationS:          durationS,
			DataReclaimedBytes: reclaimed,
			DataRewrittenBytes: rewritten,
			TableLoad:          tableLoad,
			TrashPercent:       trashPercent,
		},
	}, true
}
