package types

import "time"

// SourceKind identifies how a node's log lines are ingested.
type SourceKind string

const (
	SourceFile    SourceKind = "file"
	SourceNetwork SourceKind = "network"
)

// Category classifies a traffic event's operation.
type Category string

const (
	CategoryGet       Category = "get"
	CategoryPut       Category = "put"
	CategoryGetRepair Category = "get_repair"
	CategoryPutRepair Category = "put_repair"
	CategoryGetAudit  Category = "get_audit"
	CategoryDelete    Category = "delete"
)

// Status is the outcome of a traffic event.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusUnknown  Status = "unknown"
)

// Node is one monitored storage daemon. Created at startup, immutable.
type Node struct {
	Name       string     `yaml:"name"`
	Source     SourceKind `yaml:"source"`
	Path       string     `yaml:"path,omitempty"`        // file source: path to the log file
	Address    string     `yaml:"address,omitempty"`     // network source: dial address
	APIAddress string     `yaml:"api_address,omitempty"` // optional admin-API base address (C7)
}

// Location is a resolved GeoIP lookup result.
type Location struct {
	Country string
	Lat     float64
	Lon     float64
}

// TrafficEvent is a single completed piece transfer or audit.
type TrafficEvent struct {
	Node         string
	Timestamp    time.Time
	ArrivalTime  time.Time
	Action       Category
	Status       Status
	Size         int64
	SizeBucket   string
	PieceID      string
	SatelliteID  string
	RemoteIP     string
	Location     Location
	DurationMS   float64
	ErrorMessage string
}

// StartKey identifies an in-flight operation awaiting its completion record.
type StartKey struct {
	Node        string
	PieceID     string
	SatelliteID string
	Action      Category
}

// OperationStartRecord is the "begin" half of a piece transfer, kept until
// paired with its completion line or evicted.
type OperationStartRecord struct {
	Key            StartKey
	Timestamp      time.Time
	ArrivalTime    time.Time
	AvailableSpace int64
	HasAvailable   bool
}

// HashstoreBegin marks the start of a hashstore compaction.
type HashstoreBegin struct {
	Node        string
	SatelliteID string
	Store       string
	StartedAt   time.Time
}

// HashstoreEnd is a completed hashstore compaction, paired with its begin
// record by (Node, SatelliteID, Store).
type HashstoreEnd struct {
	Node               string
	SatelliteID        string
	Store              string
	StartedAt          time.Time
	FinishedAt         time.Time
	DurationS          float64
	DataReclaimedBytes int64
	DataRewrittenBytes int64
	TableLoad          float64
	TrashPercent       float64
}

// StorageSnapshot is a periodically sampled disk-usage reading for a node.
type StorageSnapshot struct {
	Node           string
	Timestamp      time.Time
	AvailableBytes int64
	UsedBytes      int64
	TrashBytes     int64
}

// HourlyStats is one hour's rolled-up traffic counters for a node.
type HourlyStats struct {
	Node          string
	HourStart     time.Time
	Category      Category
	Count         int64
	TotalBytes    int64
	SuccessCount  int64
	FailureCount  int64
	AvgDurationMS float64
}

// ViewSubscription is a dashboard client's requested scope: either the
// aggregate of every configured node, or a named subset.
type ViewSubscription struct {
	Nodes []string // empty means the aggregate view
}

// AggregateView reports whether the subscription spans every node.
func (v ViewSubscription) AggregateView() bool {
	return len(v.Nodes) == 0
}

// Key returns a stable identifier for this subscription, suitable for
// keying the stats engine's per-view state map.
func (v ViewSubscription) Key() string {
	if v.AggregateView() {
		return "aggregate"
	}
	key := ""
	for i, n := range v.Nodes {
		if i > 0 {
			key += ","
		}
		key += n
	}
	return key
}

// Matches reports whether node n falls within this subscription's scope.
func (v ViewSubscription) Matches(n string) bool {
	if v.AggregateView() {
		return true
	}
	for _, name := range v.Nodes {
		if name == n {
			return true
		}
	}
	return false
}

// LogEntry is a single parsed, human-readable log line forwarded to
// dashboards for the live tail view.
type LogEntry struct {
	Node      string
	Timestamp time.Time
	Level     string
	Message   string
}

// ConnectionStatus reports a node's admin-API connection health. The API
// poller is its only producer: it pushes one to dashboards after each failed
// poll and after the first success that follows a failure. Ingest sources
// do not publish it.
type ConnectionStatus struct {
	Node      string
	Connected bool
	LastError string
	UpdatedAt time.Time
}
