package ingest

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/metrics"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second
)

// NetworkSource connects to a TCP log forwarder and reads frames of the
// form "<unix_seconds_float> <raw_log_line>\n". It reconnects with
// exponential backoff, resetting to the initial delay after any
// successful read.
type NetworkSource struct {
	Node    string
	Address string

	Report StatusReporter
}

// Run implements Source. It blocks until ctx is canceled.
func (n *NetworkSource) Run(ctx context.Context, out chan<- Line) {
	logger := log.WithSource("network", n.Node)
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := net.Dial("tcp", n.Address)
		if err != nil {
			n.reportStatus(false, err)
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("connect failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		n.reportStatus(true, nil)
		if n.readLoop(ctx, conn, out, logger) {
			backoff = initialBackoff
		}
		conn.Close()
	}
}

// readLoop reads frames until the connection ends or ctx is canceled. It
// reports whether at least one frame was read.
func (n *NetworkSource) readLoop(ctx context.Context, conn net.Conn, out chan<- Line, logger zerolog.Logger) (readAny bool) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		readAny = true
		if ctx.Err() != nil {
			return
		}
		frame := scanner.Text()
		ts, line, ok := splitFrame(frame)
		if !ok {
			logger.Warn().Str("frame", frame).Msg("malformed network frame discarded")
			continue
		}
		metrics.LinesIngestedTotal.WithLabelValues(n.Node, "network").Inc()
		select {
		case out <- Line{Node: n.Node, Text: line, ArrivalTime: ts}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		n.reportStatus(false, err)
	} else {
		n.reportStatus(false, nil)
	}
	return
}

func splitFrame(frame string) (time.Time, string, bool) {
	ts, rest, ok := strings.Cut(frame, " ")
	if !ok {
		return time.Time{}, "", false
	}
	secs, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, "", false
	}
	nsec := int64((secs - float64(int64(secs))) * 1e9)
	return time.Unix(int64(secs), nsec).UTC(), rest, true
}

func (n *NetworkSource) reportStatus(connected bool, err error) {
	if connected {
		metrics.NodeConnected.WithLabelValues(n.Node).Set(1)
	} else {
		metrics.NodeConnected.WithLabelValues(n.Node).Set(0)
	}
	if n.Report != nil {
		n.Report(connected, err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
