// Package store persists traffic events, hashstore compactions, and
// storage snapshots to a local SQLite database, with hourly roll-ups and
// retention pruning. All writes serialize through a single writer mutex.
// The connection pool holds a single connection, so reads and writes take
// turns on it; reads do not run concurrently with each other or with a
// write.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/metrics"
	"github.com/cuemby/storjmonitor/pkg/types"
)

type command struct {
	event        *types.TrafficEvent
	snapshot     *types.StorageSnapshot
	hashstoreEnd *types.HashstoreEnd
}

// Config mirrors pkg/config.StoreConfig to keep this package independent
// of the config package's import graph.
type Config struct {
	WriteBatchInterval     time.Duration
	QueueMaxSize           int
	EventsRetentionDays    int
	HashstoreRetentionDays int
	PruneInterval          time.Duration
	HourlyAggInterval      time.Duration
}

// Writer is the single logical writer for the relational store.
type Writer struct {
	db  *sql.DB
	cfg Config

	writeMu sync.Mutex
	queue   chan command
}

// Open creates (if needed) the schema at path and returns a ready Writer.
func Open(path string, cfg Config) (*Writer, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // one connection shared by every read and write

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.QueueMaxSize <= 0 {
		cfg.QueueMaxSize = 30000
	}

	return &Writer{
		db:    db,
		cfg:   cfg,
		queue: make(chan command, cfg.QueueMaxSize),
	}, nil
}

// Close releases the underlying database handle.
func (w *Writer) Close() error {
	return w.db.Close()
}

// EnqueueEvent blocks if the write queue is full — this is the system's
// back-pressure signal, propagating up through the processor to the
// ingest source.
func (w *Writer) EnqueueEvent(ev types.TrafficEvent) {
	w.enqueue(command{event: &ev})
}

// EnqueueSnapshot enqueues a storage snapshot for persistence.
func (w *Writer) EnqueueSnapshot(s types.StorageSnapshot) {
	w.enqueue(command{snapshot: &s})
}

// EnqueueHashstoreEnd enqueues a completed compaction for persistence.
func (w *Writer) EnqueueHashstoreEnd(e types.HashstoreEnd) {
	w.enqueue(command{hashstoreEnd: &e})
}

// QueueDepth reports the number of commands currently buffered for write.
func (w *Writer) QueueDepth() int {
	return len(w.queue)
}

func (w *Writer) enqueue(c command) {
	select {
	case w.queue <- c:
	default:
		log.Logger.Warn().Msg("store write queue full, waiting for admission")
		w.queue <- c
	}
}

// Run starts the batching, roll-up, and pruning loops. It blocks until ctx
// is canceled, draining the queue best-effort before returning.
func (w *Writer) Run(ctx context.Context) {
	if err := w.Backfill(ctx); err != nil {
		log.Logger.Error().Err(err).Msg("hourly stats backfill failed")
	}

	batchInterval := w.cfg.WriteBatchInterval
	if batchInterval <= 0 {
		batchInterval = 10 * time.Second
	}
	rollupInterval := w.cfg.HourlyAggInterval
	if rollupInterval <= 0 {
		rollupInterval = 10 * time.Minute
	}
	pruneInterval := w.cfg.PruneInterval
	if pruneInterval <= 0 {
		pruneInterval = 6 * time.Hour
	}

	batchTicker := time.NewTicker(batchInterval)
	rollupTicker := time.NewTicker(rollupInterval)
	pruneTicker := time.NewTicker(pruneInterval)
	defer batchTicker.Stop()
	defer rollupTicker.Stop()
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drainBatch()
			return
		case <-batchTicker.C:
			w.drainBatch()
		case <-rollupTicker.C:
			if err := w.RollupHour(ctx, time.Now().UTC()); err != nil {
				log.Logger.Error().Err(err).Msg("hourly rollup failed")
			}
		case <-pruneTicker.C:
			if err := w.Prune(ctx); err != nil {
				log.Logger.Error().Err(err).Msg("retention prune failed")
			}
		}
	}
}

// drainBatch non-blockingly drains the queue and inserts everything
// currently buffered in one transaction.
func (w *Writer) drainBatch() {
	var cmds []command
drain:
	for {
		select {
		case c := <-w.queue:
			cmds = append(cmds, c)
		default:
			break drain
		}
	}
	if len(cmds) == 0 {
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StoreBatchWriteDuration)
	metrics.StoreBatchSize.Observe(float64(len(cmds)))

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	// requeue puts a failed batch back on the queue for the next tick,
	// dropping whatever no longer fits.
	requeue := func() {
		for i, c := range cmds {
			select {
			case w.queue <- c:
			default:
				log.Logger.Error().Int("dropped", len(cmds)-i).Msg("store write queue full, dropping rest of failed batch")
				return
			}
		}
	}

	tx, err := w.db.Begin()
	if err != nil {
		log.Logger.Error().Err(err).Msg("begin batch transaction failed, will retry next tick")
		requeue()
		return
	}

	for _, c := range cmds {
		if err := insertCommand(tx, c); err != nil {
			log.Logger.Warn().Err(err).Msg("batch insert failed, will retry next tick")
			tx.Rollback()
			requeue()
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Logger.Warn().Err(err).Msg("batch commit failed, will retry next tick")
		requeue()
	}
}

func insertCommand(tx *sql.Tx, c command) error {
	switch {
	case c.event != nil:
		e := c.event
		_, err := tx.Exec(`INSERT INTO events
			(timestamp, action, status, size, piece_id, satellite_id, remote_ip, country, latitude, longitude, error_reason, node_name, duration_ms)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.Timestamp.Format(time.RFC3339Nano), string(e.Action), string(e.Status), e.Size,
			e.PieceID, e.SatelliteID, e.RemoteIP, e.Location.Country, e.Location.Lat, e.Location.Lon,
			e.ErrorMessage, e.Node, int64(e.DurationMS))
		return err
	case c.snapshot != nil:
		s := c.snapshot
		_, err := tx.Exec(`INSERT INTO storage_snapshots
			(ts, node_name, available_bytes, total_bytes, used_bytes, trash_bytes, source)
			VALUES (?,?,?,?,?,?,?)`,
			s.Timestamp.Format(time.RFC3339Nano), s.Node, s.AvailableBytes, nil, nil, nil, "logs")
		return err
	case c.hashstoreEnd != nil:
		h := c.hashstoreEnd
		_, err := tx.Exec(`INSERT INTO hashstore_log
			(ts_iso, node_name, satellite, store, duration_s, data_reclaimed_bytes, data_rewritten_bytes, table_load, trash_percent)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			h.FinishedAt.Format(time.RFC3339Nano), h.Node, h.SatelliteID, h.Store,
			h.DurationS, h.DataReclaimedBytes, h.DataRewrittenBytes, h.TableLoad, h.TrashPercent)
		return err
	}
	return nil
}

// SetPersistentState upserts a JSON-serializable value under key.
func (w *Writer) SetPersistentState(key string, value interface{}) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_, err = w.db.Exec(`INSERT INTO app_persistent_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(blob))
	return err
}

// GetPersistentState reads and unmarshals the value stored under key.
// ok is false if the key has never been set.
func (w *Writer) GetPersistentState(key string, dest interface{}) (bool, error) {
	var raw string
	err := w.db.QueryRow(`SELECT value FROM app_persistent_state WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(raw), dest)
}
