package store

import (
	"context"
	"time"

	"github.com/cuemby/storjmonitor/pkg/metrics"
)

// classify maps the category stored in events.action into the
// hourly_stats bucket it rolls into: get_audit/audit is audit; get and
// get_repair are download; put and put_repair are upload. The events
// table stores parser.CategorizeAction's lowercase values, not the raw
// uppercase log token.
func classify(action string) string {
	switch action {
	case "get_audit", "audit":
		return "audit"
	case "get", "get_repair":
		return "dl"
	case "put", "put_repair":
		return "ul"
	default:
		return ""
	}
}

// RollupHour recomputes hourly_stats for every node for the hour
// containing asOf and the prior hour (to capture the last interval's
// completed partial hour), upserting both.
func (w *Writer) RollupHour(ctx context.Context, asOf time.Time) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RollupDuration)

	current := asOf.Truncate(time.Hour)
	return w.upsertHour(ctx, current.Add(-time.Hour), current.Add(time.Hour))
}

// Backfill computes hourly_stats hour-by-hour across the full span of
// recorded events. It is idempotent: running it twice yields identical
// rows because each hour is a full recompute-and-upsert, not an
// increment.
func (w *Writer) Backfill(ctx context.Context) error {
	row := w.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM events`)
	var minStr, maxStr *string
	if err := row.Scan(&minStr, &maxStr); err != nil {
		return err
	}
	if minStr == nil || maxStr == nil {
		return nil
	}

	min, err := time.Parse(time.RFC3339Nano, *minStr)
	if err != nil {
		return err
	}
	max, err := time.Parse(time.RFC3339Nano, *maxStr)
	if err != nil {
		return err
	}

	return w.upsertHour(ctx, min.Truncate(time.Hour), max.Truncate(time.Hour).Add(time.Hour))
}

// upsertHour recomputes and upserts hourly_stats for every hour in
// [from, to) across all nodes present in events.
func (w *Writer) upsertHour(ctx context.Context, from, to time.Time) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for h := from; h.Before(to); h = h.Add(time.Hour) {
		hourStart := h.Format(time.RFC3339Nano)
		hourEnd := h.Add(time.Hour).Format(time.RFC3339Nano)

		rows, err := tx.QueryContext(ctx, `
			SELECT node_name, action, status, size FROM events
			WHERE timestamp >= ? AND timestamp < ?`, hourStart, hourEnd)
		if err != nil {
			return err
		}

		type counters struct {
			dlS, dlF, ulS, ulF, auS, auF int64
			dlBytes, ulBytes             int64
		}
		byNode := make(map[string]*counters)

		for rows.Next() {
			var node, action, status string
			var size int64
			if err := rows.Scan(&node, &action, &status, &size); err != nil {
				rows.Close()
				return err
			}
			c, ok := byNode[node]
			if !ok {
				c = &counters{}
				byNode[node] = c
			}

			success := status == "success"
			switch classify(action) {
			case "dl":
				if success {
					c.dlS++
					c.dlBytes += size
				} else {
					c.dlF++
				}
			case "ul":
				if success {
					c.ulS++
					c.ulBytes += size
				} else {
					c.ulF++
				}
			case "audit":
				if success {
					c.auS++
				} else {
					c.auF++
				}
			}
		}
		rows.Close()

		for node, c := range byNode {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO hourly_stats
					(hour_timestamp, node_name, dl_success, dl_fail, ul_success, ul_fail, audit_success, audit_fail, total_download_size, total_upload_size)
				VALUES (?,?,?,?,?,?,?,?,?,?)
				ON CONFLICT(hour_timestamp, node_name) DO UPDATE SET
					dl_success=excluded.dl_success, dl_fail=excluded.dl_fail,
					ul_success=excluded.ul_success, ul_fail=excluded.ul_fail,
					audit_success=excluded.audit_success, audit_fail=excluded.audit_fail,
					total_download_size=excluded.total_download_size, total_upload_size=excluded.total_upload_size`,
				hourStart, node, c.dlS, c.dlF, c.ulS, c.ulF, c.auS, c.auF, c.dlBytes, c.ulBytes)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// Prune deletes events and hashstore_log rows older than their configured
// retention windows.
func (w *Writer) Prune(ctx context.Context) error {
	eventsCutoff := time.Now().UTC().AddDate(0, 0, -w.cfg.EventsRetentionDays).Format(time.RFC3339Nano)
	hashstoreCutoff := time.Now().UTC().AddDate(0, 0, -w.cfg.HashstoreRetentionDays).Format(time.RFC3339Nano)

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	eventsRes, err := tx.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, eventsCutoff)
	if err != nil {
		return err
	}
	hashstoreRes, err := tx.ExecContext(ctx, `DELETE FROM hashstore_log WHERE ts_iso < ?`, hashstoreCutoff)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if n, err := eventsRes.RowsAffected(); err == nil {
		metrics.PruneDeletedRows.WithLabelValues("events").Add(float64(n))
	}
	if n, err := hashstoreRes.RowsAffected(); err == nil {
		metrics.PruneDeletedRows.WithLabelValues("hashstore_log").Add(float64(n))
	}
	return nil
}
