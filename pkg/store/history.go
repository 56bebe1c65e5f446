package store

import (
	"context"
	"time"
)

// PerformanceBin is one time-bucketed slice of a node's (or view's)
// historical throughput, read from hourly_stats.
type PerformanceBin struct {
	HourStart          time.Time
	DLSuccess, DLFail   int64
	ULSuccess, ULFail   int64
	AuditSuccess, AuditFail int64
	TotalDownloadSize, TotalUploadSize int64
}

// HistoricalPerformance reads hourly_stats rows for the given nodes (all
// nodes if empty) within [from, to), ordered by hour, merged across nodes
// into one series per hour. Pure SQL; no mutation.
func (w *Writer) HistoricalPerformance(ctx context.Context, nodes []string, from, to time.Time) ([]PerformanceBin, error) {
	query := `
		SELECT hour_timestamp,
			SUM(dl_success), SUM(dl_fail), SUM(ul_success), SUM(ul_fail),
			SUM(audit_success), SUM(audit_fail),
			SUM(total_download_size), SUM(total_upload_size)
		FROM hourly_stats
		WHERE hour_timestamp >= ? AND hour_timestamp < ?`
	args := []interface{}{from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano)}

	if len(nodes) > 0 {
		query += " AND node_name IN (" + placeholders(len(nodes)) + ")"
		for _, n := range nodes {
			args = append(args, n)
		}
	}
	query += " GROUP BY hour_timestamp ORDER BY hour_timestamp"

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []PerformanceBin
	for rows.Next() {
		var hourStr string
		var b PerformanceBin
		if err := rows.Scan(&hourStr, &b.DLSuccess, &b.DLFail, &b.ULSuccess, &b.ULFail,
			&b.AuditSuccess, &b.AuditFail, &b.TotalDownloadSize, &b.TotalUploadSize); err != nil {
			return nil, err
		}
		b.HourStart, _ = time.Parse(time.RFC3339Nano, hourStr)
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

func placeholders(n int) string {
	s := "?"
	for i := 1; i < n; i++ {
		s += ",?"
	}
	return s
}
