package store

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	size INTEGER NOT NULL,
	piece_id TEXT,
	satellite_id TEXT,
	remote_ip TEXT,
	country TEXT,
	latitude REAL,
	longitude REAL,
	error_reason TEXT,
	node_name TEXT NOT NULL,
	duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_node_name ON events(node_name);
CREATE INDEX IF NOT EXISTS idx_events_node_timestamp ON events(node_name, timestamp);

CREATE TABLE IF NOT EXISTS hourly_stats (
	hour_timestamp TEXT NOT NULL,
	node_name TEXT NOT NULL,
	dl_success INTEGER NOT NULL DEFAULT 0,
	dl_fail INTEGER NOT NULL DEFAULT 0,
	ul_success INTEGER NOT NULL DEFAULT 0,
	ul_fail INTEGER NOT NULL DEFAULT 0,
	audit_success INTEGER NOT NULL DEFAULT 0,
	audit_fail INTEGER NOT NULL DEFAULT 0,
	total_download_size INTEGER NOT NULL DEFAULT 0,
	total_upload_size INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (hour_timestamp, node_name)
);

CREATE TABLE IF NOT EXISTS storage_snapshots (
	ts TEXT NOT NULL,
	node_name TEXT NOT NULL,
	available_bytes INTEGER,
	total_bytes INTEGER,
	used_bytes INTEGER,
	trash_bytes INTEGER,
	source TEXT NOT NULL DEFAULT 'logs'
);
CREATE INDEX IF NOT EXISTS idx_storage_snapshots_node_ts ON storage_snapshots(node_name, ts);

CREATE TABLE IF NOT EXISTS hashstore_log (
	ts_iso TEXT NOT NULL,
	node_name TEXT NOT NULL,
	satellite TEXT NOT NULL,
	store TEXT NOT NULL,
	duration_s REAL,
	data_reclaimed_bytes INTEGER,
	data_rewritten_bytes INTEGER,
	table_load REAL,
	trash_percent REAL
);
CREATE INDEX IF NOT EXISTS idx_hashstore_log_node_ts ON hashstore_log(node_name, ts_iso);

CREATE TABLE IF NOT EXISTS app_persistent_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
