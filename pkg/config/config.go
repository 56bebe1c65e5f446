// Package config loads monitor configuration from environment variables, an
// optional YAML node-list file, and repeatable --node CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/storjmonitor/pkg/types"
)

// Sentinel validation errors.
var (
	ErrNoNodes        = errors.New("at least one node must be configured")
	ErrBadNodeFlag     = errors.New("node flag must be in NAME:/path/to/log form")
	ErrNodeNameHasColon = errors.New("node name must not contain ':'")
	ErrMissingGeoIP    = errors.New("geoip database path is required when geoip lookups are enabled")
)

// Config holds every tunable named in the monitor's external interfaces.
type Config struct {
	Nodes []types.Node

	Server ServerConfig
	Store  StoreConfig
	Stats  StatsConfig
	Broadcast BroadcastConfig
	GeoIP  GeoIPConfig
	API    APIConfig
	Logging LoggingConfig
}

// ServerConfig controls the HTTP listener serving /ws, /metrics, /health.
type ServerConfig struct {
	Host string
	Port int
}

// StoreConfig controls the relational store's batching, retention, and
// roll-up cadence.
type StoreConfig struct {
	DatabaseFile              string
	WriteBatchInterval        time.Duration
	QueueMaxSize              int
	EventsRetentionDays       int
	HashstoreRetentionDays    int
	PruneInterval             time.Duration
	HourlyAggInterval         time.Duration
}

// StatsConfig controls the incremental stats engine's window and cadence.
type StatsConfig struct {
	WindowMinutes      int
	RecomputeInterval  time.Duration
	PerformanceInterval time.Duration
}

// BroadcastConfig controls the dashboard websocket batcher.
type BroadcastConfig struct {
	BatchInterval time.Duration
	BatchSize     int
}

// GeoIPConfig controls the IP-to-location cache and its backing database.
type GeoIPConfig struct {
	DatabasePath string
	CacheSize    int
}

// APIConfig controls the per-node HTTP admin-API collaborator.
type APIConfig struct {
	Timeout           time.Duration
	DefaultPort       int
	AllowRemoteAPI    bool
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level string
	JSON  bool
}

// Load reads configuration from environment variables and an optional YAML
// file at configPath, then overlays any --node flags (each "NAME:/path" or
// "NAME:host:port" for network sources) on top of the file's node list.
func Load(configPath string, nodeFlags []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("storjmonitor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/storjmonitor")
	}

	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server_host"),
			Port: v.GetInt("server_port"),
		},
		Store: StoreConfig{
			DatabaseFile:           v.GetString("database_file"),
			WriteBatchInterval:     time.Duration(v.GetInt("db_write_batch_interval_seconds")) * time.Second,
			QueueMaxSize:           v.GetInt("db_queue_max_size"),
			EventsRetentionDays:    v.GetInt("db_events_retention_days"),
			HashstoreRetentionDays: v.GetInt("db_hashstore_retention_days"),
			PruneInterval:          time.Duration(v.GetInt("db_prune_interval_hours")) * time.Hour,
			HourlyAggInterval:      time.Duration(v.GetInt("hourly_agg_interval_minutes")) * time.Minute,
		},
		Stats: StatsConfig{
			WindowMinutes:       v.GetInt("stats_window_minutes"),
			RecomputeInterval:   time.Duration(v.GetInt("stats_interval_seconds")) * time.Second,
			PerformanceInterval: time.Duration(v.GetInt("performance_interval_seconds")) * time.Second,
		},
		Broadcast: BroadcastConfig{
			BatchInterval: time.Duration(v.GetInt("websocket_batch_interval_ms")) * time.Millisecond,
			BatchSize:     v.GetInt("websocket_batch_size"),
		},
		GeoIP: GeoIPConfig{
			DatabasePath: v.GetString("geoip_database_path"),
			CacheSize:    v.GetInt("max_geoip_cache_size"),
		},
		API: APIConfig{
			Timeout:        time.Duration(v.GetInt("node_api_timeout")) * time.Second,
			DefaultPort:    v.GetInt("node_api_default_port"),
			AllowRemoteAPI: v.GetBool("allow_remote_api"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("log_level"),
			JSON:  v.GetBool("log_json"),
		},
	}

	fileNodes, err := loadNodesFromFile(v.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	flagNodes, err := parseNodeFlags(nodeFlags)
	if err != nil {
		return nil, err
	}

	cfg.Nodes = mergeNodes(fileNodes, flagNodes)
	if len(cfg.Nodes) == 0 {
		return nil, ErrNoNodes
	}

	return cfg, nil
}

// nodeListFile is the shape of the "nodes:" key in a YAML config file,
// parsed directly rather than through viper so node entries keep their
// own struct tags instead of viper's generic key/value decoding.
type nodeListFile struct {
	Nodes []types.Node `yaml:"nodes"`
}

// loadNodesFromFile reads the node list from path's "nodes:" key. An
// empty path (no config file found) yields an empty, non-error result.
func loadNodesFromFile(path string) ([]types.Node, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var parsed nodeListFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse node list: %w", err)
	}
	return parsed.Nodes, nil
}

// mergeNodes overlays flagNodes on top of fileNodes, replacing a
// file-defined node when a flag repeats its name and appending any flag
// node with a new name.
func mergeNodes(fileNodes, flagNodes []types.Node) []types.Node {
	byName := make(map[string]int, len(fileNodes))
	merged := make([]types.Node, len(fileNodes))
	copy(merged, fileNodes)
	for i, n := range merged {
		byName[n.Name] = i
	}

	for _, n := range flagNodes {
		if i, ok := byName[n.Name]; ok {
			merged[i] = n
			continue
		}
		byName[n.Name] = len(merged)
		merged = append(merged, n)
	}
	return merged
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)

	v.SetDefault("database_file", "storjmonitor.db")
	v.SetDefault("db_write_batch_interval_seconds", 10)
	v.SetDefault("db_queue_max_size", 30000)
	v.SetDefault("db_events_retention_days", 2)
	v.SetDefault("db_hashstore_retention_days", 30)
	v.SetDefault("db_prune_interval_hours", 6)
	v.SetDefault("hourly_agg_interval_minutes", 10)

	v.SetDefault("stats_window_minutes", 60)
	v.SetDefault("stats_interval_seconds", 5)
	v.SetDefault("performance_interval_seconds", 2)

	v.SetDefault("websocket_batch_interval_ms", 1000)
	v.SetDefault("websocket_batch_size", 50)

	v.SetDefault("max_geoip_cache_size", 5000)
	v.SetDefault("geoip_database_path", "")

	v.SetDefault("node_api_timeout", 10)
	v.SetDefault("node_api_default_port", 14002)
	v.SetDefault("allow_remote_api", false)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)
}

// parseNodeFlags turns repeatable --node NAME:/path (file source) or
// NAME:host:port (network source) flags into Node values. A path argument
// beginning with "/" or "." is treated as a file source; anything else is
// treated as a host:port network source.
func parseNodeFlags(flags []string) ([]types.Node, error) {
	nodes := make([]types.Node, 0, len(flags))
	for _, f := range flags {
		name, rest, ok := strings.Cut(f, ":")
		if !ok || name == "" || rest == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadNodeFlag, f)
		}
		if strings.Contains(name, ":") {
			return nil, fmt.Errorf("%w: %q", ErrNodeNameHasColon, name)
		}

		n := types.Node{Name: name}
		if strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, ".") {
			n.Source = types.SourceFile
			n.Path = rest
		} else {
			n.Source = types.SourceNetwork
			n.Address = rest
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
