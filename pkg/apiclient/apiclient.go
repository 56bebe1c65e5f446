// Package apiclient periodically polls each node's HTTP admin surface for
// reputation, storage, and earnings data. Failures are local to one node
// and never affect ingest. Results are persisted through the store and are
// not broadcast; only the node's connection status goes to dashboards.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/storjmonitor/pkg/log"
)

const (
	discoveryTimeout = 2 * time.Second

	reputationInterval = time.Hour
	storageInterval    = 5 * time.Minute
	earningsInterval   = 24 * time.Hour
)

// Client polls one node's admin API.
type Client struct {
	NodeName string
	Endpoint string
	Timeout  time.Duration

	httpClient *http.Client
}

// NewClient builds a Client for an already-discovered endpoint.
func NewClient(nodeName, endpoint string, timeout time.Duration) *Client {
	return &Client{
		NodeName:   nodeName,
		Endpoint:   strings.TrimSuffix(endpoint, "/"),
		Timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status %d for %s", resp.StatusCode, path)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dashboard fetches /api/sno (reputation, storage, bandwidth overview).
func (c *Client) Dashboard(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/api/sno")
}

// Satellites fetches /api/sno/satellites (per-satellite audit/suspension
// scores).
func (c *Client) Satellites(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/api/sno/satellites")
}

// EstimatedPayout fetches /api/sno/estimated-payout.
func (c *Client) EstimatedPayout(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/api/sno/estimated-payout")
}

// isLocalhost reports whether host names this process's own machine.
func isLocalhost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	default:
		return false
	}
}

// DiscoverEndpoint implements the endpoint-discovery rule from the
// external interfaces: an explicit endpoint wins; otherwise try
// localhost candidates for file-sourced nodes, or host:NODE_API_DEFAULT_PORT
// for network-sourced nodes when remote API access is explicitly allowed.
// A candidate qualifies when /api/sno returns 200 with a "nodeID" field.
func DiscoverEndpoint(ctx context.Context, nodeName, explicit string, isNetworkSource bool, host string, defaultPort int, allowRemoteAPI bool) string {
	if explicit != "" {
		return explicit
	}

	var candidates []string
	switch {
	case !isNetworkSource:
		candidates = []string{
			fmt.Sprintf("http://localhost:%d", defaultPort),
			fmt.Sprintf("http://127.0.0.1:%d", defaultPort),
		}
	case host != "":
		if !allowRemoteAPI && !isLocalhost(host) {
			log.Logger.Warn().Str("node", nodeName).Str("host", host).
				Msg("remote API access disabled, set ALLOW_REMOTE_API to enable")
			return ""
		}
		candidates = []string{fmt.Sprintf("http://%s:%d", host, defaultPort)}
	}

	for _, candidate := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
		probe := NewClient(nodeName, candidate, discoveryTimeout)
		data, err := probe.Dashboard(probeCtx)
		cancel()
		if err != nil {
			continue
		}
		if _, ok := data["nodeID"]; ok {
			log.Logger.Info().Str("node", nodeName).Str("endpoint", candidate).Msg("discovered admin API endpoint")
			return candidate
		}
	}

	log.Logger.Info().Str("node", nodeName).Msg("could not auto-discover admin API, enhanced features disabled")
	return ""
}
