package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func TestClientDashboardDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sno" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"nodeID":"abc123"}`))
	}))
	defer srv.Close()

	c := NewClient("node1", srv.URL, time.Second)
	data, err := c.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if data["nodeID"] != "abc123" {
		t.Errorf("nodeID = %v, want abc123", data["nodeID"])
	}
}

func TestClientGetReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("node1", srv.URL, time.Second)
	if _, err := c.Dashboard(context.Background()); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestDiscoverEndpointPrefersExplicit(t *testing.T) {
	got := DiscoverEndpoint(context.Background(), "node1", "http://explicit:1234", false, "", 14002, false)
	if got != "http://explicit:1234" {
		t.Errorf("DiscoverEndpoint() = %q, want explicit endpoint", got)
	}
}

func TestDiscoverEndpointProbesLocalCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"nodeID":"abc"}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	got := DiscoverEndpoint(context.Background(), "node1", "", false, "", port, false)
	if got == "" {
		t.Fatal("expected a discovered endpoint, got empty string")
	}
}

func TestDiscoverEndpointRejectsRemoteHostWhenDisallowed(t *testing.T) {
	got := DiscoverEndpoint(context.Background(), "node1", "", true, "10.0.0.9", 14002, false)
	if got != "" {
		t.Errorf("DiscoverEndpoint() = %q, want empty (remote API disabled)", got)
	}
}

func TestDiscoverEndpointReturnsEmptyWhenNothingResponds(t *testing.T) {
	got := DiscoverEndpoint(context.Background(), "node1", "", false, "", 1, false)
	if got != "" {
		t.Errorf("DiscoverEndpoint() = %q, want empty when no candidate responds", got)
	}
}
