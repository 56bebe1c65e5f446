package dashboard

import (
	"encoding/json"
	"testing"

	"github.com/cuemby/storjmonitor/pkg/types"
)

func TestParseViewAggregateSentinel(t *testing.T) {
	got := parseView(json.RawMessage(`"Aggregate"`))
	if !got.AggregateView() {
		t.Errorf("parseView(%q) = %+v, want aggregate", `"Aggregate"`, got)
	}
}

func TestParseViewNodeList(t *testing.T) {
	got := parseView(json.RawMessage(`["node1","node2"]`))
	want := types.ViewSubscription{Nodes: []string{"node1", "node2"}}
	if got.Key() != want.Key() {
		t.Errorf("parseView(list) = %+v, want %+v", got, want)
	}
}

func TestParseViewMalformedFallsBackToAggregate(t *testing.T) {
	got := parseView(json.RawMessage(`{"not":"valid"}`))
	if !got.AggregateView() {
		t.Errorf("parseView(malformed) = %+v, want aggregate fallback", got)
	}
}
