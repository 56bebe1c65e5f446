package ingest

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestSplitFrame(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantLine string
		wantOk   bool
	}{
		{"valid frame", "1700000000.5 some log line", "some log line", true},
		{"no space separator", "malformed", "", false},
		{"non-numeric timestamp", "abc some log line", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, line, ok := splitFrame(tt.frame)
			if ok != tt.wantOk {
				t.Fatalf("splitFrame(%q) ok = %v, want %v", tt.frame, ok, tt.wantOk)
			}
			if ok && line != tt.wantLine {
				t.Errorf("splitFrame(%q) line = %q, want %q", tt.frame, line, tt.wantLine)
			}
		})
	}
}

func TestNetworkSourceReadsFramesFromConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	src := &NetworkSource{Node: "node1", Address: ln.Addr().String()}
	out := make(chan Line, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go src.Run(ctx, out)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("1700000000.0 piecestore log line\n")); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	select {
	case line := <-out:
		if line.Text != "piecestore log line" {
			t.Errorf("Text = %q, want %q", line.Text, "piecestore log line")
		}
		if line.Node != "node1" {
			t.Errorf("Node = %q, want node1", line.Node)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for parsed line")
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	d := initialBackoff
	for i := 0; i < 10; i++ {
		d = nextBackoff(d)
	}
	if d != maxBackoff {
		t.Errorf("nextBackoff converged to %v, want cap at %v", d, maxBackoff)
	}
}
