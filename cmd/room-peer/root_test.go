package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchICEServers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webrtc/ice" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"iceServers":[{"urls":["stun:stun.example.com:3478"]}]}`))
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?x=1"
	servers, err := fetchICEServers(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("fetchICEServers: %v", err)
	}
	if len(servers) != 1 || len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("servers=%#v", servers)
	}
}

func TestFetchICEServers_Non200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ice misconfigured", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	if _, err := fetchICEServers(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRootCmd_RequiresRoom(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"subscribe", "--url", "ws://127.0.0.1:1/ws"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "room") {
		t.Fatalf("err=%v, want required room flag error", err)
	}
}

func TestOptionsLogger(t *testing.T) {
	opts := &options{logLevel: "debug", logFormat: "json"}
	if _, err := opts.logger(); err != nil {
		t.Fatalf("logger: %v", err)
	}
	opts.logFormat = "xml"
	if _, err := opts.logger(); err == nil {
		t.Fatalf("expected error for bad format")
	}
	opts = &options{logLevel: "loud", logFormat: "text"}
	if _, err := opts.logger(); err == nil {
		t.Fatalf("expected error for bad level")
	}
}
