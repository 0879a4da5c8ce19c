package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler_ExposesRelayCollectors(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetRooms(3)
	m.MessageReceived("offer")
	m.MessageDropped(DropReasonMissingRoom)
	m.MessageSent("fanout")
	m.MessageSent("fanout")
	m.SendFailed(SendFailureQueueFull)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	Handler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		"room_relay_connections_active 1",
		"room_relay_connections_total 2",
		"room_relay_rooms_active 3",
		`room_relay_messages_received_total{kind="offer"} 1`,
		`room_relay_messages_dropped_total{reason="missing_room"} 1`,
		`room_relay_messages_sent_total{path="fanout"} 2`,
		`room_relay_send_failures_total{reason="queue_full"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.MessageDropped(DropReasonMalformed)
	m.MessageDropped(DropReasonMalformed)

	if got := testutil.ToFloat64(m.messagesDropped.WithLabelValues(DropReasonMalformed)); got != 2 {
		t.Fatalf("dropped=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.messagesDropped.WithLabelValues(DropReasonRateLimited)); got != 0 {
		t.Fatalf("rate_limited=%v, want 0", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetRooms(1)
	m.MessageReceived("join")
	m.MessageDropped(DropReasonMalformed)
	m.MessageSent("replay")
	m.SendFailed(SendFailurePeerClosed)

	rr := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}
