package observer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vitalstream/internal/logging"
)

func newStreamServer(t *testing.T, frames ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/patients", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		conns.Add(1)
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/api/summaries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"1":{"summary":"Patient 1: vitals stable","ts":"2024-05-06T07:00:00Z"},"2":{"summary":null,"ts":null}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &conns
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndpoints(t *testing.T) {
	stream, summaries, err := endpoints("https://host:8000/")
	if err != nil || stream != "wss://host:8000/ws/patients" || summaries != "https://host:8000/api/summaries" {
		t.Fatalf("got %q %q %v", stream, summaries, err)
	}
	if _, _, err := endpoints("ftp://host"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestClientStreamsAndReconnects(t *testing.T) {
	srv, conns := newStreamServer(t, `{garbage`, `[{"id":1,"name":"Patient 1","devices":[{"id":1,"name":"Heart Rate Sensor","heartRate":75}]}]`)
	st := NewState()
	c, err := NewClient(srv.URL, newTestNormalizer(50), st)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.MinBackoff = 5 * time.Millisecond
	c.MaxBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logging.Discard()))
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, func() bool { return conns.Load() >= 2 })
	v := st.View()
	if len(v.Subjects) != 1 || v.Subjects[0].Name != "Patient 1" {
		t.Fatalf("subjects = %+v", v.Subjects)
	}
	if v.Rejected == 0 {
		t.Fatalf("malformed frame not counted")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("client did not stop")
	}
	if st.View().Connected {
		t.Fatalf("state still reports connected")
	}
}

func TestFetchSummaries(t *testing.T) {
	srv, _ := newStreamServer(t)
	st := NewState()
	c, err := NewClient(srv.URL, newTestNormalizer(50), st)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.FetchSummaries(context.Background()); err != nil {
		t.Fatalf("FetchSummaries: %v", err)
	}
	sums := st.View().Summaries
	if len(sums) != 1 {
		t.Fatalf("summaries = %+v", sums)
	}
	got := sums[1]
	if got.Text != "Patient 1: vitals stable" || !got.UpdatedAt.Equal(time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("summary = %+v", got)
	}
	if !got.Highlighted(fixedNow) {
		t.Fatalf("first summary should be highlighted")
	}
}
