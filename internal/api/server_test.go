package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vitalstream/internal/broadcast"
	"vitalstream/internal/config"
	"vitalstream/internal/metrics"
	"vitalstream/internal/sim"
	"vitalstream/internal/state"
	"vitalstream/internal/telemetry"
)

type fakeSummaries map[int]sim.SummaryEntry

func (f fakeSummaries) LatestSummaries() map[int]sim.SummaryEntry { return f }

func newTestServer(t *testing.T, summaries SummarySource) (*Server, *state.Store, *broadcast.Hub) {
	t.Helper()
	store := state.NewStore(config.Default().BuildSubjects())
	hub := broadcast.NewHub(time.Second, nil)
	return NewServer(store, hub, summaries, metrics.New(), 4), store, hub
}

func get(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Result()
}

func TestHandleCurrent(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	resp := get(t, s.Handler(), "/api/current")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var subjects []telemetry.Subject
	if err := json.NewDecoder(resp.Body).Decode(&subjects); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(subjects) != 2 || subjects[0].Name != "Patient 1" || len(subjects[0].Sensors) != 2 {
		t.Fatalf("unexpected snapshot: %+v", subjects)
	}
}

func TestHandleSummaries(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _, _ := newTestServer(t, fakeSummaries{1: {Text: "Patient 1: vitals stable", Timestamp: ts}})
	resp := get(t, s.Handler(), "/api/summaries")
	var body map[string]struct {
		Summary *string    `json:"summary"`
		TS      *time.Time `json:"ts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("entries = %d, want 2", len(body))
	}
	if body["1"].Summary == nil || *body["1"].Summary != "Patient 1: vitals stable" || !body["1"].TS.Equal(ts) {
		t.Fatalf("subject 1 = %+v", body["1"])
	}
	if body["2"].Summary != nil || body["2"].TS != nil {
		t.Fatalf("subject 2 should be empty: %+v", body["2"])
	}
}

func TestHandleHealthAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	resp := get(t, s.Handler(), "/healthz")
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `"status":"ok"`) {
		t.Fatalf("healthz body = %s", b)
	}
	resp = get(t, s.Handler(), "/metrics")
	b, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "vitalstream_observer_connections") {
		t.Fatalf("metrics missing gauge:\n%s", b)
	}
}

func TestHandleIndex(t *testing.T) {
	s, _, _ := newTestServer(t, fakeSummaries{2: {Text: "Patient 2: low heart rate"}})
	resp := get(t, s.Handler(), "/")
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	for _, want := range []string{"Patient 1", "Temperature Sensor", "98.6 °F", "75 bpm", "Patient 2: low heart rate"} {
		if !strings.Contains(body, want) {
			t.Fatalf("index missing %q:\n%s", want, body)
		}
	}
	if resp := get(t, s.Handler(), "/nope"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", resp.StatusCode)
	}
}

func TestWebsocketReceivesSnapshotAndBroadcasts(t *testing.T) {
	s, _, hub := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/patients"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	var subjects []telemetry.Subject
	if err := json.Unmarshal(msg, &subjects); err != nil || len(subjects) != 2 {
		t.Fatalf("initial frame = %s (%v)", msg, err)
	}

	if res := hub.Broadcast(context.Background(), []byte(`[]`)); res.Delivered != 1 {
		t.Fatalf("broadcast result = %+v", res)
	}
	_, msg, err = client.ReadMessage()
	if err != nil || string(msg) != "[]" {
		t.Fatalf("broadcast frame = %q (%v)", msg, err)
	}

	client.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Len() != 0 {
		t.Fatalf("disconnected observer still registered")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _, hub := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws/patients"
	var client *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		client, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	// The initial frame is sent after registration.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
	if hub.Len() != 0 {
		t.Fatalf("observers left after shutdown: %d", hub.Len())
	}
}
