package diag

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/journal"
	"github.com/nerrad567/gray-logic-node/internal/status"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
)

type fakeJournal struct {
	boots   []journal.Boot
	entries []journal.Entry
	err     error
	limits  []int
}

func (f *fakeJournal) BootID() string { return "boot-1" }

func (f *fakeJournal) BootCount(context.Context) (int, error) {
	return len(f.boots), f.err
}

func (f *fakeJournal) Boots(_ context.Context, limit int) ([]journal.Boot, error) {
	f.limits = append(f.limits, limit)
	return f.boots, f.err
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	return f.entries, f.err
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "debug"}, "test", io.Discard)
}

func testSnapshot() supervisor.Snapshot {
	return supervisor.Snapshot{
		State:     status.SessionUp,
		StateName: status.SessionUp.String(),
		Status:    "green",
		Color:     0x00FF00,
		Device:    "ABCDEF",
	}
}

func newTestServer(t *testing.T, deps Deps) (*Server, *httptest.Server) {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = testLogger()
	}
	if deps.Snapshot == nil {
		deps.Snapshot = testSnapshot
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// =============================================================================
// Construction
// =============================================================================

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Snapshot: testSnapshot}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without snapshot should fail")
	}
}

func TestStartAndClose(t *testing.T) {
	srv, err := New(Deps{
		Config:   config.DiagnosticsConfig{Host: "127.0.0.1", Port: 0},
		Logger:   testLogger(),
		Snapshot: testSnapshot,
	})
	if err != nil {
		t.Fatal(err)
	}
	if srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q", srv.Addr())
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var health HealthResponse
	if code := getJSON(t, "http://"+srv.Addr()+"/api/v1/health", &health); code != http.StatusOK {
		t.Errorf("health status = %d", code)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStartPortInUse(t *testing.T) {
	first, err := New(Deps{Config: config.DiagnosticsConfig{Host: "127.0.0.1"}, Logger: testLogger(), Snapshot: testSnapshot})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.Close() //nolint:errcheck // test cleanup

	_, port, _ := strings.Cut(first.Addr(), ":")
	second, _ := New(Deps{Config: config.DiagnosticsConfig{Host: "127.0.0.1"}, Logger: testLogger(), Snapshot: testSnapshot})
	second.cfg.Port, err = strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Close() //nolint:errcheck // test cleanup
		t.Error("Start() on a bound port should fail")
	}
}

// =============================================================================
// Handlers
// =============================================================================

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{
			"all ok",
			[]HealthCheck{{Name: "journal", Check: func(context.Context) error { return nil }}},
			http.StatusOK, "healthy",
		},
		{
			"one failing",
			[]HealthCheck{
				{Name: "journal", Check: func(context.Context) error { return nil }},
				{Name: "influxdb", Check: func(context.Context) error { return errors.New("refused") }},
			},
			http.StatusServiceUnavailable, "degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, Deps{Checks: tt.checks, Version: "1.2.3"})
			var resp HealthResponse
			code := getJSON(t, ts.URL+"/api/v1/health", &resp)
			if code != tt.wantCode || resp.Status != tt.wantStatus {
				t.Errorf("code = %d status = %q, want %d %q", code, resp.Status, tt.wantCode, tt.wantStatus)
			}
			if resp.Version != "1.2.3" {
				t.Errorf("Version = %q", resp.Version)
			}
			if tt.wantCode != http.StatusOK && resp.Components["influxdb"] != "refused" {
				t.Errorf("Components = %v", resp.Components)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	j := &fakeJournal{boots: []journal.Boot{{BootID: "a"}, {BootID: "b"}, {BootID: "c"}}}
	_, ts := newTestServer(t, Deps{Journal: j})

	var body map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/status", &body); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if body["state"] != "session_up" || body["status"] != "green" || body["device"] != "ABCDEF" {
		t.Errorf("body = %v", body)
	}
	if body["boot_count"] != float64(3) || body["boot_id"] != "boot-1" {
		t.Errorf("boot fields = %v, %v", body["boot_count"], body["boot_id"])
	}
}

func TestStatusWithoutJournal(t *testing.T) {
	_, ts := newTestServer(t, Deps{})
	var body map[string]any
	getJSON(t, ts.URL+"/api/v1/status", &body)
	if _, ok := body["boot_count"]; ok {
		t.Errorf("boot_count present without journal: %v", body)
	}
}

func TestJournal(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := &fakeJournal{
		boots:   []journal.Boot{{BootID: "boot-1", StartedAt: at}},
		entries: []journal.Entry{{ID: 1, BootID: "boot-1", From: "link_down", To: "link_up_session_down", At: at}},
	}
	_, ts := newTestServer(t, Deps{Journal: j})

	var resp JournalResponse
	if code := getJSON(t, ts.URL+"/api/v1/journal?limit=5", &resp); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if len(resp.Boots) != 1 || len(resp.Transitions) != 1 || resp.Transitions[0].To != "link_up_session_down" {
		t.Errorf("resp = %+v", resp)
	}
	if len(j.limits) != 1 || j.limits[0] != 5 {
		t.Errorf("limits = %v, want [5]", j.limits)
	}

	for _, bad := range []string{"0", "-1", "abc"} {
		if code := getJSON(t, ts.URL+"/api/v1/journal?limit="+bad, nil); code != http.StatusBadRequest {
			t.Errorf("limit=%s code = %d, want 400", bad, code)
		}
	}
}

func TestJournalErrors(t *testing.T) {
	_, disabled := newTestServer(t, Deps{})
	if code := getJSON(t, disabled.URL+"/api/v1/journal", nil); code != http.StatusServiceUnavailable {
		t.Errorf("disabled code = %d, want 503", code)
	}

	_, failing := newTestServer(t, Deps{Journal: &fakeJournal{err: errors.New("disk")}})
	if code := getJSON(t, failing.URL+"/api/v1/journal", nil); code != http.StatusInternalServerError {
		t.Errorf("failing code = %d, want 500", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "graylogic_node_supervisor_state 2\n")
	})
	_, ts := newTestServer(t, Deps{Metrics: metrics})

	resp, err := http.Get(ts.URL + "/metrics") //nolint:noctx // test
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "supervisor_state 2") {
		t.Errorf("body = %q", body)
	}

	_, bare := newTestServer(t, Deps{})
	if code := getJSON(t, bare.URL+"/metrics", nil); code != http.StatusNotFound {
		t.Errorf("no metrics handler code = %d, want 404", code)
	}
}

func TestRequestID(t *testing.T) {
	_, ts := newTestServer(t, Deps{})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil) //nolint:noctx // test
	req.Header.Set("X-Request-ID", "abc123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q", got)
	}

	resp, err = http.Get(ts.URL + "/api/v1/health") //nolint:noctx // test
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); len(got) != 2*requestIDBytes {
		t.Errorf("generated X-Request-ID = %q", got)
	}
}

func TestRecovery(t *testing.T) {
	srv, err := New(Deps{Logger: testLogger(), Snapshot: testSnapshot})
	if err != nil {
		t.Fatal(err)
	}
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
}

// =============================================================================
// Stream
// =============================================================================

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/status/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestStreamSnapshotThenTransition(t *testing.T) {
	srv, ts := newTestServer(t, Deps{})
	conn := dialStream(t, ts)

	first := readMessage(t, conn)
	if first.Type != WSTypeEvent || first.EventType != EventSnapshot {
		t.Fatalf("first message = %+v", first)
	}
	if srv.Hub().ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", srv.Hub().ClientCount())
	}

	srv.ObserveTransition(supervisor.Transition{
		From:   status.LinkUpSessionDown,
		To:     status.SessionUp,
		At:     time.Now(),
		Reason: "session connected",
	})

	msg := readMessage(t, conn)
	if msg.EventType != EventTransition {
		t.Fatalf("event = %q, want %q", msg.EventType, EventTransition)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", msg.Payload)
	}
	if payload["from"] != "link_up_session_down" || payload["to"] != "session_up" || payload["reason"] != "session connected" {
		t.Errorf("payload = %v", payload)
	}
	snap, _ := payload["snapshot"].(map[string]any)
	if snap["status"] != "green" {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestStreamPing(t *testing.T) {
	_, ts := newTestServer(t, Deps{})
	conn := dialStream(t, ts)
	readMessage(t, conn)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "42"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "42" {
		t.Errorf("reply = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError {
		t.Errorf("reply = %+v, want error", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "subscribe", ID: "7"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError || msg.ID != "7" {
		t.Errorf("reply = %+v, want error", msg)
	}
}

func TestHubCloseAll(t *testing.T) {
	srv, ts := newTestServer(t, Deps{})
	conn := dialStream(t, ts)
	readMessage(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Hub().Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if srv.Hub().ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after close", srv.Hub().ClientCount())
	}
	// Broadcasting after close must not panic.
	srv.Hub().Broadcast(EventTransition, nil)
}

func TestClientSendAfterClose(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Default())
	c := &WSClient{hub: hub, send: make(chan []byte, 1)}
	hub.register(c)

	if !c.trySend([]byte("a")) {
		t.Fatal("trySend() to open client = false")
	}
	if c.trySend([]byte("b")) {
		t.Error("trySend() to full buffer = true")
	}

	hub.closeAll()
	// The read pump unregisters after closeAll has already closed send.
	hub.unregister(c)

	if c.trySend([]byte("c")) {
		t.Error("trySend() after close = true")
	}
	hub.Broadcast(EventTransition, nil)

	if _, ok := <-c.send; !ok {
		t.Fatal("buffered message lost")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open")
	}
}
