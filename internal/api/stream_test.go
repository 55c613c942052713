package api

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/priyanshumodi22/kubiq-sub000/internal/testutil"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

func dialStream(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.server)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) types.StreamEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event types.StreamEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

// readUntil skips periodic status pushes while waiting for a kind.
func readUntil(t *testing.T, conn *websocket.Conn, kind types.StreamEventKind) types.StreamEvent {
	t.Helper()
	for i := 0; i < 20; i++ {
		event := readEvent(t, conn)
		if event.Kind == kind {
			return event
		}
		if event.Kind != types.StreamStatus {
			t.Fatalf("unexpected event %s while waiting for %s: %+v", event.Kind, kind, event)
		}
	}
	t.Fatalf("no %s event received", kind)
	return types.StreamEvent{}
}

func send(t *testing.T, conn *websocket.Conn, req streamRequest) {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func TestStream_InitialStatusPush(t *testing.T) {
	env := newTestEnv(t)
	env.states.states = []types.ServiceState{
		{Target: "api", Status: types.StatusHealthy},
	}
	conn := dialStream(t, env)

	event := readEvent(t, conn)
	if event.Kind != types.StreamStatus {
		t.Fatalf("first event = %s, want status", event.Kind)
	}
	if len(event.States) != 1 || event.States[0].Target != "api" {
		t.Fatalf("states = %+v", event.States)
	}
}

func TestStream_SubscribeDeliversLines(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("first\nsecond\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := testutil.FixtureLogSource(path)
	env.store.sources[src.ID] = *src

	conn := dialStream(t, env)
	readEvent(t, conn) // initial status

	send(t, conn, streamRequest{Action: "subscribe", SourceID: src.ID})

	opened := readUntil(t, conn, types.StreamOpened)
	if opened.SubscriptionID == "" || opened.File != path {
		t.Fatalf("opened = %+v", opened)
	}

	lines := readUntil(t, conn, types.StreamLines)
	if len(lines.Lines) != 2 || lines.Lines[0] != "first" {
		t.Fatalf("initial lines = %v", lines.Lines)
	}

	// Appended lines flow through the same subscription.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("third\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	appended := readUntil(t, conn, types.StreamLines)
	if len(appended.Lines) != 1 || appended.Lines[0] != "third" {
		t.Fatalf("appended lines = %v", appended.Lines)
	}
}

func TestStream_SubscribeUnknownSource(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)
	readEvent(t, conn) // initial status

	send(t, conn, streamRequest{Action: "subscribe", SourceID: "ghost"})

	event := readUntil(t, conn, types.StreamError)
	if event.Error != "log source not found" {
		t.Fatalf("error = %q", event.Error)
	}
}

func TestStream_SubscribeMissingFile(t *testing.T) {
	env := newTestEnv(t)
	src := testutil.FixtureLogSource(filepath.Join(t.TempDir(), "missing.log"))
	env.store.sources[src.ID] = *src

	conn := dialStream(t, env)
	readEvent(t, conn) // initial status

	send(t, conn, streamRequest{Action: "subscribe", SourceID: src.ID})

	event := readUntil(t, conn, types.StreamError)
	if event.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestStream_UnknownAction(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)
	readEvent(t, conn) // initial status

	send(t, conn, streamRequest{Action: "bogus"})

	event := readUntil(t, conn, types.StreamError)
	if !strings.Contains(event.Error, "unknown action") {
		t.Fatalf("error = %q", event.Error)
	}
}

func TestStream_Unsubscribe(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := testutil.FixtureLogSource(path)
	env.store.sources[src.ID] = *src

	conn := dialStream(t, env)
	readEvent(t, conn) // initial status

	send(t, conn, streamRequest{Action: "subscribe", SourceID: src.ID})
	opened := readUntil(t, conn, types.StreamOpened)
	readUntil(t, conn, types.StreamLines) // initial batch

	send(t, conn, streamRequest{Action: "unsubscribe", SubscriptionID: opened.SubscriptionID})

	closed := readUntil(t, conn, types.StreamClosed)
	if closed.SubscriptionID != opened.SubscriptionID {
		t.Fatalf("closed = %+v", closed)
	}
}

func TestStream_StatusOnRequest(t *testing.T) {
	env := newTestEnv(t)
	env.states.states = []types.ServiceState{
		{Target: "db", Status: types.StatusUnhealthy},
	}
	conn := dialStream(t, env)
	readEvent(t, conn) // initial status

	send(t, conn, streamRequest{Action: "status"})

	event := readEvent(t, conn)
	if event.Kind != types.StreamStatus || len(event.States) != 1 {
		t.Fatalf("event = %+v", event)
	}
}
