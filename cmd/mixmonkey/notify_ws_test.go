package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mixmonkey/internal/testutil"
)

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(testutil.Discard(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func runHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("hub did not stop")
		}
	})
}

// bareClient is a registered client without a websocket; the test reads its
// send channel directly.
func bareClient(hub *Hub, name string, buf int) *Client {
	return &Client{id: name, hub: hub, send: make(chan []byte, buf), remoteAddr: name, logger: hub.logger}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	testutil.WaitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func decodeEnvelope(t *testing.T, b []byte) (string, json.RawMessage) {
	t.Helper()
	var env struct {
		ID   string          `json:"id"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	if env.ID == "" {
		t.Fatalf("envelope without id: %s", b)
	}
	return env.Type, env.Data
}

func TestHub_SessionChangedDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	runHub(t, hub)

	c1 := bareClient(hub, "c1", 4)
	c2 := bareClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	hub.SessionChanged(SessionState{Name: "chrome", Volume: 42, Muted: true})

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			typ, data := decodeEnvelope(t, got)
			if typ != "volume_changed" {
				t.Fatalf("%s got type %q", c.remoteAddr, typ)
			}
			var st SessionState
			if err := json.Unmarshal(data, &st); err != nil {
				t.Fatalf("decode data: %v", err)
			}
			if st != (SessionState{Name: "chrome", Volume: 42, Muted: true}) {
				t.Fatalf("%s got %+v", c.remoteAddr, st)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s", c.remoteAddr)
		}
	}

	if got := hub.LastStates(); len(got) != 1 || got[0].Volume != 42 {
		t.Fatalf("LastStates = %+v", got)
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	runHub(t, hub)

	slow := bareClient(hub, "slow", 1)
	fast := bareClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	// Simulate a stuck client.
	slow.send <- []byte(`"already queued"`)

	hub.MixerToggled()

	select {
	case got := <-fast.send:
		if typ, _ := decodeEnvelope(t, got); typ != "mixer_toggle" {
			t.Fatalf("fast client got %q", typ)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client")
	}

	<-slow.send
	testutil.WaitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
}

func TestHub_BroadcastDropsWhenQueueFull(t *testing.T) {
	// Hub not running: the queue fills and further messages are dropped
	// without blocking the caller.
	hub := newTestHub(t, 1, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			hub.SessionChanged(SessionState{Name: "master", Volume: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("SessionChanged blocked on a full queue")
	}
	if len(hub.broadcast) != 2 {
		t.Fatalf("queued = %d, want 2", len(hub.broadcast))
	}
	if got := hub.LastStates(); got[0].Volume != 9 {
		t.Fatalf("last state = %+v, want the newest", got)
	}
}

func TestNotifyServer_StateInitThenUpdates(t *testing.T) {
	hub := newTestHub(t, 8, 8)
	runHub(t, hub)
	hub.last.record(SessionState{Name: "spotify", Volume: 70})

	srv := httptest.NewServer(newNotifyMux(hub, "/ws"))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read state_init: %v", err)
	}
	typ, data := decodeEnvelope(t, first)
	if typ != "state_init" {
		t.Fatalf("first frame type = %q, want state_init", typ)
	}
	var states []SessionState
	if err := json.Unmarshal(data, &states); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	if len(states) != 1 || states[0].Name != "spotify" || states[0].Volume != 70 {
		t.Fatalf("state_init = %+v", states)
	}

	testutil.WaitUntil(t, time.Second, func() bool { return hub.ClientCount() == 1 }, "client not registered")
	hub.SessionChanged(SessionState{Name: "spotify", Volume: 72})

	_, next, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if typ, _ := decodeEnvelope(t, next); typ != "volume_changed" {
		t.Fatalf("update type = %q", typ)
	}

	// Closing the client unregisters it.
	conn.Close()
	testutil.WaitUntil(t, time.Second, func() bool { return hub.ClientCount() == 0 }, "client not unregistered")
}

func TestNotifyServer_Healthz(t *testing.T) {
	hub := newTestHub(t, 1, 1)
	srv := httptest.NewServer(newNotifyMux(hub, "/ws"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestRunHTTPServer_ListenFailure(t *testing.T) {
	err := runHTTPServer(context.Background(), "256.0.0.1:bad", http.NotFoundHandler(), testutil.Discard())
	if err == nil {
		t.Fatalf("expected listen error")
	}
}
