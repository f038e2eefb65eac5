// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// dialClient spins up an httptest server that registers the accepted
// connection under userID in h, and returns a client-side websocket.Conn.
func dialClient(t *testing.T, h *Hub, userID string) (*websocket.Conn, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		h.Connect(userID, conn)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// give the server goroutine a moment to register the connection
	time.Sleep(20 * time.Millisecond)

	return clientConn, func() {
		clientConn.Close()
		server.Close()
	}
}

func TestHub_ConnectThenSendDeliversFrame(t *testing.T) {
	h := New(30 * time.Second)
	defer h.Stop()

	clientConn, cleanup := dialClient(t, h, "u1")
	defer cleanup()

	h.Send("u1", map[string]string{"type": "new_message", "text": "hello"})

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := clientConn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got["type"] != "new_message" || got["text"] != "hello" {
		t.Errorf("unexpected frame: %+v", got)
	}
}

func TestHub_SendToUnknownUserIsANoop(t *testing.T) {
	h := New(30 * time.Second)
	defer h.Stop()

	// Must not panic or block.
	h.Send("ghost", map[string]string{"type": "ping"})
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	h := New(30 * time.Second)
	defer h.Stop()

	aConn, aCleanup := dialClient(t, h, "a")
	defer aCleanup()
	bConn, bCleanup := dialClient(t, h, "b")
	defer bCleanup()

	h.Broadcast([]string{"a", "b"}, map[string]string{"type": "new_message", "from": "a"}, "a")

	bConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := bConn.ReadJSON(&got); err != nil {
		t.Fatalf("expected b to receive broadcast: %v", err)
	}
	if got["from"] != "a" {
		t.Errorf("unexpected frame at b: %+v", got)
	}

	aConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var aGot map[string]string
	if err := aConn.ReadJSON(&aGot); err == nil {
		t.Errorf("expected excluded sender a to receive nothing, got: %+v", aGot)
	}
}

func TestHub_LatestConnectionWinsAndClosesPrevious(t *testing.T) {
	h := New(30 * time.Second)
	defer h.Stop()

	firstConn, firstCleanup := dialClient(t, h, "u1")
	defer firstCleanup()

	secondConn, secondCleanup := dialClient(t, h, "u1")
	defer secondCleanup()

	firstConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := firstConn.ReadMessage()
	if err == nil {
		t.Errorf("expected first connection to be closed once superseded")
	}

	h.Send("u1", map[string]string{"type": "ping"})
	secondConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := secondConn.ReadMessage(); err != nil {
		t.Errorf("expected second connection to remain live: %v", err)
	}
}

func TestHub_HeartbeatClosesConnectionAfterMissedPongs(t *testing.T) {
	h := New(30 * time.Millisecond)
	defer h.Stop()

	clientConn, cleanup := dialClient(t, h, "u1")
	defer cleanup()

	// Never reply with a pong; after 2x the ping interval the hub should
	// close the connection (scenario S8).
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if !h.Connected("u1") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("expected hub to evict u1 after missed heartbeat within 1s")
}
