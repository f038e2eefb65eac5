// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package hub implements the Connection Hub (C9): WebSocket sessions keyed
// by user ID, personal send, conversation broadcast, and the keepalive
// heartbeat. Grounded on
// niski84-the-hive/internal/server/websocket_handler.go's WebSocketManager
// (client map + RWMutex + ping ticker), generalized from transport-level
// ping/pong to the JSON-framed ping/pong/pong_ack protocol spec.md §6/§4.9
// require.
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

type client struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	lastPongAt time.Time
}

// Hub tracks live WebSocket sessions keyed by user ID. Latest connection
// wins: a new connection for the same user ID replaces and closes the
// previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	pingInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

// New builds a Hub whose heartbeat fires every pingInterval (default 30s
// when zero, per spec.md §6's PING_INTERVAL_SECONDS default).
func New(pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	h := &Hub{
		clients:      make(map[string]*client),
		pingInterval: pingInterval,
		stop:         make(chan struct{}),
	}
	go h.heartbeatLoop()
	return h
}

// Connect registers conn under userID, closing any previous connection for
// that user.
func (h *Hub) Connect(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	old, existed := h.clients[userID]
	h.clients[userID] = &client{conn: conn, lastPongAt: time.Now()}
	h.mu.Unlock()

	if existed {
		logger.Printf("hub: replacing existing connection for user=%s", userID)
		old.conn.Close()
	}
	logger.Printf("hub: user=%s connected", userID)
}

// Disconnect removes userID's entry if conn is still the registered
// connection (a superseded connection's own disconnect must not evict the
// connection that replaced it).
func (h *Hub) Disconnect(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[userID]
	if ok && c.conn == conn {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
	logger.Printf("hub: user=%s disconnected", userID)
}

// Send is a best-effort personal send: on write error it logs and drops
// rather than forcing a disconnect (spec.md §4.9).
func (h *Hub) Send(userID string, frame any) {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		logger.Printf("hub: send to user=%s failed: %v", userID, err)
	}
}

// Broadcast sends frame to every participant except exclude, skipping
// anyone not currently connected.
func (h *Hub) Broadcast(participants []string, frame any, exclude string) {
	for _, userID := range participants {
		if userID == exclude {
			continue
		}
		h.Send(userID, frame)
	}
}

// Connected reports whether userID currently has a live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// NotePong records that userID's connection answered a ping (or
// self-initiated one), resetting its liveness deadline.
func (h *Hub) NotePong(userID string) {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if ok {
		h.mu.Lock()
		c.lastPongAt = time.Now()
		h.mu.Unlock()
	}
}

// Stop halts the heartbeat loop and closes every tracked connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, c := range h.clients {
		c.conn.Close()
		delete(h.clients, userID)
	}
}

// heartbeatLoop sends a ping frame to every client every pingInterval and
// closes any connection that hasn't answered within 2*pingInterval
// (spec.md §4.9 / scenario S8).
func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Hub) tick() {
	deadline := 2 * h.pingInterval

	h.mu.Lock()
	var stale []string
	for userID, c := range h.clients {
		if time.Since(c.lastPongAt) > deadline {
			stale = append(stale, userID)
		}
	}
	for _, userID := range stale {
		h.clients[userID].conn.Close()
		delete(h.clients, userID)
		logger.Printf("hub: user=%s closed after missed heartbeat", userID)
	}
	live := make(map[string]*client, len(h.clients))
	for k, v := range h.clients {
		live[k] = v
	}
	h.mu.Unlock()

	for userID := range live {
		h.Send(userID, map[string]any{"type": "ping", "timestamp": time.Now().UTC()})
	}
}
