// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package transport wires the Connection Hub (C9) and Session Protocol
// Handler (C10) to an HTTP listener. Grounded on
// niski84-the-hive/internal/server/websocket_handler.go's HandleWebSocket
// (client-map registration, upgrade, read loop) and on
// original_source/backend/main.py's websocket_endpoint, which keys a
// connection by the {user_id} path segment rather than a client_id query
// parameter.
package transport

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BitManipulators/wildlife-chat/internal/hub"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades a connection, registers it with the Hub, and
// dispatches every inbound frame to the Session Protocol Handler until the
// connection closes.
type WebSocketHandler struct {
	hub     *hub.Hub
	session *session.Handler
}

// NewWebSocketHandler builds a WebSocketHandler over the given Hub and
// Session Protocol Handler.
func NewWebSocketHandler(h *hub.Hub, s *session.Handler) *WebSocketHandler {
	return &WebSocketHandler{hub: h, session: s}
}

// ServeHTTP expects the user id as the final path segment, e.g. /ws/{userID}.
func (wh *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Printf("transport: upgrade failed for %s: %v", userID, err)
		return
	}
	defer conn.Close()

	wh.hub.Connect(userID, conn)
	defer wh.hub.Disconnect(userID, conn)

	logger.Printf("transport: %s connected", userID)
	defer logger.Printf("transport: %s disconnected", userID)

	conn.SetPongHandler(func(string) error {
		wh.hub.NotePong(userID)
		return nil
	})

	ctx := r.Context()
	for {
		var frame session.InFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("transport: read error for %s: %v", userID, err)
			}
			return
		}
		wh.session.Handle(ctx, userID, frame)
	}
}
