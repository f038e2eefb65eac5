// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package session

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"

	"github.com/BitManipulators/wildlife-chat/internal/apperr"
	"github.com/BitManipulators/wildlife-chat/internal/hub"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/model"
	"github.com/BitManipulators/wildlife-chat/internal/store"
)

// historyLimit bounds how much history is handed to the bot per
// send_message/send_image turn (spec.md §4.10).
const historyLimit = 10

// recentMessagesLimit bounds the conversation_history frame sent on join
// (spec.md §4.10).
const recentMessagesLimit = 50

// Bot is the narrow interface Handler needs from the RAG Orchestrator (C7).
type Bot interface {
	AnswerText(ctx context.Context, userMessage string, history []model.Message) (string, error)
	AnswerImage(ctx context.Context, imageBytes []byte, mimeType, userMessage string, history []model.Message) (string, error)
}

// ImageStore persists inline-uploaded image bytes and resolves a reference
// back to bytes for the bot's vision path. An already-hosted imageUrl is
// stored as its own reference and is fetched back only if the store knows
// how to serve it; external URLs the store can't resolve simply skip the
// bot's vision call for that message (spec.md §4.10's send_image is silent
// on this, so this module resolves it the way §9 resolves other open
// questions: log and degrade rather than fail the turn).
type ImageStore interface {
	Store(ctx context.Context, data []byte, mimeType string) (ref string, err error)
	Get(ctx context.Context, ref string) (data []byte, mimeType string, err error)
}

// Handler dispatches inbound frames for one logical connection. It holds no
// per-connection state itself; userID is passed on every call so a single
// Handler can serve every connection the Hub tracks.
type Handler struct {
	store  store.Store
	hub    *hub.Hub
	bot    Bot
	images ImageStore
	newID  func() string
}

// New builds a Handler wired to st, h, bot and images.
func New(st store.Store, h *hub.Hub, bot Bot, images ImageStore) *Handler {
	return &Handler{
		store:  st,
		hub:    h,
		bot:    bot,
		images: images,
		newID:  func() string { return uuid.NewString() },
	}
}

// Handle dispatches one inbound frame from userID.
func (h *Handler) Handle(ctx context.Context, userID string, frame InFrame) {
	switch frame.Type {
	case "send_message":
		h.handleSendMessage(ctx, userID, frame)
	case "send_image":
		h.handleSendImage(ctx, userID, frame)
	case "join_conversation":
		h.handleJoinConversation(ctx, userID, frame)
	case "get_all_groups":
		h.handleGetAllGroups(ctx, userID)
	case "ping":
		h.hub.NotePong(userID)
		h.hub.Send(userID, OutFrame{Type: "pong", Timestamp: nowISO()})
	case "pong":
		h.hub.NotePong(userID)
		h.hub.Send(userID, OutFrame{Type: "pong_ack", Timestamp: nowISO()})
	default:
		h.sendError(userID, "unknown frame type: "+frame.Type)
	}
}

func (h *Handler) sendError(userID, msg string) {
	h.hub.Send(userID, OutFrame{Type: "error", Message: msg})
}

// resolveMembership fetches the conversation and confirms userID belongs to
// it, emitting the corresponding error frame and returning ok=false
// otherwise. It never disconnects the caller (spec.md's EForbidden/ENotFound
// policy: WebSocket error frame, connection stays open).
func (h *Handler) resolveMembership(ctx context.Context, userID, conversationID string) (*model.Conversation, bool) {
	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if err == store.ErrNotFound {
			h.sendError(userID, "conversation not found")
		} else {
			logger.Printf("session: get conversation %s failed: %v", conversationID, err)
			h.sendError(userID, "internal error")
		}
		return nil, false
	}
	if !conv.HasParticipant(userID) {
		h.sendError(userID, "you are not a participant in this conversation")
		return nil, false
	}
	return conv, true
}

func (h *Handler) handleSendMessage(ctx context.Context, userID string, frame InFrame) {
	if frame.ConversationID == "" || strings.TrimSpace(frame.Text) == "" {
		h.sendError(userID, "text and conversationId are required")
		return
	}

	conv, ok := h.resolveMembership(ctx, userID, frame.ConversationID)
	if !ok {
		return
	}

	text, handled := h.applyCommand(ctx, userID, conv, frame.Text)
	if handled {
		return
	}

	msg := &model.Message{
		ID:              h.newID(),
		ConversationID:  conv.ID,
		AuthorID:        userID,
		AuthorName:      frame.UserName,
		Kind:            model.MessageText,
		Text:            text,
		ClientMessageID: frame.ClientMessageID,
	}
	h.persistAndFanOut(ctx, conv, msg, frame.ClientMessageID)

	if conv.HasBot {
		h.invokeBotText(ctx, conv, text)
	}
}

// applyCommand interprets /bot and /chat prefixes per spec.md §4.10.
// Returns the text to persist (possibly the original, unmodified) and
// whether the caller already fully handled the frame (command-only turns
// stop here; "/bot <query>" falls through with handled=false).
func (h *Handler) applyCommand(ctx context.Context, userID string, conv *model.Conversation, text string) (string, bool) {
	trimmed := strings.TrimSpace(text)

	switch {
	case trimmed == "/bot":
		h.setHasBot(ctx, userID, conv, true)
		return "", true

	case strings.HasPrefix(trimmed, "/bot "):
		query := strings.TrimSpace(trimmed[len("/bot "):])
		h.setHasBot(ctx, userID, conv, true)
		return query, false

	case trimmed == "/chat":
		h.setHasBot(ctx, userID, conv, false)
		return "", true

	default:
		return text, false
	}
}

// setHasBot transitions conv.HasBot to want, broadcasting bot_added/
// bot_removed only when the value actually changes (universal invariant 7:
// the transition is idempotent, the broadcast is not repeated on no-ops).
func (h *Handler) setHasBot(ctx context.Context, userID string, conv *model.Conversation, want bool) {
	if conv.HasBot == want {
		return
	}
	if err := h.store.UpdateConversation(ctx, conv.ID, store.ConversationDelta{HasBot: &want}); err != nil {
		logger.Printf("session: update has_bot on %s failed: %v", conv.ID, err)
		h.sendError(userID, "internal error")
		return
	}
	conv.HasBot = want

	frameType := "bot_removed"
	text := "the bot has left the conversation"
	if want {
		frameType = "bot_added"
		text = "the bot has joined the conversation"
	}
	out := OutFrame{Type: frameType, ConversationID: conv.ID, Message: text, Timestamp: nowISO()}
	for _, p := range conv.Participants {
		h.hub.Send(p, out)
	}
}

// persistAndFanOut saves msg, broadcasts new_message to every other
// participant, then acks the sender with message_sent (scenario S3: the ack
// always precedes any subsequent bot reply, since the bot call only begins
// after this returns).
func (h *Handler) persistAndFanOut(ctx context.Context, conv *model.Conversation, msg *model.Message, clientMessageID string) {
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		logger.Printf("session: save message on %s failed: %v", conv.ID, err)
		h.sendError(msg.AuthorID, "internal error")
		return
	}

	h.hub.Broadcast(conv.Participants, OutFrame{Type: "new_message", ConversationID: conv.ID, Message: msg}, msg.AuthorID)
	h.hub.Send(msg.AuthorID, OutFrame{Type: "message_sent", ConversationID: conv.ID, Message: msg, ClientMessageID: clientMessageID})
}

// invokeBotText fetches recent history, calls the bot, and fans out its
// reply the same way a user message would be.
func (h *Handler) invokeBotText(ctx context.Context, conv *model.Conversation, query string) {
	history := h.recentHistory(ctx, conv.ID)

	reply, err := h.bot.AnswerText(ctx, query, history)
	if err != nil {
		logger.Printf("session: bot answer_text on %s failed: %v", conv.ID, err)
		return
	}

	h.broadcastBotReply(ctx, conv, reply)
}

func (h *Handler) broadcastBotReply(ctx context.Context, conv *model.Conversation, reply string) {
	botMsg := &model.Message{
		ID:             h.newID(),
		ConversationID: conv.ID,
		AuthorID:       model.BotUserID,
		AuthorName:     model.BotDisplayName,
		Kind:           model.MessageText,
		Text:           reply,
		IsBot:          true,
	}
	if err := h.store.SaveMessage(ctx, botMsg); err != nil {
		logger.Printf("session: save bot message on %s failed: %v", conv.ID, err)
		return
	}
	h.hub.Broadcast(conv.Participants, OutFrame{Type: "new_message", ConversationID: conv.ID, Message: botMsg}, "")
}

// recentHistory returns up to historyLimit messages in chronological order
// (GetMessages returns newest-first; callers needing chronological order
// reverse it, per store.Store's documented contract).
func (h *Handler) recentHistory(ctx context.Context, conversationID string) []model.Message {
	msgs, err := h.store.GetMessages(ctx, conversationID, historyLimit)
	if err != nil {
		logger.Printf("session: get messages on %s failed: %v", conversationID, err)
		return nil
	}
	reverse(msgs)
	return msgs
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func (h *Handler) handleSendImage(ctx context.Context, userID string, frame InFrame) {
	if frame.ConversationID == "" || (frame.ImageURL == "" && frame.ImageBase64 == "") {
		h.sendError(userID, "conversationId and an image are required")
		return
	}

	conv, ok := h.resolveMembership(ctx, userID, frame.ConversationID)
	if !ok {
		return
	}

	ref, bytesForBot, mimeForBot, err := h.resolveImage(ctx, frame)
	if err != nil {
		logger.Printf("session: resolve image on %s failed: %v", conv.ID, err)
		h.sendError(userID, "could not process image")
		return
	}

	msg := &model.Message{
		ID:              h.newID(),
		ConversationID:  conv.ID,
		AuthorID:        userID,
		AuthorName:      frame.UserName,
		Kind:            model.MessageImage,
		Text:            frame.Text,
		ImageRef:        ref,
		ClientMessageID: frame.ClientMessageID,
	}
	h.persistAndFanOut(ctx, conv, msg, frame.ClientMessageID)

	if conv.HasBot && bytesForBot != nil {
		h.invokeBotImage(ctx, conv, bytesForBot, mimeForBot, frame.Text)
	}
}

// resolveImage stores inline base64 uploads and returns both the
// persistable reference and the raw bytes the bot needs. For an
// already-hosted imageUrl it returns the URL as the reference and attempts
// Get only so the bot can see the image too; a Get failure is not an error
// for the turn itself, it only means the bot skips this image.
func (h *Handler) resolveImage(ctx context.Context, frame InFrame) (ref string, data []byte, mimeType string, err error) {
	if frame.ImageBase64 != "" {
		decoded, decodeErr := base64.StdEncoding.DecodeString(frame.ImageBase64)
		if decodeErr != nil {
			return "", nil, "", apperr.Wrap(apperr.EInvalidInput, "invalid base64 image data", decodeErr)
		}
		storedRef, storeErr := h.images.Store(ctx, decoded, frame.ImageMimeType)
		if storeErr != nil {
			return "", nil, "", apperr.Wrap(apperr.EUpstream, "image store failed", storeErr)
		}
		return storedRef, decoded, frame.ImageMimeType, nil
	}

	data, mimeType, getErr := h.images.Get(ctx, frame.ImageURL)
	if getErr != nil {
		logger.Printf("session: could not fetch imageUrl %q for bot vision: %v", frame.ImageURL, getErr)
		return frame.ImageURL, nil, "", nil
	}
	return frame.ImageURL, data, mimeType, nil
}

func (h *Handler) invokeBotImage(ctx context.Context, conv *model.Conversation, imageBytes []byte, mimeType, userMessage string) {
	history := h.recentHistory(ctx, conv.ID)

	reply, err := h.bot.AnswerImage(ctx, imageBytes, mimeType, userMessage, history)
	if err != nil {
		logger.Printf("session: bot answer_image on %s failed: %v", conv.ID, err)
		return
	}
	h.broadcastBotReply(ctx, conv, reply)
}

func (h *Handler) handleJoinConversation(ctx context.Context, userID string, frame InFrame) {
	if frame.ConversationID == "" {
		h.sendError(userID, "conversationId is required")
		return
	}
	_, ok := h.resolveMembership(ctx, userID, frame.ConversationID)
	if !ok {
		return
	}

	msgs, err := h.store.GetMessages(ctx, frame.ConversationID, recentMessagesLimit)
	if err != nil {
		logger.Printf("session: get messages on %s failed: %v", frame.ConversationID, err)
		h.sendError(userID, "internal error")
		return
	}
	reverse(msgs)

	h.hub.Send(userID, OutFrame{Type: "conversation_history", ConversationID: frame.ConversationID, Messages: msgs})
}

func (h *Handler) handleGetAllGroups(ctx context.Context, userID string) {
	convs, err := h.store.ListGroupsAndDirectsFor(ctx, userID)
	if err != nil {
		logger.Printf("session: list groups for %s failed: %v", userID, err)
		h.sendError(userID, "internal error")
		return
	}
	h.hub.Send(userID, OutFrame{Type: "all_groups", Conversations: convs})
}
