// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BitManipulators/wildlife-chat/internal/hub"
	"github.com/BitManipulators/wildlife-chat/internal/model"
	"github.com/BitManipulators/wildlife-chat/internal/store"
)

type fakeBot struct {
	textReply  string
	textErr    error
	textCalls  int
	lastQuery  string
	lastHist   []model.Message
	imageCalls int
}

func (f *fakeBot) AnswerText(ctx context.Context, userMessage string, history []model.Message) (string, error) {
	f.textCalls++
	f.lastQuery = userMessage
	f.lastHist = history
	return f.textReply, f.textErr
}

func (f *fakeBot) AnswerImage(ctx context.Context, imageBytes []byte, mimeType, userMessage string, history []model.Message) (string, error) {
	f.imageCalls++
	return f.textReply, f.textErr
}

type fakeImageStore struct{}

func (fakeImageStore) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "stored://image", nil
}

func (fakeImageStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	return []byte("bytes"), "image/jpeg", nil
}

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func dialClient(t *testing.T, h *hub.Hub, userID string) (*websocket.Conn, func()) {
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
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return got
}

func setup(t *testing.T, bot Bot) (*Handler, *hub.Hub, store.Store) {
	t.Helper()
	h := hub.New(30 * time.Second)
	t.Cleanup(h.Stop)
	st := store.NewMemoryStore()
	handler := New(st, h, bot, fakeImageStore{})
	return handler, h, st
}

func TestSendMessage_NonMemberRejectedWithErrorNoBroadcast(t *testing.T) {
	handler, h, st := setup(t, &fakeBot{})
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", Kind: model.ConversationGroup, Participants: []string{"a", "b"}}
	if err := st.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	xConn, xCleanup := dialClient(t, h, "x")
	defer xCleanup()

	handler.Handle(ctx, "x", InFrame{Type: "send_message", ConversationID: "c1", Text: "hello", UserName: "X"})

	got := readFrame(t, xConn)
	if got["type"] != "error" {
		t.Fatalf("expected error frame for non-member, got %+v", got)
	}

	msgs, err := st.GetMessages(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no message persisted, got %d", len(msgs))
	}
}

func TestSendMessage_BotFanOutOrdering(t *testing.T) {
	bot := &fakeBot{textReply: "bots reply"}
	handler, h, st := setup(t, bot)
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", Kind: model.ConversationGroup, Participants: []string{"a", "b"}, HasBot: true}
	if err := st.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	aConn, aCleanup := dialClient(t, h, "a")
	defer aCleanup()
	bConn, bCleanup := dialClient(t, h, "b")
	defer bCleanup()

	handler.Handle(ctx, "a", InFrame{Type: "send_message", ConversationID: "c1", Text: "hello", UserName: "A", ClientMessageID: "cm1"})

	// b first receives the human's new_message ...
	bFirst := readFrame(t, bConn)
	if bFirst["type"] != "new_message" {
		t.Fatalf("expected new_message to b, got %+v", bFirst)
	}

	// ... a receives its ack before the bot's reply (scenario S3).
	aFirst := readFrame(t, aConn)
	if aFirst["type"] != "message_sent" {
		t.Fatalf("expected message_sent ack to a first, got %+v", aFirst)
	}
	if aFirst["clientMessageId"] != "cm1" {
		t.Errorf("expected echoed clientMessageId, got %+v", aFirst)
	}

	aSecond := readFrame(t, aConn)
	bSecond := readFrame(t, bConn)
	if aSecond["type"] != "new_message" || bSecond["type"] != "new_message" {
		t.Fatalf("expected bot reply fanned out to both, got a=%+v b=%+v", aSecond, bSecond)
	}

	if bot.textCalls != 1 || bot.lastQuery != "hello" {
		t.Errorf("expected bot invoked once with %q, got calls=%d query=%q", "hello", bot.textCalls, bot.lastQuery)
	}
}

func TestSendMessage_InlineBotCommandEnablesBotAndFeedsQuery(t *testing.T) {
	bot := &fakeBot{textReply: "yes, with caution"}
	handler, h, st := setup(t, bot)
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", Kind: model.ConversationGroup, Participants: []string{"a", "b"}, HasBot: false}
	if err := st.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	aConn, aCleanup := dialClient(t, h, "a")
	defer aCleanup()
	bConn, bCleanup := dialClient(t, h, "b")
	defer bCleanup()

	handler.Handle(ctx, "a", InFrame{Type: "send_message", ConversationID: "c1", Text: "/bot is dandelion edible?", UserName: "A"})

	// Both participants see the bot_added transition frame.
	aAdded := readFrame(t, aConn)
	if aAdded["type"] != "bot_added" {
		t.Fatalf("expected bot_added to a, got %+v", aAdded)
	}
	bAdded := readFrame(t, bConn)
	if bAdded["type"] != "bot_added" {
		t.Fatalf("expected bot_added to b, got %+v", bAdded)
	}

	got, err := st.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if !got.HasBot {
		t.Errorf("expected has_bot true after /bot <query>")
	}

	if bot.lastQuery != "is dandelion edible?" {
		t.Errorf("expected stripped query fed to bot, got %q", bot.lastQuery)
	}

	msgs, err := st.GetMessages(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var sawQuery bool
	for _, m := range msgs {
		if m.Text == "is dandelion edible?" {
			sawQuery = true
		}
	}
	if !sawQuery {
		t.Errorf("expected the stripped query to be persisted, got %+v", msgs)
	}
}

func TestSendMessage_BotAloneDoesNotPersistAMessage(t *testing.T) {
	handler, h, st := setup(t, &fakeBot{})
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", Kind: model.ConversationGroup, Participants: []string{"a"}, HasBot: false}
	if err := st.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	aConn, aCleanup := dialClient(t, h, "a")
	defer aCleanup()

	handler.Handle(ctx, "a", InFrame{Type: "send_message", ConversationID: "c1", Text: "/bot", UserName: "A"})

	got := readFrame(t, aConn)
	if got["type"] != "bot_added" {
		t.Fatalf("expected bot_added, got %+v", got)
	}

	msgs, err := st.GetMessages(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no message persisted for bare /bot, got %d", len(msgs))
	}
}

func TestSendMessage_ChatCommandDisablesBot(t *testing.T) {
	handler, h, st := setup(t, &fakeBot{})
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", Kind: model.ConversationGroup, Participants: []string{"a"}, HasBot: true}
	if err := st.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	aConn, aCleanup := dialClient(t, h, "a")
	defer aCleanup()

	handler.Handle(ctx, "a", InFrame{Type: "send_message", ConversationID: "c1", Text: "/chat", UserName: "A"})

	got := readFrame(t, aConn)
	if got["type"] != "bot_removed" {
		t.Fatalf("expected bot_removed, got %+v", got)
	}

	after, err := st.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if after.HasBot {
		t.Errorf("expected has_bot false after /chat")
	}
}

func TestJoinConversation_RepliesWithHistoryNewestLast(t *testing.T) {
	handler, h, st := setup(t, &fakeBot{})
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", Kind: model.ConversationGroup, Participants: []string{"a"}}
	if err := st.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	for i := 0; i < 3; i++ {
		m := &model.Message{ID: "m" + string(rune('0'+i)), ConversationID: "c1", AuthorID: "a", Kind: model.MessageText, Text: "t" + string(rune('0'+i))}
		if err := st.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	aConn, aCleanup := dialClient(t, h, "a")
	defer aCleanup()

	handler.Handle(ctx, "a", InFrame{Type: "join_conversation", ConversationID: "c1"})

	got := readFrame(t, aConn)
	if got["type"] != "conversation_history" {
		t.Fatalf("expected conversation_history, got %+v", got)
	}
	msgs, ok := got["messages"].([]any)
	if !ok || len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %+v", got["messages"])
	}
	newest, _ := msgs[2].(map[string]any)
	if newest["Text"] != "t2" {
		t.Errorf("expected newest message t2 last, got %+v", msgs)
	}
}

func TestGetAllGroups_ReturnsGroupsAndOwnDirects(t *testing.T) {
	handler, h, st := setup(t, &fakeBot{})
	ctx := context.Background()

	group := &model.Conversation{ID: "g1", Kind: model.ConversationGroup, Participants: []string{"a", "b"}}
	directMine := &model.Conversation{ID: "d1", Kind: model.ConversationDirect, Participants: []string{"a", "z"}}
	directOther := &model.Conversation{ID: "d2", Kind: model.ConversationDirect, Participants: []string{"y", "z"}}
	for _, c := range []*model.Conversation{group, directMine, directOther} {
		if err := st.SaveConversation(ctx, c); err != nil {
			t.Fatalf("SaveConversation: %v", err)
		}
	}

	aConn, aCleanup := dialClient(t, h, "a")
	defer aCleanup()

	handler.Handle(ctx, "a", InFrame{Type: "get_all_groups"})

	got := readFrame(t, aConn)
	if got["type"] != "all_groups" {
		t.Fatalf("expected all_groups, got %+v", got)
	}
	convs, ok := got["conversations"].([]any)
	if !ok || len(convs) != 2 {
		t.Fatalf("expected 2 conversations (g1, d1), got %+v", got["conversations"])
	}
}
