// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BitManipulators/wildlife-chat/internal/model"
)

// SQLiteStore is the durable Store backend, grounded on
// niski84-the-hive/internal/database/events.go's schema-init-on-construct
// idiom (CREATE TABLE IF NOT EXISTS + indexes, run once in NewSQLiteStore).
type SQLiteStore struct {
	db *sql.DB

	// directMu serializes GetOrCreateDirect end-to-end, mirroring
	// MemoryStore's resolution of spec.md §9's open question.
	directMu sync.Mutex
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		name TEXT,
		kind TEXT NOT NULL,
		participants TEXT NOT NULL,
		participant_key TEXT,
		has_bot INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_direct_key
		ON conversations(participant_key) WHERE kind = 'direct';

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		text TEXT,
		image_ref TEXT,
		is_bot INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		client_message_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
		ON messages(conversation_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func marshalParticipants(p []string) string {
	b, _ := json.Marshal(p)
	return string(b)
}

func unmarshalParticipants(s string) []string {
	var p []string
	json.Unmarshal([]byte(s), &p)
	return p
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, participants, has_bot, created_at FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*model.Conversation, error) {
	var (
		c            model.Conversation
		name         sql.NullString
		kind         string
		participants string
		hasBot       int
		createdAt    time.Time
	)
	if err := row.Scan(&c.ID, &name, &kind, &participants, &hasBot, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Name = name.String
	c.Kind = model.ConversationKind(kind)
	c.Participants = unmarshalParticipants(participants)
	c.HasBot = hasBot != 0
	c.CreatedAt = createdAt
	return &c, nil
}

func (s *SQLiteStore) SaveConversation(ctx context.Context, c *model.Conversation) error {
	var participantKey *string
	if c.Kind == model.ConversationDirect {
		k := normalizeParticipantKey(c.Participants)
		participantKey = &k
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, name, kind, participants, participant_key, has_bot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			participants = excluded.participants,
			participant_key = excluded.participant_key,
			has_bot = excluded.has_bot`,
		c.ID, c.Name, string(c.Kind), marshalParticipants(c.Participants), participantKey, boolToInt(c.HasBot), createdAt)
	return err
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, delta ConversationDelta) error {
	var sets []string
	var args []any
	if delta.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *delta.Name)
	}
	if delta.HasBot != nil {
		sets = append(sets, "has_bot = ?")
		args = append(args, boolToInt(*delta.HasBot))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE conversations SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, m *model.Message) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, author_id, author_name, kind, text, image_ref, is_bot, created_at, client_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.AuthorID, m.AuthorName, string(m.Kind), m.Text, m.ImageRef, boolToInt(m.IsBot), createdAt, m.ClientMessageID)
	return err
}

func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, author_id, author_name, kind, text, image_ref, is_bot, created_at, client_message_id
		FROM messages WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m         model.Message
			kind      string
			isBot     int
			createdAt time.Time
			imageRef  sql.NullString
			clientID  sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AuthorID, &m.AuthorName, &kind, &m.Text, &imageRef, &isBot, &createdAt, &clientID); err != nil {
			return nil, err
		}
		m.Kind = model.MessageKind(kind)
		m.ImageRef = imageRef.String
		m.IsBot = isBot != 0
		m.CreatedAt = createdAt
		m.ClientMessageID = clientID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindDirectByParticipants(ctx context.Context, participants []string) (*model.Conversation, error) {
	key := normalizeParticipantKey(participants)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, participants, has_bot, created_at FROM conversations WHERE participant_key = ?`, key)
	return scanConversation(row)
}

func (s *SQLiteStore) ListGroupsAndDirectsFor(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, participants, has_bot, created_at FROM conversations WHERE kind = 'group'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	directRows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, participants, has_bot, created_at FROM conversations WHERE kind = 'direct'`)
	if err != nil {
		return nil, err
	}
	defer directRows.Close()
	for directRows.Next() {
		c, err := scanConversationRows(directRows)
		if err != nil {
			return nil, err
		}
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	return out, directRows.Err()
}

func scanConversationRows(rows *sql.Rows) (*model.Conversation, error) {
	var (
		c            model.Conversation
		name         sql.NullString
		kind         string
		participants string
		hasBot       int
		createdAt    time.Time
	)
	if err := rows.Scan(&c.ID, &name, &kind, &participants, &hasBot, &createdAt); err != nil {
		return nil, err
	}
	c.Name = name.String
	c.Kind = model.ConversationKind(kind)
	c.Participants = unmarshalParticipants(participants)
	c.HasBot = hasBot != 0
	c.CreatedAt = createdAt
	return &c, nil
}

func (s *SQLiteStore) GetOrCreateDirect(ctx context.Context, participants []string, newID func() string) (*model.Conversation, error) {
	s.directMu.Lock()
	defer s.directMu.Unlock()

	if existing, err := s.FindDirectByParticipants(ctx, participants); err == nil {
		return existing, nil
	}

	c := &model.Conversation{
		ID:           newID(),
		Kind:         model.ConversationDirect,
		Participants: participants,
		CreatedAt:    time.Now(),
	}
	if err := s.SaveConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
