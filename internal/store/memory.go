// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BitManipulators/wildlife-chat/internal/model"
)

// MemoryStore is the in-memory Store alternative named in spec.md §9 —
// process-wide mutable state behind a single rw-lock, not scattered
// mutations.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]model.Conversation
	messages      map[string][]model.Message // conversationID -> messages in insertion order
	directByKey   map[string]string          // normalized participant key -> conversation id

	// directMu serializes GetOrCreateDirect end-to-end, per spec.md §9's
	// open question on concurrent direct-conversation creation.
	directMu sync.Mutex
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string][]model.Message),
		directByKey:   make(map[string]string),
	}
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) SaveConversation(ctx context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = *c
	if c.Kind == model.ConversationDirect {
		s.directByKey[normalizeParticipantKey(c.Participants)] = c.ID
	}
	return nil
}

func (s *MemoryStore) UpdateConversation(ctx context.Context, id string, delta ConversationDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	if delta.Name != nil {
		c.Name = *delta.Name
	}
	if delta.HasBot != nil {
		c.HasBot = *delta.HasBot
	}
	s.conversations[id] = c
	return nil
}

func (s *MemoryStore) SaveMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := *m
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], msg)
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	ordered := make([]model.Message, len(all))
	copy(ordered, all)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func (s *MemoryStore) FindDirectByParticipants(ctx context.Context, participants []string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.directByKey[normalizeParticipantKey(participants)]
	if !ok {
		return nil, ErrNotFound
	}
	c := s.conversations[id]
	return &c, nil
}

func (s *MemoryStore) ListGroupsAndDirectsFor(ctx context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Conversation
	for _, c := range s.conversations {
		if c.Kind == model.ConversationGroup || c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetOrCreateDirect(ctx context.Context, participants []string, newID func() string) (*model.Conversation, error) {
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
