// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package store implements the Conversation Store (C8): a duck-typed
// interface with a durable SQLite backend and an in-memory alternative.
package store

import (
	"context"
	"errors"

	"github.com/BitManipulators/wildlife-chat/internal/model"
)

// ErrNotFound is returned by Get operations when the id is unknown.
var ErrNotFound = errors.New("store: not found")

// ConversationDelta is a partial update applied by UpdateConversation.
// Nil fields are left unchanged.
type ConversationDelta struct {
	Name   *string
	HasBot *bool
}

// Store is the duck-typed contract of spec.md §4.8/§9 — express as an
// interface with two implementations (durable, in-memory), never as
// runtime branches.
type Store interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	SaveConversation(ctx context.Context, c *model.Conversation) error
	UpdateConversation(ctx context.Context, id string, delta ConversationDelta) error

	SaveMessage(ctx context.Context, m *model.Message) error
	// GetMessages returns up to limit messages ordered by created_at
	// descending; callers reverse for chronological needs.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	// FindDirectByParticipants returns the direct conversation whose
	// participant set exactly matches participants (order-independent), or
	// ErrNotFound.
	FindDirectByParticipants(ctx context.Context, participants []string) (*model.Conversation, error)

	// ListGroupsAndDirectsFor returns every group conversation plus every
	// direct conversation userID participates in, for get_all_groups.
	ListGroupsAndDirectsFor(ctx context.Context, userID string) ([]model.Conversation, error)

	// GetOrCreateDirect resolves the existing direct conversation for
	// participants, or creates one. Implementations MUST serialize this
	// against concurrent callers with the same participant set (spec.md §9
	// open question: this module resolves it via a single mutex).
	GetOrCreateDirect(ctx context.Context, participants []string, newID func() string) (*model.Conversation, error)
}

func normalizeParticipantKey(participants []string) string {
	sorted := append([]string(nil), participants...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	key := ""
	for _, p := range sorted {
		key += p + "\x00"
	}
	return key
}
