// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package model

import (
	"strconv"
	"time"
)

// Domain distinguishes the two knowledge base indices.
type Domain string

const (
	DomainPlant  Domain = "plant"
	DomainAnimal Domain = "animal"
)

// ConversationKind is either a two-party direct chat or a multi-party group.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// MessageKind distinguishes plain text from image messages.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
)

// BotUserID is the sentinel author id used for AI-generated messages.
const BotUserID = "bot"

// BotDisplayName is the author_name attached to bot messages.
const BotDisplayName = "AI Bot"

// User is an opaque identity record. The core never mutates it; auth owns
// creation and updates.
type User struct {
	ID                 string
	DisplayName        string
	Email              string
	ExternalProviderID string
	Avatar             string
	CreatedAt          time.Time
	LastLoginAt        time.Time
}

// Conversation is either a direct (2-party) or group (1+ party) chat room.
type Conversation struct {
	ID           string
	Name         string
	Kind         ConversationKind
	Participants []string
	CreatedAt    time.Time
	HasBot       bool
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is immutable once written.
type Message struct {
	ID              string
	ConversationID  string
	AuthorID        string
	AuthorName      string
	Kind            MessageKind
	Text            string
	ImageRef        string
	IsBot           bool
	CreatedAt       time.Time
	ClientMessageID string
}

// SpeciesRecord is one ingestion-input row, produced by the scraper or
// hand-authored JSON. Records carrying Error are skipped by the Chunker's
// caller (the Ingestion Pipeline).
type SpeciesRecord struct {
	ScientificName string
	CommonName     string
	Family         string
	Genus          string
	Order          string
	Class          string
	Phylum         string
	Kingdom        string
	Summary        string
	Content        string
	WikipediaURL   string
	Error          string
}

// ChunkType distinguishes the single basic-info chunk from content chunks.
type ChunkType string

const (
	ChunkBasicInfo      ChunkType = "basic_info"
	ChunkDetailedContent ChunkType = "detailed_content"
)

// Chunk is the smallest indexed unit: a piece of species text plus the
// metadata needed to reassemble it and to reconstruct the species dossier
// without consulting any side cache.
type Chunk struct {
	ID        string
	Text      string
	Metadata  ChunkMetadata
}

// ChunkMetadata mirrors the field set spec.md §3 requires on every chunk.
type ChunkMetadata struct {
	ScientificName string
	CommonName     string
	Family         string
	Genus          string
	Order          string
	Class          string
	Phylum         string
	Kingdom        string
	Summary        string
	WikipediaURL   string
	ChunkText      string
	Type           ChunkType
	ChunkIndex     int
	HasChunkIndex  bool
}

// ToMap flattens the metadata into the string-valued map a vector store
// payload can carry.
func (m ChunkMetadata) ToMap() map[string]string {
	out := map[string]string{
		"scientific_name": m.ScientificName,
		"common_name":     m.CommonName,
		"family":          m.Family,
		"genus":           m.Genus,
		"order":           m.Order,
		"class":           m.Class,
		"phylum":          m.Phylum,
		"kingdom":         m.Kingdom,
		"summary":         m.Summary,
		"wikipedia_url":   m.WikipediaURL,
		"chunk_text":      m.ChunkText,
		"type":            string(m.Type),
	}
	if m.HasChunkIndex {
		out["chunk_index"] = strconv.Itoa(m.ChunkIndex)
	}
	return out
}

// MetadataFromMap reconstructs ChunkMetadata from a vector store payload,
// the inverse of ToMap. Unknown/missing keys default to the zero value.
func MetadataFromMap(m map[string]string) ChunkMetadata {
	meta := ChunkMetadata{
		ScientificName: m["scientific_name"],
		CommonName:     m["common_name"],
		Family:         m["family"],
		Genus:          m["genus"],
		Order:          m["order"],
		Class:          m["class"],
		Phylum:         m["phylum"],
		Kingdom:        m["kingdom"],
		Summary:        m["summary"],
		WikipediaURL:   m["wikipedia_url"],
		ChunkText:      m["chunk_text"],
		Type:           ChunkType(m["type"]),
	}
	if idxStr, ok := m["chunk_index"]; ok {
		if idx, err := strconv.Atoi(idxStr); err == nil {
			meta.ChunkIndex = idx
			meta.HasChunkIndex = true
		}
	}
	return meta
}
