// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package embeddings wraps a managed embedding service (C1 — Embedding
// Client) behind a role-aware interface, per spec.md §4.1.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/BitManipulators/wildlife-chat/internal/apperr"
)

// Role distinguishes a document embedding (used when indexing) from a query
// embedding (used when retrieving). Conflating the two degrades recall —
// the embedding model encodes them differently.
type Role string

const (
	RoleDocument Role = "document"
	RoleQuery    Role = "query"
)

// Embedder produces fixed-width float vectors for a given text and role.
type Embedder interface {
	// EmbedText embeds a single text under the given role. Empty or
	// whitespace-only text returns an EInvalidInput error.
	EmbedText(ctx context.Context, text string, role Role) ([]float32, error)

	// EmbedBatch embeds multiple texts under a single shared role.
	EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error)

	// Dimension returns D, the native width of vectors this Embedder
	// produces.
	Dimension() int
}

// NewEmbedder creates an embedder based on the provided type and
// configuration. Supported types: "bedrock" (AWS Bedrock Cohere, the
// reference backend), "mock" (for tests and UI-only/offline mode).
func NewEmbedder(embedderType string, config map[string]string) (Embedder, error) {
	switch embedderType {
	case "bedrock":
		return NewBedrockEmbedder(BedrockConfig{
			Region:  config["region"],
			APIKey:  config["api_key"],
			ModelID: config["model"],
		})
	case "mock":
		dim := 1024 // default: matches the reference Bedrock Cohere dimension
		if dimStr := config["dimension"]; dimStr != "" {
			fmt.Sscanf(dimStr, "%d", &dim)
		}
		return NewMockEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("embeddings: unknown embedder type %q", embedderType)
	}
}

// validateText rejects empty/whitespace-only input per spec.md §4.1.
func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.New(apperr.EInvalidInput, "embeddings: text must not be empty")
	}
	return nil
}
