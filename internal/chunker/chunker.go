// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package chunker splits a SpeciesRecord into a basic-info chunk and zero or
// more content chunks, per spec.md §4.3.
package chunker

import (
	"fmt"
	"strings"

	"github.com/BitManipulators/wildlife-chat/internal/model"
)

// maxChunkSize is the character budget B for a content chunk (~1000 chars),
// per spec.md §4.3.
const maxChunkSize = 1000

// Chunker produces Chunks from a SpeciesRecord. It has no state of its own;
// it exists as a type (rather than a bare function) to match the shape the
// rest of this module's components take and to leave room for future
// tunables (chunk size, metadata fields) without changing callers.
type Chunker struct {
	maxChunkSize int
}

// New returns a Chunker using the default ~1000-character content budget.
func New() *Chunker {
	return &Chunker{maxChunkSize: maxChunkSize}
}

// ChunkRecord splits rec into 1 basic chunk + N content chunks. Callers are
// responsible for skipping records with a non-empty Error field before
// calling this (spec.md §4.4 step 1).
func (c *Chunker) ChunkRecord(rec model.SpeciesRecord) []model.Chunk {
	base := Sanitize(rec.ScientificName)

	chunks := make([]model.Chunk, 0, 2)
	chunks = append(chunks, c.basicChunk(base, rec))

	for i, text := range c.splitContent(rec.Content) {
		chunks = append(chunks, c.contentChunk(base, rec, i, text))
	}

	return chunks
}

func (c *Chunker) basicChunk(base string, rec model.SpeciesRecord) model.Chunk {
	text := formatBasicInfo(rec)
	return model.Chunk{
		ID:   base + "_basic",
		Text: text,
		Metadata: model.ChunkMetadata{
			ScientificName: rec.ScientificName,
			CommonName:     rec.CommonName,
			Family:         rec.Family,
			Genus:          rec.Genus,
			Order:          rec.Order,
			Class:          rec.Class,
			Phylum:         rec.Phylum,
			Kingdom:        rec.Kingdom,
			Summary:        rec.Summary,
			WikipediaURL:   rec.WikipediaURL,
			ChunkText:      text,
			Type:           model.ChunkBasicInfo,
		},
	}
}

func (c *Chunker) contentChunk(base string, rec model.SpeciesRecord, index int, text string) model.Chunk {
	return model.Chunk{
		ID:   fmt.Sprintf("%s_content_%d", base, index),
		Text: text,
		Metadata: model.ChunkMetadata{
			ScientificName: rec.ScientificName,
			CommonName:     rec.CommonName,
			Family:         rec.Family,
			Genus:          rec.Genus,
			Order:          rec.Order,
			Class:          rec.Class,
			Phylum:         rec.Phylum,
			Kingdom:        rec.Kingdom,
			Summary:        rec.Summary,
			WikipediaURL:   rec.WikipediaURL,
			ChunkText:      text,
			Type:           model.ChunkDetailedContent,
			ChunkIndex:     index,
			HasChunkIndex:  true,
		},
	}
}

// formatBasicInfo renders the taxonomy/summary block embedded and stored in
// the basic_info chunk. Order matters for readability but not correctness.
func formatBasicInfo(rec model.SpeciesRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scientific Name: %s\n", orUnknown(rec.ScientificName))
	fmt.Fprintf(&b, "Common Name: %s\n", orUnknown(rec.CommonName))
	fmt.Fprintf(&b, "Family: %s\n", orUnknown(rec.Family))
	fmt.Fprintf(&b, "Genus: %s\n", orUnknown(rec.Genus))
	if rec.Order != "" || rec.Class != "" || rec.Phylum != "" || rec.Kingdom != "" {
		fmt.Fprintf(&b, "Order: %s\n", orUnknown(rec.Order))
		fmt.Fprintf(&b, "Class: %s\n", orUnknown(rec.Class))
		fmt.Fprintf(&b, "Phylum: %s\n", orUnknown(rec.Phylum))
		fmt.Fprintf(&b, "Kingdom: %s\n", orUnknown(rec.Kingdom))
	}
	fmt.Fprintf(&b, "Summary: %s", rec.Summary)
	return strings.TrimSpace(b.String())
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// splitContent accumulates whitespace-delimited words into chunks bounded by
// maxChunkSize, never splitting a word. Non-overlapping: every word appears
// in exactly one output chunk.
func (c *Chunker) splitContent(content string) []string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	limit := c.maxChunkSize
	if limit <= 0 {
		limit = maxChunkSize
	}

	var result []string
	current := make([]string, 0, 32)
	currentLen := 0

	for _, word := range words {
		wordLen := len(word) + 1 // +1 accounts for the joining space
		if currentLen+wordLen > limit && len(current) > 0 {
			result = append(result, strings.Join(current, " "))
			current = current[:0]
			currentLen = 0
		}
		current = append(current, word)
		currentLen += wordLen
	}
	if len(current) > 0 {
		result = append(result, strings.Join(current, " "))
	}

	return result
}
