// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/BitManipulators/wildlife-chat/internal/model"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Mentha × piperita": "mentha_x_piperita",
		"Caféier arabica":   "cafeier_arabica",
		"":                  "unknown",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

var chunkIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func TestChunkRecord_IDsAndRoundTrip(t *testing.T) {
	rec := model.SpeciesRecord{
		ScientificName: "Taraxacum officinale",
		CommonName:     "Dandelion",
		Family:         "Asteraceae",
		Genus:          "Taraxacum",
		Summary:        "A common flowering plant.",
		Content:        strings.Repeat("edible leaves and roots ", 200),
		WikipediaURL:   "https://en.wikipedia.org/wiki/Taraxacum_officinale",
	}

	chunks := New().ChunkRecord(rec)
	if len(chunks) < 2 {
		t.Fatalf("expected at least a basic chunk + one content chunk, got %d", len(chunks))
	}

	if chunks[0].ID != "taraxacum_officinale_basic" {
		t.Errorf("basic chunk id = %q", chunks[0].ID)
	}

	for i, c := range chunks {
		if !chunkIDPattern.MatchString(c.ID) {
			t.Errorf("chunk %d id %q does not match ^[a-z0-9_]+$", i, c.ID)
		}
		// Testable property #3: chunk_text must equal the embedded text
		// byte-for-byte.
		if c.Metadata.ChunkText != c.Text {
			t.Errorf("chunk %d: ChunkText != Text", i)
		}
	}

	for i, c := range chunks[1:] {
		want := "taraxacum_officinale_content_" + strconv.Itoa(i)
		if c.ID != want {
			t.Errorf("content chunk %d id = %q, want %q", i, c.ID, want)
		}
		if c.Metadata.Type != model.ChunkDetailedContent {
			t.Errorf("content chunk %d type = %q", i, c.Metadata.Type)
		}
		if !c.Metadata.HasChunkIndex || c.Metadata.ChunkIndex != i {
			t.Errorf("content chunk %d missing/incorrect chunk_index", i)
		}
	}
}

func TestSplitContent_NeverSplitsWords(t *testing.T) {
	content := strings.Repeat("lorem ipsum dolor sit amet ", 100)
	chunks := New().splitContent(content)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long content, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > maxChunkSize+20 {
			t.Errorf("chunk exceeds budget by a wide margin: %d chars", len(c))
		}
	}
	// Reassembling all chunks must reproduce every original word, in order.
	var reassembled []string
	for _, c := range chunks {
		reassembled = append(reassembled, strings.Fields(c)...)
	}
	if strings.Join(reassembled, " ") != strings.Join(strings.Fields(content), " ") {
		t.Errorf("splitContent lost or reordered words")
	}
}

func TestChunkRecord_EmptyScientificNameFallsBackToUnknown(t *testing.T) {
	rec := model.SpeciesRecord{}
	chunks := New().ChunkRecord(rec)
	if chunks[0].ID != "unknown_basic" {
		t.Errorf("basic chunk id = %q, want unknown_basic", chunks[0].ID)
	}
}
