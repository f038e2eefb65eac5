// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/BitManipulators/wildlife-chat/internal/chunker"
	"github.com/BitManipulators/wildlife-chat/internal/embeddings"
	"github.com/BitManipulators/wildlife-chat/internal/model"
	"github.com/BitManipulators/wildlife-chat/internal/vectorindex"
)

func dandelion() model.SpeciesRecord {
	return model.SpeciesRecord{
		ScientificName: "taraxacum_officinale",
		CommonName:     "Dandelion",
		Kingdom:        "Plantae",
		Summary:        "A common flowering plant.",
		Content:        "Dandelions are widespread and edible in most parts.",
	}
}

func TestIngest_SkipsErrorRecords(t *testing.T) {
	p := New(chunker.New(), embeddings.NewMockEmbedder(8), vectorindex.NewMemoryIndex(), 0)

	records := []model.SpeciesRecord{
		{ScientificName: "bad_record", Error: "no wikipedia article found"},
		dandelion(),
	}

	stats, err := p.Ingest(context.Background(), records)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stats.RecordsSkipped != 1 {
		t.Errorf("expected 1 skipped record, got %d", stats.RecordsSkipped)
	}
	if stats.ChunksUpserted == 0 {
		t.Errorf("expected the valid record's chunks to be upserted")
	}
}

func TestIngest_FlushesAtBatchSizeAndAtEnd(t *testing.T) {
	idx := vectorindex.NewMemoryIndex()
	p := New(chunker.New(), embeddings.NewMockEmbedder(8), idx, 1)

	stats, err := p.Ingest(context.Background(), []model.SpeciesRecord{dandelion()})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	count, err := idx.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != stats.ChunksUpserted {
		t.Errorf("expected index count to match ChunksUpserted, got count=%d stats=%d", count, stats.ChunksUpserted)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedText(ctx context.Context, text string, role embeddings.Role) ([]float32, error) {
	return nil, errors.New("credentials invalid")
}
func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string, role embeddings.Role) ([][]float32, error) {
	return nil, errors.New("credentials invalid")
}
func (failingEmbedder) Dimension() int { return 8 }

func TestIngest_AbortsAfterConsecutiveEmbedFailures(t *testing.T) {
	// Enough species that, without an abort, every chunk across every
	// record would individually fail and be skipped rather than aborting
	// the run outright.
	var records []model.SpeciesRecord
	for i := 0; i < consecutiveFailureLimit+5; i++ {
		r := dandelion()
		r.ScientificName = r.ScientificName + string(rune('a'+i))
		records = append(records, r)
	}

	p := New(chunker.New(), failingEmbedder{}, vectorindex.NewMemoryIndex(), 100)

	stats, err := p.Ingest(context.Background(), records)
	if err == nil {
		t.Fatalf("expected an abort error after consecutive embed failures")
	}
	if stats.ChunksUpserted != 0 {
		t.Errorf("expected nothing upserted, got %d", stats.ChunksUpserted)
	}
}

func TestIngest_NonFatalFailureDoesNotAbortWhenInterspersedWithSuccess(t *testing.T) {
	idx := vectorindex.NewMemoryIndex()
	embedder := &intermittentEmbedder{failEveryNth: 3, dim: 8}
	p := New(chunker.New(), embedder, idx, 100)

	var records []model.SpeciesRecord
	for i := 0; i < 5; i++ {
		r := dandelion()
		r.ScientificName = r.ScientificName + string(rune('a'+i))
		r.Content = "Some reasonably long content about the plant that will span a single chunk for this test."
		records = append(records, r)
	}

	stats, err := p.Ingest(context.Background(), records)
	if err != nil {
		t.Fatalf("expected no abort for intermittent failures, got: %v", err)
	}
	if stats.ChunksSkipped == 0 {
		t.Errorf("expected some chunks to be skipped")
	}
	if stats.ChunksUpserted == 0 {
		t.Errorf("expected some chunks to succeed and be upserted")
	}
}

type intermittentEmbedder struct {
	failEveryNth int
	calls        int
	dim          int
}

func (e *intermittentEmbedder) EmbedText(ctx context.Context, text string, role embeddings.Role) ([]float32, error) {
	e.calls++
	if e.calls%e.failEveryNth == 0 {
		return nil, errors.New("transient throttling")
	}
	return make([]float32, e.dim), nil
}
func (e *intermittentEmbedder) EmbedBatch(ctx context.Context, texts []string, role embeddings.Role) ([][]float32, error) {
	return nil, errors.New("not used")
}
func (e *intermittentEmbedder) Dimension() int { return e.dim }
