// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package ingest implements the Ingestion Pipeline (C4): chunk, embed, and
// upsert a batch of species records, per spec.md §4.4. Grounded on
// original_source/backend/rag/rag_service.py's load_and_index_plants /
// load_and_index_animals (skip-on-error-record, batch-then-flush shape).
package ingest

import (
	"context"
	"fmt"

	"github.com/BitManipulators/wildlife-chat/internal/chunker"
	"github.com/BitManipulators/wildlife-chat/internal/embeddings"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/model"
	"github.com/BitManipulators/wildlife-chat/internal/vectorindex"
)

const defaultBatchSize = 100

// consecutiveFailureLimit aborts the run once this many chunk embeds fail
// back-to-back. A handful of isolated per-chunk failures are expected and
// non-fatal (spec.md §4.4); a long unbroken run of failures is the
// observable signature of a systemic problem (expired credentials, a
// throttled-to-death endpoint) that no amount of per-chunk skipping will
// recover from, so the pipeline stops and reports rather than burning
// through the whole batch one doomed call at a time.
const consecutiveFailureLimit = 10

// Stats summarizes one ingest run.
type Stats struct {
	RecordsSkipped int
	ChunksEmbedded int
	ChunksSkipped  int
	ChunksUpserted int
}

// Pipeline drives the Chunker, an Embedder, and a vector Index together.
type Pipeline struct {
	chunker   *chunker.Chunker
	embedder  embeddings.Embedder
	index     vectorindex.Index
	batchSize int
}

// New builds a Pipeline. batchSize<=0 defaults to 100 per spec.md §4.4.
func New(c *chunker.Chunker, embedder embeddings.Embedder, index vectorindex.Index, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{chunker: c, embedder: embedder, index: index, batchSize: batchSize}
}

type bufferedPoint struct {
	id       string
	vector   []float32
	metadata map[string]string
}

// Ingest runs the full algorithm over records: skip error records, chunk,
// embed each chunk (non-fatal per-chunk skip on failure), buffer and flush
// to the index in batches of batchSize. An index unreachable / embedder
// credentials invalid class of error aborts the run and is returned; stats
// reflect whatever was durably upserted before the abort (no rollback).
func (p *Pipeline) Ingest(ctx context.Context, records []model.SpeciesRecord) (Stats, error) {
	var stats Stats
	buffer := make([]bufferedPoint, 0, p.batchSize)
	consecutiveFailures := 0

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		for _, pt := range buffer {
			if err := p.index.Upsert(ctx, pt.id, pt.vector, pt.metadata); err != nil {
				return fmt.Errorf("ingest: upsert %s: %w", pt.id, err)
			}
			stats.ChunksUpserted++
		}
		buffer = buffer[:0]
		return nil
	}

	for _, rec := range records {
		if rec.Error != "" {
			stats.RecordsSkipped++
			continue
		}

		for _, chunk := range p.chunker.ChunkRecord(rec) {
			vector, err := p.embedder.EmbedText(ctx, chunk.Text, embeddings.RoleDocument)
			if err != nil {
				logger.Printf("ingest: embed chunk %s failed: %v", chunk.ID, err)
				stats.ChunksSkipped++
				consecutiveFailures++
				if consecutiveFailures >= consecutiveFailureLimit {
					return stats, fmt.Errorf("ingest: aborting after %d consecutive embed failures: %w", consecutiveFailures, err)
				}
				continue
			}
			consecutiveFailures = 0
			stats.ChunksEmbedded++

			buffer = append(buffer, bufferedPoint{id: chunk.ID, vector: vector, metadata: chunk.Metadata.ToMap()})
			if len(buffer) >= p.batchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}
