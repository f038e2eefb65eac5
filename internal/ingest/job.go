// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/model"
	"github.com/BitManipulators/wildlife-chat/internal/queue"
	"github.com/BitManipulators/wildlife-chat/internal/scraper"
)

// JobType is the queue.Job.Type this package's worker handler dispatches on,
// repurposing the teacher's worker pool from its original
// recalc_issue_priority job to species ingestion (SPEC_FULL.md §2
// background ingestion jobs supplement).
const JobType = "ingest_species"

// SpeciesJobPayload is the JSON payload carried by an ingest_species job:
// the names the Scraper needs to fetch the species record. It never carries
// an already-scraped record; the handler always scrapes.
type SpeciesJobPayload struct {
	ScientificName string `json:"scientificName"`
	CommonName     string `json:"commonName"`
	Kingdom        string `json:"kingdom"`
}

// EnqueueSpecies submits one species for asynchronous scrape+ingest.
func EnqueueSpecies(ctx context.Context, q queue.Queue, scientificName, commonName, kingdom string) error {
	payload, err := json.Marshal(SpeciesJobPayload{ScientificName: scientificName, CommonName: commonName, Kingdom: kingdom})
	if err != nil {
		return fmt.Errorf("ingest: marshal job payload: %w", err)
	}
	return q.Enqueue(ctx, queue.Job{Type: JobType, Payload: payload})
}

// Handler returns a worker.HandlerFunc-compatible function that scrapes and
// ingests the species named in job.Payload. It ignores jobs whose Type
// isn't JobType so it can share a worker pool with other job kinds.
func Handler(s *scraper.Scraper, p *Pipeline) func(ctx context.Context, job queue.Job) error {
	return func(ctx context.Context, job queue.Job) error {
		if job.Type != JobType {
			return nil
		}

		var payload SpeciesJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("ingest: unmarshal job payload: %w", err)
		}

		record := s.Fetch(ctx, payload.ScientificName, payload.CommonName, payload.Kingdom)
		if record.Error != "" {
			logger.Printf("ingest: scrape failed for %s: %s", payload.ScientificName, record.Error)
			return nil
		}

		stats, err := p.Ingest(ctx, []model.SpeciesRecord{record})
		if err != nil {
			return fmt.Errorf("ingest: %s: %w", payload.ScientificName, err)
		}
		logger.Printf("ingest: %s done, chunks upserted=%d skipped=%d", payload.ScientificName, stats.ChunksUpserted, stats.ChunksSkipped)
		return nil
	}
}
