// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command ingest runs the Ingestion Pipeline (C4) synchronously over a
// hand-authored list of species, scraping Wikipedia for each one and
// upserting the resulting chunks into one domain's vector index. This is
// the offline-batch counterpart to the chat-server's async ingest_species
// worker queue; grounded on
// original_source/backend/rag/rag_service.py's load_and_index_plants /
// load_and_index_animals CLI entry points.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/BitManipulators/wildlife-chat/internal/chunker"
	"github.com/BitManipulators/wildlife-chat/internal/config"
	"github.com/BitManipulators/wildlife-chat/internal/embeddings"
	"github.com/BitManipulators/wildlife-chat/internal/ingest"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/scraper"
	"github.com/BitManipulators/wildlife-chat/internal/vectorindex"
)

// speciesEntry is the shape of one row in the input JSON file.
type speciesEntry struct {
	ScientificName string `json:"scientificName"`
	CommonName     string `json:"commonName"`
	Kingdom        string `json:"kingdom"`
}

func main() {
	domain := flag.String("domain", "plant", "domain to ingest into: plant or animal")
	speciesFile := flag.String("species-file", "", "path to a JSON array of {scientificName, commonName, kingdom}")
	batchSize := flag.Int("batch-size", 0, "ingestion flush batch size (0 = default 100)")
	flag.Parse()

	if *speciesFile == "" {
		logger.Fatalf("ingest: -species-file is required")
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "ingest.log"
	}
	l, err := logger.Init(logFile)
	if err != nil {
		panic(err)
	}
	defer l.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("ingest: load config: %v", err)
	}

	queries, err := loadQueries(*speciesFile)
	if err != nil {
		logger.Fatalf("ingest: %v", err)
	}

	collectionName := cfg.VectorIndexPlantName
	if *domain == "animal" {
		collectionName = cfg.VectorIndexAnimalName
	}

	ctx := context.Background()
	index, err := vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
		Address:        cfg.VectorIndexAddress,
		CollectionName: collectionName,
		Dimension:      1024,
	})
	if err != nil {
		logger.Fatalf("ingest: connect to qdrant: %v", err)
	}
	if err := index.EnsureIndex(ctx); err != nil {
		logger.Fatalf("ingest: ensure collection %s: %v", collectionName, err)
	}

	var embedder embeddings.Embedder
	if cfg.EmbeddingAPIKey == "" {
		logger.Printf("ingest: no embedding credentials configured, using mock embedder")
		embedder = embeddings.NewMockEmbedder(1024)
	} else {
		embedder, err = embeddings.NewBedrockEmbedder(embeddings.BedrockConfig{
			Region:  cfg.EmbeddingRegion,
			APIKey:  cfg.EmbeddingAPIKey,
			ModelID: cfg.EmbeddingModel,
		})
		if err != nil {
			logger.Fatalf("ingest: bedrock embedder: %v", err)
		}
	}

	s := scraper.New(scraper.Config{})
	logger.Printf("ingest: scraping %d species", len(queries))
	records := s.FetchAll(ctx, queries)

	pipeline := ingest.New(chunker.New(), embedder, index, *batchSize)
	stats, err := pipeline.Ingest(ctx, records)
	if err != nil {
		logger.Fatalf("ingest: aborted: %v (records_skipped=%d chunks_embedded=%d chunks_upserted=%d)",
			err, stats.RecordsSkipped, stats.ChunksEmbedded, stats.ChunksUpserted)
	}

	logger.Printf("ingest: done domain=%s records_skipped=%d chunks_embedded=%d chunks_skipped=%d chunks_upserted=%d",
		*domain, stats.RecordsSkipped, stats.ChunksEmbedded, stats.ChunksSkipped, stats.ChunksUpserted)
}

func loadQueries(path string) ([]scraper.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []speciesEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	queries := make([]scraper.Query, 0, len(entries))
	for _, e := range entries {
		queries = append(queries, scraper.Query{
			ScientificName: e.ScientificName,
			CommonName:     e.CommonName,
			Kingdom:        e.Kingdom,
		})
	}
	return queries, nil
}
