// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command chat-server runs the wildlife chat WebSocket + HTTP server: the
// Connection Hub (C9), Session Protocol Handler (C10), and the RAG
// Orchestrator (C7) wired over a durable or in-memory Conversation Store
// (C8), plus a background worker pool draining async ingest_species jobs.
// Grounded on niski84-the-hive/cmd/hive-server/main.go's wiring shape.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BitManipulators/wildlife-chat/internal/chunker"
	"github.com/BitManipulators/wildlife-chat/internal/classifier"
	"github.com/BitManipulators/wildlife-chat/internal/config"
	"github.com/BitManipulators/wildlife-chat/internal/embeddings"
	"github.com/BitManipulators/wildlife-chat/internal/hub"
	"github.com/BitManipulators/wildlife-chat/internal/ingest"
	"github.com/BitManipulators/wildlife-chat/internal/llm"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/queue"
	"github.com/BitManipulators/wildlife-chat/internal/rag"
	"github.com/BitManipulators/wildlife-chat/internal/retriever"
	"github.com/BitManipulators/wildlife-chat/internal/scraper"
	"github.com/BitManipulators/wildlife-chat/internal/session"
	"github.com/BitManipulators/wildlife-chat/internal/store"
	"github.com/BitManipulators/wildlife-chat/internal/transport"
	"github.com/BitManipulators/wildlife-chat/internal/vectorindex"
	"github.com/BitManipulators/wildlife-chat/internal/worker"
)

const ingestWorkerCount = 2

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	l, err := logger.Init(cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer l.Close()

	conversationStore := initStore(cfg)
	plantIndex := initVectorIndex(cfg, cfg.VectorIndexPlantName)
	animalIndex := initVectorIndex(cfg, cfg.VectorIndexAnimalName)
	embedder := initEmbedder(cfg)
	llmClient := initLLM(cfg)

	cls := classifier.New(llmClient)
	plantRetriever := retriever.New(plantIndex, embedder)
	animalRetriever := retriever.New(animalIndex, embedder)
	orchestrator := rag.New(cls, llmClient, plantRetriever, animalRetriever)

	imageDir := os.Getenv("IMAGE_STORE_DIR")
	if imageDir == "" {
		imageDir = "data/images"
	}
	imageStore, err := session.NewFileImageStore(imageDir)
	if err != nil {
		logger.Fatalf("chat-server: image store: %v", err)
	}

	h := hub.New(time.Duration(cfg.PingIntervalSeconds) * time.Second)
	defer h.Stop()

	sessionHandler := session.New(conversationStore, h, orchestrator, imageStore)
	wsHandler := transport.NewWebSocketHandler(h, sessionHandler)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	plantQueue, animalQueue := startIngestWorkers(workerCtx, cfg, embedder, plantIndex, animalIndex)
	ingestTrigger := transport.NewIngestTrigger(plantQueue, animalQueue)

	mux := http.NewServeMux()
	mux.Handle("/ws/{userID}", wsHandler)
	mux.Handle("/ingest", ingestTrigger)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		logger.Printf("chat-server: listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("chat-server: http server: %v", err)
		}
	}()

	waitForShutdown(httpServer, workerCancel)
}

func initStore(cfg *config.Config) store.Store {
	if cfg.StoreBackend == "durable" {
		st, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logger.Errorf("chat-server: sqlite store unavailable (%v), falling back to in-memory", err)
			return store.NewMemoryStore()
		}
		return st
	}
	return store.NewMemoryStore()
}

func initVectorIndex(cfg *config.Config, collectionName string) vectorindex.Index {
	idx, err := vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
		Address:        cfg.VectorIndexAddress,
		CollectionName: collectionName,
		Dimension:      1024,
	})
	if err != nil {
		logger.Errorf("chat-server: qdrant index %s unavailable (%v), falling back to in-memory", collectionName, err)
		return vectorindex.NewMemoryIndex()
	}
	if err := idx.EnsureIndex(context.Background()); err != nil {
		logger.Errorf("chat-server: ensure collection %s failed (%v), falling back to in-memory", collectionName, err)
		return vectorindex.NewMemoryIndex()
	}
	return idx
}

func initEmbedder(cfg *config.Config) embeddings.Embedder {
	if cfg.EmbeddingAPIKey == "" {
		logger.Printf("chat-server: no embedding credentials configured, using mock embedder")
		return embeddings.NewMockEmbedder(1024)
	}
	embedder, err := embeddings.NewBedrockEmbedder(embeddings.BedrockConfig{
		Region:  cfg.EmbeddingRegion,
		APIKey:  cfg.EmbeddingAPIKey,
		ModelID: cfg.EmbeddingModel,
	})
	if err != nil {
		logger.Errorf("chat-server: bedrock embedder unavailable (%v), falling back to mock", err)
		return embeddings.NewMockEmbedder(1024)
	}
	return embedder
}

func initLLM(cfg *config.Config) llm.Client {
	if cfg.LLMAPIKey == "" {
		logger.Printf("chat-server: no llm credentials configured, using mock client")
		return llm.NewMockClient("I don't have enough information to answer that.", "I can't analyze images right now.")
	}
	client, err := llm.NewGeminiClient(context.Background(), cfg.LLMAPIKey, cfg.LLMModelName)
	if err != nil {
		logger.Errorf("chat-server: gemini client unavailable (%v), falling back to mock", err)
		return llm.NewMockClient("I don't have enough information to answer that.", "I can't analyze images right now.")
	}
	return client
}

// startIngestWorkers wires Redis + the queue + a worker pool to the
// Ingestion Pipeline's async ingest_species job handler (SPEC_FULL.md §2
// background ingestion jobs supplement), and returns the producer-side
// queues so the caller can wire an HTTP trigger (transport.IngestTrigger)
// that enqueues onto the same queues the workers drain. A Redis outage is
// non-fatal: both returned queues are nil, the server still serves chat
// traffic, and the ingest trigger degrades to a 503.
func startIngestWorkers(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, plantIndex, animalIndex vectorindex.Index) (plantQueue, animalQueue queue.Queue) {
	redisClient, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Errorf("chat-server: redis unavailable (%v), background ingestion disabled", err)
		return nil, nil
	}

	plantQueue, err = queue.NewRedisQueue(redisClient, "ingest:plant")
	if err != nil {
		logger.Errorf("chat-server: plant queue unavailable (%v), background ingestion disabled", err)
		return nil, nil
	}

	s := scraper.New(scraper.Config{})
	plantPipeline := ingest.New(chunker.New(), embedder, plantIndex, 0)
	animalPipeline := ingest.New(chunker.New(), embedder, animalIndex, 0)

	go func() {
		if err := worker.StartWorkers(ctx, plantQueue, ingest.Handler(s, plantPipeline), ingestWorkerCount); err != nil {
			logger.Errorf("chat-server: plant ingest workers stopped: %v", err)
		}
	}()

	animalQueue, err = queue.NewRedisQueue(redisClient, "ingest:animal")
	if err != nil {
		logger.Errorf("chat-server: animal queue unavailable (%v)", err)
		return plantQueue, nil
	}
	go func() {
		if err := worker.StartWorkers(ctx, animalQueue, ingest.Handler(s, animalPipeline), ingestWorkerCount); err != nil {
			logger.Errorf("chat-server: animal ingest workers stopped: %v", err)
		}
	}()

	return plantQueue, animalQueue
}

func waitForShutdown(httpServer *http.Server, workerCancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Printf("chat-server: shutting down")
	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("chat-server: http shutdown: %v", err)
	}
}
