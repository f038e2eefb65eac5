// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"context"
	"math"
	"sort"
)

// NullIndex is a no-op Index for UI-only/offline mode, grounded on
// niski84-the-hive/internal/vectordb/mock.go.
type NullIndex struct{}

// NewNullIndex creates an Index that performs no storage and returns no
// search results.
func NewNullIndex() *NullIndex {
	return &NullIndex{}
}

func (m *NullIndex) EnsureIndex(ctx context.Context) error { return nil }

func (m *NullIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	return nil
}

func (m *NullIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	return []Match{}, nil
}

func (m *NullIndex) Delete(ctx context.Context, id string) error { return nil }

func (m *NullIndex) Count(ctx context.Context) (int, error) { return 0, nil }

// MemoryIndex is an in-process Index backed by a plain map, used in tests in
// place of a live Qdrant instance so retrieval logic (C5) is exercisable
// without network access.
type MemoryIndex struct {
	points map[string]memoryPoint
}

type memoryPoint struct {
	vector   []float32
	metadata map[string]string
}

// NewMemoryIndex creates an empty in-process Index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]memoryPoint)}
}

func (m *MemoryIndex) EnsureIndex(ctx context.Context) error { return nil }

func (m *MemoryIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	cp := make(map[string]string, len(metadata))
	for k, v := range metadata {
		cp[k] = v
	}
	vcp := make([]float32, len(vector))
	copy(vcp, vector)
	m.points[id] = memoryPoint{vector: vcp, metadata: cp}
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	delete(m.points, id)
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	return len(m.points), nil
}

// Search ranks stored points by cosine similarity to queryVector, matching
// the Distance_Cosine metric EnsureIndex configures against a live Qdrant
// collection.
func (m *MemoryIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	matches := make([]Match, 0, len(m.points))
	for id, p := range m.points {
		matches = append(matches, Match{
			ID:       id,
			Score:    cosineSimilarity(queryVector, p.vector),
			Metadata: p.metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
