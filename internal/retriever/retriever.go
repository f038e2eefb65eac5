// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package retriever implements the Retriever (C5): turns a free-text query
// into a reconstructed, ordered context bundle per matched species.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BitManipulators/wildlife-chat/internal/apperr"
	"github.com/BitManipulators/wildlife-chat/internal/embeddings"
	"github.com/BitManipulators/wildlife-chat/internal/model"
	"github.com/BitManipulators/wildlife-chat/internal/vectorindex"
)

// oversampleFactor is the reference default from spec.md §4.5 / §9 — the
// exact value is explicitly not tuned by the spec, so this module fixes it
// at 5.
const oversampleFactor = 5

// Retriever answers retrieve(domain, query, top_k) against one domain's
// vector index.
type Retriever struct {
	index    vectorindex.Index
	embedder embeddings.Embedder
}

// New builds a Retriever over a single domain's index.
func New(index vectorindex.Index, embedder embeddings.Embedder) *Retriever {
	return &Retriever{index: index, embedder: embedder}
}

// speciesGroup accumulates every chunk returned for one scientific_name, so
// the dossier can be reassembled without a side cache.
type speciesGroup struct {
	scientificName string
	maxScore       float32
	basic          *model.ChunkMetadata
	content        []model.ChunkMetadata
}

// Retrieve performs the 5-step algorithm in spec.md §4.5: embed, oversample,
// group-by-max-score, sort+truncate, reassemble. Returns "" on an empty
// query or an embedder failure — the caller degrades to a no-context prompt.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	if topK <= 0 {
		topK = 3
	}

	vec, err := r.embedder.EmbedText(ctx, query, embeddings.RoleQuery)
	if err != nil {
		return "", nil // caller degrades to "no context"; edge case per spec.md §4.5
	}

	matches, err := r.index.Search(ctx, vec, topK*oversampleFactor)
	if err != nil {
		return "", apperr.Wrap(apperr.EUpstream, "retriever: search failed", err)
	}

	groups := groupByScientificName(matches)
	ordered := sortAndTruncate(groups, topK)

	return formatBundle(ordered), nil
}

func groupByScientificName(matches []vectorindex.Match) map[string]*speciesGroup {
	groups := make(map[string]*speciesGroup)
	for _, m := range matches {
		meta := model.MetadataFromMap(m.Metadata)
		name := meta.ScientificName
		if name == "" {
			continue
		}

		g, ok := groups[name]
		if !ok {
			g = &speciesGroup{scientificName: name}
			groups[name] = g
		}
		if m.Score > g.maxScore {
			g.maxScore = m.Score
		}

		switch meta.Type {
		case model.ChunkBasicInfo:
			metaCopy := meta
			g.basic = &metaCopy
		case model.ChunkDetailedContent:
			g.content = append(g.content, meta)
		}
	}
	return groups
}

// sortAndTruncate orders groups by descending max score, tie-breaking by
// scientific_name ascending for determinism, then truncates to topK.
func sortAndTruncate(groups map[string]*speciesGroup, topK int) []*speciesGroup {
	ordered := make([]*speciesGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].maxScore != ordered[j].maxScore {
			return ordered[i].maxScore > ordered[j].maxScore
		}
		return ordered[i].scientificName < ordered[j].scientificName
	})
	if len(ordered) > topK {
		ordered = ordered[:topK]
	}
	return ordered
}

// formatBundle reassembles each group's dossier — basic info first, then
// content chunks sorted by chunk_index ascending — and joins species into a
// single delimited ContextBundle string.
func formatBundle(groups []*speciesGroup) string {
	if len(groups) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.content, func(i, j int) bool {
			return g.content[i].ChunkIndex < g.content[j].ChunkIndex
		})

		var b strings.Builder
		fmt.Fprintf(&b, "=== %s ===\n", g.scientificName)

		if g.basic != nil {
			fmt.Fprintf(&b, "Common Name: %s\n", g.basic.CommonName)
			writeTaxonomyLine(&b, "Family", g.basic.Family)
			writeTaxonomyLine(&b, "Genus", g.basic.Genus)
			writeTaxonomyLine(&b, "Order", g.basic.Order)
			writeTaxonomyLine(&b, "Class", g.basic.Class)
			writeTaxonomyLine(&b, "Phylum", g.basic.Phylum)
			writeTaxonomyLine(&b, "Kingdom", g.basic.Kingdom)
			if g.basic.Summary != "" {
				fmt.Fprintf(&b, "Summary: %s\n", g.basic.Summary)
			}
		}

		for _, c := range g.content {
			b.WriteString(c.ChunkText)
			b.WriteString("\n")
		}

		if g.basic != nil && g.basic.WikipediaURL != "" {
			fmt.Fprintf(&b, "Source: %s\n", g.basic.WikipediaURL)
		}

		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(blocks, "\n\n")
}

func writeTaxonomyLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}
