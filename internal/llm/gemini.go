// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/BitManipulators/wildlife-chat/internal/apperr"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

// GeminiClient wraps google.golang.org/genai against a single model name,
// grounded on vvoland-cagent's Gemini provider client construction and on
// original_source/backend/main.py's AIService (soft circuit breaker on a
// 404/"not found" class of error).
type GeminiClient struct {
	client    *genai.Client
	modelName string
	available atomic.Bool
}

// NewGeminiClient builds a client against the Gemini Developer API using
// apiKey. modelName defaults to "gemini-2.5-flash" when empty.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.EUpstream, "llm: create gemini client", err)
	}

	g := &GeminiClient{client: client, modelName: modelName}
	g.available.Store(true)

	logger.Printf("llm: gemini client initialized model=%s", modelName)
	return g, nil
}

// Available reports whether the model is believed reachable.
func (g *GeminiClient) Available() bool {
	return g.available.Load()
}

// GenerateText issues a single-turn text completion.
func (g *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if !g.available.Load() {
		return "", apperr.New(apperr.EUpstream, "llm: gemini model unavailable")
	}

	content := genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, []*genai.Content{content}, nil)
	if err != nil {
		return "", g.classifyAndMaybeTrip(err)
	}

	return extractText(resp)
}

// GenerateVision issues a single-turn completion over image bytes plus a
// text prompt, image first per Gemini vision's required part ordering.
func (g *GeminiClient) GenerateVision(ctx context.Context, imageBytes []byte, mimeType, prompt string) (string, error) {
	if !g.available.Load() {
		return "", apperr.New(apperr.EUpstream, "llm: gemini model unavailable")
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(imageBytes, mimeType),
		genai.NewPartFromText(prompt),
	}
	content := genai.NewContentFromParts(parts, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, []*genai.Content{content}, nil)
	if err != nil {
		return "", g.classifyAndMaybeTrip(err)
	}

	return extractText(resp)
}

// classifyAndMaybeTrip inspects err for the 404/"not found" class the
// original's AIService treats as "model not available", and trips the soft
// circuit breaker accordingly so subsequent calls fail fast.
func (g *GeminiClient) classifyAndMaybeTrip(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "404") || strings.Contains(msg, "not found") {
		g.available.Store(false)
		logger.Printf("llm: gemini model %s marked unavailable: %v", g.modelName, err)
		return apperr.Wrap(apperr.EUpstream, fmt.Sprintf("llm: model %s not available", g.modelName), err)
	}
	return apperr.Wrap(apperr.EUpstream, "llm: gemini request failed", err)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", apperr.New(apperr.EUpstream, "llm: gemini response had no candidates")
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				return strings.TrimSpace(part.Text), nil
			}
		}
	}
	return "", apperr.New(apperr.EUpstream, "llm: gemini response had no text part")
}
