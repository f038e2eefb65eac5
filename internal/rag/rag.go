// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package rag implements the RAG Orchestrator (C7): turns a user message
// (text or image) plus recent history into a grounded reply.
package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BitManipulators/wildlife-chat/internal/classifier"
	"github.com/BitManipulators/wildlife-chat/internal/llm"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/model"
)

// Per-call deadlines from spec.md §5's "Cancellation & timeouts": LLM calls
// get 30s, vector-index retrieval gets 5s. Each upstream call below derives
// its own bounded context from the caller's ctx rather than inheriting an
// unbounded one.
const (
	llmCallTimeout      = 30 * time.Second
	retrieveCallTimeout = 5 * time.Second
)

// historyLimit is the number of most-recent messages included in every
// prompt, text or image path alike — spec.md §9 fixes this at 10 on both
// paths, overriding the original's inconsistent 5-for-images.
const historyLimit = 10

// scientificNameRe extracts a binomial name from a possibly chatty
// identification response, per spec.md §4.7 Step A.
var scientificNameRe = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[a-z]+)+`)

// systemPrompt is the fixed system role prepended to every text-path
// prompt, grounded in tone and structure on
// original_source/backend/main.py's AIService system_prompt, rewritten in
// this module's own voice.
const systemPrompt = `You are a wildlife and flora assistant. You help identify plants and animals, and explain edibility, medicinal uses, behavior, habitat, and safety.

You must answer using ONLY the information in the KNOWLEDGE BASE CONTEXT section below, when one is provided. Do not draw on prior training knowledge to fill gaps. If the context does not cover the question, say plainly that you don't have that information rather than guessing.

Always warn about toxic lookalikes for plants and about venomous or dangerous species for animals when the context mentions them. When uncertain, advise consulting a local expert or field guide.

Answer directly; do not preface responses with phrases like "based on the information I have".`

// visionSystemPrompt is the fixed system role for the image path, grounded
// on the same source's analyze_image system_prompt.
const visionSystemPrompt = `You are a wildlife and flora assistant analyzing an image of a plant, animal, or insect. A scientific name may already have been identified for you below.

You must answer using ONLY the information in the KNOWLEDGE BASE CONTEXT section, when one is provided. Do not draw on prior training knowledge to fill gaps. Describe what is visible in the image, but only make detailed claims (edibility, toxicity, behavior) when they are backed by the provided context.

Answer directly; do not preface responses with phrases like "based on the information I have".`

// Retriever is the narrow interface rag.Orchestrator needs from C5 —
// satisfied by *retriever.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) (string, error)
}

// Orchestrator wires the Intent Classifier, one Retriever per domain, and
// the LLM client together into answer_text / answer_image.
type Orchestrator struct {
	classifier     *classifier.Classifier
	llmClient      llm.Client
	plantRetriever Retriever
	animalRetriever Retriever
}

// New builds an Orchestrator. plantRetriever/animalRetriever scope C5 to
// each domain's vector index.
func New(cls *classifier.Classifier, llmClient llm.Client, plantRetriever, animalRetriever Retriever) *Orchestrator {
	return &Orchestrator{
		classifier:      cls,
		llmClient:       llmClient,
		plantRetriever:  plantRetriever,
		animalRetriever: animalRetriever,
	}
}

// AnswerText implements spec.md §4.7's text path.
func (o *Orchestrator) AnswerText(ctx context.Context, userMessage string, history []model.Message) (string, error) {
	classifyCtx, cancelClassify := context.WithTimeout(ctx, llmCallTimeout)
	intent := o.classifier.Classify(classifyCtx, userMessage)
	cancelClassify()

	bundle := o.retrieveForIntent(ctx, intent, userMessage)

	prompt := o.buildPrompt(systemPrompt, bundle, history, userMessage, "")

	llmCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()
	reply, err := o.llmClient.GenerateText(llmCtx, prompt)
	if err != nil {
		logger.Printf("rag: answer_text llm call failed: %v", err)
		return cannedFallbackReply(userMessage), nil
	}
	return strings.TrimSpace(reply), nil
}

// AnswerImage implements spec.md §4.7's two-step image path.
func (o *Orchestrator) AnswerImage(ctx context.Context, imageBytes []byte, mimeType, userMessage string, history []model.Message) (string, error) {
	scientificName := o.identifySpecies(ctx, imageBytes, mimeType)

	var bundle, tag string
	if scientificName != "" {
		bundle = o.retrieveBothDomains(ctx, scientificName, 3)
		tag = fmt.Sprintf("IDENTIFIED SPECIES: %s", scientificName)
	}

	prompt := o.buildPrompt(visionSystemPrompt, bundle, history, userMessage, tag)

	llmCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()
	reply, err := o.llmClient.GenerateVision(llmCtx, imageBytes, mimeType, prompt)
	if err != nil {
		logger.Printf("rag: answer_image llm call failed: %v", err)
		return cannedFallbackReply(userMessage), nil
	}
	return strings.TrimSpace(reply), nil
}

// cannedFallbackReply is the last-resort response when the LLM is entirely
// unavailable, per spec.md §7's EUpstream policy: log, substitute, never
// crash the pipeline. It echoes the user's own message back so the turn
// still gets a visible reply instead of silently vanishing.
func cannedFallbackReply(userMessage string) string {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return "I'm having trouble reaching my knowledge source right now. Please try again in a moment."
	}
	return fmt.Sprintf("I'm having trouble reaching my knowledge source right now, so I can't properly answer \"%s\" yet. Please try again in a moment.", userMessage)
}

// identifySpecies performs Step A: an identification-only vision call,
// returning "" (meaning UNKNOWN) if no binomial name can be extracted.
func (o *Orchestrator) identifySpecies(ctx context.Context, imageBytes []byte, mimeType string) string {
	const identificationPrompt = `Look at this image and identify ONLY the scientific name (binomial nomenclature) of the plant or animal shown.

Respond with ONLY the scientific name in the form "Genus species", or the single word UNKNOWN if you cannot identify it. Do not include any other text.`

	llmCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()
	resp, err := o.llmClient.GenerateVision(llmCtx, imageBytes, mimeType, identificationPrompt)
	if err != nil {
		logger.Printf("rag: species identification failed: %v", err)
		return ""
	}

	resp = strings.TrimSpace(strings.NewReplacer(`"`, "", "'", "").Replace(resp))
	if strings.EqualFold(resp, "UNKNOWN") {
		return ""
	}

	match := scientificNameRe.FindString(resp)
	return match
}

// retrieveForIntent applies spec.md §4.7's per-intent retrieval fan-out.
func (o *Orchestrator) retrieveForIntent(ctx context.Context, intent classifier.Intent, query string) string {
	switch {
	case intent.IsBoth || intent.IsAmbiguous:
		return o.retrieveBothDomains(ctx, query, 2)
	case intent.IsAnimal:
		retrieveCtx, cancel := context.WithTimeout(ctx, retrieveCallTimeout)
		defer cancel()
		bundle, err := o.animalRetriever.Retrieve(retrieveCtx, query, 3)
		if err != nil {
			logger.Printf("rag: animal retrieval failed: %v", err)
			return ""
		}
		return bundle
	case intent.IsPlant:
		retrieveCtx, cancel := context.WithTimeout(ctx, retrieveCallTimeout)
		defer cancel()
		bundle, err := o.plantRetriever.Retrieve(retrieveCtx, query, 3)
		if err != nil {
			logger.Printf("rag: plant retrieval failed: %v", err)
			return ""
		}
		return bundle
	default:
		return ""
	}
}

func (o *Orchestrator) retrieveBothDomains(ctx context.Context, query string, topK int) string {
	var wg sync.WaitGroup
	var plantBundle, animalBundle string

	retrieveCtx, cancel := context.WithTimeout(ctx, retrieveCallTimeout)
	defer cancel()

	wg.Add(2)
	go func() {
		defer wg.Done()
		bundle, err := o.plantRetriever.Retrieve(retrieveCtx, query, topK)
		if err != nil {
			logger.Printf("rag: plant retrieval failed: %v", err)
			return
		}
		plantBundle = bundle
	}()
	go func() {
		defer wg.Done()
		bundle, err := o.animalRetriever.Retrieve(retrieveCtx, query, topK)
		if err != nil {
			logger.Printf("rag: animal retrieval failed: %v", err)
			return
		}
		animalBundle = bundle
	}()
	wg.Wait()

	var parts []string
	if plantBundle != "" {
		parts = append(parts, plantBundle)
	}
	if animalBundle != "" {
		parts = append(parts, animalBundle)
	}
	return strings.Join(parts, "\n\n")
}

// buildPrompt assembles the fixed ordering from spec.md §4.7 step 3: system
// role, optional identification tag, knowledge-base (or no-context) block,
// last <= historyLimit history entries, current user message, Assistant cue.
func (o *Orchestrator) buildPrompt(system, bundle string, history []model.Message, userMessage, identifiedTag string) string {
	var b strings.Builder

	b.WriteString(system)
	b.WriteString("\n")

	if identifiedTag != "" {
		b.WriteString("\n")
		b.WriteString(identifiedTag)
		b.WriteString("\n")
	}

	if bundle != "" {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("=", 80))
		b.WriteString("\nKNOWLEDGE BASE CONTEXT:\n")
		b.WriteString(strings.Repeat("=", 80))
		b.WriteString("\n")
		b.WriteString(bundle)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("=", 80))
		b.WriteString("\nAnswer using only the information above. If it does not cover the question, say so plainly.\n")
	} else {
		b.WriteString("\nNO KNOWLEDGE BASE CONTEXT AVAILABLE.\n")
		b.WriteString("You must tell the user you don't have specific information about this topic. Do not guess.\n")
	}

	trimmed := history
	if len(trimmed) > historyLimit {
		trimmed = trimmed[len(trimmed)-historyLimit:]
	}
	for _, msg := range trimmed {
		if msg.Text == "" {
			continue
		}
		if msg.IsBot {
			fmt.Fprintf(&b, "Assistant: %s\n", msg.Text)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", msg.AuthorName, msg.Text)
		}
	}

	fmt.Fprintf(&b, "User: %s\n", userMessage)
	b.WriteString("Assistant:")

	return b.String()
}
