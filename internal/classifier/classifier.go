// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package classifier implements the Intent Classifier (C6): is a query
// about plants, animals, both, or ambiguous.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BitManipulators/wildlife-chat/internal/llm"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

// Intent is the four-boolean classification result. is_both and
// is_ambiguous are mutually exclusive and at least one flag is set: the
// prompt demands it, and Classify replaces a reply that breaks either rule
// with the ambiguous fallback.
type Intent struct {
	IsAnimal    bool
	IsPlant     bool
	IsBoth      bool
	IsAmbiguous bool
}

// ambiguousIntent is the fallback returned whenever classification cannot
// be trusted — a recall-safe default per spec.md §4.6's rationale.
var ambiguousIntent = Intent{IsAmbiguous: true}

// Classifier issues a single fixed-prompt LLM call per query.
type Classifier struct {
	client llm.Client
}

// New builds a Classifier over an llm.Client.
func New(client llm.Client) *Classifier {
	return &Classifier{client: client}
}

// Classify returns the detected intent. Any LLM failure, empty response, or
// malformed JSON falls back to is_ambiguous=true rather than propagating an
// error — callers always get a usable Intent.
func (c *Classifier) Classify(ctx context.Context, query string) Intent {
	if !c.client.Available() {
		logger.Printf("classifier: llm unavailable, defaulting to ambiguous")
		return ambiguousIntent
	}

	resp, err := c.client.GenerateText(ctx, classificationPrompt(query))
	if err != nil {
		logger.Printf("classifier: llm call failed: %v", err)
		return ambiguousIntent
	}

	resp = strings.TrimSpace(resp)
	if resp == "" {
		logger.Printf("classifier: empty llm response, defaulting to ambiguous")
		return ambiguousIntent
	}

	intent, ok := parseIntent(resp)
	if !ok {
		logger.Printf("classifier: could not parse llm response %q, defaulting to ambiguous", resp)
		return ambiguousIntent
	}
	noneSet := !intent.IsAnimal && !intent.IsPlant && !intent.IsBoth && !intent.IsAmbiguous
	if noneSet || (intent.IsBoth && intent.IsAmbiguous) {
		logger.Printf("classifier: inconsistent intent %+v, defaulting to ambiguous", intent)
		return ambiguousIntent
	}
	return intent
}

// parseIntent strips markdown code-fence wrappers, parses the JSON object,
// validates presence of all four keys, and coerces to booleans.
func parseIntent(raw string) (Intent, bool) {
	raw = stripCodeFence(raw)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Intent{}, false
	}

	required := []string{"is_animal", "is_plant", "is_both", "is_ambiguous"}
	for _, key := range required {
		if _, ok := decoded[key]; !ok {
			return Intent{}, false
		}
	}

	return Intent{
		IsAnimal:    coerceBool(decoded["is_animal"]),
		IsPlant:     coerceBool(decoded["is_plant"]),
		IsBoth:      coerceBool(decoded["is_both"]),
		IsAmbiguous: coerceBool(decoded["is_ambiguous"]),
	}, true
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func coerceBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// classificationPrompt builds the fixed classification prompt, grounded in
// structure on original_source/backend/main.py's _detect_query_intent
// (system framing + JSON-shape instruction + classification rules + worked
// examples), rewritten in this module's own voice.
func classificationPrompt(query string) string {
	return fmt.Sprintf(`You classify queries for a wildlife knowledge base into one or more of: animals/insects/wildlife, plants/flora, both domains, or ambiguous/unclear.

Query: %q

Respond with ONLY a JSON object, no markdown or code fences, in exactly this shape:
{"is_animal": true or false, "is_plant": true or false, "is_both": true or false, "is_ambiguous": true or false}

Rules:
- Mentions of specific animals, insects, birds, mammals, reptiles -> is_animal: true
- Mentions of specific plants, trees, flowers, fungi, herbs -> is_plant: true
- Mentions of both domains -> is_both: true, is_animal: true, is_plant: true
- Unclear, too general, or could be either -> is_ambiguous: true
- is_both and is_ambiguous are never both true
- A clearly single-domain query sets is_ambiguous: false

Examples:
"where do grizzly bears den?" -> {"is_animal": true, "is_plant": false, "is_both": false, "is_ambiguous": false}
"which of these berries are edible?" -> {"is_animal": false, "is_plant": true, "is_both": false, "is_ambiguous": false}
"what lives in this forest?" -> {"is_animal": true, "is_plant": true, "is_both": true, "is_ambiguous": false}
"tell me something interesting" -> {"is_animal": false, "is_plant": false, "is_both": false, "is_ambiguous": true}

Classify the query above.`, query)
}
