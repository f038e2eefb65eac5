// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BitManipulators/wildlife-chat/internal/classifier"
	"github.com/BitManipulators/wildlife-chat/internal/llm"
	"github.com/BitManipulators/wildlife-chat/internal/model"
)

type stubRetriever struct {
	bundle string
	err    error
	calls  []struct {
		query string
		topK  int
	}
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	s.calls = append(s.calls, struct {
		query string
		topK  int
	}{query, topK})
	return s.bundle, s.err
}

func TestAnswerText_UsesKnowledgeBaseContextWhenPresent(t *testing.T) {
	intentJSON := `{"is_animal": true, "is_plant": false, "is_both": false, "is_ambiguous": false}`
	mockLLM := llm.NewMockClient("A grizzly bear is a large brown bear subspecies.", "")
	classifierLLM := llm.NewMockClient(intentJSON, "")
	cls := classifier.New(classifierLLM)

	animalR := &stubRetriever{bundle: "=== Ursus arctos horribilis ===\nCommon Name: Grizzly bear\n"}
	plantR := &stubRetriever{}

	orch := New(cls, mockLLM, plantR, animalR)

	reply, err := orch.AnswerText(context.Background(), "tell me about grizzly bears", nil)
	if err != nil {
		t.Fatalf("AnswerText: %v", err)
	}
	if reply != "A grizzly bear is a large brown bear subspecies." {
		t.Errorf("unexpected reply: %q", reply)
	}

	if len(animalR.calls) != 1 || animalR.calls[0].topK != 3 {
		t.Errorf("expected one animal retrieval at top_k=3, got %+v", animalR.calls)
	}
	if len(plantR.calls) != 0 {
		t.Errorf("expected no plant retrieval for an animal-only intent, got %+v", plantR.calls)
	}

	prompt := mockLLM.TextPrompts[0]
	if !strings.Contains(prompt, "KNOWLEDGE BASE CONTEXT") {
		t.Errorf("expected prompt to include knowledge base section, got: %s", prompt)
	}
	if !strings.Contains(prompt, "Grizzly bear") {
		t.Errorf("expected prompt to include retrieved bundle")
	}
}

func TestAnswerText_AmbiguousIntentQueriesBothDomainsAtTopK2(t *testing.T) {
	ambiguousJSON := `{"is_animal": false, "is_plant": false, "is_both": false, "is_ambiguous": true}`
	classifierLLM := llm.NewMockClient(ambiguousJSON, "")
	cls := classifier.New(classifierLLM)
	mockLLM := llm.NewMockClient("I don't have specific information about this.", "")

	animalR := &stubRetriever{bundle: "animal context"}
	plantR := &stubRetriever{bundle: "plant context"}

	orch := New(cls, mockLLM, plantR, animalR)
	_, err := orch.AnswerText(context.Background(), "tell me about nature", nil)
	if err != nil {
		t.Fatalf("AnswerText: %v", err)
	}

	if len(animalR.calls) != 1 || animalR.calls[0].topK != 2 {
		t.Errorf("expected animal retrieval at top_k=2, got %+v", animalR.calls)
	}
	if len(plantR.calls) != 1 || plantR.calls[0].topK != 2 {
		t.Errorf("expected plant retrieval at top_k=2, got %+v", plantR.calls)
	}
}

func TestAnswerText_NoContextInstructsDecline(t *testing.T) {
	ambiguousJSON := `{"is_animal": false, "is_plant": false, "is_both": false, "is_ambiguous": true}`
	classifierLLM := llm.NewMockClient(ambiguousJSON, "")
	cls := classifier.New(classifierLLM)
	mockLLM := llm.NewMockClient("reply", "")

	orch := New(cls, mockLLM, &stubRetriever{}, &stubRetriever{})
	_, err := orch.AnswerText(context.Background(), "tell me about nature", nil)
	if err != nil {
		t.Fatalf("AnswerText: %v", err)
	}

	prompt := mockLLM.TextPrompts[0]
	if !strings.Contains(prompt, "NO KNOWLEDGE BASE CONTEXT AVAILABLE") {
		t.Errorf("expected no-context instruction in prompt, got: %s", prompt)
	}
}

func TestAnswerText_HistoryTrimmedToLast10InChronologicalOrder(t *testing.T) {
	ambiguousJSON := `{"is_animal": false, "is_plant": false, "is_both": false, "is_ambiguous": true}`
	classifierLLM := llm.NewMockClient(ambiguousJSON, "")
	cls := classifier.New(classifierLLM)
	mockLLM := llm.NewMockClient("reply", "")

	history := make([]model.Message, 0, 15)
	base := time.Now()
	for i := 0; i < 15; i++ {
		history = append(history, model.Message{
			AuthorName: "Alice",
			Text:       "msg-" + string(rune('A'+i)),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}

	orch := New(cls, mockLLM, &stubRetriever{}, &stubRetriever{})
	_, err := orch.AnswerText(context.Background(), "current question", history)
	if err != nil {
		t.Fatalf("AnswerText: %v", err)
	}

	prompt := mockLLM.TextPrompts[0]
	if strings.Contains(prompt, history[0].Text) {
		t.Errorf("expected oldest-of-15 message to be trimmed out of prompt")
	}
	if !strings.Contains(prompt, history[len(history)-1].Text) {
		t.Errorf("expected most recent message to be present in prompt")
	}

	oldestKeptIdx := strings.Index(prompt, history[5].Text)
	newestIdx := strings.Index(prompt, history[14].Text)
	if oldestKeptIdx == -1 || newestIdx == -1 || oldestKeptIdx > newestIdx {
		t.Errorf("expected history in chronological order within prompt")
	}
}

func TestAnswerImage_IdentifiesSpeciesThenRetrievesBothDomains(t *testing.T) {
	mockLLM := llm.NewMockClient("", "Azadirachta indica is a fast-growing tree.")
	mockLLM.VisionResponse = "Azadirachta indica"

	plantR := &stubRetriever{bundle: "=== Azadirachta indica ===\n"}
	animalR := &stubRetriever{}

	cls := classifier.New(llm.NewMockClient("", ""))
	orch := New(cls, mockLLM, plantR, animalR)

	reply, err := orch.AnswerImage(context.Background(), []byte("fakejpeg"), "image/jpeg", "what is this?", nil)
	if err != nil {
		t.Fatalf("AnswerImage: %v", err)
	}
	if reply == "" {
		t.Errorf("expected non-empty reply")
	}

	if len(plantR.calls) != 1 || plantR.calls[0].query != "Azadirachta indica" || plantR.calls[0].topK != 3 {
		t.Errorf("expected plant retrieval by scientific name at top_k=3, got %+v", plantR.calls)
	}
	if len(animalR.calls) != 1 || animalR.calls[0].topK != 3 {
		t.Errorf("expected animal retrieval at top_k=3, got %+v", animalR.calls)
	}

	finalPrompt := mockLLM.VisionPrompts[len(mockLLM.VisionPrompts)-1]
	if !strings.Contains(finalPrompt, "IDENTIFIED SPECIES: Azadirachta indica") {
		t.Errorf("expected identification tag in final prompt, got: %s", finalPrompt)
	}
}

func TestAnswerImage_UnknownSpeciesSkipsRetrieval(t *testing.T) {
	mockLLM := llm.NewMockClient("", "I can see a plant but cannot identify it precisely.")
	mockLLM.VisionResponse = "UNKNOWN"

	plantR := &stubRetriever{}
	animalR := &stubRetriever{}

	cls := classifier.New(llm.NewMockClient("", ""))
	orch := New(cls, mockLLM, plantR, animalR)

	_, err := orch.AnswerImage(context.Background(), []byte("fakejpeg"), "image/jpeg", "", nil)
	if err != nil {
		t.Fatalf("AnswerImage: %v", err)
	}

	if len(plantR.calls) != 0 || len(animalR.calls) != 0 {
		t.Errorf("expected no retrieval when species is UNKNOWN, got plant=%+v animal=%+v", plantR.calls, animalR.calls)
	}

	finalPrompt := mockLLM.VisionPrompts[len(mockLLM.VisionPrompts)-1]
	if strings.Contains(finalPrompt, "IDENTIFIED SPECIES") {
		t.Errorf("expected no identification tag for UNKNOWN species, got: %s", finalPrompt)
	}
}
