// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package eval

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BitManipulators/wildlife-chat/internal/llm"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

// Judge scores one Example per Metric by prompting an llm.Client and parsing
// its JSON response, grounded on llm_judge.py's LLMJudge.
type Judge struct {
	client llm.Client
	model  string
}

// NewJudge builds a Judge. model is recorded on every Result for
// reproducibility across evaluation runs, as llm_judge.py's judge_model
// field does.
func NewJudge(client llm.Client, model string) *Judge {
	return &Judge{client: client, model: model}
}

// Evaluate scores every metric for e and returns the aggregated Result. A
// per-metric judge-call failure (or an unavailable judge) degrades that
// single metric to a zero score with the error recorded in its reasoning; a
// reply that cannot be parsed as JSON degrades it to parseJudgeResponse's
// default score of 5 with confidence 0. Neither aborts the whole example,
// per llm_judge.py's per-metric try/except.
func (j *Judge) Evaluate(ctx context.Context, e Example) Result {
	metrics := make(map[Metric]MetricResult, len(allMetrics))
	for _, m := range allMetrics {
		metrics[m] = j.evaluateMetric(ctx, m, e)
	}

	return Result{
		ExampleID:    e.ID,
		Question:     e.Question,
		Metrics:      metrics,
		OverallScore: weightedOverallScore(metrics),
		JudgeModel:   j.model,
	}
}

func (j *Judge) evaluateMetric(ctx context.Context, m Metric, e Example) MetricResult {
	if !j.client.Available() {
		logger.Printf("eval: judge llm unavailable, scoring metric %s as 0", m)
		return MetricResult{Metric: m, Score: 0, Reasoning: "judge llm unavailable"}
	}

	prompt := promptForMetric(m, e)

	text, err := j.client.GenerateText(ctx, prompt)
	if err != nil {
		logger.Printf("eval: judge call for metric %s failed: %v", m, err)
		return MetricResult{Metric: m, Score: 0, Reasoning: "judge call failed: " + err.Error()}
	}

	parsed := parseJudgeResponse(text)

	score, _ := parsed["score"].(float64)
	reasoning, _ := parsed["reasoning"].(string)
	confidence, hasConfidence := parsed["confidence"].(float64)
	if !hasConfidence {
		confidence = 0.8
	}
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}

	return MetricResult{Metric: m, Score: score, Reasoning: reasoning, Confidence: confidence}
}

var (
	jsonFencePattern = regexp.MustCompile("(?is)```json\\s*\\n?(.*?)\\n?```")
	codeFencePattern = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\n?```")
	braceScanPattern = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// parseJudgeResponse extracts a JSON object from a judge's free-form reply,
// mirroring llm_judge.py's _parse_json_response fallback chain: direct
// decode, then a ```json fenced block, then a generic fenced block, then a
// balanced-brace scan, then the widest substring starting at the first "{".
// A response that defeats every strategy degrades to a synthetic
// default-score object rather than propagating a parse error, so one
// malformed judge reply never aborts the run.
func parseJudgeResponse(text string) map[string]any {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		logger.Printf("eval: empty judge response")
		return defaultJudgeResult()
	}

	if obj, ok := tryDecode(cleaned); ok {
		return obj
	}

	if match := jsonFencePattern.FindStringSubmatch(cleaned); match != nil {
		if obj, ok := tryDecode(strings.TrimSpace(match[1])); ok {
			return obj
		}
	}

	if match := codeFencePattern.FindStringSubmatch(cleaned); match != nil {
		candidate := strings.TrimSpace(match[1])
		if strings.HasPrefix(candidate, "{") {
			if obj, ok := tryDecode(candidate); ok {
				return obj
			}
		}
	}

	if match := braceScanPattern.FindString(cleaned); match != "" {
		if obj, ok := tryDecode(match); ok {
			return obj
		}
	}

	if start := strings.Index(cleaned, "{"); start != -1 {
		for end := len(cleaned); end > start; end-- {
			if cleaned[end-1] != '}' {
				continue
			}
			if obj, ok := tryDecode(cleaned[start:end]); ok {
				return obj
			}
		}
	}

	logger.Printf("eval: could not parse judge response, using default score")
	return defaultJudgeResult()
}

func tryDecode(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func defaultJudgeResult() map[string]any {
	return map[string]any{
		"score":      5.0,
		"reasoning":  "Failed to parse judge response",
		"confidence": 0.0,
	}
}
