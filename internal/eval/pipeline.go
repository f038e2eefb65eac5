// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package eval

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

// PipelineConfig controls a Run, grounded on evaluation_pipeline.py's
// PipelineConfig. The original's W&B fields (wandb_project,
// wandb_experiment_name, wandb_tags, enable_wandb) are dropped — see
// DESIGN.md's dropped-dependency ledger — in favor of a local JSON report.
type PipelineConfig struct {
	JudgeModel             string
	ConcurrentEvaluations  int
	MaxExamples            int
}

// DefaultPipelineConfig mirrors evaluation_pipeline.py's dataclass defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		JudgeModel:            "gemini-2.5-flash",
		ConcurrentEvaluations: 3,
	}
}

// Report is the run-level output written to disk, mirroring
// evaluation_pipeline.py's final results JSON (per-example results plus an
// aggregate summary) without the W&B upload step.
type Report struct {
	Config  PipelineConfig `json:"config"`
	Results []Result       `json:"results"`
	Summary Summary        `json:"summary"`
}

// Summary aggregates Results the way evaluation_pipeline.py's
// run's final log line and overall_scores stats block do.
type Summary struct {
	ExampleCount int     `json:"exampleCount"`
	ErrorCount   int     `json:"errorCount"`
	MeanScore    float64 `json:"meanScore"`
	MinScore     float64 `json:"minScore"`
	MaxScore     float64 `json:"maxScore"`
}

// Pipeline runs a Judge over a dataset of Examples with bounded concurrency.
type Pipeline struct {
	judge  *Judge
	config PipelineConfig
}

// NewPipeline builds a Pipeline. A zero ConcurrentEvaluations falls back to
// DefaultPipelineConfig's value of 3, matching the original's default.
func NewPipeline(judge *Judge, cfg PipelineConfig) *Pipeline {
	if cfg.ConcurrentEvaluations <= 0 {
		cfg.ConcurrentEvaluations = DefaultPipelineConfig().ConcurrentEvaluations
	}
	return &Pipeline{judge: judge, config: cfg}
}

// Run evaluates examples (truncated to config.MaxExamples when positive)
// concurrently, bounded by config.ConcurrentEvaluations, and returns the
// assembled Report. Per-example panics are not recovered — a judge call
// failure degrades to a zero-score MetricResult (see Judge.evaluateMetric),
// it never aborts the batch.
func (p *Pipeline) Run(ctx context.Context, examples []Example) Report {
	if p.config.MaxExamples > 0 && len(examples) > p.config.MaxExamples {
		logger.Printf("eval: dataset has %d examples, truncating to max-examples=%d", len(examples), p.config.MaxExamples)
		examples = examples[:p.config.MaxExamples]
	}

	results := make([]Result, len(examples))
	sem := make(chan struct{}, p.config.ConcurrentEvaluations)
	var wg sync.WaitGroup

	for i, ex := range examples {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ex Example) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.judge.Evaluate(ctx, ex)
			logger.Printf("eval: example %s overall_score=%.2f", ex.ID, results[i].OverallScore)
		}(i, ex)
	}
	wg.Wait()

	return Report{
		Config:  p.config,
		Results: results,
		Summary: summarize(results),
	}
}

func summarize(results []Result) Summary {
	s := Summary{ExampleCount: len(results)}
	if len(results) == 0 {
		return s
	}

	var sum, min, max float64
	scored := 0
	for _, r := range results {
		if r.Error != "" {
			s.ErrorCount++
			continue
		}
		if scored == 0 {
			min, max = r.OverallScore, r.OverallScore
		}
		if r.OverallScore < min {
			min = r.OverallScore
		}
		if r.OverallScore > max {
			max = r.OverallScore
		}
		sum += r.OverallScore
		scored++
	}

	if scored > 0 {
		s.MeanScore = sum / float64(scored)
		s.MinScore = min
		s.MaxScore = max
	}
	return s
}

// WriteReport writes report to path as indented JSON, the local substitute
// for evaluation_pipeline.py's W&B-tracked results export (see DESIGN.md).
func WriteReport(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadExamples reads a JSON array of Example from path, mirroring
// run_evaluation.py's --dataset flag loading sample_dataset.json.
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var examples []Example
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, err
	}
	return examples, nil
}
