// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command eval-harness runs the LLM-as-judge evaluation pipeline over a
// dataset of (question, context, response) examples and writes a scored
// JSON report. This is an offline developer/CI tool, decoupled from the
// live chat-server traffic path; grounded on
// original_source/backend/evaluation/run_evaluation.py's CLI entry point.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/BitManipulators/wildlife-chat/internal/config"
	"github.com/BitManipulators/wildlife-chat/internal/eval"
	"github.com/BitManipulators/wildlife-chat/internal/llm"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

func main() {
	dataset := flag.String("dataset", "", "path to a JSON array of evaluation examples (required)")
	output := flag.String("output", "evaluation_results.json", "output path for the scored report")
	model := flag.String("model", "", "judge model name (defaults to LLM_MODEL_NAME or the pipeline default)")
	maxExamples := flag.Int("max-examples", 0, "limit the number of examples evaluated (0 = all)")
	concurrent := flag.Int("concurrent", 0, "number of examples judged concurrently (0 = pipeline default)")
	flag.Parse()

	if *dataset == "" {
		logger.Fatalf("eval-harness: -dataset is required")
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "eval-harness.log"
	}
	l, err := logger.Init(logFile)
	if err != nil {
		panic(err)
	}
	defer l.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("eval-harness: load config: %v", err)
	}

	examples, err := eval.LoadExamples(*dataset)
	if err != nil {
		logger.Fatalf("eval-harness: load dataset: %v", err)
	}

	pipelineCfg := eval.DefaultPipelineConfig()
	if *model != "" {
		pipelineCfg.JudgeModel = *model
	} else if cfg.LLMModelName != "" {
		pipelineCfg.JudgeModel = cfg.LLMModelName
	}
	pipelineCfg.MaxExamples = *maxExamples
	pipelineCfg.ConcurrentEvaluations = *concurrent

	judgeClient := initJudgeClient(cfg, pipelineCfg.JudgeModel)
	judge := eval.NewJudge(judgeClient, pipelineCfg.JudgeModel)
	pipeline := eval.NewPipeline(judge, pipelineCfg)

	logger.Printf("eval-harness: judging %d examples with model=%s concurrent=%d", len(examples), pipelineCfg.JudgeModel, pipelineCfg.ConcurrentEvaluations)
	report := pipeline.Run(context.Background(), examples)

	if err := eval.WriteReport(*output, report); err != nil {
		logger.Fatalf("eval-harness: write report: %v", err)
	}

	logger.Printf("eval-harness: done examples=%d errors=%d mean_score=%.2f min=%.2f max=%.2f, report written to %s",
		report.Summary.ExampleCount, report.Summary.ErrorCount, report.Summary.MeanScore, report.Summary.MinScore, report.Summary.MaxScore, *output)
}

// initJudgeClient mirrors cmd/chat-server's initLLM degrade-to-mock
// pattern: a missing LLM_API_KEY still lets the harness run end-to-end
// against canned responses instead of failing outright.
func initJudgeClient(cfg *config.Config, judgeModel string) llm.Client {
	if cfg.LLMAPIKey == "" {
		logger.Printf("eval-harness: no llm credentials configured, using mock client")
		return llm.NewMockClient(`{"score": 5, "reasoning": "mock judge, no credentials configured", "confidence": 0.0}`, "")
	}
	client, err := llm.NewGeminiClient(context.Background(), cfg.LLMAPIKey, judgeModel)
	if err != nil {
		logger.Errorf("eval-harness: gemini client unavailable (%v), falling back to mock", err)
		return llm.NewMockClient(`{"score": 5, "reasoning": "mock judge, llm unavailable", "confidence": 0.0}`, "")
	}
	return client
}
