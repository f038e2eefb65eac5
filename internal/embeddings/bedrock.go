// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/BitManipulators/wildlife-chat/internal/apperr"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

// bedrockDimension is the native width of cohere.embed-english-v3 vectors.
const bedrockDimension = 1024

// BedrockConfig configures a BedrockEmbedder.
type BedrockConfig struct {
	Region  string
	APIKey  string // not read by NewBedrockEmbedder: credentials always come from the SDK's default credential chain
	ModelID string
}

// BedrockEmbedder wraps AWS Bedrock's Cohere embedding model, grounded on
// original_source/backend/rag/rag_service.py's _generate_embedding and on
// vvoland-cagent's Bedrock client construction.
type BedrockEmbedder struct {
	client  *bedrockruntime.Client
	modelID string
	dim     int
}

// NewBedrockEmbedder builds a client against AWS Bedrock Runtime. Region
// comes from cfg.Region (falling back to the SDK's default credential
// chain if empty); ModelID defaults to cohere.embed-english-v3.
func NewBedrockEmbedder(cfg BedrockConfig) (*BedrockEmbedder, error) {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "cohere.embed-english-v3"
	}

	ctx := context.Background()
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("embeddings: load aws config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg)

	logger.Printf("embeddings: bedrock embedder initialized model=%s region=%s", modelID, cfg.Region)

	return &BedrockEmbedder{client: client, modelID: modelID, dim: bedrockDimension}, nil
}

// Dimension returns D for cohere.embed-english-v3 (1024).
func (e *BedrockEmbedder) Dimension() int {
	return e.dim
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func inputTypeFor(role Role) string {
	if role == RoleQuery {
		return "search_query"
	}
	return "search_document"
}

// EmbedText embeds a single text. role selects Cohere's input_type
// parameter ("search_query" vs "search_document"), preserving the document
// vs. query asymmetry spec.md §4.1 requires.
func (e *BedrockEmbedder) EmbedText(ctx context.Context, text string, role Role) ([]float32, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	vectors, err := e.invoke(ctx, []string{text}, role)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperr.New(apperr.EUpstream, "embeddings: bedrock returned no embeddings")
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in a single Bedrock call.
func (e *BedrockEmbedder) EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	for _, t := range texts {
		if err := validateText(t); err != nil {
			return nil, err
		}
	}
	return e.invoke(ctx, texts, role)
}

func (e *BedrockEmbedder) invoke(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	body, err := json.Marshal(cohereEmbedRequest{
		Texts:     texts,
		InputType: inputTypeFor(role),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.EInternal, "embeddings: marshal bedrock request", err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	var resp cohereEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, apperr.Wrap(apperr.EUpstream, "embeddings: decode bedrock response", err)
	}

	return resp.Embeddings, nil
}

// classifyBedrockError maps Bedrock's typed errors onto spec.md §7's
// taxonomy: throttling is rate limiting, validation is bad input, anything
// else is an opaque upstream failure.
func classifyBedrockError(err error) error {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return apperr.Wrap(apperr.ERateLimited, "embeddings: bedrock throttled", err)
	}
	var validation *types.ValidationException
	if errors.As(err, &validation) {
		return apperr.Wrap(apperr.EBadRequest, "embeddings: bedrock rejected input", err)
	}
	return apperr.Wrap(apperr.EUpstream, "embeddings: bedrock request failed", err)
}
