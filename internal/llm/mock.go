// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import "context"

// MockClient is a scripted Client for tests: it returns a fixed response
// (or a fixed error) without making any network call.
type MockClient struct {
	TextResponse   string
	VisionResponse string
	Err            error
	AvailableFlag  bool

	TextPrompts   []string
	VisionPrompts []string
}

// NewMockClient returns a MockClient that reports itself available and
// echoes canned responses.
func NewMockClient(textResponse, visionResponse string) *MockClient {
	return &MockClient{
		TextResponse:   textResponse,
		VisionResponse: visionResponse,
		AvailableFlag:  true,
	}
}

func (m *MockClient) Available() bool { return m.AvailableFlag }

func (m *MockClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.TextPrompts = append(m.TextPrompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.TextResponse, nil
}

func (m *MockClient) GenerateVision(ctx context.Context, imageBytes []byte, mimeType, prompt string) (string, error) {
	m.VisionPrompts = append(m.VisionPrompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.VisionResponse, nil
}
