package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient is a canned implementation of LLMClient for local development
// without an upstream model.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletionStream simulates a streaming response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	responseContent := m.generateMockResponse(req)
	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	chunks := splitIntoChunks(responseContent, 10)
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		finishReason := ""
		if i == len(chunks)-1 {
			finishReason = "stop"
		}

		streamChunk := &StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []Choice{
				{
					Index: 0,
					Delta: &ChatMessage{
						Role:    "assistant",
						Content: chunk,
					},
					FinishReason: finishReason,
				},
			},
		}

		if err := callback(streamChunk); err != nil {
			return nil, err
		}
	}

	return &Usage{
		CompletionTokens: len(responseContent) / 4,
		TotalTokens:      len(responseContent) / 4,
	}, nil
}

func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}
	return fmt.Sprintf("This is a mock assistant response to: %s", strings.TrimSpace(lastUser))
}

func splitIntoChunks(s string, size int) []string {
	if size <= 0 || s == "" {
		return []string{s}
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}
