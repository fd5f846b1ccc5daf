package llm

import "context"

// LLMClient defines the interface for the inference capability.
type LLMClient interface {
	// CreateChatCompletionStream sends a streaming chat completion request.
	// The callback is called for each chunk received.
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
