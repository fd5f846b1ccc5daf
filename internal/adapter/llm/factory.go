package llm

import (
	"log"
	"os"
	"time"
)

const (
	// EnvChatMode is the environment variable name for mode selection.
	EnvChatMode = "CHAT_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates an LLM client based on the CHAT_MODE environment
// variable. CHAT_MODE=MOCK returns a MockClient; otherwise a real Client.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	if os.Getenv(EnvChatMode) == ModeMock {
		log.Println("CHAT_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
