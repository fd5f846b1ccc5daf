package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emeraldgrove/clinic-assistant/internal/adapter/llm"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n\n"))
		}
	}))
}

func TestCreateChatCompletionStreamDeliversChunks(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	client := llm.NewClient(srv.URL, "test-key", 5*time.Second)

	var content string
	var finish string
	usage, err := client.CreateChatCompletionStream(context.Background(), &llm.ChatCompletionRequest{Model: "m"}, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta != nil {
				content += choice.Delta.Content
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, "stop", finish)
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.TotalTokens)
}

func TestCreateChatCompletionStreamParsesToolCallDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"upcoming_visits"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	client := llm.NewClient(srv.URL, "test-key", 5*time.Second)

	var calls []llm.ToolCall
	_, err := client.CreateChatCompletionStream(context.Background(), &llm.ChatCompletionRequest{Model: "m"}, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta != nil {
				calls = append(calls, choice.Delta.ToolCalls...)
			}
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "upcoming_visits", calls[0].Function.Name)
	assert.Equal(t, 0, calls[1].Index)
	assert.Equal(t, "{}", calls[1].Function.Arguments)
}

func TestCreateChatCompletionStreamSkipsMalformedChunks(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {not json}`,
		`: keep-alive comment`,
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	client := llm.NewClient(srv.URL, "test-key", 5*time.Second)

	var content string
	_, err := client.CreateChatCompletionStream(context.Background(), &llm.ChatCompletionRequest{Model: "m"}, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta != nil {
				content += choice.Delta.Content
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", content)
}

func TestCreateChatCompletionStreamSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	client := llm.NewClient(srv.URL, "test-key", 5*time.Second)

	_, err := client.CreateChatCompletionStream(context.Background(), &llm.ChatCompletionRequest{Model: "m"}, func(*llm.StreamChunk) error {
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestMockClientEchoesLastUserMessage(t *testing.T) {
	client := llm.NewMockClient()

	var content string
	finish := ""
	_, err := client.CreateChatCompletionStream(context.Background(), &llm.ChatCompletionRequest{
		Model: "m",
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "persona"},
			{Role: "user", Content: "first"},
			{Role: "user", Content: "second"},
		},
	}, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta != nil {
				content += choice.Delta.Content
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "This is a mock assistant response to: second", content)
	assert.Equal(t, "stop", finish)
}
