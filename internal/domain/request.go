package domain

// ChatRequest is the body of the chat endpoint.
type ChatRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// ChatChunk wraps a single streamed text chunk, one per SSE event.
type ChatChunk struct {
	Content string `json:"content"`
}

// StreamErrorData is the payload of a terminal error event on the chat
// stream.
type StreamErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
