package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emeraldgrove/clinic-assistant/internal/adapter/llm"
	"github.com/emeraldgrove/clinic-assistant/internal/domain"
	"github.com/emeraldgrove/clinic-assistant/internal/policy"
	"github.com/emeraldgrove/clinic-assistant/internal/scope"
	"github.com/emeraldgrove/clinic-assistant/internal/tools"
)

// systemPrompt is the assistant persona. The per-caller scope context is
// prepended to it at prompt assembly time.
const systemPrompt = `You are the Emerald Grove Veterinary Clinic's virtual assistant.
You help visitors with questions about our veterinarians, clinic services,
pet care, and appointment scheduling.

Use the provided tools to look up current information - do not guess or
invent clinic data. If you need an owner's name to look up appointments,
ask the user politely.

Do not share personal contact details such as phone numbers or home
addresses. Limit responses to topics relevant to the clinic.

When a question is outside your scope, suggest the visitor call the clinic
directly or use the Find Owners page to manage their account.`

// maxToolRounds bounds the number of generation rounds in one turn in
// case the model keeps requesting tools.
const maxToolRounds = 8

// Chat runs one conversation turn. Text chunks are forwarded to sink as
// they arrive; the full assistant message is persisted only after the
// stream completes cleanly. A cancelled or failed turn is rolled back so
// the session history is unchanged from before the turn.
func (s *Service) Chat(ctx context.Context, sessionID, message string, caller *domain.CallerContext, sink func(chunk string) error) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}

	accessScope, scopeContext, err := scope.Resolve(caller)
	if err != nil {
		return err
	}

	if !s.acquireSession(sessionID) {
		return fmt.Errorf("%w: a response for session %s is already being generated", ErrSessionBusy, sessionID)
	}
	defer s.releaseSession(sessionID)

	ctx, cancel := context.WithTimeout(ctx, s.config.GenerationTimeout)
	defer cancel()

	createdBy := 0
	if caller != nil {
		createdBy = caller.UserID
	}
	session, err := s.store.GetOrCreateSession(ctx, sessionID, createdBy)
	if err != nil {
		return fmt.Errorf("failed to get/create session: %w", err)
	}
	if !sessionAccessible(caller, session) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	history, err := s.store.GetMessages(ctx, sessionID, s.config.HistoryWindow)
	if err != nil {
		log.Printf("WARN: failed to load history for session %s: %v", sessionID, err)
		history = nil
	}

	// The user message is appended before the inference call, the
	// assistant message after stream completion.
	userMsg := &domain.Message{
		MessageID: newMessageID(),
		SessionID: sessionID,
		Role:      domain.MessageRoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to save user message: %w", err)
	}

	systemText := systemPrompt
	if scopeContext != "" {
		systemText = scopeContext + "\n\n" + systemPrompt
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: systemText})
	for _, m := range history {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: message})

	catalog := tools.NewCatalog(s.store, accessScope, s.config.ClinicInfo)

	reply, err := s.generate(ctx, messages, catalog, caller, sink)
	if err != nil {
		// Roll back the turn: partial output already sent is not
		// retracted, but nothing of the aborted turn is persisted.
		if delErr := s.store.DeleteMessage(context.WithoutCancel(ctx), userMsg.MessageID); delErr != nil {
			log.Printf("ERROR: failed to roll back user message %s: %v", userMsg.MessageID, delErr)
		}
		return err
	}

	assistantMsg := &domain.Message{
		MessageID: newMessageID(),
		SessionID: sessionID,
		Role:      domain.MessageRoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
		log.Printf("ERROR: failed to save assistant message: %v", err)
	}
	return nil
}

// generate runs the streaming generation loop, executing model-requested
// tool calls between rounds. It returns the concatenated response text.
func (s *Service) generate(ctx context.Context, messages []llm.ChatMessage, catalog *tools.Catalog, caller *domain.CallerContext, sink func(string) error) (string, error) {
	role := domain.RoleAdmin
	if caller != nil {
		role = caller.Role
	}

	var reply strings.Builder
	for round := 0; round < maxToolRounds; round++ {
		req := &llm.ChatCompletionRequest{
			Model:    s.config.LLMModel,
			Messages: messages,
			Tools:    catalog.Definitions(),
		}

		var roundText strings.Builder
		var calls []llm.ToolCall
		callByIndex := make(map[int]int)
		finishReason := ""

		_, err := s.llmClient.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
			for _, choice := range chunk.Choices {
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					reply.WriteString(choice.Delta.Content)
					roundText.WriteString(choice.Delta.Content)
					if err := sink(choice.Delta.Content); err != nil {
						return err
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					pos, seen := callByIndex[tc.Index]
					if !seen {
						calls = append(calls, llm.ToolCall{ID: tc.ID, Type: "function"})
						pos = len(calls) - 1
						callByIndex[tc.Index] = pos
					}
					if tc.ID != "" {
						calls[pos].ID = tc.ID
					}
					if tc.Function.Name != "" {
						calls[pos].Function.Name = tc.Function.Name
					}
					calls[pos].Function.Arguments += tc.Function.Arguments
				}
			}
			return nil
		})
		if err != nil {
			return reply.String(), fmt.Errorf("inference failed: %w", err)
		}

		if finishReason != "tool_calls" || len(calls) == 0 {
			return reply.String(), nil
		}

		// Text produced in the same round travels with the tool request so
		// later rounds see the full assistant turn.
		messages = append(messages, llm.ChatMessage{Role: "assistant", Content: roundText.String(), ToolCalls: calls})
		for _, call := range calls {
			if ctx.Err() != nil {
				return reply.String(), fmt.Errorf("inference failed: %w", ctx.Err())
			}
			result := s.executeToolCall(ctx, catalog, role, call)
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				Content:    string(result),
				ToolCallID: call.ID,
			})
		}
	}

	return reply.String(), fmt.Errorf("inference failed: tool call limit exceeded after %d rounds", maxToolRounds)
}

// executeToolCall gates a model-requested call through the tool policy and
// runs it. Tool failures degrade to an empty result; they never crash the
// conversation turn.
func (s *Service) executeToolCall(ctx context.Context, catalog *tools.Catalog, role domain.Role, call llm.ToolCall) json.RawMessage {
	toolName := call.Function.Name

	allowed, err := s.policyEngine.Allow(ctx, policy.Input{ToolName: toolName, Role: string(role)})
	if err != nil {
		log.Printf("ERROR: policy evaluation for tool %s failed: %v", toolName, err)
		allowed = false
	}
	if !allowed {
		log.Printf("WARN: tool %s denied by policy", toolName)
		return json.RawMessage(`{"error":"tool not available"}`)
	}

	args := json.RawMessage(call.Function.Arguments)
	result, err := catalog.Execute(ctx, toolName, args)
	if err != nil {
		log.Printf("ERROR: tool %s failed: %v", toolName, err)
		return json.RawMessage(`[]`)
	}
	return result
}

func newMessageID() string {
	return "msg_" + uuid.New().String()[:8]
}
