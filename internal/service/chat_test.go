package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emeraldgrove/clinic-assistant/internal/adapter/llm"
	"github.com/emeraldgrove/clinic-assistant/internal/config"
	"github.com/emeraldgrove/clinic-assistant/internal/domain"
	"github.com/emeraldgrove/clinic-assistant/internal/policy"
	"github.com/emeraldgrove/clinic-assistant/internal/repository"
	"github.com/emeraldgrove/clinic-assistant/internal/service"
	"github.com/emeraldgrove/clinic-assistant/tests/helpers"
)

// scriptedRound is one scripted model response: text chunks, then either an
// error, a tool-call request, or a clean stop.
type scriptedRound struct {
	chunks        []string
	toolCalls     []llm.ToolCall
	err           error
	waitForCancel bool
}

// scriptedLLM plays back scripted rounds and records every request it sees.
type scriptedLLM struct {
	mu       sync.Mutex
	rounds   []scriptedRound
	requests []*llm.ChatCompletionRequest
}

func (f *scriptedLLM) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) (*llm.Usage, error) {
	f.mu.Lock()
	reqCopy := *req
	reqCopy.Messages = append([]llm.ChatMessage(nil), req.Messages...)
	f.requests = append(f.requests, &reqCopy)
	round := len(f.requests) - 1
	f.mu.Unlock()

	if round >= len(f.rounds) {
		return nil, fmt.Errorf("unscripted round %d", round)
	}
	script := f.rounds[round]

	if script.waitForCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	for _, text := range script.chunks {
		if err := callback(&llm.StreamChunk{
			Choices: []llm.Choice{{Delta: &llm.ChatMessage{Content: text}}},
		}); err != nil {
			return nil, err
		}
	}

	if script.err != nil {
		return nil, script.err
	}

	if len(script.toolCalls) > 0 {
		// Tool calls arrive as deltas: id and name first, arguments after.
		for i, call := range script.toolCalls {
			head := llm.ToolCall{Index: i, ID: call.ID, Type: "function"}
			head.Function.Name = call.Function.Name
			if err := callback(&llm.StreamChunk{
				Choices: []llm.Choice{{Delta: &llm.ChatMessage{ToolCalls: []llm.ToolCall{head}}}},
			}); err != nil {
				return nil, err
			}
			tail := llm.ToolCall{Index: i}
			tail.Function.Arguments = call.Function.Arguments
			if err := callback(&llm.StreamChunk{
				Choices: []llm.Choice{{Delta: &llm.ChatMessage{ToolCalls: []llm.ToolCall{tail}}}},
			}); err != nil {
				return nil, err
			}
		}
		if err := callback(&llm.StreamChunk{
			Choices: []llm.Choice{{FinishReason: "tool_calls"}},
		}); err != nil {
			return nil, err
		}
		return &llm.Usage{}, nil
	}

	if err := callback(&llm.StreamChunk{
		Choices: []llm.Choice{{FinishReason: "stop"}},
	}); err != nil {
		return nil, err
	}
	return &llm.Usage{}, nil
}

func newTestService(t *testing.T, client llm.LLMClient) (*service.Service, *repository.SQLiteStore) {
	t.Helper()

	store := helpers.NewTestStore(t)
	require.NoError(t, store.Seed(context.Background()))

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	cfg := &config.Config{
		LLMModel:          "test-model",
		GenerationTimeout: 5 * time.Second,
		HistoryWindow:     20,
		StreamBufferSize:  16,
		ClinicInfo:        config.DefaultClinicInfo,
	}
	return service.New(store, client, engine, cfg), store
}

func collectSink(chunks *[]string) func(string) error {
	return func(chunk string) error {
		*chunks = append(*chunks, chunk)
		return nil
	}
}

func ownerCaller(id int, name string) *domain.CallerContext {
	return &domain.CallerContext{UserID: 100 + id, DisplayName: name, Role: domain.RoleOwner, OwnerID: &id}
}

func adminCaller() *domain.CallerContext {
	return &domain.CallerContext{UserID: 1, DisplayName: "admin@emeraldgrove.example", Role: domain.RoleAdmin}
}

func TestChatStreamsAndPersistsUserThenAssistant(t *testing.T) {
	fake := &scriptedLLM{rounds: []scriptedRound{
		{chunks: []string{"Hello", " there."}},
	}}
	svc, store := newTestService(t, fake)

	var chunks []string
	err := svc.Chat(context.Background(), "sess-1", "Hi!", ownerCaller(1, "George Franklin"), collectSink(&chunks))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " there."}, chunks)

	messages, err := store.GetMessages(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "Hi!", messages[0].Content)
	assert.Equal(t, domain.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, "Hello there.", messages[1].Content)
}

func TestChatSystemPromptCarriesCallerContext(t *testing.T) {
	fake := &scriptedLLM{rounds: []scriptedRound{{chunks: []string{"ok"}}}}
	svc, _ := newTestService(t, fake)

	var chunks []string
	require.NoError(t, svc.Chat(context.Background(), "sess-ctx", "Hi", ownerCaller(1, "George Franklin"), collectSink(&chunks)))

	require.Len(t, fake.requests, 1)
	system := fake.requests[0].Messages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "The current user is George Franklin (role: OWNER)")
	assert.Contains(t, system.Content, "Emerald Grove Veterinary Clinic")
	assert.NotEmpty(t, fake.requests[0].Tools)
}

func TestChatIncludesSessionHistory(t *testing.T) {
	fake := &scriptedLLM{rounds: []scriptedRound{
		{chunks: []string{"First."}},
		{chunks: []string{"Second."}},
	}}
	svc, _ := newTestService(t, fake)

	var chunks []string
	require.NoError(t, svc.Chat(context.Background(), "sess-h", "first question", nil, collectSink(&chunks)))
	require.NoError(t, svc.Chat(context.Background(), "sess-h", "second question", nil, collectSink(&chunks)))

	require.Len(t, fake.requests, 2)
	msgs := fake.requests[1].Messages
	// system, prior user, prior assistant, new user
	require.Len(t, msgs, 4)
	assert.Equal(t, "first question", msgs[1].Content)
	assert.Equal(t, "First.", msgs[2].Content)
	assert.Equal(t, "second question", msgs[3].Content)
}

func TestChatRejectsBlankInputs(t *testing.T) {
	fake := &scriptedLLM{}
	svc, store := newTestService(t, fake)

	var chunks []string
	err := svc.Chat(context.Background(), "  ", "hello", nil, collectSink(&chunks))
	assert.ErrorIs(t, err, service.ErrValidation)

	err = svc.Chat(context.Background(), "sess-v", "   ", nil, collectSink(&chunks))
	assert.ErrorIs(t, err, service.ErrValidation)

	assert.Empty(t, chunks)
	assert.Empty(t, fake.requests)

	messages, err := store.GetMessages(context.Background(), "sess-v", 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatRejectsConcurrentTurnsOnSameSession(t *testing.T) {
	blocking := &blockingLLM{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc, _ := newTestService(t, blocking)

	firstDone := make(chan error, 1)
	go func() {
		var chunks []string
		firstDone <- svc.Chat(context.Background(), "sess-busy", "slow question", nil, collectSink(&chunks))
	}()

	<-blocking.started

	var chunks []string
	err := svc.Chat(context.Background(), "sess-busy", "impatient question", nil, collectSink(&chunks))
	assert.ErrorIs(t, err, service.ErrSessionBusy)

	close(blocking.release)
	require.NoError(t, <-firstDone)

	// The session is free again once the first turn finishes.
	fake := &scriptedLLM{rounds: []scriptedRound{{chunks: []string{"ok"}}}}
	svc2, _ := newTestService(t, fake)
	require.NoError(t, svc2.Chat(context.Background(), "sess-busy", "next", nil, collectSink(&chunks)))
}

// blockingLLM holds the stream open until released.
type blockingLLM struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingLLM) CreateChatCompletionStream(ctx context.Context, _ *llm.ChatCompletionRequest, callback llm.StreamCallback) (*llm.Usage, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := callback(&llm.StreamChunk{
		Choices: []llm.Choice{{Delta: &llm.ChatMessage{Content: "done"}, FinishReason: "stop"}},
	}); err != nil {
		return nil, err
	}
	return &llm.Usage{}, nil
}

func TestChatRejectsForeignSession(t *testing.T) {
	fake := &scriptedLLM{rounds: []scriptedRound{
		{chunks: []string{"ok"}},
	}}
	svc, store := newTestService(t, fake)

	var chunks []string
	require.NoError(t, svc.Chat(context.Background(), "sess-own", "my dog Leo has fleas", ownerCaller(1, "George Franklin"), collectSink(&chunks)))

	// A different owner cannot extend the session, even knowing its id.
	err := svc.Chat(context.Background(), "sess-own", "what did the other user say?", ownerCaller(4, "Jean Coleman"), collectSink(&chunks))
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	assert.Len(t, fake.requests, 1)

	messages, err := store.GetMessages(context.Background(), "sess-own", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "my dog Leo has fleas", messages[0].Content)
}

func TestGetMessagesHidesForeignSessions(t *testing.T) {
	fake := &scriptedLLM{rounds: []scriptedRound{{chunks: []string{"ok"}}}}
	svc, _ := newTestService(t, fake)

	var chunks []string
	require.NoError(t, svc.Chat(context.Background(), "sess-own", "hello", ownerCaller(1, "George Franklin"), collectSink(&chunks)))

	own, err := svc.GetMessages(context.Background(), ownerCaller(1, "George Franklin"), "sess-own", 10)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	// Another owner reads it the same as a missing session.
	_, err = svc.GetMessages(context.Background(), ownerCaller(4, "Jean Coleman"), "sess-own", 10)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	_, err = svc.GetMessages(context.Background(), ownerCaller(4, "Jean Coleman"), "sess-missing", 10)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	// ADMIN sees every session.
	all, err := svc.GetMessages(context.Background(), adminCaller(), "sess-own", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestChatExecutesRequestedToolAndContinues(t *testing.T) {
	call := llm.ToolCall{ID: "call_1"}
	call.Function.Name = "upcoming_visits"
	call.Function.Arguments = "{}"

	fake := &scriptedLLM{rounds: []scriptedRound{
		{toolCalls: []llm.ToolCall{call}},
		{chunks: []string{"You have visits coming up."}},
	}}
	svc, store := newTestService(t, fake)

	var chunks []string
	err := svc.Chat(context.Background(), "sess-tool", "When is my next visit?", ownerCaller(1, "George Franklin"), collectSink(&chunks))
	require.NoError(t, err)
	assert.Equal(t, []string{"You have visits coming up."}, chunks)

	require.Len(t, fake.requests, 2)
	msgs := fake.requests[1].Messages

	// The second round carries the assistant tool request and the result.
	assistant := msgs[len(msgs)-2]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "upcoming_visits", assistant.ToolCalls[0].Function.Name)

	toolMsg := msgs[len(msgs)-1]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)

	var visits []domain.VisitSummary
	require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &visits))
	require.NotEmpty(t, visits)
	for _, v := range visits {
		assert.Equal(t, "George Franklin", v.OwnerName)
	}

	// Only the user and final assistant messages are persisted.
	messages, err := store.GetMessages(context.Background(), "sess-tool", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "You have visits coming up.", messages[1].Content)
}

func TestChatToolRequestKeepsRoundText(t *testing.T) {
	call := llm.ToolCall{ID: "call_1"}
	call.Function.Name = "list_pet_types"
	call.Function.Arguments = "{}"

	fake := &scriptedLLM{rounds: []scriptedRound{
		{chunks: []string{"Let me ", "check."}, toolCalls: []llm.ToolCall{call}},
		{chunks: []string{" We accept cats."}},
	}}
	svc, store := newTestService(t, fake)

	var chunks []string
	err := svc.Chat(context.Background(), "sess-rt", "what pets do you take?", nil, collectSink(&chunks))
	require.NoError(t, err)

	// The assistant turn carrying the tool request keeps the text it
	// produced in that round.
	require.Len(t, fake.requests, 2)
	msgs := fake.requests[1].Messages
	assistant := msgs[len(msgs)-2]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "Let me check.", assistant.Content)

	messages, err := store.GetMessages(context.Background(), "sess-rt", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Let me check. We accept cats.", messages[1].Content)
}

func TestChatDeniesToolsOutsideCatalog(t *testing.T) {
	call := llm.ToolCall{ID: "call_bad"}
	call.Function.Name = "delete_owner"
	call.Function.Arguments = `{"ownerId":1}`

	fake := &scriptedLLM{rounds: []scriptedRound{
		{toolCalls: []llm.ToolCall{call}},
		{chunks: []string{"I can't do that."}},
	}}
	svc, _ := newTestService(t, fake)

	var chunks []string
	err := svc.Chat(context.Background(), "sess-deny", "Delete owner 1", nil, collectSink(&chunks))
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	msgs := fake.requests[1].Messages
	toolMsg := msgs[len(msgs)-1]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.JSONEq(t, `{"error":"tool not available"}`, toolMsg.Content)
}

func TestChatInferenceFailureRollsBackTurn(t *testing.T) {
	fake := &scriptedLLM{rounds: []scriptedRound{
		{chunks: []string{"partial "}, err: errors.New("upstream gone")},
	}}
	svc, store := newTestService(t, fake)

	var chunks []string
	err := svc.Chat(context.Background(), "sess-fail", "hello", nil, collectSink(&chunks))
	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrValidation)

	// Partial output went out, but nothing of the turn is persisted.
	assert.Equal(t, []string{"partial "}, chunks)
	messages, err := store.GetMessages(context.Background(), "sess-fail", 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatCancelledTurnRollsBack(t *testing.T) {
	fake := &scriptedLLM{rounds: []scriptedRound{{waitForCancel: true}}}
	svc, store := newTestService(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	var chunks []string
	err := svc.Chat(ctx, "sess-cancel", "hello", nil, collectSink(&chunks))
	require.Error(t, err)

	messages, err := store.GetMessages(context.Background(), "sess-cancel", 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatBoundsToolRounds(t *testing.T) {
	call := llm.ToolCall{ID: "call_loop"}
	call.Function.Name = "list_pet_types"
	call.Function.Arguments = "{}"

	rounds := make([]scriptedRound, 0, 10)
	for i := 0; i < 10; i++ {
		rounds = append(rounds, scriptedRound{toolCalls: []llm.ToolCall{call}})
	}
	fake := &scriptedLLM{rounds: rounds}
	svc, store := newTestService(t, fake)

	var chunks []string
	err := svc.Chat(context.Background(), "sess-loop", "loop forever", nil, collectSink(&chunks))
	require.Error(t, err)
	assert.Len(t, fake.requests, 8)

	messages, err := store.GetMessages(context.Background(), "sess-loop", 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestUpcomingVisitsValidatesDays(t *testing.T) {
	svc, _ := newTestService(t, &scriptedLLM{})

	for _, days := range []int{0, -1, 366} {
		_, err := svc.UpcomingVisits(context.Background(), nil, days)
		assert.ErrorIs(t, err, service.ErrValidation, "days=%d", days)
	}
}

func TestUpcomingVisitsScopesToOwner(t *testing.T) {
	svc, _ := newTestService(t, &scriptedLLM{})

	visits, err := svc.UpcomingVisits(context.Background(), ownerCaller(4, "Jean Coleman"), 365)
	require.NoError(t, err)
	require.NotEmpty(t, visits)
	for _, v := range visits {
		assert.Equal(t, "Jean Coleman", v.OwnerName)
	}

	all, err := svc.UpcomingVisits(context.Background(), nil, 365)
	require.NoError(t, err)
	assert.Greater(t, len(all), len(visits))
}
