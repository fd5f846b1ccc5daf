// Package service implements the chat orchestration core: per-request
// scope resolution, conversation memory, the generation/tool-call loop,
// and the read endpoints over the clinic record store.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emeraldgrove/clinic-assistant/internal/adapter/llm"
	"github.com/emeraldgrove/clinic-assistant/internal/config"
	"github.com/emeraldgrove/clinic-assistant/internal/domain"
	"github.com/emeraldgrove/clinic-assistant/internal/policy"
	"github.com/emeraldgrove/clinic-assistant/internal/repository"
	"github.com/emeraldgrove/clinic-assistant/internal/scope"
	"github.com/emeraldgrove/clinic-assistant/internal/tools"
)

// Service is the chat orchestration service.
type Service struct {
	store        repository.Store
	llmClient    llm.LLMClient
	policyEngine *policy.Engine
	config       *config.Config

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates the service.
func New(store repository.Store, llmClient llm.LLMClient, policyEngine *policy.Engine, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		llmClient:    llmClient,
		policyEngine: policyEngine,
		config:       cfg,
		inflight:     make(map[string]struct{}),
	}
}

// acquireSession marks a session as having a generation in flight.
// Returns false if one is already running: concurrent requests under the
// same session id are rejected rather than queued, which keeps the
// single-writer-per-session discipline without unbounded queuing.
func (s *Service) acquireSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[sessionID]; busy {
		return false
	}
	s.inflight[sessionID] = struct{}{}
	return true
}

func (s *Service) releaseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sessionID)
}

// sessionAccessible reports whether the caller may read or extend the
// session. ADMIN callers see every session; everyone else only their own.
// A nil caller is an internal (trusted) invocation.
func sessionAccessible(caller *domain.CallerContext, session *domain.Session) bool {
	if caller == nil || caller.Role == domain.RoleAdmin {
		return true
	}
	return session.CreatedBy == caller.UserID
}

// GetMessages returns a session transcript. A session the caller does not
// own reads the same as one that does not exist.
func (s *Service) GetMessages(ctx context.Context, caller *domain.CallerContext, sessionID string, limit int) ([]domain.Message, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || !sessionAccessible(caller, session) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	messages, err := s.store.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// UpcomingVisits returns visit summaries for the next days days, scoped to
// the caller's own records for OWNER callers.
func (s *Service) UpcomingVisits(ctx context.Context, caller *domain.CallerContext, days int) ([]domain.VisitSummary, error) {
	if days < 1 || days > 365 {
		return nil, fmt.Errorf("%w: days must be between 1 and 365", ErrValidation)
	}

	accessScope, _, err := scope.Resolve(caller)
	if err != nil {
		return nil, err
	}

	today := time.Now()
	end := today.AddDate(0, 0, days-1)

	var visits []domain.UpcomingVisit
	if ownerID, ok := accessScope.OwnerID(); ok {
		visits, err = s.store.FindUpcomingVisitsByOwner(ctx, ownerID, today, end)
	} else {
		visits, err = s.store.FindUpcomingVisits(ctx, today, end)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming visits: %w", err)
	}
	return tools.SummarizeVisits(visits), nil
}
