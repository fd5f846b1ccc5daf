// Package repository defines the storage interfaces and the SQLite
// implementation backing the clinic assistant.
package repository

import (
	"context"
	"time"

	"github.com/emeraldgrove/clinic-assistant/internal/domain"
)

// ClinicStore exposes the read-only clinic record queries consumed by the
// data access tools and the visits endpoint.
type ClinicStore interface {
	ListVets(ctx context.Context) ([]domain.VetSummary, error)
	ListPetTypes(ctx context.Context) ([]string, error)
	FindUpcomingVisits(ctx context.Context, start, end time.Time) ([]domain.UpcomingVisit, error)
	FindUpcomingVisitsByOwner(ctx context.Context, ownerID int, start, end time.Time) ([]domain.UpcomingVisit, error)
}

// ConversationStore persists per-session message history. Discipline:
// read full history, append-only, single writer per session (enforced by
// the orchestrator, not here).
type ConversationStore interface {
	// GetOrCreateSession returns the session, creating it owned by
	// createdBy if it does not exist. Ownership of an existing session is
	// never changed; callers check access against the returned session.
	GetOrCreateSession(ctx context.Context, sessionID string, createdBy int) (*domain.Session, error)
	// GetSession returns the session, or nil if it does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendMessage(ctx context.Context, message *domain.Message) error
	// GetMessages returns the most recent limit messages of a session in
	// chronological order. limit <= 0 returns the full transcript.
	GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	// DeleteMessage removes a message. Used only to roll back the user
	// message of an aborted turn so cancelled generations leave no
	// partial state behind.
	DeleteMessage(ctx context.Context, messageID string) error
}

// UserStore resolves registered accounts for the authentication layer.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Store is the full persistence interface.
type Store interface {
	ClinicStore
	ConversationStore
	UserStore

	Close() error
}
