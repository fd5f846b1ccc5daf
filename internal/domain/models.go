package domain

import "time"

// Session is a caller-identified conversation thread. The session id is
// opaque and caller-supplied; a session is created on the first message
// carrying a given id. CreatedBy binds the session to the account that
// opened it; only that account and ADMIN callers may read or extend it.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedBy int       `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single conversation entry. Messages are immutable once
// appended and ordered by insertion within their session.
type Message struct {
	MessageID string      `json:"message_id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// User is a registered account resolved by the authentication layer.
// OwnerID is set only for OWNER accounts and links the account to its
// owner record.
type User struct {
	ID           int    `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	OwnerID      *int   `json:"owner_id,omitempty"`
	// OwnerName is the linked owner's full name, when a link exists.
	OwnerName string `json:"owner_name,omitempty"`
}

// CallerContext is the resolved identity for the current request.
// An OWNER caller always carries a non-nil OwnerID. UserID is the
// account id used for session ownership.
type CallerContext struct {
	UserID      int
	DisplayName string
	Role        Role
	OwnerID     *int
}

// UpcomingVisit is the repository projection for a scheduled visit.
// It carries the owner id for scope filtering but that id is never part
// of any tool-facing summary shape.
type UpcomingVisit struct {
	OwnerID     int       `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	PetName     string    `json:"pet_name"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}
