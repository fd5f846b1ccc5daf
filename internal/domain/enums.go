// Package domain defines the core domain models for the clinic assistant.
package domain

// Role is the role of an authenticated caller.
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleAdmin Role = "ADMIN"
)

// MessageRole is the role of a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)
