package models

import (
	"time"
)

// SystemAgentName is reserved: chats spoken by an agent with this name are
// presented to other agents with the system role, and the name is never
// suffixed.
const SystemAgentName = "system"

type Agent struct {
	ID          string    `json:"agent_id"`
	Name        string    `json:"agent_name"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewAgent(id, name, model string, temperature float64) *Agent {
	return &Agent{
		ID:          id,
		Name:        name,
		Model:       model,
		Temperature: temperature,
		CreatedAt:   time.Now().UTC(),
	}
}

// IsSystem reports whether the agent speaks with the system role.
func (a *Agent) IsSystem() bool {
	return a.Name == SystemAgentName
}

type Meeting struct {
	ID          string    `json:"meeting_id"`
	Name        string    `json:"meeting_name"`
	FrameworkID string    `json:"framework_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewMeeting(id, name, frameworkID string) *Meeting {
	return &Meeting{
		ID:          id,
		Name:        name,
		FrameworkID: frameworkID,
		CreatedAt:   time.Now().UTC(),
	}
}

// Chat is a single utterance. Semantic order is by Timestamp, ties broken
// by ID.
type Chat struct {
	ID        string    `json:"chat_id"`
	AgentID   string    `json:"agent_id"`
	MeetingID string    `json:"meeting_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentMeeting is one row of the agents_by_meeting association.
type AgentMeeting struct {
	AgentID   string    `json:"agent_id"`
	MeetingID string    `json:"meeting_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryChat is a chat joined with its speaker, as read back for history
// reconstruction.
type HistoryChat struct {
	Chat
	AgentName string
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Message is one entry of an agent's prompt context.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}
