package ports

import (
	"context"
	"time"

	"github.com/longregen/archetype/internal/domain/models"
)

// ConversationRepository persists agents, meetings and chats.
type ConversationRepository interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)

	CreateMeeting(ctx context.Context, meeting *models.Meeting) error
	GetMeeting(ctx context.Context, id string) (*models.Meeting, error)
	ListMeetingsByFramework(ctx context.Context, frameworkID string) ([]*models.Meeting, error)

	// AddParticipant is idempotent: adding an agent twice keeps the first row.
	AddParticipant(ctx context.Context, link *models.AgentMeeting) error
	ListParticipants(ctx context.Context, meetingID string) ([]*models.Agent, error)

	// AppendChat inserts the chat and its participant row atomically.
	AppendChat(ctx context.Context, chat *models.Chat) error
	// LatestChatTimestamp returns the zero time for a meeting without chats.
	LatestChatTimestamp(ctx context.Context, meetingID string) (time.Time, error)
	ListChats(ctx context.Context, meetingID string) ([]*models.HistoryChat, error)
	// AgentHistory returns every chat of every meeting the agent takes part
	// in, ordered by timestamp then chat id.
	AgentHistory(ctx context.Context, agentID string) ([]*models.HistoryChat, error)
}

// EvolutionRepository persists populations, frameworks, generations and
// clusters.
type EvolutionRepository interface {
	CreatePopulation(ctx context.Context, population *models.Population) error
	// GetPopulation loads the population with its frameworks and generations.
	GetPopulation(ctx context.Context, id string) (*models.Population, error)
	ListPopulations(ctx context.Context, limit, offset int) ([]*models.Population, error)

	CreateFramework(ctx context.Context, framework *models.Framework) error
	GetFramework(ctx context.Context, id string) (*models.Framework, error)
	ListFrameworks(ctx context.Context, populationID string) ([]*models.Framework, error)
	UpdateTestCI(ctx context.Context, frameworkID string, ci models.ConfidenceInterval) error

	// SaveGeneration writes the generation, its clusters and memberships, and
	// points each member framework at its new cluster and descriptor.
	SaveGeneration(ctx context.Context, generation *models.Generation) error
	ListGenerations(ctx context.Context, populationID string) ([]*models.Generation, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction executes a function within a database transaction
	// If the function returns an error, the transaction is rolled back
	// Otherwise, the transaction is committed
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator generates unique IDs for entities
type IDGenerator interface {
	GenerateAgentID() string
	GenerateMeetingID() string
	GenerateChatID() string
	GenerateFrameworkID() string
	GeneratePopulationID() string
	GenerateGenerationID() string
	GenerateClusterID() string
	// NameSuffix returns the short random suffix that makes agent names unique.
	NameSuffix() string
}
