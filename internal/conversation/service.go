// Package conversation owns agents, meetings and chats: it serializes
// appends per meeting and rebuilds each agent's prompt context from the
// meetings it takes part in.
package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
)

// Service implements the conversation store and the agent runtime.
type Service struct {
	repo    ports.ConversationRepository
	ids     ports.IDGenerator
	gateway ports.Gateway
	now     func() time.Time

	mu     sync.Mutex
	clocks map[string]*meetingClock
}

// meetingClock hands out strictly increasing timestamps for one meeting.
type meetingClock struct {
	mu     sync.Mutex
	last   time.Time
	loaded bool
}

func NewService(repo ports.ConversationRepository, ids ports.IDGenerator, gateway ports.Gateway) *Service {
	return &Service{
		repo:    repo,
		ids:     ids,
		gateway: gateway,
		now:     time.Now,
		clocks:  make(map[string]*meetingClock),
	}
}

// CreateAgent persists a new agent. Every name except "system" gets a random
// suffix so display names stay unique.
func (s *Service) CreateAgent(ctx context.Context, name, model string, temperature float64) (*models.Agent, error) {
	if temperature < 0 || temperature > 2 {
		return nil, fmt.Errorf("%w: temperature %.2f outside [0, 2]", domain.ErrInvalidInput, temperature)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: agent name is required", domain.ErrInvalidInput)
	}
	if name != models.SystemAgentName {
		name = name + "-" + s.ids.NameSuffix()
	}

	agent := models.NewAgent(s.ids.GenerateAgentID(), name, model, temperature)
	if err := s.repo.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("create agent %s: %w", name, err)
	}
	return agent, nil
}

func (s *Service) CreateMeeting(ctx context.Context, name, frameworkID string) (*models.Meeting, error) {
	meeting := models.NewMeeting(s.ids.GenerateMeetingID(), name, frameworkID)
	if err := s.repo.CreateMeeting(ctx, meeting); err != nil {
		return nil, fmt.Errorf("create meeting %s: %w", name, err)
	}
	return meeting, nil
}

// Join adds agents to a meeting as listeners.
func (s *Service) Join(ctx context.Context, meetingID string, agents ...*models.Agent) error {
	for _, a := range agents {
		link := &models.AgentMeeting{AgentID: a.ID, MeetingID: meetingID, CreatedAt: s.now().UTC()}
		if err := s.repo.AddParticipant(ctx, link); err != nil {
			return fmt.Errorf("join meeting %s: %w", meetingID, err)
		}
	}
	return nil
}

func (s *Service) clock(meetingID string) *meetingClock {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clocks[meetingID]
	if !ok {
		c = &meetingClock{}
		s.clocks[meetingID] = c
	}
	return c
}

// AppendChat stores a chat. Appends to one meeting are serialized and
// stamped strictly after the meeting's previous chat.
func (s *Service) AppendChat(ctx context.Context, agent *models.Agent, meetingID, content string) (*models.Chat, error) {
	c := s.clock(meetingID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		latest, err := s.repo.LatestChatTimestamp(ctx, meetingID)
		if err != nil {
			return nil, err
		}
		c.last, c.loaded = latest, true
	}

	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(c.last) {
		ts = c.last.Add(time.Microsecond)
	}

	chat := &models.Chat{
		ID:        s.ids.GenerateChatID(),
		AgentID:   agent.ID,
		MeetingID: meetingID,
		Content:   content,
		Timestamp: ts,
	}
	if err := s.repo.AppendChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("append chat to %s: %w", meetingID, err)
	}
	c.last = ts
	return chat, nil
}

// Release drops the in-memory clock of a finished meeting.
func (s *Service) Release(meetingID string) {
	s.mu.Lock()
	delete(s.clocks, meetingID)
	s.mu.Unlock()
}

// ChatHistory is the agent's prompt context: every chat of every meeting it
// takes part in, ordered by timestamp.
func (s *Service) ChatHistory(ctx context.Context, agent *models.Agent) ([]models.Message, error) {
	chats, err := s.repo.AgentHistory(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", agent.Name, err)
	}
	return HistoryMessages(agent.ID, chats), nil
}

// HistoryMessages maps chats to messages from the point of view of agentID.
func HistoryMessages(agentID string, chats []*models.HistoryChat) []models.Message {
	messages := make([]models.Message, 0, len(chats))
	for _, c := range chats {
		switch {
		case c.AgentID == agentID:
			messages = append(messages, models.Message{Role: models.MessageRoleAssistant, Content: "You: " + c.Content})
		case c.AgentName == models.SystemAgentName:
			messages = append(messages, models.Message{Role: models.MessageRoleSystem, Content: "System: " + c.Content})
		default:
			messages = append(messages, models.Message{Role: models.MessageRoleUser, Content: c.AgentName + ": " + c.Content})
		}
	}
	return messages
}

// Respond asks the agent's model for structured output given its history.
func (s *Service) Respond(ctx context.Context, agent *models.Agent, schema ports.Schema) (map[string]string, error) {
	messages, err := s.ChatHistory(ctx, agent)
	if err != nil {
		return nil, err
	}
	return s.gateway.Respond(ctx, messages, schema, agent.Model, agent.Temperature)
}
