package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
)

// setURLParam adds a URL parameter to the request context (chi router style)
func setURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// mockEvolutionRepo serves a fixed set of populations from memory
type mockEvolutionRepo struct {
	populations map[string]*models.Population
	listErr     error
}

func (m *mockEvolutionRepo) CreatePopulation(context.Context, *models.Population) error { return nil }

func (m *mockEvolutionRepo) GetPopulation(_ context.Context, id string) (*models.Population, error) {
	p, ok := m.populations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPopulationNotFound, id)
	}
	return p, nil
}

func (m *mockEvolutionRepo) ListPopulations(_ context.Context, limit, offset int) ([]*models.Population, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Population
	for _, p := range m.populations {
		out = append(out, p)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockEvolutionRepo) CreateFramework(context.Context, *models.Framework) error { return nil }

func (m *mockEvolutionRepo) GetFramework(_ context.Context, id string) (*models.Framework, error) {
	for _, p := range m.populations {
		if f := p.Framework(id); f != nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrFrameworkNotFound, id)
}

func (m *mockEvolutionRepo) ListFrameworks(_ context.Context, populationID string) ([]*models.Framework, error) {
	p, err := m.GetPopulation(context.Background(), populationID)
	if err != nil {
		return nil, err
	}
	return p.Frameworks, nil
}

func (m *mockEvolutionRepo) UpdateTestCI(context.Context, string, models.ConfidenceInterval) error {
	return nil
}

func (m *mockEvolutionRepo) SaveGeneration(context.Context, *models.Generation) error { return nil }

func (m *mockEvolutionRepo) ListGenerations(_ context.Context, populationID string) ([]*models.Generation, error) {
	p, err := m.GetPopulation(context.Background(), populationID)
	if err != nil {
		return nil, err
	}
	return p.Generations, nil
}

// mockConversationRepo holds one agent and its history
type mockConversationRepo struct {
	agent *models.Agent
	chats []*models.HistoryChat
}

func (m *mockConversationRepo) CreateAgent(context.Context, *models.Agent) error { return nil }

func (m *mockConversationRepo) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	if m.agent == nil || m.agent.ID != id {
		return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	return m.agent, nil
}

func (m *mockConversationRepo) CreateMeeting(context.Context, *models.Meeting) error { return nil }

func (m *mockConversationRepo) GetMeeting(_ context.Context, id string) (*models.Meeting, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrMeetingNotFound, id)
}

func (m *mockConversationRepo) ListMeetingsByFramework(context.Context, string) ([]*models.Meeting, error) {
	return nil, nil
}

func (m *mockConversationRepo) AddParticipant(context.Context, *models.AgentMeeting) error {
	return nil
}

func (m *mockConversationRepo) ListParticipants(context.Context, string) ([]*models.Agent, error) {
	return nil, nil
}

func (m *mockConversationRepo) AppendChat(context.Context, *models.Chat) error { return nil }

func (m *mockConversationRepo) LatestChatTimestamp(context.Context, string) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockConversationRepo) ListChats(context.Context, string) ([]*models.HistoryChat, error) {
	return m.chats, nil
}

func (m *mockConversationRepo) AgentHistory(context.Context, string) ([]*models.HistoryChat, error) {
	return m.chats, nil
}

func framework(id, name string, median float64, created time.Time) *models.Framework {
	f := models.NewFramework(id, "pop_1", name, "thought of "+name, "package candidate")
	f.CreatedAt = created
	f.ApplyEvaluation(models.ConfidenceInterval{Lower: median - 0.05, Upper: median + 0.05, Median: median, SampleSize: 20, Level: 0.95})
	return f
}

// testPopulation has two clusters in its latest generation with elites
// fw_b and fw_c.
func testPopulation() *models.Population {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := framework("fw_a", "Chain-of-Thought", 0.5, t0)
	b := framework("fw_b", "Debate", 0.7, t0.Add(time.Minute))
	c := framework("fw_c", "Reflexion", 0.6, t0.Add(2*time.Minute))
	pop := &models.Population{ID: "pop_1", CreatedAt: t0, Frameworks: []*models.Framework{a, b, c}}
	pop.Generations = []*models.Generation{{
		ID:           "gen_1",
		PopulationID: "pop_1",
		Index:        1,
		CreatedAt:    t0.Add(3 * time.Minute),
		Clusters: []*models.Cluster{
			{ID: "cl_1", Name: "Debaters", Members: []*models.Framework{a, b}},
			{ID: "cl_2", Name: "Reflectors", Members: []*models.Framework{c}},
		},
	}}
	return pop
}
