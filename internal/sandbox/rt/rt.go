// Package rt is the API candidate programs are written against. It is
// exported into the interpreter under the import path "archetype/rt".
package rt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
)

// Backend persists what candidates create and answers for their agents.
type Backend interface {
	CreateAgent(ctx context.Context, name, model string, temperature float64) (*models.Agent, error)
	CreateMeeting(ctx context.Context, name, frameworkID string) (*models.Meeting, error)
	Join(ctx context.Context, meetingID string, agents ...*models.Agent) error
	AppendChat(ctx context.Context, agent *models.Agent, meetingID, content string) (*models.Chat, error)
	Respond(ctx context.Context, agent *models.Agent, schema ports.Schema) (map[string]string, error)
	Release(meetingID string)
}

// Runtime is handed to a candidate's Forward. Meetings it creates belong to
// the candidate's framework.
type Runtime struct {
	backend     Backend
	model       string
	frameworkID string

	mu       sync.Mutex
	meetings []string
}

func New(backend Backend, model, frameworkID string) *Runtime {
	return &Runtime{backend: backend, model: model, frameworkID: frameworkID}
}

// Agent creates an agent on the run's model.
func (r *Runtime) Agent(ctx context.Context, name string, temperature float64) (*Agent, error) {
	a, err := r.backend.CreateAgent(ctx, name, r.model, temperature)
	if err != nil {
		return nil, err
	}
	return &Agent{backend: r.backend, agent: a}, nil
}

func (r *Runtime) Meeting(ctx context.Context, name string) (*Meeting, error) {
	m, err := r.backend.CreateMeeting(ctx, name, r.frameworkID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.meetings = append(r.meetings, m.ID)
	r.mu.Unlock()
	return &Meeting{backend: r.backend, meeting: m}, nil
}

// Chat appends content spoken by agent to meeting.
func (r *Runtime) Chat(ctx context.Context, agent *Agent, meeting *Meeting, content string) error {
	if agent == nil || meeting == nil {
		return errors.New("chat needs an agent and a meeting")
	}
	_, err := r.backend.AppendChat(ctx, agent.agent, meeting.meeting.ID, content)
	return err
}

// Close releases per-meeting state once Forward has returned.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.meetings {
		r.backend.Release(id)
	}
	r.meetings = nil
}

type Agent struct {
	backend Backend
	agent   *models.Agent
}

func (a *Agent) ID() string   { return a.agent.ID }
func (a *Agent) Name() string { return a.agent.Name }

// Respond returns one string per schema field, built from the agent's
// history across its meetings.
func (a *Agent) Respond(ctx context.Context, schema map[string]string) (map[string]string, error) {
	out, err := a.backend.Respond(ctx, a.agent, ports.Schema(schema))
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.agent.Name, err)
	}
	return out, nil
}

type Meeting struct {
	backend Backend
	meeting *models.Meeting
}

func (m *Meeting) ID() string { return m.meeting.ID }

// Join adds listeners, who see the meeting's chats without speaking.
func (m *Meeting) Join(ctx context.Context, agents ...*Agent) error {
	list := make([]*models.Agent, 0, len(agents))
	for _, a := range agents {
		if a == nil {
			return errors.New("join: nil agent")
		}
		list = append(list, a.agent)
	}
	return m.backend.Join(ctx, m.meeting.ID, list...)
}
