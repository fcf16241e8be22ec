package handlers

import (
	"net/http"
	"sort"

	"github.com/longregen/archetype/internal/adapters/http/dto"
	"github.com/longregen/archetype/internal/conversation"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
)

type FrameworksHandler struct {
	repo ports.EvolutionRepository
}

func NewFrameworksHandler(repo ports.EvolutionRepository) *FrameworksHandler {
	return &FrameworksHandler{repo: repo}
}

// Get returns the full framework, code included.
func (h *FrameworksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := validateURLParam(r, w, "id", "Framework ID")
	if !ok {
		return
	}
	fw, err := h.repo.GetFramework(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, r, fw, http.StatusOK)
}

type AgentsHandler struct {
	repo ports.ConversationRepository
}

func NewAgentsHandler(repo ports.ConversationRepository) *AgentsHandler {
	return &AgentsHandler{repo: repo}
}

// History returns the agent's prompt context exactly as it would be sent
// to the LLM.
func (h *AgentsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := validateURLParam(r, w, "id", "Agent ID")
	if !ok {
		return
	}
	agent, err := h.repo.GetAgent(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	chats, err := h.repo.AgentHistory(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, r, dto.AgentHistoryResponse{
		Agent:    agent,
		Messages: conversation.HistoryMessages(agent.ID, chats),
	}, http.StatusOK)
}

func sortByFitness(frameworks []*models.Framework) {
	sort.SliceStable(frameworks, func(i, j int) bool {
		return frameworks[i].Better(frameworks[j])
	})
}
