package handlers

import (
	"net/http"

	"github.com/longregen/archetype/internal/adapters/http/dto"
	"github.com/longregen/archetype/internal/ports"
)

const maxPageSize = 100

type PopulationsHandler struct {
	repo ports.EvolutionRepository
}

func NewPopulationsHandler(repo ports.EvolutionRepository) *PopulationsHandler {
	return &PopulationsHandler{repo: repo}
}

func (h *PopulationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	populations, err := h.repo.ListPopulations(r.Context(), limit, offset)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := dto.PopulationListResponse{Populations: make([]dto.PopulationSummary, len(populations))}
	for i, p := range populations {
		resp.Populations[i] = dto.PopulationSummary{ID: p.ID, CreatedAt: p.CreatedAt}
	}
	resp.Total = len(resp.Populations)
	respond(w, r, resp, http.StatusOK)
}

func (h *PopulationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := validateURLParam(r, w, "id", "Population ID")
	if !ok {
		return
	}
	pop, err := h.repo.GetPopulation(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, r, dto.NewPopulationResponse(pop), http.StatusOK)
}

// Elites lists the elite of every cluster of the latest generation, best
// first.
func (h *PopulationsHandler) Elites(w http.ResponseWriter, r *http.Request) {
	id, ok := validateURLParam(r, w, "id", "Population ID")
	if !ok {
		return
	}
	pop, err := h.repo.GetPopulation(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	elites := pop.Elites()
	sortByFitness(elites)
	respond(w, r, dto.NewFrameworkSummaries(elites), http.StatusOK)
}

func (h *PopulationsHandler) Generations(w http.ResponseWriter, r *http.Request) {
	id, ok := validateURLParam(r, w, "id", "Population ID")
	if !ok {
		return
	}
	generations, err := h.repo.ListGenerations(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, r, dto.NewGenerationResponses(generations), http.StatusOK)
}
