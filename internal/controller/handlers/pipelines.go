package handlers

import (
	"net/http"

	"beaconci/pkg/api"
)

// ListPipelines handles GET /pipelines.
// Returns the registered pipeline definitions.
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	var resp []api.PipelineResponse
	for _, p := range h.pipelines.List() {
		resp = append(resp, api.PipelineResponse{
			Name:       p.Name,
			Category:   p.Options.Category,
			MaxTotal:   p.Options.MaxTotal,
			MaxPerNode: p.Options.MaxPerNode,
			Stages:     p.StageCount(),
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}
