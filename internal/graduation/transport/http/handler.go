package http

import (
	"context"
	"net/http"

	"campuspay/internal/api"
	"campuspay/internal/graduation"
)

type GraduationService interface {
	FindEligibleGraduates(ctx context.Context) ([]graduation.Candidate, error)
	ProcessGraduationTransitions(ctx context.Context) (graduation.Summary, error)
}

type Handler struct {
	GraduationService GraduationService
	resp              api.Responder
}

func NewGraduationHandler(gs GraduationService, resp api.Responder) *Handler {
	return &Handler{GraduationService: gs, resp: resp}
}

func (h *Handler) Eligible(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.GraduationService.FindEligibleGraduates(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	if candidates == nil {
		candidates = []graduation.Candidate{}
	}

	h.resp.JSON(w, http.StatusOK, map[string]any{
		"count":    len(candidates),
		"students": candidates,
	})
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.GraduationService.ProcessGraduationTransitions(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, summary)
}
