package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"campuspay/internal/api"
	"campuspay/internal/api/dto"
	"campuspay/internal/notification"
	"campuspay/pkg/middleware"
)

type NotificationService interface {
	ListForUser(ctx context.Context, userID int64) ([]*notification.Notification, error)
	MarkRead(ctx context.Context, userID int64, id uuid.UUID) error
}

type Handler struct {
	NotificationService NotificationService
	resp                api.Responder
}

func NewNotificationHandler(ns NotificationService, resp api.Responder) *Handler {
	return &Handler{NotificationService: ns, resp: resp}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.NotificationService.ListForUser(r.Context(), userID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	if items == nil {
		items = []*notification.Notification{}
	}
	h.resp.JSON(w, http.StatusOK, items)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	req := dto.MarkNotificationReadRequest{ID: chi.URLParam(r, "id")}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.HandleValidationError(w, err)
		return
	}

	if err := h.NotificationService.MarkRead(r.Context(), userID, uuid.MustParse(req.ID)); err != nil {
		h.resp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
