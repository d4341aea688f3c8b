package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"campuspay/internal/api"
	"campuspay/internal/api/dto"
	"campuspay/internal/payment/service"
	"campuspay/internal/student"
	"campuspay/pkg/middleware"
)

// SignatureHeader carries the gateway's HMAC of the raw webhook body.
const SignatureHeader = "x-paystack-signature"

const maxWebhookBytes = 1 << 20

type PaymentService interface {
	StudentForUser(ctx context.Context, userID int64) (*student.Student, error)
	InitializePayment(ctx context.Context, in service.InitializeInput) (*service.InitializeResult, error)
	VerifyPayment(ctx context.Context, reference string) (*service.VerifyResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	PaymentHistory(ctx context.Context, studentID int64) ([]service.SubscriptionHistory, error)
}

type Handler struct {
	PaymentService PaymentService
	resp           api.Responder
}

func NewPaymentHandler(ps PaymentService, resp api.Responder) *Handler {
	return &Handler{PaymentService: ps, resp: resp}
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	st, ok := h.currentStudent(w, r)
	if !ok {
		return
	}

	var req dto.InitializePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.HandleValidationError(w, err)
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.HandleValidationError(w, err)
		return
	}

	email := req.Email
	if email == "" {
		email = st.Email
	}

	result, err := h.PaymentService.InitializePayment(r.Context(), service.InitializeInput{
		StudentID: st.ID,
		Email:     email,
		Amount:    req.Amount,
		Year:      req.Year,
	})
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, result)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	req := dto.VerifyPaymentRequest{Reference: chi.URLParam(r, "reference")}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.HandleValidationError(w, err)
		return
	}

	result, err := h.PaymentService.VerifyPayment(r.Context(), req.Reference)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, result)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	st, ok := h.currentStudent(w, r)
	if !ok {
		return
	}

	history, err := h.PaymentService.PaymentHistory(r.Context(), st.ID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, map[string]any{
		"student_id":    st.ID,
		"subscriptions": history,
	})
}

// Webhook answers 200 once the event is applied and 400 otherwise, so the gateway retries.
// The body is read raw: the signature covers the exact bytes sent.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if err := h.PaymentService.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		log.Printf("PaymentHandler: webhook not processed: %v", err)
		http.Error(w, "webhook not processed", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) currentStudent(w http.ResponseWriter, r *http.Request) (*student.Student, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	st, err := h.PaymentService.StudentForUser(r.Context(), userID)
	if err != nil {
		h.resp.Error(w, err)
		return nil, false
	}
	return st, true
}
