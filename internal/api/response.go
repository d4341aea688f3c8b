// Package api holds the JSON response helpers shared by every HTTP transport.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"campuspay/internal/apperr"
	"campuspay/internal/gateway"
	"campuspay/internal/graduation"
	"campuspay/internal/ledger"
	"campuspay/internal/notification"
	"campuspay/internal/payment"
	"campuspay/internal/student"
	"campuspay/internal/subscription"
	"campuspay/pkg/middleware"
)

// Responder writes JSON answers. Underlying error text is exposed only when
// ShowDetails is set, which the server does outside production.
type Responder struct {
	ShowDetails bool
}

func (rs Responder) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: failed to encode response: %v", err)
	}
}

// Error maps err to a status code and a generic message.
func (rs Responder) Error(w http.ResponseWriter, err error) {
	status, message := Classify(err)
	resp := middleware.ErrorResponse{Error: message}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
		resp.Message = ve.Reason
	} else if rs.ShowDetails {
		resp.Message = err.Error()
	}
	var ue *payment.UnconfirmedError
	if errors.As(err, &ue) {
		resp.Reference = ue.Reference
	}
	if status >= http.StatusInternalServerError {
		log.Printf("API: %d %s: %v", status, message, err)
	}
	rs.JSON(w, status, resp)
}

func Classify(err error) (int, string) {
	var ge *gateway.Error
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, subscription.ErrClosed):
		return http.StatusConflict, "subscription is already settled"
	case errors.Is(err, graduation.ErrAlreadyTransitioned), apperr.IsConflict(err):
		return http.StatusConflict, "already processed"
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, subscription.ErrNotFound),
		errors.Is(err, student.ErrNotFound),
		errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.As(err, &ge):
		if ge.OutcomeUnknown {
			return http.StatusGatewayTimeout, "payment gateway did not confirm the request, verify the payment later"
		}
		return http.StatusBadGateway, "payment gateway error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
