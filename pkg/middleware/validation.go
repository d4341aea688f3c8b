package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every 4xx/5xx answer written by the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	// Reference is set when a payment may exist at the gateway despite the error.
	Reference string `json:"reference,omitempty"`
}

// ValidateRequest rejects bodies that are not JSON or are empty and caps body size.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.Contains(contentType, "application/json") {
				writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid Content-Type, expected application/json"})
				return
			}
			if r.ContentLength == 0 {
				writeError(w, http.StatusBadRequest, ErrorResponse{Error: "request body cannot be empty"})
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// HandleValidationError answers 400 naming the first field that failed validation.
func HandleValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "validation failed", Message: err.Error()}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		resp.Field = verrs[0].Field()
		resp.Message = verrs[0].Field() + " failed on '" + verrs[0].Tag() + "'"
	}
	writeError(w, http.StatusBadRequest, resp)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
