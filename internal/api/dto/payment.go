package dto

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type InitializePaymentRequest struct {
	Email  string          `json:"email" validate:"omitempty,email"`
	Amount decimal.Decimal `json:"amount"`
	Year   string          `json:"year" validate:"required,len=4,numeric"`
}

type VerifyPaymentRequest struct {
	Reference string `validate:"required,max=100,startswith=SUB-"`
}

type MarkNotificationReadRequest struct {
	ID string `validate:"required,uuid"`
}

var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names in errors, not Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}
