package student

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("student not found")

const (
	StatusActive    = "active"
	StatusGraduated = "graduated"
)

type Student struct {
	ID                     int64           `json:"id"`
	UserID                 int64           `json:"user_id"`
	MatricNumber           string          `json:"matric_number"`
	FirstName              string          `json:"first_name"`
	LastName               string          `json:"last_name"`
	Email                  string          `json:"email"`
	Phone                  string          `json:"phone"`
	Department             string          `json:"department"`
	Faculty                string          `json:"faculty"`
	Programme              string          `json:"programme"`
	Level                  int             `json:"level"`
	CGPA                   decimal.Decimal `json:"cgpa"`
	TotalCreditUnits       int             `json:"total_credit_units"`
	AcademicStatus         string          `json:"academic_status"`
	ExpectedGraduationDate *time.Time      `json:"expected_graduation_date,omitempty"`
	ActualGraduationDate   *time.Time      `json:"actual_graduation_date,omitempty"`
}

func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}
