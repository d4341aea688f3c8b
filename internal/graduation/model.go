package graduation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAlreadyTransitioned = errors.New("student already transitioned to alumni")

// Degree classes on a 5.0 CGPA scale.
const (
	FirstClass       = "First Class"
	SecondClassUpper = "Second Class Upper"
	SecondClassLower = "Second Class Lower"
	ThirdClass       = "Third Class"
	Pass             = "Pass"
	Fail             = "Fail"
)

var degreeBands = []struct {
	min   decimal.Decimal
	class string
}{
	{decimal.RequireFromString("4.5"), FirstClass},
	{decimal.RequireFromString("3.5"), SecondClassUpper},
	{decimal.RequireFromString("2.5"), SecondClassLower},
	{decimal.RequireFromString("1.5"), ThirdClass},
	{decimal.RequireFromString("1.0"), Pass},
}

// DegreeClass maps a CGPA to its class. Each band includes its lower bound.
func DegreeClass(cgpa decimal.Decimal) string {
	for _, band := range degreeBands {
		if cgpa.GreaterThanOrEqual(band.min) {
			return band.class
		}
	}
	return Fail
}

// Criteria are the minimums a student must meet to be eligible.
type Criteria struct {
	MinLevel       int
	MinCGPA        decimal.Decimal
	MinCreditUnits int
}

// Candidate is an eligible student with the contact snapshot copied into the alumni record.
type Candidate struct {
	StudentID        int64
	UserID           int64
	MatricNumber     string
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	Department       string
	Faculty          string
	Programme        string
	Level            int
	CGPA             decimal.Decimal
	TotalCreditUnits int
}

type Alumni struct {
	ID              int64           `json:"id"`
	FormerStudentID int64           `json:"former_student_id"`
	UserID          int64           `json:"user_id"`
	GraduationYear  int             `json:"graduation_year"`
	DegreeAwarded   string          `json:"degree_awarded"`
	ClassOfDegree   string          `json:"class_of_degree"`
	FinalCGPA       decimal.Decimal `json:"final_cgpa"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Department      string          `json:"department"`
	Faculty         string          `json:"faculty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Summary is the result of one batch run.
type Summary struct {
	TotalEligible       int `json:"total_eligible"`
	Transitioned        int `json:"transitioned"`
	AlreadyTransitioned int `json:"already_transitioned"`
	Failed              int `json:"failed"`
}

// ErrNotActive means the student left the active state after the eligibility snapshot.
var ErrNotActive = errors.New("student is no longer active")
