package subscription

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Subscription is the yearly payment obligation of one student. (StudentID, Year) is unique.
type Subscription struct {
	ID               int64           `json:"id"`
	StudentID        int64           `json:"student_id"`
	Year             string          `json:"subscription_year"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           Status          `json:"payment_status"`
	PaymentDate      *time.Time      `json:"payment_date,omitempty"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	DueDate          time.Time       `json:"due_date"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DueDateFor returns January 31 of the calendar year after createdAt.
func DueDateFor(createdAt time.Time) time.Time {
	return time.Date(createdAt.Year()+1, time.January, 31, 0, 0, 0, 0, time.UTC)
}

var (
	ErrNotFound = errors.New("subscription not found")
	// ErrClosed is returned when a paid or cancelled subscription is re-initialized.
	ErrClosed = errors.New("subscription is already paid or cancelled")
)
