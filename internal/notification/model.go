package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

const (
	TypePayment    = "payment"
	TypeGraduation = "graduation"

	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    int64          `json:"user_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Priority  string         `json:"priority"`
	IsRead    bool           `json:"is_read"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}
