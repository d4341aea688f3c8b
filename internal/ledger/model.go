package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s != StatusPending
}

var (
	ErrNotFound   = errors.New("transaction not found")
	ErrNotPending = errors.New("transaction is no longer pending")
)

// Transaction is one gateway payment attempt for a subscription.
type Transaction struct {
	ID                    int64           `json:"id"`
	SubscriptionID        int64           `json:"subscription_id"`
	Reference             string          `json:"transaction_reference"`
	Amount                decimal.Decimal `json:"amount"`
	PaymentMethod         string          `json:"payment_method,omitempty"`
	Provider              string          `json:"payment_provider"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	Status                Status          `json:"status"`
	Metadata              map[string]any  `json:"metadata,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Completion is the terminal outcome applied to a pending transaction.
type Completion struct {
	Status                Status
	PaymentMethod         string
	ProviderTransactionID string
	Metadata              map[string]any
}
