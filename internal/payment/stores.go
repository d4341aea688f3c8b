package payment

import (
	"context"
	"time"

	"campuspay/internal/ledger"
	"campuspay/internal/subscription"
)

type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *subscription.Subscription) error
	GetByID(ctx context.Context, id int64) (*subscription.Subscription, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*subscription.Subscription, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time, method, reference string) (bool, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type TransactionLedger interface {
	Create(ctx context.Context, txn *ledger.Transaction) error
	GetByReference(ctx context.Context, reference string) (*ledger.Transaction, error)
	CompleteIfPending(ctx context.Context, reference string, c ledger.Completion) (*ledger.Transaction, error)
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]*ledger.Transaction, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*ledger.Transaction, error)
}

// Stores are repositories bound to one database transaction.
type Stores struct {
	Subscriptions SubscriptionStore
	Transactions  TransactionLedger
}

// UnitOfWork runs fn inside a single database transaction. Any error from fn rolls back
// everything fn did.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(Stores) error) error
}
