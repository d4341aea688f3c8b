package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campuspay/internal/ledger"
	"campuspay/pkg/db"
)

const transactionColumns = `id, subscription_id, transaction_reference, amount, payment_method,
	payment_provider, provider_transaction_id, status, metadata, created_at, updated_at`

type TransactionRepository struct {
	db db.DBTX
}

func NewTransactionRepository(conn db.DBTX) *TransactionRepository {
	return &TransactionRepository{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	txn := &ledger.Transaction{}
	var metadata []byte
	err := row.Scan(
		&txn.ID,
		&txn.SubscriptionID,
		&txn.Reference,
		&txn.Amount,
		&txn.PaymentMethod,
		&txn.Provider,
		&txn.ProviderTransactionID,
		&txn.Status,
		&metadata,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", txn.Reference, err)
		}
	}
	return txn, nil
}

// encodeMetadata returns the JSON text; lib/pq would send a []byte as bytea.
func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create inserts a pending transaction.
func (r *TransactionRepository) Create(ctx context.Context, txn *ledger.Transaction) error {
	metadata, err := encodeMetadata(txn.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (subscription_id, transaction_reference, amount, payment_method,
			payment_provider, provider_transaction_id, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING id, status, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		txn.SubscriptionID, txn.Reference, txn.Amount, txn.PaymentMethod,
		txn.Provider, txn.ProviderTransactionID, metadata,
	).Scan(&txn.ID, &txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*ledger.Transaction, error) {
	txn, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_reference = $1`, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return txn, err
}

// CompleteIfPending applies a terminal outcome only while the row is still pending.
// The status predicate in the UPDATE makes this a compare-and-set: of two concurrent
// completions for the same reference exactly one matches a row, the other gets ErrNotPending.
func (r *TransactionRepository) CompleteIfPending(ctx context.Context, reference string, c ledger.Completion) (*ledger.Transaction, error) {
	if !c.Status.Terminal() {
		return nil, fmt.Errorf("completion status %q is not terminal", c.Status)
	}
	patch, err := encodeMetadata(c.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE transactions
		SET status = $2,
			payment_method = COALESCE(NULLIF($3, ''), payment_method),
			provider_transaction_id = COALESCE(NULLIF($4, ''), provider_transaction_id),
			metadata = metadata || $5::jsonb,
			updated_at = NOW()
		WHERE transaction_reference = $1 AND status = 'pending'
		RETURNING ` + transactionColumns

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		reference, c.Status, c.PaymentMethod, c.ProviderTransactionID, patch))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotPending
	}
	return txn, err
}

func (r *TransactionRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*ledger.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE subscription_id = $1 ORDER BY created_at DESC`,
		subscriptionID)
}

// ListStalePending returns pending transactions created before olderThan, oldest first.
func (r *TransactionRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*ledger.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status = 'pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		olderThan, limit)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*ledger.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
