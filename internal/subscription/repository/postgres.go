package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campuspay/internal/subscription"
	"campuspay/pkg/db"
)

const subscriptionColumns = `id, student_id, subscription_year, amount, currency, payment_status,
	payment_date, payment_method, payment_reference, due_date, created_at, updated_at`

const dateLayout = "2006-01-02"

type SubscriptionRepository struct {
	db db.DBTX
}

func NewSubscriptionRepository(conn db.DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	sub := &subscription.Subscription{}
	var paymentDate sql.NullTime
	err := row.Scan(
		&sub.ID,
		&sub.StudentID,
		&sub.Year,
		&sub.Amount,
		&sub.Currency,
		&sub.Status,
		&paymentDate,
		&sub.PaymentMethod,
		&sub.PaymentReference,
		&sub.DueDate,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paymentDate.Valid {
		t := paymentDate.Time
		sub.PaymentDate = &t
	}
	return sub, nil
}

// Upsert creates the (student, year) subscription or refreshes the amount of an open one.
// The due date is re-derived from the row's original creation time, so it never drifts.
// Identity, status and payment history are preserved. A paid or cancelled row is left
// untouched and ErrClosed is returned.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (student_id, subscription_year, amount, currency, payment_status, due_date)
		VALUES ($1, $2, $3, $4, 'pending', $5::date)
		ON CONFLICT (student_id, subscription_year) DO UPDATE
		SET amount = EXCLUDED.amount,
			due_date = make_date(EXTRACT(YEAR FROM subscriptions.created_at)::int + 1, 1, 31),
			updated_at = NOW()
		WHERE subscriptions.payment_status IN ('pending', 'overdue')
		RETURNING ` + subscriptionColumns

	saved, err := scanSubscription(r.db.QueryRowContext(ctx, query,
		sub.StudentID, sub.Year, sub.Amount, sub.Currency, sub.DueDate.Format(dateLayout)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subscription.ErrClosed
		}
		return err
	}
	*sub = *saved
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrNotFound
	}
	return sub, err
}

func (r *SubscriptionRepository) ListByStudent(ctx context.Context, studentID int64) ([]*subscription.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE student_id = $1 ORDER BY subscription_year DESC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// MarkPaid moves an open subscription to paid. It reports false when the row was already
// paid or cancelled, so a duplicate or stale success never rewrites it.
func (r *SubscriptionRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time, method, reference string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET payment_status = 'paid', payment_date = $2, payment_method = $3, payment_reference = $4, updated_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'overdue')`,
		id, paidAt, method, reference)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkOverdue flips pending subscriptions whose due date is before asOf's calendar day.
// Dates are sent as plain DATE literals so the session time zone never shifts them.
func (r *SubscriptionRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET payment_status = 'overdue', updated_at = NOW()
		WHERE payment_status = 'pending' AND due_date < $1::date`, asOf.Format(dateLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
