package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspay/internal/ledger"
	"campuspay/internal/payment"
)

func TestUnitOfWorkCommitsBothStores(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	uow := NewUnitOfWork(conn)
	paidAt := time.Date(2025, time.March, 3, 10, 5, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE transactions`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subscription_id", "transaction_reference", "amount", "payment_method",
			"payment_provider", "provider_transaction_id", "status", "metadata", "created_at", "updated_at",
		}).AddRow(21, 11, "SUB-a", "25000.00", "card", "paystack", "1", "successful", []byte(`{}`), paidAt, paidAt))
	mock.ExpectExec(`UPDATE subscriptions`).
		WithArgs(int64(11), paidAt, "card", "SUB-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = uow.Do(context.Background(), func(st payment.Stores) error {
		txn, err := st.Transactions.CompleteIfPending(context.Background(), "SUB-a", ledger.Completion{Status: ledger.StatusSuccessful})
		if err != nil {
			return err
		}
		_, err = st.Subscriptions.MarkPaid(context.Background(), txn.SubscriptionID, paidAt, "card", "SUB-a")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkRollsBackTransactionUpdate(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	uow := NewUnitOfWork(conn)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE subscriptions`).WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	err = uow.Do(context.Background(), func(st payment.Stores) error {
		_, err := st.Subscriptions.MarkPaid(context.Background(), 11, time.Now(), "card", "SUB-a")
		return err
	})

	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
