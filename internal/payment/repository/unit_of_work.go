package repository

import (
	"context"
	"database/sql"

	ledgerRepo "campuspay/internal/ledger/repository"
	"campuspay/internal/payment"
	subscriptionRepo "campuspay/internal/subscription/repository"
	"campuspay/pkg/db"
)

// UnitOfWork hands out the subscription and ledger repositories bound to one *sql.Tx.
type UnitOfWork struct {
	db   *sql.DB
	opts *sql.TxOptions
}

func NewUnitOfWork(conn *sql.DB) *UnitOfWork {
	return &UnitOfWork{db: conn, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(payment.Stores) error) error {
	return db.WithTx(ctx, u.db, u.opts, func(tx *sql.Tx) error {
		return fn(payment.Stores{
			Subscriptions: subscriptionRepo.NewSubscriptionRepository(tx),
			Transactions:  ledgerRepo.NewTransactionRepository(tx),
		})
	})
}
