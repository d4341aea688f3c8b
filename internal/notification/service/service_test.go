package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspay/internal/notification"
)

type fakeRepo struct {
	created []*notification.Notification
	ctxErr  error
	err     error
	readID  uuid.UUID
	readBy  int64
}

func (f *fakeRepo) Create(ctx context.Context, n *notification.Notification) error {
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error) {
	return f.created, nil
}

func (f *fakeRepo) MarkRead(ctx context.Context, id uuid.UUID, userID int64, at time.Time) error {
	f.readID, f.readBy = id, userID
	return nil
}

func TestNotifySurvivesCancelledCaller(t *testing.T) {
	repo := &fakeRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewService(repo).Notify(ctx, &notification.Notification{UserID: 70, Title: "Payment Successful"})

	require.NoError(t, err)
	assert.NoError(t, repo.ctxErr)
	assert.Len(t, repo.created, 1)
}

func TestNotifyReportsStorageFailure(t *testing.T) {
	repo := &fakeRepo{err: errors.New("disk full")}

	err := NewService(repo).Notify(context.Background(), &notification.Notification{UserID: 70})

	assert.EqualError(t, err, "disk full")
}

func TestMarkReadScopedToUser(t *testing.T) {
	repo := &fakeRepo{}
	id := uuid.New()

	require.NoError(t, NewService(repo).MarkRead(context.Background(), 70, id))

	assert.Equal(t, id, repo.readID)
	assert.EqualValues(t, 70, repo.readBy)
}
