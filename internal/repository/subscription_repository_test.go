package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remnabot/internal/entities"
)

var subscriptionRowColumns = []string{"id", "bot_id", "user_id", "plan_id", "status", "started_at", "expires_at"}

func TestSubscriptionRepository_Extend(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	expectScopedBegin(mock)
	mock.ExpectQuery("INSERT INTO subscriptions").
		WithArgs(testBotID, int64(1), int64(2), now, 30).
		WillReturnRows(sqlmock.NewRows(subscriptionRowColumns).
			AddRow(5, testBotID, 1, 2, "active", now, now.AddDate(0, 0, 30)))
	mock.ExpectCommit()

	sub, err := NewSubscriptionRepository().Extend(context.Background(), NewBotSession(db, testBotID), 1, 2, 30, now)
	require.NoError(t, err)
	assert.Equal(t, entities.SubscriptionActive, sub.Status)
	assert.Equal(t, now.AddDate(0, 0, 30), sub.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_ExpireDue(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	expectScopedBegin(mock)
	mock.ExpectQuery("UPDATE subscriptions sub SET status = 'expired'").
		WithArgs(testBotID, now).
		WillReturnRows(sqlmock.NewRows(append(subscriptionRowColumns, "telegram_id")).
			AddRow(5, testBotID, 1, 2, "expired", now.AddDate(0, -1, 0), now, 4242))
	mock.ExpectCommit()

	expired, err := NewSubscriptionRepository().ExpireDue(context.Background(), NewBotSession(db, testBotID), now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(4242), expired[0].TelegramID)
	assert.Equal(t, entities.SubscriptionExpired, expired[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_GetActive_None(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	expectScopedBegin(mock)
	mock.ExpectQuery("FROM subscriptions").
		WithArgs(testBotID, int64(1), now).
		WillReturnRows(sqlmock.NewRows(subscriptionRowColumns))
	mock.ExpectRollback()

	s := NewBotSession(db, testBotID)
	_, err := NewSubscriptionRepository().GetActive(context.Background(), s, 1, now)
	s.Close()

	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
