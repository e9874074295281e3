package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"remnabot/internal/config"
	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/logging"
	"remnabot/internal/metrics"
	"remnabot/internal/repository"
	"remnabot/internal/usecases"
)

type staticBots struct {
	bots []entities.Bot
	err  error
}

func (s staticBots) ActiveBots(context.Context) ([]entities.Bot, error) {
	return s.bots, s.err
}

type notice struct {
	botID, chatID int64
}

type recordingMessenger struct {
	notices []notice
}

func (r *recordingMessenger) Notify(_ context.Context, botID, chatID int64, _ string) error {
	r.notices = append(r.notices, notice{botID, chatID})
	return nil
}

func newTestScheduler(t *testing.T, bots staticBots) (*Scheduler, sqlmock.Sqlmock, *recordingMessenger) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repository.NewStore(sqlx.NewDb(db, "sqlmock"))
	m := metrics.NewNop()
	billing := usecases.NewBillingService(store, gateway.NewRegistry(), m,
		config.BillingConfig{PaymentTTL: time.Hour}, zap.NewNop())
	messenger := &recordingMessenger{}

	s, err := New(config.SchedulerConfig{
		ExpirePaymentsSpec:      "@every 1m",
		ExpireSubscriptionsSpec: "@every 5m",
	}, bots, billing, messenger, m, zap.NewNop())
	require.NoError(t, err)
	return s, mock, messenger
}

func expectBotTx(mock sqlmock.Sqlmock, botID string) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WithArgs(botID).WillReturnResult(sqlmock.NewResult(0, 1))
}

func expiredRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"gateway", "n"})
}

func TestExpirePaymentsPerBot(t *testing.T) {
	s, mock, _ := newTestScheduler(t, staticBots{bots: []entities.Bot{{ID: 1}, {ID: 2}}})

	expectBotTx(mock, "1")
	mock.ExpectQuery("UPDATE payments SET status").WillReturnRows(expiredRows().
		AddRow("stars", int64(2)).
		AddRow("cryptopay", int64(1)))
	mock.ExpectCommit()
	expectBotTx(mock, "2")
	mock.ExpectQuery("UPDATE payments SET status").WillReturnRows(expiredRows().AddRow("stars", int64(3)))
	mock.ExpectCommit()

	require.NoError(t, s.ExpirePayments(context.Background()))
	assert.Equal(t, 5.0, testutil.ToFloat64(s.metrics.PaymentsTotal.WithLabelValues("stars", "expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.PaymentsTotal.WithLabelValues("cryptopay", "expired")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpirePaymentsKeepsGoingAfterFailure(t *testing.T) {
	s, mock, _ := newTestScheduler(t, staticBots{bots: []entities.Bot{{ID: 1}, {ID: 2}}})
	core, logs := observer.New(zapcore.InfoLevel)
	s.logger = zap.New(core)

	expectBotTx(mock, "1")
	mock.ExpectQuery("UPDATE payments SET status").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()
	expectBotTx(mock, "2")
	mock.ExpectQuery("UPDATE payments SET status").WillReturnRows(expiredRows().AddRow("cryptopay", int64(1)))
	mock.ExpectCommit()

	err := s.ExpirePayments(context.Background())
	assert.ErrorContains(t, err, "deadlock")
	assert.NoError(t, mock.ExpectationsWereMet())

	failed := logs.FilterMessage("job failed for bot").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].ContextMap()[logging.BotIDKey])
	expired := logs.FilterMessage("payments expired").All()
	require.Len(t, expired, 1)
	assert.Equal(t, int64(2), expired[0].ContextMap()[logging.BotIDKey])
}

func TestExpireSubscriptionsNotifies(t *testing.T) {
	s, mock, messenger := newTestScheduler(t, staticBots{bots: []entities.Bot{{ID: 3}}})
	now := time.Now()

	expectBotTx(mock, "3")
	mock.ExpectQuery("UPDATE subscriptions sub SET status").
		WillReturnRows(sqlmock.NewRows([]string{"id", "bot_id", "user_id", "plan_id", "status", "started_at", "expires_at", "telegram_id"}).
			AddRow(int64(1), int64(3), int64(11), int64(2), "expired", now.AddDate(0, -1, 0), now, int64(1001)).
			AddRow(int64(2), int64(3), int64(12), int64(2), "expired", now.AddDate(0, -1, 0), now, int64(1002)))
	mock.ExpectCommit()

	require.NoError(t, s.ExpireSubscriptions(context.Background()))
	assert.Equal(t, []notice{{3, 1001}, {3, 1002}}, messenger.notices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingFailure(t *testing.T) {
	s, _, _ := newTestScheduler(t, staticBots{err: errors.New("db down")})
	assert.Error(t, s.ExpireSubscriptions(context.Background()))
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(config.SchedulerConfig{ExpirePaymentsSpec: "every minute", ExpireSubscriptionsSpec: "@every 5m"},
		staticBots{}, nil, nil, metrics.NewNop(), zap.NewNop())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, staticBots{})
	s.Start()
	assert.Len(t, s.cron.Entries(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
