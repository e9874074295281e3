// Package scheduler runs the periodic housekeeping jobs of every tenant.
package scheduler

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"remnabot/internal/config"
	"remnabot/internal/entities"
	"remnabot/internal/infrastructure"
	"remnabot/internal/interfaces"
	"remnabot/internal/logging"
	"remnabot/internal/metrics"
	"remnabot/internal/tenancy"
	"remnabot/internal/usecases"
)

const jobTimeout = 2 * time.Minute

type Scheduler struct {
	cron      *cron.Cron
	bots      infrastructure.BotSource
	billing   *usecases.BillingService
	messenger interfaces.Messenger
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func New(cfg config.SchedulerConfig, bots infrastructure.BotSource, billing *usecases.BillingService,
	messenger interfaces.Messenger, m *metrics.Metrics, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("scheduler")
	cl := cronLogger{log: logger.Sugar()}

	s := &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		bots:      bots,
		billing:   billing,
		messenger: messenger,
		metrics:   m,
		logger:    logger,
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"expire_payments", cfg.ExpirePaymentsSpec, s.ExpirePayments},
		{"expire_subscriptions", cfg.ExpireSubscriptionsSpec, s.ExpireSubscriptions},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(job.name, job.run) }); err != nil {
			return nil, errors.Wrapf(err, "schedule %s (%q)", job.name, job.spec)
		}
	}
	return s, nil
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	s.metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// forEachBot runs fn once per active bot with ctx scoped to it. A failing bot
// does not stop the others; the first error is returned.
func (s *Scheduler) forEachBot(ctx context.Context, fn func(ctx context.Context, botID int64) error) error {
	bots, err := s.bots.ActiveBots(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, b := range bots {
		if err := ctx.Err(); err != nil {
			return err
		}
		botCtx := logging.WithBot(logging.WithLogger(tenancy.WithBot(ctx, b.ID), s.logger), b.ID)
		if err := fn(botCtx, b.ID); err != nil {
			logging.FromContext(botCtx).Warn("job failed for bot", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ExpirePayments closes pending payments nobody paid in time.
func (s *Scheduler) ExpirePayments(ctx context.Context) error {
	return s.forEachBot(ctx, func(ctx context.Context, botID int64) error {
		counts, err := s.billing.ExpireStalePayments(ctx)
		if err != nil {
			return err
		}
		for gw, n := range counts {
			s.metrics.PaymentsTotal.WithLabelValues(gw, string(entities.PaymentExpired)).Add(float64(n))
			logging.FromContext(ctx).Info("payments expired", zap.String("gateway", gw), zap.Int64("count", n))
		}
		return nil
	})
}

// ExpireSubscriptions ends lapsed subscriptions and tells their owners.
func (s *Scheduler) ExpireSubscriptions(ctx context.Context) error {
	return s.forEachBot(ctx, func(ctx context.Context, botID int64) error {
		expired, err := s.billing.ExpireSubscriptions(ctx)
		if err != nil {
			return err
		}
		for _, sub := range expired {
			text := "⌛ Your subscription has expired. Open /plans to renew it."
			if err := s.messenger.Notify(ctx, botID, sub.TelegramID, text); err != nil {
				logging.FromContext(ctx).Debug("expiry notice not delivered",
					zap.Int64("user_id", sub.UserID), zap.Error(err))
			}
		}
		if len(expired) > 0 {
			logging.FromContext(ctx).Info("subscriptions expired", zap.Int("count", len(expired)))
		}
		return nil
	})
}
