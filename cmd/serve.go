package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"remnabot/internal/config"
	"remnabot/internal/gateway"
	"remnabot/internal/infrastructure"
	httpapi "remnabot/internal/interfaces/http"
	"remnabot/internal/metrics"
	"remnabot/internal/repository"
	"remnabot/internal/scheduler"
	"remnabot/internal/usecases"
)

const clickWindow = 700 * time.Millisecond

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations on start")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) error {
	pg, err := infrastructure.NewPostgresClient(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pg.Close()

	if migrate {
		if err := infrastructure.Migrate(pg.DB.DB, "up", logger); err != nil {
			return err
		}
	}

	rdb, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	store := repository.NewStore(pg.DB)
	bots := infrastructure.NewTelegramBotManager(cfg.HTTP.PublicURL, cfg.Telegram.APIEndpoint, logger)

	gateways := gateway.NewRegistry(gateway.NewStars(bots))
	if cfg.CryptoPay.Enabled() {
		gateways.Register(gateway.NewCryptoPay(cfg.CryptoPay))
		// set once in @CryptoBot, shared by all bots
		logger.Info("crypto pay webhook", zap.String("url", cfg.HTTP.PublicURL+"/webhook/cryptopay"))
	}
	logger.Info("payment gateways", zap.Strings("enabled", gateways.Names()))

	auth := usecases.NewAuthUsecase(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	billing := usecases.NewBillingService(store, gateways, m, cfg.Billing, logger)
	tenants := usecases.NewTenantService(store, bots, auth, m, logger)
	dashboard := usecases.NewDashboardUsecase(store)

	limiter := infrastructure.NewChatRateLimiter(cfg.Telegram.ChatRateLimit, cfg.Telegram.ChatRateBurst)
	go limiter.Run(ctx, time.Minute)
	clicks := infrastructure.NewClickGuard(clickWindow)
	go clicks.Run(ctx, time.Minute)
	dispatcher := usecases.NewDispatcher(store, billing, gateways, bots, bots, limiter, clicks, m)

	if created, err := auth.EnsureSuperAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		logger.Warn("failed to ensure superadmin", zap.Error(err))
	} else if created {
		logger.Info("superadmin created", zap.String("username", cfg.Auth.AdminUsername))
	}

	if cfg.HTTP.PublicURL == "" {
		logger.Warn("PUBLIC_URL is not set, bots will not receive updates")
	} else {
		n, err := bots.LoadAll(ctx, tenants)
		if err != nil {
			return err
		}
		m.ActiveBots.Set(float64(n))
		logger.Info("bots attached", zap.Int("count", n))
	}
	defer bots.DetachAll()

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(cfg.Scheduler, tenants, billing, bots, m, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.SetupRoutes(r, httpapi.Deps{
		Auth:         auth,
		Tenants:      tenants,
		Dashboard:    dashboard,
		Ledger:       billing,
		Updates:      dispatcher,
		Bots:         bots,
		Dedup:        infrastructure.NewDeduper(rdb),
		Gateways:     gateways,
		Metrics:      m,
		Gatherer:     reg,
		Logger:       logger,
		DedupTTL:     cfg.Billing.DedupTTL,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		RateLimit:    cfg.Auth.RateLimit,
		RateBurst:    cfg.Auth.RateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}
