package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/interfaces"
	"remnabot/internal/logging"
	"remnabot/internal/metrics"
	"remnabot/internal/usecases"
)

// Authenticator issues and checks admin tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, *entities.Admin, error)
	ParseToken(raw string) (*usecases.Claims, error)
}

// TenantAdmin manages the bots served by the platform.
type TenantAdmin interface {
	RegisterBot(ctx context.Context, req usecases.RegisterBotRequest) (*entities.Bot, error)
	DeleteBot(ctx context.Context, botID int64) error
	SetBotActive(ctx context.Context, botID int64, active bool) (*entities.Bot, error)
	ListBots(ctx context.Context) ([]entities.Bot, error)
}

// Dashboard is the read/write surface of one bot, taken from ctx.
type Dashboard interface {
	Stats(ctx context.Context) (*entities.UserStats, error)
	ListUsers(ctx context.Context, limit, offset int) ([]entities.User, error)
	SetBlocked(ctx context.Context, userID int64, blocked bool) error
	ListPlans(ctx context.Context) ([]entities.Plan, error)
	CreatePlan(ctx context.Context, p *entities.Plan) error
	UpdatePlan(ctx context.Context, p *entities.Plan) error
	DeletePlan(ctx context.Context, id int64) error
	GetPayment(ctx context.Context, id uuid.UUID) (*entities.Payment, error)
	UserPayments(ctx context.Context, userID int64) ([]entities.Payment, error)
	UserTransactions(ctx context.Context, userID int64) ([]entities.Transaction, error)
	Settings(ctx context.Context) ([]entities.BotSetting, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Ledger is the money moving part of billing the admin API and gateway
// webhooks need.
type Ledger interface {
	Adjust(ctx context.Context, userID, delta int64, reason string) (int64, error)
	Refund(ctx context.Context, paymentID uuid.UUID) (*entities.Payment, error)
	ClosePayment(ctx context.Context, ref usecases.PaymentRef, status entities.PaymentStatus) error
}

// UpdateHandler consumes Telegram updates and completed payments.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, botID int64, update tgbotapi.Update) error
	CompleteAndNotify(ctx context.Context, botID int64, ref usecases.PaymentRef, chargeID string) (*usecases.Completion, error)
}

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Auth      Authenticator
	Tenants   TenantAdmin
	Dashboard Dashboard
	Ledger    Ledger
	Updates   UpdateHandler
	Bots      interfaces.BotDirectory
	Dedup     interfaces.Deduper
	Gateways  *gateway.Registry
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger

	DedupTTL     time.Duration
	MaxBodyBytes int64
	RateLimit    float64 // admin API requests per second per admin
	RateBurst    int
}

func SetupRoutes(r *gin.Engine, d Deps) {
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	if d.DedupTTL <= 0 {
		d.DedupTTL = 72 * time.Hour
	}

	mw := NewMiddleware(d.Auth, d.RateLimit, d.RateBurst)
	admin := NewAdminHandler(d.Auth, d.Tenants)
	dashboard := NewDashboardHandler(d.Dashboard, d.Ledger)
	webhooks := NewWebhookHandler(d.Bots, d.Dedup, d.Updates, d.Ledger, d.Gateways, d.Metrics, d.DedupTTL)

	r.Use(RequestLogger(d.Logger))
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(d.MaxBodyBytes))
	r.Use(mw.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Called by Telegram and payment providers
	hooks := r.Group("/webhook")
	{
		hooks.POST("/telegram/:bot_id", webhooks.Telegram)
		hooks.POST("/cryptopay", webhooks.CryptoPay)
	}

	r.POST("/api/auth/login", admin.Login)

	api := r.Group("/api")
	api.Use(mw.AuthRequired())
	api.Use(mw.RateLimitPerAdmin())
	{
		api.GET("/me", admin.Me)

		bots := api.Group("/bots")
		bots.POST("", mw.SuperAdminRequired(), admin.RegisterBot)
		bots.GET("", mw.SuperAdminRequired(), admin.ListBots)
		bots.DELETE("/:bot_id", mw.SuperAdminRequired(), admin.DeleteBot)
		bots.PUT("/:bot_id/active", mw.SuperAdminRequired(), admin.SetBotActive)

		tenant := bots.Group("/:bot_id")
		tenant.Use(mw.TenantScope())
		dashboard.RegisterRoutes(tenant)
	}
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrConflict), errors.Is(err, entities.ErrPaymentState):
		return http.StatusConflict
	case errors.Is(err, entities.ErrInvalidInput), errors.Is(err, entities.ErrGatewayDisabled),
		errors.Is(err, entities.ErrTenantMissing):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, usecases.ErrInvalidCredentials), errors.Is(err, entities.ErrInvalidSignature):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal errors are logged and hidden.
func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
