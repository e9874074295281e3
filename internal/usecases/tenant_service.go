package usecases

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/interfaces"
	"remnabot/internal/metrics"
	"remnabot/internal/repository"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type RegisterBotRequest struct {
	Token         string `json:"token" binding:"required"`
	Currency      string `json:"currency" binding:"required"`
	OwnerUsername string `json:"owner_username"`
	OwnerPassword string `json:"owner_password"`
}

// TenantService registers and removes tenant bots.
type TenantService struct {
	store   *repository.Store
	runtime interfaces.BotRuntime
	auth    *AuthUsecase
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewTenantService(store *repository.Store, runtime interfaces.BotRuntime, auth *AuthUsecase, m *metrics.Metrics, logger *zap.Logger) *TenantService {
	return &TenantService{
		store:   store,
		runtime: runtime,
		auth:    auth,
		metrics: m,
		logger:  logger.Named("tenants"),
	}
}

// defaultTenant seeds a new bot with the welcome text and one starter plan.
// The plan is off sale until the owner reviews its price.
func defaultTenant(currency string) repository.TenantDefaults {
	price := int64(500)
	if currency == gateway.StarsCurrency {
		price = 250
	}
	return repository.TenantDefaults{
		Settings: map[string]string{entities.SettingWelcomeMessage: defaultWelcome},
		Plans:    []entities.Plan{{Title: "1 month", DurationDays: 30, Price: price}},
	}
}

// RegisterBot validates the token with Telegram, provisions the tenant and
// its optional owner account, then starts serving the bot.
func (t *TenantService) RegisterBot(ctx context.Context, req RegisterBotRequest) (*entities.Bot, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !currencyPattern.MatchString(currency) {
		return nil, errors.Wrapf(entities.ErrInvalidInput, "currency %q", req.Currency)
	}
	if (req.OwnerUsername == "") != (req.OwnerPassword == "") {
		return nil, errors.Wrap(entities.ErrInvalidInput, "owner username and password go together")
	}

	api, err := t.runtime.Connect(req.Token)
	if err != nil {
		return nil, err
	}

	bot := &entities.Bot{
		Token:         req.Token,
		Username:      api.Self.UserName,
		WebhookSecret: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Currency:      currency,
		IsActive:      true,
	}
	if err := t.store.Tenants.Provision(ctx, bot, defaultTenant(currency)); err != nil {
		return nil, err
	}

	if req.OwnerUsername != "" {
		if err := t.attachOwner(ctx, bot, req.OwnerUsername, req.OwnerPassword); err != nil {
			t.rollbackTenant(ctx, bot.ID)
			return nil, err
		}
	}

	if err := t.runtime.Attach(*bot, api); err != nil {
		t.rollbackTenant(ctx, bot.ID)
		return nil, err
	}

	t.metrics.ActiveBots.Set(float64(t.runtime.Count()))
	t.logger.Info("bot registered", zap.Int64("bot_id", bot.ID), zap.String("username", bot.Username))
	return bot, nil
}

func (t *TenantService) attachOwner(ctx context.Context, bot *entities.Bot, username, password string) error {
	owner, err := t.auth.CreateBotOwner(ctx, username, password, bot.ID)
	if err != nil {
		return err
	}
	bot.OwnerID = &owner.ID
	return nil
}

func (t *TenantService) rollbackTenant(ctx context.Context, botID int64) {
	if err := t.store.Tenants.Deprovision(ctx, botID); err != nil {
		t.logger.Error("deprovision after failed registration", zap.Int64("bot_id", botID), zap.Error(err))
	}
}

// DeleteBot stops serving the bot and deletes it with all its data.
func (t *TenantService) DeleteBot(ctx context.Context, botID int64) error {
	if err := t.runtime.Remove(botID); err != nil {
		t.logger.Warn("remove webhook", zap.Int64("bot_id", botID), zap.Error(err))
	}
	if err := t.store.Tenants.Deprovision(ctx, botID); err != nil {
		return err
	}
	t.metrics.ActiveBots.Set(float64(t.runtime.Count()))
	t.logger.Info("bot deleted", zap.Int64("bot_id", botID))
	return nil
}

// SetBotActive pauses or resumes a bot. A paused bot keeps its data, loses
// its webhook and is not restored on start.
func (t *TenantService) SetBotActive(ctx context.Context, botID int64, active bool) (*entities.Bot, error) {
	s := t.store.System()
	bot, err := t.store.Bots.GetByID(ctx, s, botID)
	// no transaction stays open across the Telegram calls below
	s.Close()
	if err != nil {
		return nil, err
	}
	if bot.IsActive == active {
		return bot, nil
	}
	bot.IsActive = active

	if active {
		api, err := t.runtime.Connect(bot.Token)
		if err != nil {
			return nil, err
		}
		if err := t.runtime.Attach(*bot, api); err != nil {
			return nil, err
		}
	} else if err := t.runtime.Remove(botID); err != nil {
		t.logger.Warn("remove webhook", zap.Int64("bot_id", botID), zap.Error(err))
	}

	w := t.store.System()
	defer w.Close()
	if err := t.store.Bots.SetActive(ctx, w, botID, active); err != nil {
		if active {
			_ = t.runtime.Remove(botID)
		}
		return nil, err
	}

	t.metrics.ActiveBots.Set(float64(t.runtime.Count()))
	t.logger.Info("bot state changed", zap.Int64("bot_id", botID), zap.Bool("active", active))
	return bot, nil
}

func (t *TenantService) ListBots(ctx context.Context) ([]entities.Bot, error) {
	s := t.store.System()
	defer s.Close()
	return t.store.Bots.List(ctx, s, false)
}

// ActiveBots lists the bots to serve after a restart.
func (t *TenantService) ActiveBots(ctx context.Context) ([]entities.Bot, error) {
	s := t.store.System()
	defer s.Close()
	return t.store.Bots.List(ctx, s, true)
}
