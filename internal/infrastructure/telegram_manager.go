package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"remnabot/internal/entities"
)

// allowedUpdates is everything the dispatcher knows how to handle.
var allowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}

// BotSource lists the bots that should be served after a restart.
type BotSource interface {
	ActiveBots(ctx context.Context) ([]entities.Bot, error)
}

type managedBot struct {
	api  *tgbotapi.BotAPI
	info entities.Bot
}

// TelegramBotManager holds one Bot API client per tenant bot. Updates arrive
// through webhooks, so nothing here polls.
type TelegramBotManager struct {
	bots        map[int64]*managedBot
	mu          sync.RWMutex
	publicURL   string
	apiEndpoint string
	client      *http.Client
	logger      *zap.Logger
}

// NewTelegramBotManager creates a manager that points webhooks at publicURL.
// apiEndpoint may be empty for the public Bot API.
func NewTelegramBotManager(publicURL, apiEndpoint string, logger *zap.Logger) *TelegramBotManager {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	return &TelegramBotManager{
		bots:        make(map[int64]*managedBot),
		publicURL:   strings.TrimRight(publicURL, "/"),
		apiEndpoint: apiEndpoint,
		client:      &http.Client{},
		logger:      logger.Named("telegram"),
	}
}

// Connect validates token with getMe and returns a ready client.
func (m *TelegramBotManager) Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, m.apiEndpoint, m.client)
	if err != nil {
		return nil, errors.Wrap(entities.ErrInvalidInput, "invalid bot token: "+err.Error())
	}
	return api, nil
}

// WebhookURL is where Telegram delivers updates for botID.
func (m *TelegramBotManager) WebhookURL(botID int64) string {
	return m.publicURL + "/webhook/telegram/" + strconv.FormatInt(botID, 10)
}

// Register connects the bot and points its webhook at this service.
func (m *TelegramBotManager) Register(bot entities.Bot) error {
	api, err := m.Connect(bot.Token)
	if err != nil {
		return err
	}
	return m.Attach(bot, api)
}

// Attach sets the webhook of an already connected bot and starts serving it.
func (m *TelegramBotManager) Attach(bot entities.Bot, api *tgbotapi.BotAPI) error {
	updates, err := json.Marshal(allowedUpdates)
	if err != nil {
		return err
	}

	params := tgbotapi.Params{
		"url":             m.WebhookURL(bot.ID),
		"secret_token":    bot.WebhookSecret,
		"allowed_updates": string(updates),
	}
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return errors.Wrapf(err, "set webhook for bot %d", bot.ID)
	}

	m.mu.Lock()
	m.bots[bot.ID] = &managedBot{api: api, info: bot}
	m.mu.Unlock()

	m.logger.Info("bot attached", zap.Int64("bot_id", bot.ID), zap.String("username", api.Self.UserName))
	return nil
}

// Get returns the client of a served bot
func (m *TelegramBotManager) Get(botID int64) (*tgbotapi.BotAPI, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mb, ok := m.bots[botID]
	if !ok {
		return nil, false
	}
	return mb.api, true
}

// Lookup returns the stored bot record, used to check webhook secrets.
func (m *TelegramBotManager) Lookup(botID int64) (entities.Bot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mb, ok := m.bots[botID]
	if !ok {
		return entities.Bot{}, false
	}
	return mb.info, true
}

// Remove deletes the webhook and stops serving the bot.
func (m *TelegramBotManager) Remove(botID int64) error {
	m.mu.Lock()
	mb, ok := m.bots[botID]
	delete(m.bots, botID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if _, err := mb.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return errors.Wrapf(err, "delete webhook for bot %d", botID)
	}
	m.logger.Info("bot removed", zap.Int64("bot_id", botID))
	return nil
}

// LoadAll registers every active bot. Bots that fail are logged and skipped.
func (m *TelegramBotManager) LoadAll(ctx context.Context, src BotSource) (int, error) {
	bots, err := src.ActiveBots(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list active bots")
	}

	loaded := 0
	for _, b := range bots {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if err := m.Register(b); err != nil {
			m.logger.Warn("bot not loaded", zap.Int64("bot_id", b.ID), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Count returns the number of bots being served
func (m *TelegramBotManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bots)
}

// DetachAll forgets every bot without touching webhooks (graceful shutdown)
func (m *TelegramBotManager) DetachAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bots = make(map[int64]*managedBot)
}
