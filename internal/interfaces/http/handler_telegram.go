package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/infrastructure"
	"remnabot/internal/interfaces"
	"remnabot/internal/logging"
	"remnabot/internal/metrics"
	"remnabot/internal/tenancy"
	"remnabot/internal/usecases"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives updates from Telegram and payment providers.
type WebhookHandler struct {
	bots     interfaces.BotDirectory
	dedup    interfaces.Deduper
	updates  UpdateHandler
	ledger   Ledger
	gateways *gateway.Registry
	metrics  *metrics.Metrics
	dedupTTL time.Duration
}

func NewWebhookHandler(bots interfaces.BotDirectory, dedup interfaces.Deduper, updates UpdateHandler,
	ledger Ledger, gateways *gateway.Registry, m *metrics.Metrics, dedupTTL time.Duration) *WebhookHandler {
	return &WebhookHandler{
		bots:     bots,
		dedup:    dedup,
		updates:  updates,
		ledger:   ledger,
		gateways: gateways,
		metrics:  m,
		dedupTTL: dedupTTL,
	}
}

// firstDelivery reports whether key has not been processed yet. A Redis
// outage lets the delivery through; the database state machine still keeps
// payments from being applied twice.
func (h *WebhookHandler) firstDelivery(c *gin.Context, key string) bool {
	seen, err := h.dedup.Seen(c.Request.Context(), key, h.dedupTTL)
	if err != nil {
		logging.FromContext(c.Request.Context()).Warn("dedup unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return !seen
}

// release forgets key so that the provider's retry is processed again.
func (h *WebhookHandler) release(c *gin.Context, key string) {
	if err := h.dedup.Forget(c.Request.Context(), key); err != nil {
		logging.FromContext(c.Request.Context()).Warn("dedup forget", zap.String("key", key), zap.Error(err))
	}
}

// Telegram handles POST /webhook/telegram/:bot_id
func (h *WebhookHandler) Telegram(c *gin.Context) {
	botID, ok := paramID(c, "bot_id")
	if !ok {
		return
	}
	bot, found := h.bots.Lookup(botID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown bot"})
		return
	}
	secret := c.GetHeader(telegramSecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(bot.WebhookSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad secret token"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	key := infrastructure.UpdateKey(botID, update.UpdateID)
	if !h.firstDelivery(c, key) {
		h.metrics.Update("duplicate")
		c.Status(http.StatusOK)
		return
	}

	ctx := logging.WithBot(tenancy.WithBot(c.Request.Context(), botID), botID)
	if err := h.updates.HandleUpdate(ctx, botID, update); err != nil {
		log := logging.FromContext(ctx).With(zap.Int("update_id", update.UpdateID))
		if errorStatus(err) == http.StatusInternalServerError {
			// let Telegram redeliver
			log.Error("update failed", zap.Error(err))
			h.release(c, key)
			c.Status(http.StatusInternalServerError)
			return
		}
		log.Info("update rejected", zap.Error(err))
	}
	c.Status(http.StatusOK)
}

// CryptoPay handles POST /webhook/cryptopay. One Crypto Pay app serves
// every tenant, so the bot is taken from the signed invoice payload.
func (h *WebhookHandler) CryptoPay(c *gin.Context) {
	gw, err := h.gateways.Get(gateway.CryptoPayName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "gateway disabled"})
		return
	}

	event, err := gw.ParseWebhook(c.Request)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, entities.ErrInvalidSignature) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx := logging.WithBot(c.Request.Context(), event.BotID)
	log := logging.FromContext(ctx).With(
		zap.String("invoice", event.ExternalID),
		zap.String("status", string(event.Status)),
	)
	if _, found := h.bots.Lookup(event.BotID); !found {
		log.Error("payment webhook for unknown bot")
		h.metrics.Payment(event.Gateway, "unrouted")
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown bot"})
		return
	}

	key := infrastructure.PaymentKey(event.Gateway, event.ExternalID)
	if !h.firstDelivery(c, key) {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	ctx = tenancy.WithBot(ctx, event.BotID)
	ref := usecases.PaymentRef{ID: event.PaymentID, Gateway: event.Gateway, ExternalID: event.ExternalID}

	switch event.Status {
	case entities.PaymentPaid:
		_, err = h.updates.CompleteAndNotify(ctx, event.BotID, ref, "")
	default:
		err = h.ledger.ClosePayment(ctx, ref, event.Status)
	}

	switch {
	case err == nil:
	case errors.Is(err, entities.ErrPaymentState):
		// e.g. paid after we expired it; needs a manual adjustment
		log.Error("payment state conflict", zap.Error(err))
	case errors.Is(err, entities.ErrNotFound) && event.Status == entities.PaymentPaid:
		// money was taken but nothing to credit
		log.Error("paid invoice matches no payment", zap.Error(err))
		h.metrics.Payment(event.Gateway, "unmatched")
	case errorStatus(err) == http.StatusInternalServerError:
		log.Error("payment webhook failed", zap.Error(err))
		h.release(c, key)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	default:
		log.Warn("payment webhook rejected", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
