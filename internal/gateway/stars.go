package gateway

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remnabot/internal/interfaces"
)

const (
	StarsName     = "stars"
	StarsCurrency = "XTR"
)

var errStarsWebhook = errors.New("stars payments are delivered as bot updates")

// Stars charges Telegram Stars. The invoice is a message sent by the
// tenant bot; payment confirmation arrives as a successful_payment update.
type Stars struct {
	sender interfaces.BotSender
}

func NewStars(sender interfaces.BotSender) *Stars {
	return &Stars{sender: sender}
}

func (s *Stars) Name() string { return StarsName }

func (s *Stars) Supports(currency string) bool {
	return currency == StarsCurrency
}

func (s *Stars) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Currency != StarsCurrency {
		return nil, errors.Errorf("stars cannot charge %s", req.Currency)
	}

	invoice := tgbotapi.NewInvoice(req.ChatID, req.Title, req.Description, req.PaymentID.String(),
		"", "", StarsCurrency, []tgbotapi.LabeledPrice{{Label: req.Title, Amount: int(req.Amount)}})
	invoice.SuggestedTipAmounts = []int{}

	if _, err := s.sender.Send(req.BotID, invoice); err != nil {
		return nil, errors.Wrap(err, "send stars invoice")
	}
	// the charge id is only known once the user pays
	return &Invoice{}, nil
}

func (s *Stars) ParseWebhook(*http.Request) (*WebhookEvent, error) {
	return nil, errStarsWebhook
}
