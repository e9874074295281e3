package interfaces

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remnabot/internal/entities"
)

// Messenger pushes text to a user through the bot they talk to.
type Messenger interface {
	Notify(ctx context.Context, botID, chatID int64, text string) error
}

// BotSender sends Bot API requests on behalf of a tenant bot.
type BotSender interface {
	Send(botID int64, c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(botID int64, c tgbotapi.Chattable) error
}

// BotRuntime is the part of the bot manager tenant administration needs.
type BotRuntime interface {
	Connect(token string) (*tgbotapi.BotAPI, error)
	Attach(bot entities.Bot, api *tgbotapi.BotAPI) error
	Remove(botID int64) error
	Count() int
}

type Deduper interface {
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// BotDirectory resolves a served bot by id.
type BotDirectory interface {
	Lookup(botID int64) (entities.Bot, bool)
}
