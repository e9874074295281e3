package infrastructure

import (
	"context"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var errBotNotServed = errors.New("bot is not served")

func (m *TelegramBotManager) api(botID int64) (*tgbotapi.BotAPI, error) {
	api, ok := m.Get(botID)
	if !ok {
		return nil, errors.Wrapf(errBotNotServed, "bot %d", botID)
	}
	return api, nil
}

// Send delivers c through the bot of botID.
func (m *TelegramBotManager) Send(botID int64, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	api, err := m.api(botID)
	if err != nil {
		return tgbotapi.Message{}, err
	}
	return api.Send(c)
}

// Request performs a call that does not return a message (answers, webhook changes)
func (m *TelegramBotManager) Request(botID int64, c tgbotapi.Chattable) error {
	api, err := m.api(botID)
	if err != nil {
		return err
	}
	_, err = api.Request(c)
	return err
}

// Notify sends a plain HTML text message.
func (m *TelegramBotManager) Notify(ctx context.Context, botID, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := m.Send(botID, msg)
	return err
}
