package usecases

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remnabot/internal/entities"
	"remnabot/internal/gateway"
)

const (
	cbMenuBalance      = "menu:balance"
	cbMenuPlans        = "menu:plans"
	cbMenuSubscription = "menu:subscription"
	cbPlanPrefix       = "plan:"
	cbTopUpPrefix      = "topup:"
)

// MainMenuKeyboard is attached to the welcome message
func MainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💰 Balance", cbMenuBalance),
			tgbotapi.NewInlineKeyboardButtonData("📦 Plans", cbMenuPlans),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗓 My subscription", cbMenuSubscription),
		),
	)
}

// PlansKeyboard lists plans one per row
func PlansKeyboard(plans []entities.Plan, currency string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(plans))
	for _, p := range plans {
		label := fmt.Sprintf("%s · %d d · %s", p.Title, p.DurationDays, FormatMoney(p.Price, currency))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbPlanPrefix+strconv.FormatInt(p.ID, 10)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// TopUpKeyboard offers the preset amounts for every gateway able to charge currency.
func TopUpKeyboard(gateways []string, currency string, amounts []int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, name := range gateways {
		var row []tgbotapi.InlineKeyboardButton
		for _, amount := range amounts {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				gatewayIcon(name)+" "+FormatMoney(amount, currency),
				fmt.Sprintf("%s%s:%d", cbTopUpPrefix, name, amount),
			))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// PayKeyboard is a single link button to the gateway checkout
func PayKeyboard(url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Pay", url)),
	)
}

func gatewayIcon(name string) string {
	switch name {
	case gateway.StarsName:
		return "⭐"
	case gateway.CryptoPayName:
		return "🪙"
	default:
		return "💳"
	}
}
