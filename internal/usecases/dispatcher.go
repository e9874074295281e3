package usecases

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/infrastructure"
	"remnabot/internal/interfaces"
	"remnabot/internal/logging"
	"remnabot/internal/metrics"
	"remnabot/internal/repository"
	"remnabot/internal/tenancy"
)

const (
	defaultWelcome = "👋 <b>Welcome!</b>\n\nTop up your balance and pick a plan to get access."
	qrSize         = 320
)

// Dispatcher turns Telegram updates of a tenant bot into billing actions and
// replies. It is stateless per update apart from flood and double click
// protection.
type Dispatcher struct {
	store    *repository.Store
	billing  *BillingService
	gateways *gateway.Registry
	sender   interfaces.BotSender
	bots     interfaces.BotDirectory
	limiter  *infrastructure.ChatRateLimiter
	clicks   *infrastructure.ClickGuard
	metrics  *metrics.Metrics
}

func NewDispatcher(
	store *repository.Store,
	billing *BillingService,
	gateways *gateway.Registry,
	sender interfaces.BotSender,
	bots interfaces.BotDirectory,
	limiter *infrastructure.ChatRateLimiter,
	clicks *infrastructure.ClickGuard,
	m *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		store:    store,
		billing:  billing,
		gateways: gateways,
		sender:   sender,
		bots:     bots,
		limiter:  limiter,
		clicks:   clicks,
		metrics:  m,
	}
}

// HandleUpdate processes one update addressed to botID.
func (d *Dispatcher) HandleUpdate(ctx context.Context, botID int64, update tgbotapi.Update) error {
	ctx = tenancy.WithBot(ctx, botID)

	switch {
	case update.PreCheckoutQuery != nil:
		d.metrics.Update("pre_checkout_query")
		return d.handlePreCheckout(ctx, botID, update.PreCheckoutQuery)

	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		d.metrics.Update("successful_payment")
		return d.handleSuccessfulPayment(ctx, botID, update.Message)

	case update.Message != nil:
		d.metrics.Update("message")
		if update.Message.Chat == nil || update.Message.From == nil {
			return nil
		}
		if !d.limiter.Allow(botID, update.Message.Chat.ID) {
			d.metrics.Update("throttled")
			return nil
		}
		return d.handleMessage(ctx, botID, update.Message)

	case update.CallbackQuery != nil:
		d.metrics.Update("callback_query")
		if cb := update.CallbackQuery; cb.Message != nil && cb.Message.Chat != nil && !d.limiter.Allow(botID, cb.Message.Chat.ID) {
			d.metrics.Update("throttled")
			return d.answer(botID, update.CallbackQuery.ID, "Too many requests, slow down")
		}
		return d.handleCallback(ctx, botID, update.CallbackQuery)

	default:
		d.metrics.Update("other")
		return nil
	}
}

func (d *Dispatcher) bot(botID int64) (entities.Bot, error) {
	b, ok := d.bots.Lookup(botID)
	if !ok {
		return entities.Bot{}, errors.Wrapf(entities.ErrNotFound, "bot %d is not served", botID)
	}
	return b, nil
}

func (d *Dispatcher) reply(botID, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	_, err := d.sender.Send(botID, msg)
	return err
}

func (d *Dispatcher) answer(botID int64, callbackID, text string) error {
	return d.sender.Request(botID, tgbotapi.NewCallback(callbackID, text))
}

// knownUser returns the sender's account, creating it on first contact.
func (d *Dispatcher) knownUser(ctx context.Context, from *tgbotapi.User) (*entities.User, error) {
	s := d.store.Session(ctx)
	defer s.Close()

	user, err := d.store.Users.GetByTelegramID(ctx, s, from.ID)
	if errors.Is(err, entities.ErrNotFound) {
		user, _, err = d.register(ctx, s, from, "")
	}
	return user, err
}

// register upserts the user. A referral code is honoured only when the user
// is created, and never for a self referral.
func (d *Dispatcher) register(ctx context.Context, s *repository.Session, from *tgbotapi.User, ref string) (*entities.User, bool, error) {
	in := repository.NewUser{From: from}
	if ref != "" {
		referrer, err := d.store.Users.GetByReferralCode(ctx, s, ref)
		switch {
		case err == nil && referrer.TelegramID != from.ID:
			in.ReferredBy = &referrer.ID
		case err != nil && !errors.Is(err, entities.ErrNotFound):
			return nil, false, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		in.ReferralCode = newReferralCode()
		user, created, err := d.store.Users.UpsertFromTelegram(ctx, s, in)
		if err == nil {
			return user, created, nil
		}
		if !errors.Is(err, entities.ErrConflict) {
			return nil, false, err
		}
		lastErr = err
	}
	return nil, false, lastErr
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (d *Dispatcher) handleMessage(ctx context.Context, botID int64, msg *tgbotapi.Message) error {
	if msg.IsCommand() && msg.Command() == "start" {
		return d.handleStart(ctx, botID, msg)
	}

	user, err := d.knownUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if user.IsBlocked {
		return nil
	}

	switch msg.Command() {
	case "balance":
		return d.showBalance(ctx, botID, msg.Chat.ID, user)
	case "plans":
		return d.showPlans(ctx, botID, msg.Chat.ID)
	case "subscription":
		return d.showSubscription(ctx, botID, msg.Chat.ID, user)
	default:
		kb := MainMenuKeyboard()
		return d.reply(botID, msg.Chat.ID, "Use the menu below or /balance, /plans, /subscription.", &kb)
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, botID int64, msg *tgbotapi.Message) error {
	b, err := d.bot(botID)
	if err != nil {
		return err
	}

	s := d.store.Session(ctx)
	defer s.Close()

	user, created, err := d.register(ctx, s, msg.From, strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		return err
	}
	if user.IsBlocked {
		return nil
	}
	if created {
		logging.FromContext(ctx).Info("user registered",
			zap.Int64("user_id", user.ID),
			zap.Bool("referred", user.ReferredBy != nil))
	}

	welcome, err := d.store.Settings.Get(ctx, s, entities.SettingWelcomeMessage)
	if err != nil {
		return err
	}
	if welcome == "" {
		welcome = defaultWelcome
	}

	var sb strings.Builder
	sb.WriteString(welcome)
	fmt.Fprintf(&sb, "\n\n💰 Balance: <b>%s</b>", FormatMoney(user.Balance, b.Currency))
	if b.Username != "" {
		fmt.Fprintf(&sb, "\n🔗 Invite friends: https://t.me/%s?start=%s", b.Username, user.ReferralCode)
	}
	if support, _ := d.store.Settings.Get(ctx, s, entities.SettingSupportLink); support != "" {
		fmt.Fprintf(&sb, "\n🆘 Support: %s", html.EscapeString(support))
	}

	kb := MainMenuKeyboard()
	return d.reply(botID, msg.Chat.ID, sb.String(), &kb)
}

func (d *Dispatcher) showBalance(ctx context.Context, botID, chatID int64, user *entities.User) error {
	b, err := d.bot(botID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("💰 Your balance: <b>%s</b>", FormatMoney(user.Balance, b.Currency))
	names := d.gateways.For(b.Currency)
	amounts := d.billing.TopUpPresets(b.Currency)
	if len(names) == 0 || len(amounts) == 0 {
		return d.reply(botID, chatID, text+"\n\nTop ups are not available right now.", nil)
	}
	kb := TopUpKeyboard(names, b.Currency, amounts)
	return d.reply(botID, chatID, text+"\n\nChoose an amount to top up:", &kb)
}

func (d *Dispatcher) showPlans(ctx context.Context, botID, chatID int64) error {
	b, err := d.bot(botID)
	if err != nil {
		return err
	}

	s := d.store.Session(ctx)
	defer s.Close()

	plans, err := d.store.Plans.List(ctx, s, true)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return d.reply(botID, chatID, "📦 No plans are on sale yet.", nil)
	}
	kb := PlansKeyboard(plans, b.Currency)
	return d.reply(botID, chatID, "📦 <b>Plans</b>\n\nPick one to pay from your balance:", &kb)
}

func (d *Dispatcher) showSubscription(ctx context.Context, botID, chatID int64, user *entities.User) error {
	s := d.store.Session(ctx)
	defer s.Close()

	sub, err := d.store.Subscriptions.GetActive(ctx, s, user.ID, time.Now().UTC())
	if errors.Is(err, entities.ErrNotFound) {
		kb := MainMenuKeyboard()
		return d.reply(botID, chatID, "🗓 You have no active subscription.", &kb)
	}
	if err != nil {
		return err
	}
	return d.reply(botID, chatID,
		fmt.Sprintf("🗓 Subscription active until <b>%s</b>", sub.ExpiresAt.Format("2006-01-02 15:04 MST")), nil)
}

func (d *Dispatcher) handleCallback(ctx context.Context, botID int64, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return d.answer(botID, cb.ID, "")
	}
	chatID := cb.Message.Chat.ID

	user, err := d.knownUser(ctx, cb.From)
	if err != nil {
		_ = d.answer(botID, cb.ID, "Something went wrong")
		return err
	}
	if user.IsBlocked {
		return d.answer(botID, cb.ID, "")
	}

	switch {
	case cb.Data == cbMenuBalance:
		_ = d.answer(botID, cb.ID, "")
		return d.showBalance(ctx, botID, chatID, user)
	case cb.Data == cbMenuPlans:
		_ = d.answer(botID, cb.ID, "")
		return d.showPlans(ctx, botID, chatID)
	case cb.Data == cbMenuSubscription:
		_ = d.answer(botID, cb.ID, "")
		return d.showSubscription(ctx, botID, chatID, user)
	case strings.HasPrefix(cb.Data, cbPlanPrefix), strings.HasPrefix(cb.Data, cbTopUpPrefix):
		done, ok := d.clicks.Begin(botID, chatID)
		if !ok {
			return d.answer(botID, cb.ID, "⏳ Please wait…")
		}
		defer done()
		_ = d.answer(botID, cb.ID, "")

		if strings.HasPrefix(cb.Data, cbPlanPrefix) {
			return d.buyPlan(ctx, botID, chatID, user, strings.TrimPrefix(cb.Data, cbPlanPrefix))
		}
		return d.startTopUp(ctx, botID, chatID, user, strings.TrimPrefix(cb.Data, cbTopUpPrefix))
	default:
		return d.answer(botID, cb.ID, "Unknown action")
	}
}

func (d *Dispatcher) buyPlan(ctx context.Context, botID, chatID int64, user *entities.User, rawID string) error {
	planID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return errors.Wrap(entities.ErrInvalidInput, "plan id")
	}

	sub, err := d.billing.Purchase(ctx, user.ID, planID)
	switch {
	case errors.Is(err, entities.ErrInsufficientFunds):
		return d.showBalanceShort(ctx, botID, chatID, user)
	case errors.Is(err, entities.ErrNotFound):
		return d.reply(botID, chatID, "This plan is no longer available.", nil)
	case err != nil:
		return err
	}

	return d.reply(botID, chatID,
		fmt.Sprintf("✅ Done! Subscription active until <b>%s</b>", sub.ExpiresAt.Format("2006-01-02 15:04 MST")), nil)
}

func (d *Dispatcher) showBalanceShort(ctx context.Context, botID, chatID int64, user *entities.User) error {
	if err := d.reply(botID, chatID, "❌ Not enough balance for this plan.", nil); err != nil {
		return err
	}
	return d.showBalance(ctx, botID, chatID, user)
}

// startTopUp handles "<gateway>:<amount>".
func (d *Dispatcher) startTopUp(ctx context.Context, botID, chatID int64, user *entities.User, arg string) error {
	name, rawAmount, ok := strings.Cut(arg, ":")
	if !ok {
		return errors.Wrap(entities.ErrInvalidInput, "top up data")
	}
	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil {
		return errors.Wrap(entities.ErrInvalidInput, "top up amount")
	}

	b, err := d.bot(botID)
	if err != nil {
		return err
	}

	p, err := d.billing.StartTopUp(ctx, TopUpRequest{
		UserID:   user.ID,
		ChatID:   chatID,
		Gateway:  name,
		Amount:   amount,
		Currency: b.Currency,
	})
	switch {
	case errors.Is(err, entities.ErrGatewayDisabled), errors.Is(err, entities.ErrInvalidInput):
		return d.reply(botID, chatID, "This payment method is not available.", nil)
	case err != nil:
		_ = d.reply(botID, chatID, "Could not create the invoice, please try again later.", nil)
		return err
	}

	if p.PayURL == nil {
		// the gateway already delivered the invoice in chat
		return nil
	}

	caption := fmt.Sprintf("🧾 Invoice for <b>%s</b>\nPay within the hour, the balance is credited automatically.",
		FormatMoney(p.Amount, p.Currency))
	kb := PayKeyboard(*p.PayURL)

	png, err := gateway.QRCode(*p.PayURL, qrSize)
	if err != nil {
		return d.reply(botID, chatID, caption, &kb)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "invoice.png", Bytes: png})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = kb
	_, err = d.sender.Send(botID, photo)
	return err
}

func (d *Dispatcher) handlePreCheckout(ctx context.Context, botID int64, q *tgbotapi.PreCheckoutQuery) error {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}

	id, err := uuid.Parse(q.InvoicePayload)
	switch {
	case err != nil:
		err = errors.Wrap(entities.ErrInvalidInput, "invoice payload")
	case q.Currency != gateway.StarsCurrency:
		err = errors.Wrapf(entities.ErrInvalidInput, "currency %s", q.Currency)
	default:
		err = d.billing.CheckPending(ctx, id, int64(q.TotalAmount))
	}
	if err != nil {
		answer.OK = false
		answer.ErrorMessage = "This invoice has expired. Please create a new one."
		logging.FromContext(ctx).Info("pre checkout rejected", zap.Error(err))
	}

	return d.sender.Request(botID, answer)
}

func (d *Dispatcher) handleSuccessfulPayment(ctx context.Context, botID int64, msg *tgbotapi.Message) error {
	sp := msg.SuccessfulPayment
	id, err := uuid.Parse(sp.InvoicePayload)
	if err != nil {
		return errors.Wrapf(entities.ErrInvalidInput, "invoice payload %q", sp.InvoicePayload)
	}

	_, err = d.CompleteAndNotify(ctx, botID, PaymentRef{ID: id, Gateway: gateway.StarsName}, sp.TelegramPaymentChargeID)
	return err
}

// CompleteAndNotify completes the payment and tells the payer (and the
// referrer, if a bonus was paid) through the bot.
func (d *Dispatcher) CompleteAndNotify(ctx context.Context, botID int64, ref PaymentRef, chargeID string) (*Completion, error) {
	ctx = tenancy.WithBot(ctx, botID)

	out, err := d.billing.CompletePayment(ctx, ref, chargeID)
	if err != nil {
		return nil, err
	}
	if out.Duplicate {
		return out, nil
	}

	p := out.Payment
	text := fmt.Sprintf("✅ Payment received: <b>%s</b>\n💰 Balance: <b>%s</b>",
		FormatMoney(p.Amount, p.Currency), FormatMoney(out.Balance, p.Currency))
	kb := MainMenuKeyboard()
	if err := d.reply(botID, out.User.TelegramID, text, &kb); err != nil {
		logging.FromContext(ctx).Warn("notify payer", zap.Error(err))
	}

	if out.Referrer != nil {
		text := fmt.Sprintf("🎁 Your friend made a first payment. Bonus: <b>%s</b>", FormatMoney(out.Bonus, p.Currency))
		if err := d.reply(botID, out.Referrer.TelegramID, text, nil); err != nil {
			logging.FromContext(ctx).Warn("notify referrer", zap.Error(err))
		}
	}
	return out, nil
}
