package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"remnabot/internal/config"
	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/metrics"
	"remnabot/internal/repository"
	"remnabot/internal/tenancy"
)

// PaymentRef identifies a payment either by our id or by the gateway's id.
type PaymentRef struct {
	ID         uuid.UUID
	Gateway    string
	ExternalID string
}

func (r PaymentRef) String() string {
	if r.ID != uuid.Nil {
		return r.ID.String()
	}
	return r.Gateway + ":" + r.ExternalID
}

// Completion is what a successful CompletePayment did.
type Completion struct {
	Payment   *entities.Payment
	User      *entities.User
	Balance   int64
	Duplicate bool // the payment had already been completed
	Referrer  *entities.User
	Bonus     int64
}

// BillingService moves money: top ups, purchases, refunds and manual
// adjustments. Every balance change is written together with its ledger
// entry in one transaction.
type BillingService struct {
	store    *repository.Store
	gateways *gateway.Registry
	metrics  *metrics.Metrics
	cfg      config.BillingConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewBillingService(store *repository.Store, gateways *gateway.Registry, m *metrics.Metrics, cfg config.BillingConfig, logger *zap.Logger) *BillingService {
	return &BillingService{
		store:    store,
		gateways: gateways,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.Named("billing"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TopUpRequest starts a balance top up.
type TopUpRequest struct {
	UserID   int64
	ChatID   int64
	Gateway  string
	Amount   int64
	Currency string
}

// presetSteps are candidate amounts for the balance screen, in the units of
// the currency's range.
var presetSteps = map[bool][]int64{
	true:  {50, 100, 250, 500, 1000, 2500},
	false: {500, 1000, 2500, 5000, 10000, 25000},
}

const maxPresets = 3

// TopUpPresets returns the amounts offered as buttons for currency. All of
// them are accepted by StartTopUp.
func (b *BillingService) TopUpPresets(currency string) []int64 {
	r := b.cfg.TopUpRange(currency)
	var presets []int64
	for _, amount := range presetSteps[currency == gateway.StarsCurrency] {
		if r.Contains(amount) {
			presets = append(presets, amount)
		}
		if len(presets) == maxPresets {
			break
		}
	}
	if len(presets) == 0 && r.Min > 0 && r.Min <= r.Max {
		presets = append(presets, r.Min)
	}
	return presets
}

// StartTopUp records a pending payment and asks the gateway for an invoice.
// The pending row is committed before the gateway is called so that a
// webhook racing the response still finds it.
func (b *BillingService) StartTopUp(ctx context.Context, req TopUpRequest) (*entities.Payment, error) {
	if _, err := tenancy.MustBotID(ctx); err != nil {
		return nil, err
	}
	if r := b.cfg.TopUpRange(req.Currency); !r.Contains(req.Amount) {
		return nil, errors.Wrapf(entities.ErrInvalidInput, "amount must be between %d and %d", r.Min, r.Max)
	}

	g, err := b.gateways.Get(req.Gateway)
	if err != nil {
		return nil, err
	}
	if !g.Supports(req.Currency) {
		return nil, errors.Wrapf(entities.ErrGatewayDisabled, "%s does not accept %s", req.Gateway, req.Currency)
	}

	s := b.store.Session(ctx)
	defer s.Close()

	user, err := b.store.Users.GetByID(ctx, s, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, errors.Wrapf(entities.ErrForbidden, "user %d is blocked", user.ID)
	}

	p := &entities.Payment{
		UserID:   req.UserID,
		Gateway:  g.Name(),
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	if err := b.store.Payments.Create(ctx, s, p); err != nil {
		return nil, err
	}
	b.metrics.Payment(p.Gateway, string(entities.PaymentPending))

	inv, err := g.CreateInvoice(ctx, gateway.InvoiceRequest{
		PaymentID:   p.ID,
		BotID:       p.BotID,
		ChatID:      req.ChatID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Title:       "Balance top up",
		Description: fmt.Sprintf("Top up %s", FormatMoney(p.Amount, p.Currency)),
	})
	if err != nil {
		if _, failErr := b.store.Payments.Transition(ctx, s, p.ID, entities.PaymentPending, entities.PaymentFailed); failErr != nil {
			b.logger.Error("mark payment failed", zap.Stringer("payment_id", p.ID), zap.Error(failErr))
		} else {
			b.metrics.Payment(p.Gateway, string(entities.PaymentFailed))
		}
		return nil, errors.Wrap(err, "create invoice")
	}

	if inv.ExternalID != "" || inv.PayURL != "" {
		if err := b.store.Payments.AttachInvoice(ctx, s, p.ID, inv.ExternalID, inv.PayURL); err != nil {
			return nil, err
		}
		if inv.ExternalID != "" {
			p.ExternalID = &inv.ExternalID
		}
		if inv.PayURL != "" {
			p.PayURL = &inv.PayURL
		}
	}
	return p, nil
}

func (b *BillingService) findPayment(ctx context.Context, s *repository.Session, ref PaymentRef) (*entities.Payment, error) {
	if ref.ID != uuid.Nil {
		return b.store.Payments.GetByID(ctx, s, ref.ID)
	}
	if ref.ExternalID == "" {
		return nil, errors.Wrap(entities.ErrInvalidInput, "payment reference is empty")
	}
	return b.store.Payments.GetByExternalID(ctx, s, ref.Gateway, ref.ExternalID)
}

// CheckPending confirms that a payment can still be paid. Telegram asks
// this before charging stars.
func (b *BillingService) CheckPending(ctx context.Context, id uuid.UUID, amount int64) error {
	s := b.store.Session(ctx)
	defer s.Close()

	p, err := b.store.Payments.GetByID(ctx, s, id)
	if err != nil {
		return err
	}
	if p.Status != entities.PaymentPending {
		return errors.Wrapf(entities.ErrPaymentState, "payment %s is %s", id, p.Status)
	}
	if p.Amount != amount {
		return errors.Wrapf(entities.ErrInvalidInput, "payment %s amount mismatch", id)
	}
	return nil
}

// CompletePayment marks the payment paid, credits the user and writes the
// ledger in one transaction. chargeID, when set, is stored as the external
// id. Completing a paid payment again is a no-op reported as Duplicate.
func (b *BillingService) CompletePayment(ctx context.Context, ref PaymentRef, chargeID string) (*Completion, error) {
	if _, err := tenancy.MustBotID(ctx); err != nil {
		return nil, err
	}

	var out Completion
	err := b.store.InTx(ctx, func(s *repository.Session) error {
		p, err := b.findPayment(ctx, s, ref)
		if err != nil {
			return err
		}
		if p.Status == entities.PaymentPaid || p.Status == entities.PaymentRefunded {
			out.Payment = p
			out.Duplicate = true
			return nil
		}

		p, err = b.store.Payments.Transition(ctx, s, p.ID, p.Status, entities.PaymentPaid, repository.Deferred())
		if err != nil {
			return err
		}
		if chargeID != "" && p.ExternalID == nil {
			if err := b.store.Payments.AttachInvoice(ctx, s, p.ID, chargeID, "", repository.Deferred()); err != nil {
				return err
			}
			p.ExternalID = &chargeID
		}

		balance, err := b.store.Users.AddBalance(ctx, s, p.UserID, p.Amount, repository.Deferred())
		if err != nil {
			return err
		}
		if err := b.store.Transactions.Record(ctx, s, &entities.Transaction{
			UserID:      p.UserID,
			Kind:        entities.TxTopUp,
			Amount:      p.Amount,
			PaymentID:   &p.ID,
			Description: "top up via " + p.Gateway,
		}, repository.Deferred()); err != nil {
			return err
		}

		user, err := b.store.Users.GetByID(ctx, s, p.UserID)
		if err != nil {
			return err
		}

		out.Payment, out.User, out.Balance = p, user, balance
		return b.creditReferrer(ctx, s, user, p, &out)
	})
	if err != nil {
		return nil, err
	}

	if !out.Duplicate {
		b.metrics.Payment(out.Payment.Gateway, string(entities.PaymentPaid))
		b.logger.Info("payment completed",
			zap.Int64("bot_id", out.Payment.BotID),
			zap.Stringer("payment_id", out.Payment.ID),
			zap.Int64("amount", out.Payment.Amount))
	}
	return &out, nil
}

// creditReferrer pays the referral bonus on the first paid top up of a
// referred user. It runs inside the completing transaction.
func (b *BillingService) creditReferrer(ctx context.Context, s *repository.Session, user *entities.User, p *entities.Payment, out *Completion) error {
	if user.ReferredBy == nil || b.cfg.ReferralPercent <= 0 {
		return nil
	}

	paid, err := b.store.Payments.CountPaid(ctx, s, user.ID)
	if err != nil {
		return err
	}
	if paid != 1 {
		return nil
	}

	bonus := p.Amount * b.cfg.ReferralPercent / 100
	if bonus <= 0 {
		return nil
	}

	if _, err := b.store.Users.AddBalance(ctx, s, *user.ReferredBy, bonus, repository.Deferred()); err != nil {
		return err
	}
	if err := b.store.Transactions.Record(ctx, s, &entities.Transaction{
		UserID:      *user.ReferredBy,
		Kind:        entities.TxReferral,
		Amount:      bonus,
		PaymentID:   &p.ID,
		Description: fmt.Sprintf("referral bonus for user %d", user.ID),
	}, repository.Deferred()); err != nil {
		return err
	}

	referrer, err := b.store.Users.GetByID(ctx, s, *user.ReferredBy)
	if err != nil {
		return err
	}
	out.Referrer, out.Bonus = referrer, bonus
	return nil
}

// ClosePayment records a terminal gateway outcome (failed or expired) for a
// pending payment.
func (b *BillingService) ClosePayment(ctx context.Context, ref PaymentRef, status entities.PaymentStatus) error {
	err := b.store.InTx(ctx, func(s *repository.Session) error {
		p, err := b.findPayment(ctx, s, ref)
		if err != nil {
			return err
		}
		if p.Status == status {
			return nil
		}
		_, err = b.store.Payments.Transition(ctx, s, p.ID, p.Status, status, repository.Deferred())
		if err == nil {
			b.metrics.Payment(p.Gateway, string(status))
		}
		return err
	})
	return err
}

// Purchase buys a plan from the user's balance and extends the subscription.
func (b *BillingService) Purchase(ctx context.Context, userID, planID int64) (*entities.Subscription, error) {
	if _, err := tenancy.MustBotID(ctx); err != nil {
		return nil, err
	}

	var sub *entities.Subscription
	err := b.store.InTx(ctx, func(s *repository.Session) error {
		plan, err := b.store.Plans.GetByID(ctx, s, planID)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return errors.Wrapf(entities.ErrNotFound, "plan %d is not on sale", planID)
		}

		if _, err := b.store.Users.AddBalance(ctx, s, userID, -plan.Price, repository.Deferred()); err != nil {
			return err
		}

		sub, err = b.store.Subscriptions.Extend(ctx, s, userID, plan.ID, plan.DurationDays, b.now(), repository.Deferred())
		if err != nil {
			return err
		}

		return b.store.Transactions.Record(ctx, s, &entities.Transaction{
			UserID:      userID,
			Kind:        entities.TxPurchase,
			Amount:      -plan.Price,
			Description: "plan " + plan.Title,
		}, repository.Deferred())
	})
	if err != nil {
		return nil, err
	}

	b.metrics.SubscriptionsExtendedTotal.Inc()
	return sub, nil
}

// Refund reverses a paid top up. The credited amount is taken back from the
// balance, so a refund of money already spent fails with
// ErrInsufficientFunds.
func (b *BillingService) Refund(ctx context.Context, paymentID uuid.UUID) (*entities.Payment, error) {
	var p *entities.Payment
	err := b.store.InTx(ctx, func(s *repository.Session) error {
		var err error
		p, err = b.store.Payments.Transition(ctx, s, paymentID, entities.PaymentPaid, entities.PaymentRefunded, repository.Deferred())
		if err != nil {
			return err
		}
		if _, err := b.store.Users.AddBalance(ctx, s, p.UserID, -p.Amount, repository.Deferred()); err != nil {
			return err
		}
		return b.store.Transactions.Record(ctx, s, &entities.Transaction{
			UserID:      p.UserID,
			Kind:        entities.TxRefund,
			Amount:      -p.Amount,
			PaymentID:   &p.ID,
			Description: "refund",
		}, repository.Deferred())
	})
	if err != nil {
		return nil, err
	}

	b.metrics.Payment(p.Gateway, string(entities.PaymentRefunded))
	return p, nil
}

// Adjust changes a balance by hand, for support and corrections.
func (b *BillingService) Adjust(ctx context.Context, userID, delta int64, reason string) (int64, error) {
	if delta == 0 {
		return 0, errors.Wrap(entities.ErrInvalidInput, "delta must not be zero")
	}
	if reason == "" {
		return 0, errors.Wrap(entities.ErrInvalidInput, "reason is required")
	}

	var balance int64
	err := b.store.InTx(ctx, func(s *repository.Session) error {
		var err error
		balance, err = b.store.Users.AddBalance(ctx, s, userID, delta, repository.Deferred())
		if err != nil {
			return err
		}
		return b.store.Transactions.Record(ctx, s, &entities.Transaction{
			UserID:      userID,
			Kind:        entities.TxAdjustment,
			Amount:      delta,
			Description: reason,
		}, repository.Deferred())
	})
	return balance, err
}

// ExpireStalePayments expires pending payments older than the payment TTL
// for the bot in ctx.
func (b *BillingService) ExpireStalePayments(ctx context.Context) (map[string]int64, error) {
	s := b.store.Session(ctx)
	defer s.Close()
	return b.store.Payments.ExpirePending(ctx, s, b.now().Add(-b.cfg.PaymentTTL))
}

// ExpireSubscriptions expires lapsed subscriptions for the bot in ctx.
func (b *BillingService) ExpireSubscriptions(ctx context.Context) ([]entities.ExpiringSubscription, error) {
	s := b.store.Session(ctx)
	defer s.Close()

	expired, err := b.store.Subscriptions.ExpireDue(ctx, s, b.now())
	if err != nil {
		return nil, err
	}
	b.metrics.SubscriptionsExpiredTotal.Add(float64(len(expired)))
	return expired, nil
}

// FormatMoney renders minor units of currency for humans.
func FormatMoney(amount int64, currency string) string {
	if currency == gateway.StarsCurrency {
		return fmt.Sprintf("%d ⭐", amount)
	}
	return gateway.FormatAmount(amount) + " " + currency
}
