package usecases

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"remnabot/internal/config"
	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/metrics"
	"remnabot/internal/repository"
	"remnabot/internal/tenancy"
)

const testBotID int64 = 7

var paymentCols = []string{"id", "bot_id", "user_id", "gateway", "external_id", "amount", "currency", "status", "pay_url", "created_at", "paid_at"}

var userCols = []string{"id", "bot_id", "telegram_id", "username", "first_name", "language_code", "balance",
	"referral_code", "referred_by", "is_blocked", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*repository.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Failed to close mock db: %v", closeErr)
		}
	})

	return repository.NewStore(sqlx.NewDb(db, "sqlmock")), mock
}

func botCtx() context.Context {
	return tenancy.WithBot(context.Background(), testBotID)
}

func expectScopedBegin(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").
		WithArgs("7").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		PaymentTTL:      time.Hour,
		ReferralPercent: 10,
		StarsTopUp:      config.AmountRange{Min: 50, Max: 10_000},
		FiatTopUp:       config.AmountRange{Min: 100, Max: 100_000},
		DedupTTL:        time.Hour,
	}
}

func newTestBilling(store *repository.Store, gateways ...gateway.Gateway) *BillingService {
	return NewBillingService(store, gateway.NewRegistry(gateways...), metrics.NewNop(), testBillingConfig(), zap.NewNop())
}

func paymentRow(id uuid.UUID, userID, amount int64, status entities.PaymentStatus) *sqlmock.Rows {
	return sqlmock.NewRows(paymentCols).AddRow(
		id.String(), testBotID, userID, "cryptopay", "991", amount, "USD", string(status), nil, time.Now(), nil)
}

func starsPaymentRow(id uuid.UUID, userID, amount int64, status entities.PaymentStatus) *sqlmock.Rows {
	return sqlmock.NewRows(paymentCols).AddRow(
		id.String(), testBotID, userID, "stars", nil, amount, "XTR", string(status), nil, time.Now(), nil)
}

func userRow(id, telegramID, balance int64, referredBy *int64) *sqlmock.Rows {
	var ref any
	if referredBy != nil {
		ref = *referredBy
	}
	return sqlmock.NewRows(userCols).AddRow(
		id, testBotID, telegramID, "alice", "Alice", "en", balance, "REF", ref, false, time.Now(), time.Now())
}

func createdAtRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now())
}

// fakeGateway is a scripted payment provider.
type fakeGateway struct {
	name     string
	currency string
	invoice  *gateway.Invoice
	err      error
	requests []gateway.InvoiceRequest
}

func (f *fakeGateway) Name() string                  { return f.name }
func (f *fakeGateway) Supports(currency string) bool { return currency == f.currency }

func (f *fakeGateway) CreateInvoice(_ context.Context, req gateway.InvoiceRequest) (*gateway.Invoice, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.invoice, nil
}

func (f *fakeGateway) ParseWebhook(*http.Request) (*gateway.WebhookEvent, error) {
	return nil, f.err
}
