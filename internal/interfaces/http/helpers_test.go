package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"remnabot/internal/config"
	"remnabot/internal/entities"
	"remnabot/internal/gateway"
	"remnabot/internal/infrastructure"
	"remnabot/internal/metrics"
	"remnabot/internal/tenancy"
	"remnabot/internal/usecases"
)

const testSecret = "0123456789abcdef-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	*usecases.AuthUsecase
	admin *entities.Admin
}

func (f fakeAuth) Login(_ context.Context, username, password string) (string, *entities.Admin, error) {
	if f.admin == nil || username != f.admin.Username || password != "correct-horse" {
		return "", nil, usecases.ErrInvalidCredentials
	}
	token, err := f.IssueToken(f.admin)
	return token, f.admin, err
}

type fakeTenants struct {
	bots     []entities.Bot
	deleted  []int64
	register func(usecases.RegisterBotRequest) (*entities.Bot, error)
}

func (f *fakeTenants) RegisterBot(_ context.Context, req usecases.RegisterBotRequest) (*entities.Bot, error) {
	return f.register(req)
}

func (f *fakeTenants) DeleteBot(_ context.Context, botID int64) error {
	f.deleted = append(f.deleted, botID)
	return nil
}

func (f *fakeTenants) SetBotActive(_ context.Context, botID int64, active bool) (*entities.Bot, error) {
	for i := range f.bots {
		if f.bots[i].ID == botID {
			f.bots[i].IsActive = active
			return &f.bots[i], nil
		}
	}
	return nil, entities.ErrNotFound
}

func (f *fakeTenants) ListBots(context.Context) ([]entities.Bot, error) {
	return f.bots, nil
}

// fakeDashboard records the bot each call was scoped to.
type fakeDashboard struct {
	scopedTo []int64
	plans    []entities.Plan
	payment  *entities.Payment
	err      error
}

func (f *fakeDashboard) scope(ctx context.Context) {
	id, _ := tenancy.BotID(ctx)
	f.scopedTo = append(f.scopedTo, id)
}

func (f *fakeDashboard) Stats(ctx context.Context) (*entities.UserStats, error) {
	f.scope(ctx)
	return &entities.UserStats{TotalUsers: 3, TotalBalance: 1500}, f.err
}

func (f *fakeDashboard) ListUsers(ctx context.Context, _, _ int) ([]entities.User, error) {
	f.scope(ctx)
	return []entities.User{}, f.err
}

func (f *fakeDashboard) SetBlocked(ctx context.Context, _ int64, _ bool) error {
	f.scope(ctx)
	return f.err
}

func (f *fakeDashboard) ListPlans(ctx context.Context) ([]entities.Plan, error) {
	f.scope(ctx)
	return f.plans, f.err
}

func (f *fakeDashboard) CreatePlan(ctx context.Context, p *entities.Plan) error {
	f.scope(ctx)
	p.ID = 42
	f.plans = append(f.plans, *p)
	return f.err
}

func (f *fakeDashboard) UpdatePlan(ctx context.Context, p *entities.Plan) error {
	f.scope(ctx)
	return f.err
}

func (f *fakeDashboard) DeletePlan(ctx context.Context, _ int64) error {
	f.scope(ctx)
	return f.err
}

func (f *fakeDashboard) GetPayment(ctx context.Context, _ uuid.UUID) (*entities.Payment, error) {
	f.scope(ctx)
	if f.payment == nil {
		return nil, entities.ErrNotFound
	}
	return f.payment, nil
}

func (f *fakeDashboard) UserPayments(ctx context.Context, _ int64) ([]entities.Payment, error) {
	f.scope(ctx)
	return []entities.Payment{}, f.err
}

func (f *fakeDashboard) UserTransactions(ctx context.Context, _ int64) ([]entities.Transaction, error) {
	f.scope(ctx)
	return []entities.Transaction{}, f.err
}

func (f *fakeDashboard) Settings(ctx context.Context) ([]entities.BotSetting, error) {
	f.scope(ctx)
	return []entities.BotSetting{}, f.err
}

func (f *fakeDashboard) SetSetting(ctx context.Context, _, _ string) error {
	f.scope(ctx)
	return f.err
}

type adjustment struct {
	userID, delta int64
	reason        string
}

type closed struct {
	ref    usecases.PaymentRef
	status entities.PaymentStatus
}

type fakeLedger struct {
	adjustments []adjustment
	closed      []closed
	err         error
}

func (f *fakeLedger) Adjust(_ context.Context, userID, delta int64, reason string) (int64, error) {
	f.adjustments = append(f.adjustments, adjustment{userID, delta, reason})
	return 100 + delta, f.err
}

func (f *fakeLedger) Refund(_ context.Context, id uuid.UUID) (*entities.Payment, error) {
	return &entities.Payment{ID: id, Status: entities.PaymentRefunded}, f.err
}

func (f *fakeLedger) ClosePayment(_ context.Context, ref usecases.PaymentRef, status entities.PaymentStatus) error {
	f.closed = append(f.closed, closed{ref, status})
	return f.err
}

type fakeUpdates struct {
	updates      []tgbotapi.Update
	completed    []usecases.PaymentRef
	completedFor []int64
	err          error
}

func (f *fakeUpdates) HandleUpdate(ctx context.Context, botID int64, update tgbotapi.Update) error {
	if id, _ := tenancy.BotID(ctx); id != botID {
		return entities.ErrTenantMissing
	}
	f.updates = append(f.updates, update)
	return f.err
}

func (f *fakeUpdates) CompleteAndNotify(ctx context.Context, botID int64, ref usecases.PaymentRef, _ string) (*usecases.Completion, error) {
	if id, _ := tenancy.BotID(ctx); id != botID {
		return nil, entities.ErrTenantMissing
	}
	f.completed = append(f.completed, ref)
	f.completedFor = append(f.completedFor, botID)
	return &usecases.Completion{}, f.err
}

type directory map[int64]entities.Bot

func (d directory) Lookup(botID int64) (entities.Bot, bool) {
	b, ok := d[botID]
	return b, ok
}

type testServer struct {
	engine    *gin.Engine
	auth      *usecases.AuthUsecase
	tenants   *fakeTenants
	dashboard *fakeDashboard
	ledger    *fakeLedger
	updates   *fakeUpdates
	cryptoPay *gateway.CryptoPay
	metrics   *metrics.Metrics
	redis     *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	auth := usecases.NewAuthUsecase(nil, testSecret, time.Hour)
	cryptoPay := gateway.NewCryptoPay(config.CryptoPayConfig{Token: "1234:AAA", BaseURL: "http://127.0.0.1:1"})
	reg := prometheus.NewRegistry()

	ts := &testServer{
		engine:    gin.New(),
		auth:      auth,
		tenants:   &fakeTenants{},
		dashboard: &fakeDashboard{},
		ledger:    &fakeLedger{},
		updates:   &fakeUpdates{},
		cryptoPay: cryptoPay,
		metrics:   metrics.NewMetrics(reg),
		redis:     mr,
	}

	SetupRoutes(ts.engine, Deps{
		Auth: fakeAuth{AuthUsecase: auth, admin: &entities.Admin{
			ID: 1, Username: "root", Role: entities.RoleSuperAdmin,
		}},
		Tenants:   ts.tenants,
		Dashboard: ts.dashboard,
		Ledger:    ts.ledger,
		Updates:   ts.updates,
		Bots: directory{
			7: {ID: 7, Username: "shop_bot", WebhookSecret: "s3cret", IsActive: true},
			8: {ID: 8, Username: "vpn_bot", WebhookSecret: "other", IsActive: true},
		},
		Dedup:     infrastructure.NewDeduper(rdb),
		Gateways:  gateway.NewRegistry(cryptoPay),
		Metrics:   ts.metrics,
		Gatherer:  reg,
		Logger:    zap.NewNop(),
		RateLimit: 100,
		RateBurst: 100,
	})
	return ts
}

func (ts *testServer) token(t *testing.T, role string, botID *int64) string {
	t.Helper()
	token, err := ts.auth.IssueToken(&entities.Admin{ID: 9, Role: role, BotID: botID})
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func int64Ptr(v int64) *int64 {
	return &v
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}
