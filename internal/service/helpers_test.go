package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/craftvine/payments-service/internal/model"
	"github.com/craftvine/payments-service/internal/monime"
	"github.com/craftvine/payments-service/internal/repo"
)

// fakePayouts stands in for the Monime payout API.
type fakePayouts struct {
	mu    sync.Mutex
	calls []monime.PayoutRequest
	err   error
	seq   int
}

func (f *fakePayouts) CreatePayout(_ context.Context, req monime.PayoutRequest) (*monime.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, req)
	f.seq++
	return &monime.Payout{ID: fmt.Sprintf("pout_%d", f.seq), Status: "processing"}, nil
}

func (f *fakePayouts) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePayouts) lastCall() monime.PayoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.WebhookEvent{},
		&model.DeliveryEscrow{},
		&model.WorkSubmission{},
		&model.Pitch{},
		&model.PitchInvestment{},
		&model.CashoutRequest{},
		&model.Transaction{},
		&model.Wallet{},
		&model.WalletEntry{},
		&model.PayoutProfile{},
		&model.Notification{},
		&model.OutboxEvent{},
	))
	return db
}

type testEngine struct {
	db      *gorm.DB
	repo    *repo.Repository
	payouts *fakePayouts
	wallets *WalletService
	hooks   *WebhookService
	secret  string
}

func newTestEngine(t *testing.T) (*testEngine, context.Context) {
	db := newTestDB(t)
	log := zap.NewNop().Sugar()
	r := repo.NewRepository(db, nil, nil, log)
	payouts := &fakePayouts{}
	wallets := NewWalletService(r, payouts, log)
	secret := "whsec_test"
	hooks := NewWebhookService(r, wallets, payouts, secret, false, log)
	return &testEngine{db: db, repo: r, payouts: payouts, wallets: wallets, hooks: hooks, secret: secret}, context.Background()
}

// deliver signs and processes a webhook body.
func (e *testEngine) deliver(t *testing.T, body string) (*WebhookResult, error) {
	t.Helper()
	return e.hooks.Process(context.Background(), []byte(body), monime.Sign([]byte(body), e.secret))
}

func (e *testEngine) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	assert.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}
