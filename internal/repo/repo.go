package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/craftvine/payments-service/internal/model"
)

// ErrInsufficientFunds is returned when a wallet's available balance is
// too low for the requested hold.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrOptimisticLock is returned when a versioned wallet update lost a
// concurrent race and should be retried in a fresh transaction.
var ErrOptimisticLock = errors.New("optimistic lock conflict")

// RepositoryInterface restricts repo methods for unit-test mocks.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	InsertWebhookEvent(ctx context.Context, evt *model.WebhookEvent) (bool, error)

	GetEscrow(ctx context.Context, tx *gorm.DB, id string) (*model.DeliveryEscrow, error)
	FindEscrowByPayoutID(ctx context.Context, tx *gorm.DB, payoutID string) (*model.DeliveryEscrow, error)
	TransitionEscrow(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, updates map[string]interface{}) (bool, error)

	GetInvestment(ctx context.Context, tx *gorm.DB, id string) (*model.PitchInvestment, error)
	FindInvestmentByPayoutID(ctx context.Context, tx *gorm.DB, payoutID string) (*model.PitchInvestment, error)
	TransitionInvestment(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, updates map[string]interface{}) (bool, error)
	SetInvestmentPayoutStatus(ctx context.Context, tx *gorm.DB, id, payoutStatus string) error
	IncrementPitchFunding(ctx context.Context, tx *gorm.DB, pitchID string, amount decimal.Decimal) error

	FindCashoutByPayoutID(ctx context.Context, tx *gorm.DB, payoutID string) (*model.CashoutRequest, error)
	CreateCashout(ctx context.Context, tx *gorm.DB, c *model.CashoutRequest) error
	TransitionCashout(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, updates map[string]interface{}) (bool, error)

	ApproveSubmission(ctx context.Context, tx *gorm.DB, submissionID string) error

	EscrowTransactionExists(ctx context.Context, tx *gorm.DB, escrowID, paymentType string) (bool, error)
	InvestmentTransactionExists(ctx context.Context, tx *gorm.DB, investmentID string) (bool, error)
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error

	GetPayoutProfile(ctx context.Context, tx *gorm.DB, userID string) (*model.PayoutProfile, error)

	GetWalletForUpdate(ctx context.Context, tx *gorm.DB, userID, currency string) (*model.Wallet, error)
	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	UpdateWalletBalances(ctx context.Context, tx *gorm.DB, userID, currency string, available, pending decimal.Decimal, oldVersion uint64) error
	InsertWalletEntry(ctx context.Context, tx *gorm.DB, e *model.WalletEntry) (bool, error)
	ListWalletEntries(ctx context.Context, userID string, limit int, since time.Time) ([]model.WalletEntry, error)

	CreateNotification(ctx context.Context, tx *gorm.DB, n *model.Notification) error
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, userID, currency string, available decimal.Decimal) error
	GetCachedBalance(ctx context.Context, userID, currency string) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface on gorm + redis + kafka.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs the repo. rdb and writer may be nil in tests;
// cache and publish become no-ops.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

var _ RepositoryInterface = (*Repository)(nil)

// DB returns the underlying *gorm.DB bound to ctx.
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// InsertWebhookEvent records a provider event exactly once. The second
// return is false when the (provider, event_id) row already existed,
// which is the replay-safety signal for the whole engine.
func (r *Repository) InsertWebhookEvent(ctx context.Context, evt *model.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(evt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) GetEscrow(ctx context.Context, tx *gorm.DB, id string) (*model.DeliveryEscrow, error) {
	var e model.DeliveryEscrow
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) FindEscrowByPayoutID(ctx context.Context, tx *gorm.DB, payoutID string) (*model.DeliveryEscrow, error) {
	var e model.DeliveryEscrow
	if err := tx.WithContext(ctx).Where("monime_payout_id = ?", payoutID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// TransitionEscrow applies updates only while the escrow is still in one
// of fromStatuses. Returns false when the guard did not match, i.e. a
// concurrent delivery already moved the record on.
func (r *Repository) TransitionEscrow(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&model.DeliveryEscrow{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) GetInvestment(ctx context.Context, tx *gorm.DB, id string) (*model.PitchInvestment, error) {
	var inv model.PitchInvestment
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) FindInvestmentByPayoutID(ctx context.Context, tx *gorm.DB, payoutID string) (*model.PitchInvestment, error) {
	var inv model.PitchInvestment
	if err := tx.WithContext(ctx).Where("monime_payout_id = ?", payoutID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) TransitionInvestment(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&model.PitchInvestment{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetInvestmentPayoutStatus records the provider's payout outcome
// without touching the investment's lifecycle status.
func (r *Repository) SetInvestmentPayoutStatus(ctx context.Context, tx *gorm.DB, id, payoutStatus string) error {
	return tx.WithContext(ctx).
		Model(&model.PitchInvestment{}).
		Where("id = ?", id).
		Update("payout_status", payoutStatus).Error
}

// IncrementPitchFunding adds amount to the pitch's total atomically in
// SQL, never read-modify-write in application code.
func (r *Repository) IncrementPitchFunding(ctx context.Context, tx *gorm.DB, pitchID string, amount decimal.Decimal) error {
	return tx.WithContext(ctx).
		Model(&model.Pitch{}).
		Where("id = ?", pitchID).
		UpdateColumn("total_funded", gorm.Expr("total_funded + ?", amount)).Error
}

func (r *Repository) FindCashoutByPayoutID(ctx context.Context, tx *gorm.DB, payoutID string) (*model.CashoutRequest, error) {
	var c model.CashoutRequest
	if err := tx.WithContext(ctx).Where("monime_payout_id = ?", payoutID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CreateCashout(ctx context.Context, tx *gorm.DB, c *model.CashoutRequest) error {
	return tx.WithContext(ctx).Create(c).Error
}

func (r *Repository) TransitionCashout(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&model.CashoutRequest{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ApproveSubmission(ctx context.Context, tx *gorm.DB, submissionID string) error {
	return tx.WithContext(ctx).
		Model(&model.WorkSubmission{}).
		Where("id = ?", submissionID).
		Update("status", model.SubmissionStatusApproved).Error
}

// EscrowTransactionExists guards the logical uniqueness of one ledger
// line per (escrow, payment type).
func (r *Repository) EscrowTransactionExists(ctx context.Context, tx *gorm.DB, escrowID, paymentType string) (bool, error) {
	var t model.Transaction
	err := tx.WithContext(ctx).
		Where("escrow_id = ? AND payment_type = ?", escrowID, paymentType).
		First(&t).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (r *Repository) InvestmentTransactionExists(ctx context.Context, tx *gorm.DB, investmentID string) (bool, error) {
	var t model.Transaction
	err := tx.WithContext(ctx).
		Where("pitch_investment_id = ?", investmentID).
		First(&t).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *Repository) GetPayoutProfile(ctx context.Context, tx *gorm.DB, userID string) (*model.PayoutProfile, error) {
	var p model.PayoutProfile
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetWalletForUpdate locks the wallet row for the rest of the
// transaction.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, userID, currency string) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ?", userID, currency).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return tx.WithContext(ctx).Create(w).Error
}

// UpdateWalletBalances writes both balances under the version guard.
func (r *Repository) UpdateWalletBalances(ctx context.Context, tx *gorm.DB, userID, currency string, available, pending decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND currency = ? AND version = ?", userID, currency, oldVersion).
		Updates(map[string]interface{}{
			"available":  available,
			"pending":    pending,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// InsertWalletEntry appends a ledger entry unless its idempotency key
// was already used. Returns false on a duplicate key; callers must then
// skip the balance update.
func (r *Repository) InsertWalletEntry(ctx context.Context, tx *gorm.DB, e *model.WalletEntry) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ListWalletEntries(ctx context.Context, userID string, limit int, since time.Time) ([]model.WalletEntry, error) {
	var entries []model.WalletEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *Repository) CreateNotification(ctx context.Context, tx *gorm.DB, n *model.Notification) error {
	return tx.WithContext(ctx).Create(n).Error
}

func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events oldest first.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends an outbox row to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	if r.writer == nil {
		return nil
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

func balanceKey(userID, currency string) string {
	return fmt.Sprintf("balance:%s:%s", userID, currency)
}

// CacheBalance writes the available balance to Redis, best-effort.
func (r *Repository) CacheBalance(ctx context.Context, userID, currency string, available decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, balanceKey(userID, currency), available.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads the available balance from Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, redis.Nil
	}
	str, err := r.rdb.Get(ctx, balanceKey(userID, currency)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
