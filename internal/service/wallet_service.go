package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/craftvine/payments-service/internal/model"
	"github.com/craftvine/payments-service/internal/monime"
	"github.com/craftvine/payments-service/internal/repo"
)

// ErrInvalidAmount means a non-positive amount was passed.
var ErrInvalidAmount = errors.New("amount must be positive")

// ErrNoPaymentMethod means the user has no external payout destination.
var ErrNoPaymentMethod = errors.New("no payment method configured")

// WalletService owns the internal ledger: idempotent balance mutations,
// source credits from the payout trigger, and the cashout hold cycle.
type WalletService struct {
	repo    repo.RepositoryInterface
	payouts monime.PayoutCreator
	log     *zap.SugaredLogger
}

// NewWalletService returns a WalletService.
func NewWalletService(r repo.RepositoryInterface, payouts monime.PayoutCreator, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, payouts: payouts, log: logger}
}

// MutationParams describes one idempotent ledger mutation.
type MutationParams struct {
	UserID         string
	Currency       string
	AvailableDelta decimal.Decimal
	PendingDelta   decimal.Decimal
	EntryType      string
	Amount         decimal.Decimal
	SourceType     string
	SourceID       string
	IdempotencyKey string
	Metadata       map[string]string
}

// ToWalletCurrency normalizes a provider currency code to the wallet's.
// Sierra Leone redenominated SLL to SLE; old records still carry SLL.
func ToWalletCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "SLL" {
		c = "SLE"
	}
	return c
}

// MaskAccount hides all but the last four characters of an account
// reference for use in notification text.
func MaskAccount(account string) string {
	runes := []rune(account)
	if len(runes) <= 4 {
		return account
	}
	masked := make([]rune, len(runes))
	for i := range runes {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// ApplyMutation appends a wallet entry and applies its deltas in one DB
// transaction. A duplicate idempotency key is a successful no-op, which
// is what makes webhook redelivery safe for balances.
func (s *WalletService) ApplyMutation(ctx context.Context, p MutationParams) error {
	if p.IdempotencyKey == "" {
		return errors.New("idempotency key required")
	}
	currency := ToWalletCurrency(p.Currency)

	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		meta, _ := json.Marshal(p.Metadata)
		entry := &model.WalletEntry{
			ID:             uuid.NewString(),
			UserID:         p.UserID,
			Currency:       currency,
			AvailableDelta: p.AvailableDelta,
			PendingDelta:   p.PendingDelta,
			EntryType:      p.EntryType,
			Amount:         p.Amount,
			SourceType:     p.SourceType,
			SourceID:       p.SourceID,
			IdempotencyKey: p.IdempotencyKey,
			Metadata:       string(meta),
		}
		inserted, err := s.repo.InsertWalletEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Infow("wallet mutation already applied", "key", p.IdempotencyKey)
			return nil
		}

		w, err := s.repo.GetWalletForUpdate(ctx, tx, p.UserID, currency)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			w = &model.Wallet{UserID: p.UserID, Currency: currency, Available: decimal.Zero, Pending: decimal.Zero}
			if err := s.repo.CreateWallet(ctx, tx, w); err != nil {
				return err
			}
		}

		newAvailable := w.Available.Add(p.AvailableDelta)
		newPending := w.Pending.Add(p.PendingDelta)
		if err := s.repo.UpdateWalletBalances(ctx, tx, p.UserID, currency, newAvailable, newPending, w.Version); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"user_id":   p.UserID,
			"currency":  currency,
			"entry":     p.EntryType,
			"amount":    p.Amount,
			"available": newAvailable,
			"pending":   newPending,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Wallet", AggregateID: p.UserID, EventType: "BalanceChanged", Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, p.UserID, currency, newAvailable); err != nil {
			s.log.Warnw("cache balance", "error", err)
		}
		return nil
	})
}

// CreditForSource credits available balance from an escrow or pitch
// investment payout. The key is derived from the source record, so a
// replayed checkout-completed delivery cannot double-credit.
func (s *WalletService) CreditForSource(ctx context.Context, userID, currency string, amount decimal.Decimal, sourceType, sourceID string, metadata map[string]string) error {
	return s.ApplyMutation(ctx, MutationParams{
		UserID:         userID,
		Currency:       currency,
		AvailableDelta: amount,
		PendingDelta:   decimal.Zero,
		EntryType:      model.EntryTypeCredit,
		Amount:         amount,
		SourceType:     sourceType,
		SourceID:       sourceID,
		IdempotencyKey: fmt.Sprintf("payout:%s:%s", sourceType, sourceID),
		Metadata:       metadata,
	})
}

// RequestCashout places a hold on available funds and initiates the
// external payout. The hold, the cashout row, and the ledger entry are
// one transaction: if payout creation fails, nothing is held.
func (s *WalletService) RequestCashout(ctx context.Context, userID string, amount decimal.Decimal, currency string) (*model.CashoutRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	currency = ToWalletCurrency(currency)

	var cashout *model.CashoutRequest
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.repo.GetPayoutProfile(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPaymentMethod
			}
			return err
		}
		if !profile.HasPaymentMethod() {
			return ErrNoPaymentMethod
		}

		w, err := s.repo.GetWalletForUpdate(ctx, tx, userID, currency)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repo.ErrInsufficientFunds
			}
			return err
		}
		if w.Available.LessThan(amount) {
			return repo.ErrInsufficientFunds
		}

		id := uuid.NewString()
		entry := &model.WalletEntry{
			ID:             uuid.NewString(),
			UserID:         userID,
			Currency:       currency,
			AvailableDelta: amount.Neg(),
			PendingDelta:   amount,
			EntryType:      model.EntryTypeDebit,
			Amount:         amount,
			SourceType:     model.SourceTypeCashout,
			SourceID:       id,
			IdempotencyKey: fmt.Sprintf("cashout:hold:%s", id),
		}
		inserted, err := s.repo.InsertWalletEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		if !inserted {
			return errors.New("cashout hold already exists")
		}
		newAvailable := w.Available.Sub(amount)
		newPending := w.Pending.Add(amount)
		if err := s.repo.UpdateWalletBalances(ctx, tx, userID, currency, newAvailable, newPending, w.Version); err != nil {
			return err
		}

		payout, err := s.payouts.CreatePayout(ctx, monime.PayoutRequest{
			Amount:      amount,
			Currency:    currency,
			Destination: payoutDestination(profile),
			Metadata:    map[string]string{"cashout_id": id, "user_id": userID},
		})
		if err != nil {
			return fmt.Errorf("create payout: %w", err)
		}

		cashout = &model.CashoutRequest{
			ID:             id,
			UserID:         userID,
			Amount:         amount,
			Currency:       currency,
			Status:         model.CashoutStatusProcessing,
			MonimePayoutID: &payout.ID,
		}
		if err := s.repo.CreateCashout(ctx, tx, cashout); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, userID, currency, newAvailable); err != nil {
			s.log.Warnw("cache balance", "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cashout, nil
}

// FinalizeCashout releases the pending hold once the provider confirms
// the payout and marks the request completed.
func (s *WalletService) FinalizeCashout(ctx context.Context, c *model.CashoutRequest) error {
	if err := s.ApplyMutation(ctx, MutationParams{
		UserID:         c.UserID,
		Currency:       c.Currency,
		AvailableDelta: decimal.Zero,
		PendingDelta:   c.Amount.Neg(),
		EntryType:      model.EntryTypeDebit,
		Amount:         c.Amount,
		SourceType:     model.SourceTypeCashout,
		SourceID:       c.ID,
		IdempotencyKey: fmt.Sprintf("cashout:finalize:%s", c.ID),
	}); err != nil {
		return err
	}
	now := time.Now()
	_, err := s.repo.TransitionCashout(ctx, s.repo.DB(ctx), c.ID,
		[]string{model.CashoutStatusPending, model.CashoutStatusProcessing},
		map[string]interface{}{"status": model.CashoutStatusCompleted, "completed_at": &now})
	return err
}

// RollbackCashout returns held funds to available after a failed payout
// and records the failure reason.
func (s *WalletService) RollbackCashout(ctx context.Context, c *model.CashoutRequest, reason string) error {
	if err := s.ApplyMutation(ctx, MutationParams{
		UserID:         c.UserID,
		Currency:       c.Currency,
		AvailableDelta: c.Amount,
		PendingDelta:   c.Amount.Neg(),
		EntryType:      model.EntryTypeRelease,
		Amount:         c.Amount,
		SourceType:     model.SourceTypeCashout,
		SourceID:       c.ID,
		IdempotencyKey: fmt.Sprintf("cashout:rollback:%s", c.ID),
	}); err != nil {
		return err
	}
	now := time.Now()
	_, err := s.repo.TransitionCashout(ctx, s.repo.DB(ctx), c.ID,
		[]string{model.CashoutStatusPending, model.CashoutStatusProcessing},
		map[string]interface{}{"status": model.CashoutStatusFailed, "failed_at": &now, "failure_reason": reason})
	return err
}

// GetBalance returns the available balance, cache-first.
func (s *WalletService) GetBalance(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	currency = ToWalletCurrency(currency)
	bal, err := s.repo.GetCachedBalance(ctx, userID, currency)
	if err == nil {
		return bal, nil
	}
	var w model.Wallet
	if err := s.repo.DB(ctx).Where("user_id = ? AND currency = ?", userID, currency).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, userID, currency, w.Available); err != nil {
		s.log.Warnw("cache balance", "error", err)
	}
	return w.Available, nil
}

// GetHistory fetches recent ledger entries for a user.
func (s *WalletService) GetHistory(ctx context.Context, userID string, limit int, since time.Time) ([]model.WalletEntry, error) {
	return s.repo.ListWalletEntries(ctx, userID, limit, since)
}

// Repo exposes the underlying repository (unit tests helper).
func (s *WalletService) Repo() repo.RepositoryInterface { return s.repo }

// payoutDestination maps a payout profile onto the provider's
// destination descriptor: momo wants a phone number, bank an account
// number, wallet a wallet id.
func payoutDestination(p *model.PayoutProfile) monime.PayoutDestination {
	dest := monime.PayoutDestination{
		Provider:   p.PaymentProvider,
		ProviderID: p.PaymentProviderID,
	}
	switch p.PaymentProvider {
	case model.PaymentProviderMomo:
		dest.PhoneNumber = p.PaymentAccount
	case model.PaymentProviderBank:
		dest.AccountNumber = p.PaymentAccount
	case model.PaymentProviderWallet:
		dest.WalletID = p.PaymentAccount
	}
	return dest
}
