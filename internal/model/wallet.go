package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet entry types.
const (
	EntryTypeCredit  = "credit"
	EntryTypeDebit   = "debit"
	EntryTypeRelease = "release"
)

// Wallet entry source types.
const (
	SourceTypeDeliveryEscrow  = "delivery_escrow"
	SourceTypePitchInvestment = "pitch_investment"
	SourceTypeCashout         = "cashout"
)

// Wallet is a user's in-platform balance in a single currency. Available
// funds can be cashed out; pending tracks holds awaiting an external
// payout outcome.
type Wallet struct {
	UserID    string          `gorm:"primaryKey;size:36"`
	Currency  string          `gorm:"primaryKey;size:8"`
	Available decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	Pending   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	Version   uint64          `gorm:"not null;default:0"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletEntry is an append-only ledger record of a balance change. The
// unique idempotency key makes every mutation at-most-once: a replayed
// webhook inserts nothing and applies no deltas.
type WalletEntry struct {
	ID             string          `gorm:"primaryKey;size:36"`
	UserID         string          `gorm:"size:36;not null;index"`
	Currency       string          `gorm:"size:8;not null"`
	AvailableDelta decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	PendingDelta   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	EntryType      string          `gorm:"size:16;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	SourceType     string          `gorm:"size:32;not null"`
	SourceID       string          `gorm:"size:36;not null"`
	IdempotencyKey string          `gorm:"size:128;not null;uniqueIndex"`
	Metadata       string          `gorm:"type:jsonb"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

func (WalletEntry) TableName() string { return "wallet_entries" }
