package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction payment types.
const (
	PaymentTypeFull            = "full"
	PaymentTypePartial50       = "partial_50"
	PaymentTypePitchInvestment = "pitch_investment"
)

// Transaction is an immutable ledger line for a completed payment.
// Logically unique per (escrow_id, payment_type) and per
// pitch_investment_id; the repository checks existence before insert.
type Transaction struct {
	ID                string          `gorm:"primaryKey;size:36"`
	PayerID           string          `gorm:"size:36;not null"`
	PayeeID           string          `gorm:"size:36;not null"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency          string          `gorm:"size:8;not null"`
	Fee               decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	NetAmount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	PaymentType       string          `gorm:"size:32;not null;index"`
	EscrowID          *string         `gorm:"size:36;index"`
	PitchInvestmentID *string         `gorm:"size:36;index"`
	CheckoutSessionID string          `gorm:"size:128"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "transactions" }
