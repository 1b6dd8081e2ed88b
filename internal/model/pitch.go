package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PitchInvestment / payout statuses.
const (
	InvestmentStatusPending         = "pending"
	InvestmentStatusPaymentReceived = "payment_received"
	InvestmentStatusPayoutInitiated = "payout_initiated"
	InvestmentStatusCompleted       = "completed"

	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusFailed    = "failed"
)

// Pitch is the funding target. TotalFunded is only ever changed through
// an atomic SQL increment so concurrent investments cannot lose updates.
type Pitch struct {
	ID          string          `gorm:"primaryKey;size:36"`
	CreatorID   string          `gorm:"size:36;not null;index"`
	Title       string          `gorm:"size:255"`
	FundingGoal decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	TotalFunded decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (Pitch) TableName() string { return "pitches" }

// PitchInvestment is an investor's funding commitment to a pitch.
type PitchInvestment struct {
	ID              string          `gorm:"primaryKey;size:36"`
	Status          string          `gorm:"size:32;not null;default:'pending'"`
	PayoutStatus    string          `gorm:"size:32;not null;default:'pending'"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	NetPayoutAmount decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency        string          `gorm:"size:8;not null"`
	InvestorID      string          `gorm:"size:36;not null;index"`
	RecipientID     string          `gorm:"size:36;not null;index"`
	PitchID         string          `gorm:"size:36;not null;index"`
	PlatformFee     decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	MonimePayoutID  *string         `gorm:"size:128;index"`
	CreatedAt       time.Time       `gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime"`
}

func (PitchInvestment) TableName() string { return "pitch_investments" }
