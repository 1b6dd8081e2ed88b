package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashoutRequest statuses.
const (
	CashoutStatusPending    = "pending"
	CashoutStatusProcessing = "processing"
	CashoutStatusCompleted  = "completed"
	CashoutStatusFailed     = "failed"
)

// CashoutRequest is a user-initiated withdrawal of internal wallet
// balance to an external payout. The hold on available funds is placed
// when the request is created and resolved by payout.completed /
// payout.failed webhooks.
type CashoutRequest struct {
	ID             string          `gorm:"primaryKey;size:36"`
	UserID         string          `gorm:"size:36;not null;index"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency       string          `gorm:"size:8;not null"`
	Status         string          `gorm:"size:32;not null;default:'pending'"`
	MonimePayoutID *string         `gorm:"size:128;index"`
	CompletedAt    *time.Time
	FailedAt       *time.Time
	FailureReason  *string   `gorm:"size:512"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (CashoutRequest) TableName() string { return "cashout_requests" }
