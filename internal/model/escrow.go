package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryEscrow statuses. There is no failed terminal state: a failed
// external payout leaves the escrow where it was for manual follow-up.
const (
	EscrowStatusPending                = "pending"
	EscrowStatusPaymentReceived        = "payment_received"
	EscrowStatusPartialPaymentReceived = "partial_payment_received"
	EscrowStatusPayoutInitiated        = "payout_initiated"
	EscrowStatusCompleted              = "completed"
	EscrowStatusPartialPayoutCompleted = "partial_payout_completed"
)

// FullPaymentPercentage marks an escrow paid in full; anything else is a
// partial payment.
const FullPaymentPercentage = 100

// DeliveryEscrow holds an employer's payment for delivered creative work
// until it is released to the creative.
type DeliveryEscrow struct {
	ID                string          `gorm:"primaryKey;size:36"`
	Status            string          `gorm:"size:32;not null;default:'pending'"`
	PaymentAmount     decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	PaymentPercentage int             `gorm:"not null;default:100"`
	Currency          string          `gorm:"size:8;not null"`
	FilesReleased     bool            `gorm:"not null;default:false"`
	NetPayoutAmount   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	CreativeID        string          `gorm:"size:36;not null;index"`
	EmployerID        string          `gorm:"size:36;not null"`
	SubmissionID      string          `gorm:"size:36"`
	OpportunityID     string          `gorm:"size:36"`
	MonimePayoutID    *string         `gorm:"size:128;index"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`
}

func (DeliveryEscrow) TableName() string { return "delivery_escrows" }

// WorkSubmission is the delivered work an escrow pays for. Only the
// approval flip on full payment belongs to this service.
type WorkSubmission struct {
	ID        string    `gorm:"primaryKey;size:36"`
	EscrowID  string    `gorm:"size:36;index"`
	Status    string    `gorm:"size:32;not null;default:'submitted'"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (WorkSubmission) TableName() string { return "work_submissions" }

const SubmissionStatusApproved = "approved"
