package model

import "time"

// Notification types emitted by the webhook engine.
const (
	NotificationPaymentSuccessful   = "payment_successful"
	NotificationPaymentReceived     = "payment_received"
	NotificationWalletCredited      = "wallet_credited"
	NotificationPayoutInitiated     = "payout_initiated"
	NotificationPayoutCompleted     = "payout_completed"
	NotificationPayoutFailed        = "payout_failed"
	NotificationPaymentMethodNeeded = "payment_method_required"
	NotificationPayoutPendingSetup  = "payout_pending_setup"
	NotificationCashoutCompleted    = "cashout_completed"
	NotificationCashoutFailed       = "cashout_failed"
	NotificationInvestmentConfirmed = "investment_confirmed"
	NotificationInvestmentReceived  = "investment_received"
)

// Notification is a fire-and-forget user-facing message. This service
// only writes rows; rendering and delivery live elsewhere.
type Notification struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"size:36;not null;index"`
	Type      string    `gorm:"size:48;not null"`
	Title     string    `gorm:"size:255;not null"`
	Message   string    `gorm:"size:1024;not null"`
	Data      string    `gorm:"type:jsonb"`
	Read      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
