package model

import "time"

// Payout modes.
const (
	PayoutModeWallet = "wallet"
	PayoutModeAuto   = "auto"
)

// Payment provider kinds for external payouts.
const (
	PaymentProviderMomo   = "momo"
	PaymentProviderBank   = "bank"
	PaymentProviderWallet = "wallet"
)

// PayoutProfile is a recipient's payout preference. A wallet-mode user is
// credited internally; otherwise the provider fields describe where
// external payouts go. All provider fields empty means the user has not
// set up a payment method yet.
type PayoutProfile struct {
	UserID            string    `gorm:"primaryKey;size:36"`
	PayoutMode        string    `gorm:"size:16;not null;default:'auto'"`
	PaymentProvider   string    `gorm:"size:16"`
	PaymentProviderID string    `gorm:"size:64"`
	PaymentAccount    string    `gorm:"size:64"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (PayoutProfile) TableName() string { return "payout_profiles" }

// HasPaymentMethod reports whether external payouts can be addressed.
func (p *PayoutProfile) HasPaymentMethod() bool {
	return p.PaymentProvider != "" && p.PaymentProviderID != "" && p.PaymentAccount != ""
}
