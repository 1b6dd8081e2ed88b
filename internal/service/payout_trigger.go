package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/craftvine/payments-service/internal/model"
	"github.com/craftvine/payments-service/internal/monime"
)

// PayoutOutcome describes how a payout was actually handled. Callers
// word their notifications off it.
type PayoutOutcome string

const (
	// PayoutOutcomeWallet means the recipient's internal wallet was
	// credited.
	PayoutOutcomeWallet PayoutOutcome = "wallet"
	// PayoutOutcomeAuto means an external provider payout was initiated.
	PayoutOutcomeAuto PayoutOutcome = "auto"
	// PayoutOutcomeNone means nothing moved: missing payment method or a
	// downstream failure left for manual follow-up.
	PayoutOutcomeNone PayoutOutcome = "none"
)

// Source tables a payout can settle.
const (
	sourceTableEscrows     = "delivery_escrows"
	sourceTableInvestments = "pitch_investments"
)

type payoutRequest struct {
	RecipientID   string
	Amount        decimal.Decimal
	Currency      string
	SourceTable   string
	SourceID      string
	IsFullPayment bool
	// EmployerID is set for escrow payouts only, to notify the payer
	// when the creative has no payment method yet.
	EmployerID string
	Metadata   map[string]string
}

// triggerPayout routes a settled payment to the recipient: wallet
// credit, external payout, or nothing when no destination exists or the
// downstream call fails. Failures never propagate - the payment itself
// already succeeded and is surfaced via notifications.
func (s *WebhookService) triggerPayout(ctx context.Context, req payoutRequest) PayoutOutcome {
	profile, err := s.repo.GetPayoutProfile(ctx, s.repo.DB(ctx), req.RecipientID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Errorw("load payout profile", "user", req.RecipientID, "error", err)
		return PayoutOutcomeNone
	}

	if profile != nil && profile.PayoutMode == model.PayoutModeWallet {
		return s.payoutToWallet(ctx, req)
	}

	if profile == nil || !profile.HasPaymentMethod() {
		_ = s.notify(ctx, req.RecipientID, model.NotificationPaymentMethodNeeded,
			"Payment method required",
			"You have funds waiting. Add a payout method to receive them.",
			map[string]interface{}{"source": req.SourceTable, "source_id": req.SourceID})
		if req.SourceTable == sourceTableEscrows && req.EmployerID != "" {
			_ = s.notify(ctx, req.EmployerID, model.NotificationPayoutPendingSetup,
				"Payout pending",
				"The creative's payout is on hold until they add a payment method.",
				map[string]interface{}{"escrow_id": req.SourceID})
		}
		return PayoutOutcomeNone
	}

	payout, err := s.payouts.CreatePayout(ctx, monime.PayoutRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Destination: payoutDestination(profile),
		Metadata:    req.Metadata,
	})
	if err != nil {
		// No payout id exists yet, so a later payout.failed webhook
		// cannot be correlated back to this attempt. Log the source id
		// for manual reconciliation.
		s.log.Errorw("create payout failed",
			"user", req.RecipientID, "source", req.SourceTable, "source_id", req.SourceID, "error", err)
		return PayoutOutcomeNone
	}

	if err := s.recordPayoutInitiated(ctx, req, payout.ID); err != nil {
		s.log.Errorw("record initiated payout", "payout_id", payout.ID, "source_id", req.SourceID, "error", err)
	}

	_ = s.notify(ctx, req.RecipientID, model.NotificationPayoutInitiated,
		"Payout initiated",
		fmt.Sprintf("Your payout of %s %s to %s is on its way.",
			req.Currency, req.Amount, MaskAccount(profile.PaymentAccount)),
		map[string]interface{}{"payout_id": payout.ID, "source_id": req.SourceID})

	return PayoutOutcomeAuto
}

// payoutToWallet credits the internal wallet and moves the source record
// to its terminal state. A credit failure leaves the record in its
// received state for manual follow-up; there is no automatic retry.
func (s *WebhookService) payoutToWallet(ctx context.Context, req payoutRequest) PayoutOutcome {
	sourceType := model.SourceTypeDeliveryEscrow
	if req.SourceTable == sourceTableInvestments {
		sourceType = model.SourceTypePitchInvestment
	}

	if err := s.wallets.CreditForSource(ctx, req.RecipientID, req.Currency, req.Amount, sourceType, req.SourceID, req.Metadata); err != nil {
		s.log.Errorw("wallet credit failed",
			"user", req.RecipientID, "source", req.SourceTable, "source_id", req.SourceID, "error", err)
		return PayoutOutcomeNone
	}

	db := s.repo.DB(ctx)
	switch req.SourceTable {
	case sourceTableEscrows:
		terminal := model.EscrowStatusPartialPayoutCompleted
		if req.IsFullPayment {
			terminal = model.EscrowStatusCompleted
		}
		if _, err := s.repo.TransitionEscrow(ctx, db, req.SourceID,
			[]string{model.EscrowStatusPaymentReceived, model.EscrowStatusPartialPaymentReceived},
			map[string]interface{}{"status": terminal}); err != nil {
			s.log.Errorw("finalize escrow after wallet credit", "escrow_id", req.SourceID, "error", err)
		}
	case sourceTableInvestments:
		if _, err := s.repo.TransitionInvestment(ctx, db, req.SourceID,
			[]string{model.InvestmentStatusPaymentReceived},
			map[string]interface{}{"status": model.InvestmentStatusCompleted, "payout_status": model.PayoutStatusCompleted}); err != nil {
			s.log.Errorw("finalize investment after wallet credit", "investment_id", req.SourceID, "error", err)
		}
	}

	_ = s.notify(ctx, req.RecipientID, model.NotificationWalletCredited,
		"Wallet credited",
		fmt.Sprintf("%s %s has been credited to your wallet.", req.Currency, req.Amount),
		map[string]interface{}{"source": req.SourceTable, "source_id": req.SourceID})

	return PayoutOutcomeWallet
}

// recordPayoutInitiated stores the provider payout id on the source
// record. A full payment (and every investment) moves to
// payout_initiated; a partial escrow keeps partial_payment_received
// until its separate settlement completes.
func (s *WebhookService) recordPayoutInitiated(ctx context.Context, req payoutRequest, payoutID string) error {
	db := s.repo.DB(ctx)
	switch req.SourceTable {
	case sourceTableEscrows:
		updates := map[string]interface{}{"monime_payout_id": payoutID}
		if req.IsFullPayment {
			updates["status"] = model.EscrowStatusPayoutInitiated
		}
		_, err := s.repo.TransitionEscrow(ctx, db, req.SourceID,
			[]string{model.EscrowStatusPaymentReceived, model.EscrowStatusPartialPaymentReceived},
			updates)
		return err
	case sourceTableInvestments:
		_, err := s.repo.TransitionInvestment(ctx, db, req.SourceID,
			[]string{model.InvestmentStatusPaymentReceived},
			map[string]interface{}{"status": model.InvestmentStatusPayoutInitiated, "monime_payout_id": payoutID})
		return err
	}
	return nil
}
