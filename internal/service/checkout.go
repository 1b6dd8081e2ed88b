package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/craftvine/payments-service/internal/model"
	"github.com/craftvine/payments-service/internal/monime"
)

// handleCheckoutCompleted reconciles a finished provider checkout
// session against the escrow or pitch investment it paid for. Missing
// metadata is logged and swallowed: a retry can never supply it.
func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, env *monime.Envelope) error {
	meta := env.Metadata()
	if investmentID := meta["pitch_investment_id"]; investmentID != "" {
		return s.completeInvestmentPayment(ctx, investmentID, env)
	}
	escrowID := meta["escrow_id"]
	if escrowID == "" {
		s.log.Warnw("checkout completed without escrow_id or pitch_investment_id metadata",
			"session_id", env.Object.ID)
		return nil
	}
	return s.completeEscrowPayment(ctx, escrowID, env)
}

// escrowProcessedStatuses are the states that mean payment for this
// escrow was already handled, by this delivery or an earlier one.
var escrowProcessedStatuses = []string{
	model.EscrowStatusPaymentReceived,
	model.EscrowStatusPartialPaymentReceived,
	model.EscrowStatusPayoutInitiated,
	model.EscrowStatusCompleted,
	model.EscrowStatusPartialPayoutCompleted,
}

func (s *WebhookService) completeEscrowPayment(ctx context.Context, escrowID string, env *monime.Envelope) error {
	esc, err := s.repo.GetEscrow(ctx, s.repo.DB(ctx), escrowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warnw("escrow not found for completed checkout", "escrow_id", escrowID)
			return nil
		}
		return err
	}
	for _, st := range escrowProcessedStatuses {
		if esc.Status == st {
			s.log.Infow("escrow payment already processed", "escrow_id", escrowID, "status", esc.Status)
			return nil
		}
	}

	isFull := esc.PaymentPercentage == model.FullPaymentPercentage
	newStatus := model.EscrowStatusPartialPaymentReceived
	paymentType := model.PaymentTypePartial50
	if isFull {
		newStatus = model.EscrowStatusPaymentReceived
		paymentType = model.PaymentTypeFull
	}

	var moved bool
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional update: a concurrent delivery that got here first
		// wins the transition and this one stops.
		moved, err = s.repo.TransitionEscrow(ctx, tx, escrowID,
			[]string{model.EscrowStatusPending},
			map[string]interface{}{"status": newStatus, "files_released": isFull})
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}

		if isFull && esc.SubmissionID != "" {
			if err := s.repo.ApproveSubmission(ctx, tx, esc.SubmissionID); err != nil {
				return err
			}
		}

		exists, err := s.repo.EscrowTransactionExists(ctx, tx, escrowID, paymentType)
		if err != nil {
			return err
		}
		if !exists {
			if err := s.repo.CreateTransaction(ctx, tx, &model.Transaction{
				ID:                uuid.NewString(),
				PayerID:           esc.EmployerID,
				PayeeID:           esc.CreativeID,
				Amount:            esc.PaymentAmount,
				Currency:          esc.Currency,
				Fee:               esc.PaymentAmount.Sub(esc.NetPayoutAmount),
				NetAmount:         esc.NetPayoutAmount,
				PaymentType:       paymentType,
				EscrowID:          &escrowID,
				CheckoutSessionID: env.Object.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !moved {
		s.log.Infow("escrow transition lost race, skipping", "escrow_id", escrowID)
		return nil
	}

	outcome := s.triggerPayout(ctx, payoutRequest{
		RecipientID:   esc.CreativeID,
		Amount:        esc.NetPayoutAmount,
		Currency:      esc.Currency,
		SourceTable:   sourceTableEscrows,
		SourceID:      escrowID,
		IsFullPayment: isFull,
		EmployerID:    esc.EmployerID,
		Metadata: map[string]string{
			"escrow_id":      escrowID,
			"opportunity_id": esc.OpportunityID,
		},
	})

	_ = s.notify(ctx, esc.EmployerID, model.NotificationPaymentSuccessful,
		"Payment successful",
		fmt.Sprintf("Your payment of %s %s was received.", esc.Currency, esc.PaymentAmount),
		map[string]interface{}{"escrow_id": escrowID})

	creativeMsg := fmt.Sprintf("Payment of %s %s received. Your payout is being processed.", esc.Currency, esc.NetPayoutAmount)
	if outcome == PayoutOutcomeWallet {
		creativeMsg = fmt.Sprintf("Payment of %s %s received and credited to your wallet.", esc.Currency, esc.NetPayoutAmount)
	}
	_ = s.notify(ctx, esc.CreativeID, model.NotificationPaymentReceived,
		"Payment received", creativeMsg,
		map[string]interface{}{"escrow_id": escrowID, "payout": string(outcome)})

	return nil
}

// investmentProcessedStatuses mirror the escrow set for pitch
// investments.
var investmentProcessedStatuses = []string{
	model.InvestmentStatusPaymentReceived,
	model.InvestmentStatusPayoutInitiated,
	model.InvestmentStatusCompleted,
}

func (s *WebhookService) completeInvestmentPayment(ctx context.Context, investmentID string, env *monime.Envelope) error {
	inv, err := s.repo.GetInvestment(ctx, s.repo.DB(ctx), investmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warnw("pitch investment not found for completed checkout", "investment_id", investmentID)
			return nil
		}
		return err
	}
	for _, st := range investmentProcessedStatuses {
		if inv.Status == st {
			s.log.Infow("investment payment already processed", "investment_id", investmentID, "status", inv.Status)
			return nil
		}
	}

	var moved bool
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err = s.repo.TransitionInvestment(ctx, tx, investmentID,
			[]string{model.InvestmentStatusPending},
			map[string]interface{}{"status": model.InvestmentStatusPaymentReceived})
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}

		if err := s.repo.IncrementPitchFunding(ctx, tx, inv.PitchID, inv.Amount); err != nil {
			return err
		}

		exists, err := s.repo.InvestmentTransactionExists(ctx, tx, investmentID)
		if err != nil {
			return err
		}
		if !exists {
			if err := s.repo.CreateTransaction(ctx, tx, &model.Transaction{
				ID:                uuid.NewString(),
				PayerID:           inv.InvestorID,
				PayeeID:           inv.RecipientID,
				Amount:            inv.Amount,
				Currency:          inv.Currency,
				Fee:               inv.PlatformFee,
				NetAmount:         inv.NetPayoutAmount,
				PaymentType:       model.PaymentTypePitchInvestment,
				PitchInvestmentID: &investmentID,
				CheckoutSessionID: env.Object.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !moved {
		s.log.Infow("investment transition lost race, skipping", "investment_id", investmentID)
		return nil
	}

	outcome := s.triggerPayout(ctx, payoutRequest{
		RecipientID:   inv.RecipientID,
		Amount:        inv.NetPayoutAmount,
		Currency:      inv.Currency,
		SourceTable:   sourceTableInvestments,
		SourceID:      investmentID,
		IsFullPayment: true,
		Metadata: map[string]string{
			"pitch_investment_id": investmentID,
			"pitch_id":            inv.PitchID,
		},
	})

	_ = s.notify(ctx, inv.InvestorID, model.NotificationInvestmentConfirmed,
		"Investment confirmed",
		fmt.Sprintf("Your investment of %s %s has been confirmed.", inv.Currency, inv.Amount),
		map[string]interface{}{"pitch_investment_id": investmentID, "pitch_id": inv.PitchID})

	recipientMsg := fmt.Sprintf("You received an investment of %s %s. Your payout is being processed.", inv.Currency, inv.Amount)
	if outcome == PayoutOutcomeWallet {
		recipientMsg = fmt.Sprintf("You received an investment of %s %s, credited to your wallet.", inv.Currency, inv.Amount)
	}
	_ = s.notify(ctx, inv.RecipientID, model.NotificationInvestmentReceived,
		"Investment received", recipientMsg,
		map[string]interface{}{"pitch_investment_id": investmentID, "payout": string(outcome)})

	return nil
}
