package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/craftvine/payments-service/internal/model"
	"github.com/craftvine/payments-service/internal/monime"
)

// handlePayoutCompleted reconciles a confirmed provider payout against
// the record that initiated it. Payout ids share one namespace across
// cashouts, escrows, and investments, so resolution is by lookup in
// priority order: cashout first, then escrow, then investment.
func (s *WebhookService) handlePayoutCompleted(ctx context.Context, env *monime.Envelope) error {
	payoutID := env.Object.ID
	db := s.repo.DB(ctx)

	if cashout, err := s.repo.FindCashoutByPayoutID(ctx, db, payoutID); err == nil {
		if err := s.wallets.FinalizeCashout(ctx, cashout); err != nil {
			return fmt.Errorf("finalize cashout %s: %w", cashout.ID, err)
		}
		_ = s.notify(ctx, cashout.UserID, model.NotificationCashoutCompleted,
			"Cashout completed",
			fmt.Sprintf("Your cashout of %s %s has been sent.", cashout.Currency, cashout.Amount),
			map[string]interface{}{"cashout_id": cashout.ID})
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if esc, err := s.repo.FindEscrowByPayoutID(ctx, db, payoutID); err == nil {
		terminal := model.EscrowStatusPartialPayoutCompleted
		if esc.PaymentPercentage == model.FullPaymentPercentage {
			terminal = model.EscrowStatusCompleted
		}
		if _, err := s.repo.TransitionEscrow(ctx, db, esc.ID,
			[]string{model.EscrowStatusPayoutInitiated, model.EscrowStatusPaymentReceived, model.EscrowStatusPartialPaymentReceived},
			map[string]interface{}{"status": terminal}); err != nil {
			return err
		}
		_ = s.notify(ctx, esc.CreativeID, model.NotificationPayoutCompleted,
			"Payout complete",
			fmt.Sprintf("Your payout of %s %s has arrived.", esc.Currency, esc.NetPayoutAmount),
			map[string]interface{}{"escrow_id": esc.ID})
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if inv, err := s.repo.FindInvestmentByPayoutID(ctx, db, payoutID); err == nil {
		if _, err := s.repo.TransitionInvestment(ctx, db, inv.ID,
			[]string{model.InvestmentStatusPayoutInitiated, model.InvestmentStatusPaymentReceived},
			map[string]interface{}{"status": model.InvestmentStatusCompleted, "payout_status": model.PayoutStatusCompleted}); err != nil {
			return err
		}
		_ = s.notify(ctx, inv.RecipientID, model.NotificationPayoutCompleted,
			"Payout complete",
			fmt.Sprintf("Your payout of %s %s has arrived.", inv.Currency, inv.NetPayoutAmount),
			map[string]interface{}{"pitch_investment_id": inv.ID})
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	s.log.Errorw("payout completed for unknown payout id", "payout_id", payoutID)
	return nil
}

// handlePayoutFailed applies the failure branch per record type. A
// failed cashout returns the held funds; a failed escrow payout changes
// no status and waits for manual intervention; a failed investment
// payout marks payout_status only.
func (s *WebhookService) handlePayoutFailed(ctx context.Context, env *monime.Envelope) error {
	payoutID := env.Object.ID
	reason := env.FailureReason()
	db := s.repo.DB(ctx)

	if cashout, err := s.repo.FindCashoutByPayoutID(ctx, db, payoutID); err == nil {
		if err := s.wallets.RollbackCashout(ctx, cashout, reason); err != nil {
			return fmt.Errorf("rollback cashout %s: %w", cashout.ID, err)
		}
		_ = s.notify(ctx, cashout.UserID, model.NotificationCashoutFailed,
			"Cashout failed",
			fmt.Sprintf("Your cashout of %s %s failed (%s). The funds are back in your wallet.",
				cashout.Currency, cashout.Amount, reason),
			map[string]interface{}{"cashout_id": cashout.ID, "reason": reason})
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if esc, err := s.repo.FindEscrowByPayoutID(ctx, db, payoutID); err == nil {
		_ = s.notify(ctx, esc.CreativeID, model.NotificationPayoutFailed,
			"Payout failed",
			fmt.Sprintf("Your payout of %s %s failed: %s. Our team will follow up.",
				esc.Currency, esc.NetPayoutAmount, reason),
			map[string]interface{}{"escrow_id": esc.ID, "reason": reason})
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if inv, err := s.repo.FindInvestmentByPayoutID(ctx, db, payoutID); err == nil {
		if err := s.repo.SetInvestmentPayoutStatus(ctx, db, inv.ID, model.PayoutStatusFailed); err != nil {
			return err
		}
		_ = s.notify(ctx, inv.RecipientID, model.NotificationPayoutFailed,
			"Payout failed",
			fmt.Sprintf("Your payout of %s %s failed: %s. Our team will follow up.",
				inv.Currency, inv.NetPayoutAmount, reason),
			map[string]interface{}{"pitch_investment_id": inv.ID, "reason": reason})
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	s.log.Errorw("payout failed for unknown payout id", "payout_id", payoutID)
	return nil
}
