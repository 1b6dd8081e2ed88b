package service

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/craftvine/payments-service/internal/model"
)

func seedEscrow(t *testing.T, e *testEngine, id string, percentage int) *model.DeliveryEscrow {
	t.Helper()
	esc := &model.DeliveryEscrow{
		ID:                id,
		Status:            model.EscrowStatusPending,
		PaymentAmount:     decimal.NewFromInt(100),
		PaymentPercentage: percentage,
		Currency:          "SLE",
		NetPayoutAmount:   decimal.NewFromInt(90),
		CreativeID:        "creative_1",
		EmployerID:        "employer_1",
		SubmissionID:      "sub_1",
		OpportunityID:     "opp_1",
	}
	assert.NoError(t, e.db.Create(esc).Error)
	assert.NoError(t, e.db.Create(&model.WorkSubmission{ID: "sub_1", EscrowID: id, Status: "submitted"}).Error)
	return esc
}

func seedMomoProfile(t *testing.T, e *testEngine, userID string) {
	t.Helper()
	assert.NoError(t, e.db.Create(&model.PayoutProfile{
		UserID: userID, PayoutMode: model.PayoutModeAuto,
		PaymentProvider: model.PaymentProviderMomo, PaymentProviderID: "m17", PaymentAccount: "+23276123456",
	}).Error)
}

func checkoutBody(eventID, sessionID, metaKey, metaVal string) string {
	return fmt.Sprintf(`{"event":{"name":"checkout_session.completed","id":"%s"},"object":{"id":"%s","type":"checkout_session"},"data":{"metadata":{"%s":"%s"}}}`,
		eventID, sessionID, metaKey, metaVal)
}

func payoutBody(eventName, eventID, payoutID string) string {
	return fmt.Sprintf(`{"event":{"name":"%s","id":"%s"},"object":{"id":"%s","type":"payout"},"data":{"failureDetail":{"message":"insufficient float"}}}`,
		eventName, eventID, payoutID)
}

func (e *testEngine) notifCount(t *testing.T, userID, kind string) int64 {
	t.Helper()
	var n int64
	assert.NoError(t, e.db.Model(&model.Notification{}).
		Where("user_id = ? AND type = ?", userID, kind).Count(&n).Error)
	return n
}

func TestWebhook_InvalidSignatureNeverRecords(t *testing.T) {
	e, ctx := newTestEngine(t)

	body := checkoutBody("evt_1", "cs_1", "escrow_id", "esc_1")
	_, err := e.hooks.Process(ctx, []byte(body), "sha256=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.EqualValues(t, 0, e.count(t, &model.WebhookEvent{}))
}

func TestWebhook_NotConfiguredOutsideDevelopment(t *testing.T) {
	e, ctx := newTestEngine(t)
	e.hooks = NewWebhookService(e.repo, e.wallets, e.payouts, "", false, e.hooks.log)

	_, err := e.hooks.Process(ctx, []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWebhook_DevelopmentBypassSkipsVerification(t *testing.T) {
	e, ctx := newTestEngine(t)
	e.hooks = NewWebhookService(e.repo, e.wallets, e.payouts, "", true, e.hooks.log)

	body := `{"event":{"name":"payout.delayed","id":"evt_d1"},"object":{"id":"p1","type":"payout"},"data":{}}`
	res, err := e.hooks.Process(ctx, []byte(body), "")
	assert.NoError(t, err)
	assert.True(t, res.Received)
}

func TestWebhook_MalformedBody(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.deliver(t, `{not json`)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = e.deliver(t, `{"event":{"name":"","id":""},"object":{},"data":{}}`)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestWebhook_DuplicateEventDelivery(t *testing.T) {
	e, _ := newTestEngine(t)
	seedEscrow(t, e, "esc_1", 100)
	seedMomoProfile(t, e, "creative_1")

	body := checkoutBody("evt_1", "cs_1", "escrow_id", "esc_1")

	res, err := e.deliver(t, body)
	assert.NoError(t, err)
	assert.True(t, res.Received)
	assert.False(t, res.Duplicate)

	txs := e.count(t, &model.Transaction{})
	notifs := e.count(t, &model.Notification{})
	payouts := e.payouts.callCount()

	res, err = e.deliver(t, body)
	assert.NoError(t, err)
	assert.True(t, res.Duplicate, "second delivery acknowledged as duplicate")

	assert.EqualValues(t, 1, e.count(t, &model.WebhookEvent{}))
	assert.Equal(t, txs, e.count(t, &model.Transaction{}), "no extra ledger lines")
	assert.Equal(t, notifs, e.count(t, &model.Notification{}), "no extra notifications")
	assert.Equal(t, payouts, e.payouts.callCount(), "no extra payouts")
}

func TestWebhook_FullEscrowExternalPayout(t *testing.T) {
	e, _ := newTestEngine(t)
	seedEscrow(t, e, "esc_1", 100)
	seedMomoProfile(t, e, "creative_1")

	res, err := e.deliver(t, checkoutBody("evt_1", "cs_1", "escrow_id", "esc_1"))
	assert.NoError(t, err)
	assert.True(t, res.Received)

	var esc model.DeliveryEscrow
	assert.NoError(t, e.db.First(&esc, "id = ?", "esc_1").Error)
	assert.Equal(t, model.EscrowStatusPayoutInitiated, esc.Status)
	assert.True(t, esc.FilesReleased)
	assert.NotNil(t, esc.MonimePayoutID)

	var sub model.WorkSubmission
	assert.NoError(t, e.db.First(&sub, "id = ?", "sub_1").Error)
	assert.Equal(t, model.SubmissionStatusApproved, sub.Status)

	var tx model.Transaction
	assert.NoError(t, e.db.First(&tx, "payment_type = ?", model.PaymentTypeFull).Error)
	assert.Equal(t, "employer_1", tx.PayerID)
	assert.Equal(t, "creative_1", tx.PayeeID)
	assert.Equal(t, "10", tx.Fee.StringFixed(0))
	assert.Equal(t, "90", tx.NetAmount.StringFixed(0))
	assert.Equal(t, "cs_1", tx.CheckoutSessionID)

	assert.Equal(t, 1, e.payouts.callCount())
	call := e.payouts.lastCall()
	assert.Equal(t, "+23276123456", call.Destination.PhoneNumber)
	assert.Equal(t, "90", call.Amount.StringFixed(0))

	assert.EqualValues(t, 1, e.notifCount(t, "employer_1", model.NotificationPaymentSuccessful))
	assert.EqualValues(t, 1, e.notifCount(t, "creative_1", model.NotificationPaymentReceived))
	assert.EqualValues(t, 1, e.notifCount(t, "creative_1", model.NotificationPayoutInitiated))
}

func TestWebhook_PartialEscrowKeepsPartialStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	seedEscrow(t, e, "esc_1", 50)
	seedMomoProfile(t, e, "creative_1")

	_, err := e.deliver(t, checkoutBody("evt_1", "cs_1", "escrow_id", "esc_1"))
	assert.NoError(t, err)

	var esc model.DeliveryEscrow
	assert.NoError(t, e.db.First(&esc, "id = ?", "esc_1").Error)
	assert.Equal(t, model.EscrowStatusPartialPaymentReceived, esc.Status,
		"partial escrow stays partial_payment_received after payout initiation")
	assert.False(t, esc.FilesReleased)
	assert.NotNil(t, esc.MonimePayoutID)

	var sub model.WorkSubmission
	assert.NoError(t, e.db.First(&sub, "id = ?", "sub_1").Error)
	assert.Equal(t, "submitted", sub.Status, "partial payment does not approve the submission")

	var n int64
	e.db.Model(&model.Transaction{}).Where("payment_type = ?", model.PaymentTypePartial50).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestWebhook_WalletModeNeverCallsProvider(t *testing.T) {
	e, ctx := newTestEngine(t)
	seedEscrow(t, e, "esc_1", 100)
	assert.NoError(t, e.db.Create(&model.PayoutProfile{
		UserID: "creative_1", PayoutMode: model.PayoutModeWallet,
	}).Error)

	_, err := e.deliver(t, checkoutBody("evt_1", "cs_1", "escrow_id", "esc_1"))
	assert.NoError(t, err)

	assert.Equal(t, 0, e.payouts.callCount(), "wallet mode must not create provider payouts")

	bal, err := e.wallets.GetBalance(ctx, "creative_1", "SLE")
	assert.NoError(t, err)
	assert.Equal(t, "90", bal.StringFixed(0))

	var esc model.DeliveryEscrow
	assert.NoError(t, e.db.First(&esc, "id = ?", "esc_1").Error)
	assert.Equal(t, model.EscrowStatusCompleted, esc.Status)

	assert.EqualValues(t, 1, e.notifCount(t, "creative_1", model.NotificationWalletCredited))
}

func TestWebhook_NoPaymentMethodConfigured(t *testing.T) {
	e, _ := newTestEngine(t)
	seedEscrow(t, e, "esc_1", 100)

	_, err := e.deliver(t, checkoutBody("evt_1", "cs_1", "escrow_id", "esc_1"))
	assert.NoError(t, err)

	assert.Equal(t, 0, e.payouts.callCount())

	var esc model.DeliveryEscrow
	assert.NoError(t, e.db.First(&esc, "id = ?", "esc_1").Error)
	assert.Equal(t, model.EscrowStatusPaymentReceived, esc.Status,
		"escrow waits in received state until a payment method exists")

	assert.EqualValues(t, 1, e.notifCount(t, "creative_1", model.NotificationPaymentMethodNeeded))
	assert.EqualValues(t, 1, e.notifCount(t, "employer_1", model.NotificationPayoutPendingSetup))
}

func TestWebhook_MissingMetadataIsSwallowed(t *testing.T) {
	e, _ := newTestEngine(t)

	body := `{"event":{"name":"checkout_session.completed","id":"evt_1"},"object":{"id":"cs_1","type":"checkout_session"},"data":{}}`
	res, err := e.deliver(t, body)
	assert.NoError(t, err, "retries cannot supply missing metadata, so no error")
	assert.True(t, res.Received)
	assert.EqualValues(t, 0, e.count(t, &model.Transaction{}))
}

func TestWebhook_EscrowNotFoundIsSwallowed(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.deliver(t, checkoutBody("evt_1", "cs_1", "escrow_id", "ghost"))
	assert.NoError(t, err)
	assert.True(t, res.Received)
}

func seedInvestment(t *testing.T, e *testEngine, id, pitchID string, amount int64) {
	t.Helper()
	assert.NoError(t, e.db.Create(&model.PitchInvestment{
		ID: id, Status: model.InvestmentStatusPending, PayoutStatus: model.PayoutStatusPending,
		Amount: decimal.NewFromInt(amount), NetPayoutAmount: decimal.NewFromInt(amount - 5),
		Currency: "SLE", InvestorID: "investor_" + id, RecipientID: "founder_1",
		PitchID: pitchID, PlatformFee: decimal.NewFromInt(5),
	}).Error)
}

func TestWebhook_PitchInvestmentFlow(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NoError(t, e.db.Create(&model.Pitch{
		ID: "pitch_1", CreatorID: "founder_1",
		FundingGoal: decimal.NewFromInt(1000), TotalFunded: decimal.Zero,
	}).Error)
	seedMomoProfile(t, e, "founder_1")
	seedInvestment(t, e, "inv_1", "pitch_1", 100)

	_, err := e.deliver(t, checkoutBody("evt_1", "cs_1", "pitch_investment_id", "inv_1"))
	assert.NoError(t, err)

	var inv model.PitchInvestment
	assert.NoError(t, e.db.First(&inv, "id = ?", "inv_1").Error)
	assert.Equal(t, model.InvestmentStatusPayoutInitiated, inv.Status)
	assert.NotNil(t, inv.MonimePayoutID)

	var tx model.Transaction
	assert.NoError(t, e.db.First(&tx, "payment_type = ?", model.PaymentTypePitchInvestment).Error)
	assert.Equal(t, "investor_inv_1", tx.PayerID)
	assert.Equal(t, "founder_1", tx.PayeeID)

	var pitch model.Pitch
	assert.NoError(t, e.db.First(&pitch, "id = ?", "pitch_1").Error)
	assert.Equal(t, "100", pitch.TotalFunded.StringFixed(0))

	assert.EqualValues(t, 1, e.notifCount(t, "investor_inv_1", model.NotificationInvestmentConfirmed))
	assert.EqualValues(t, 1, e.notifCount(t, "founder_1", model.NotificationInvestmentReceived))
}

func TestWebhook_PitchFundingAccumulates(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NoError(t, e.db.Create(&model.Pitch{
		ID: "pitch_1", CreatorID: "founder_1",
		FundingGoal: decimal.NewFromInt(1000), TotalFunded: decimal.Zero,
	}).Error)
	seedMomoProfile(t, e, "founder_1")

	amounts := []int64{100, 250, 75}
	for i, amt := range amounts {
		id := fmt.Sprintf("inv_%d", i)
		seedInvestment(t, e, id, "pitch_1", amt)
		_, err := e.deliver(t, checkoutBody(fmt.Sprintf("evt_%d", i), fmt.Sprintf("cs_%d", i), "pitch_investment_id", id))
		assert.NoError(t, err)
	}

	var pitch model.Pitch
	assert.NoError(t, e.db.First(&pitch, "id = ?", "pitch_1").Error)
	assert.Equal(t, "425", pitch.TotalFunded.StringFixed(0), "every investment adds its own amount")
}

func TestWebhook_PayoutCompleted_CashoutHasPriority(t *testing.T) {
	e, ctx := newTestEngine(t)
	seedMomoProfile(t, e, "u1")
	assert.NoError(t, e.wallets.ApplyMutation(ctx, MutationParams{
		UserID: "u1", Currency: "SLE",
		AvailableDelta: decimal.NewFromInt(100), PendingDelta: decimal.Zero,
		EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(100),
		SourceType: model.SourceTypeDeliveryEscrow, SourceID: "seed", IdempotencyKey: "seed",
	}))
	cashout, err := e.wallets.RequestCashout(ctx, "u1", decimal.NewFromInt(60), "SLE")
	assert.NoError(t, err)
	payoutID := *cashout.MonimePayoutID

	// a hypothetical escrow sharing the payout id must never be touched
	esc := seedEscrow(t, e, "esc_clash", 100)
	assert.NoError(t, e.db.Model(&model.DeliveryEscrow{}).Where("id = ?", esc.ID).
		Updates(map[string]interface{}{"status": model.EscrowStatusPayoutInitiated, "monime_payout_id": payoutID}).Error)

	_, err = e.deliver(t, payoutBody("payout.completed", "evt_pc", payoutID))
	assert.NoError(t, err)

	var c model.CashoutRequest
	assert.NoError(t, e.db.First(&c, "id = ?", cashout.ID).Error)
	assert.Equal(t, model.CashoutStatusCompleted, c.Status)

	var after model.DeliveryEscrow
	assert.NoError(t, e.db.First(&after, "id = ?", esc.ID).Error)
	assert.Equal(t, model.EscrowStatusPayoutInitiated, after.Status, "escrow branch never evaluated")
}

func TestWebhook_PayoutCompleted_Escrow(t *testing.T) {
	e, _ := newTestEngine(t)
	esc := seedEscrow(t, e, "esc_1", 100)
	assert.NoError(t, e.db.Model(&model.DeliveryEscrow{}).Where("id = ?", esc.ID).
		Updates(map[string]interface{}{"status": model.EscrowStatusPayoutInitiated, "monime_payout_id": "pout_77"}).Error)

	_, err := e.deliver(t, payoutBody("payout.completed", "evt_pc", "pout_77"))
	assert.NoError(t, err)

	var after model.DeliveryEscrow
	assert.NoError(t, e.db.First(&after, "id = ?", "esc_1").Error)
	assert.Equal(t, model.EscrowStatusCompleted, after.Status)
	assert.EqualValues(t, 1, e.notifCount(t, "creative_1", model.NotificationPayoutCompleted))
}

func TestWebhook_PayoutCompleted_Investment(t *testing.T) {
	e, _ := newTestEngine(t)
	seedInvestment(t, e, "inv_1", "pitch_1", 100)
	assert.NoError(t, e.db.Model(&model.PitchInvestment{}).Where("id = ?", "inv_1").
		Updates(map[string]interface{}{"status": model.InvestmentStatusPayoutInitiated, "monime_payout_id": "pout_9"}).Error)

	_, err := e.deliver(t, payoutBody("payout.completed", "evt_pc", "pout_9"))
	assert.NoError(t, err)

	var inv model.PitchInvestment
	assert.NoError(t, e.db.First(&inv, "id = ?", "inv_1").Error)
	assert.Equal(t, model.InvestmentStatusCompleted, inv.Status)
	assert.Equal(t, model.PayoutStatusCompleted, inv.PayoutStatus)
}

func TestWebhook_PayoutCompleted_Orphan(t *testing.T) {
	e, _ := newTestEngine(t)
	res, err := e.deliver(t, payoutBody("payout.completed", "evt_pc", "pout_unknown"))
	assert.NoError(t, err, "orphaned payout ids are logged, not retried")
	assert.True(t, res.Received)
}

func TestWebhook_PayoutFailed_CashoutRollback(t *testing.T) {
	e, ctx := newTestEngine(t)
	seedMomoProfile(t, e, "u1")
	assert.NoError(t, e.wallets.ApplyMutation(ctx, MutationParams{
		UserID: "u1", Currency: "SLE",
		AvailableDelta: decimal.NewFromInt(100), PendingDelta: decimal.Zero,
		EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(100),
		SourceType: model.SourceTypeDeliveryEscrow, SourceID: "seed", IdempotencyKey: "seed",
	}))
	cashout, err := e.wallets.RequestCashout(ctx, "u1", decimal.NewFromInt(60), "SLE")
	assert.NoError(t, err)
	payoutID := *cashout.MonimePayoutID

	_, err = e.deliver(t, payoutBody("payout.failed", "evt_f1", payoutID))
	assert.NoError(t, err)
	// a second failure event for the same payout must not double-credit
	_, err = e.deliver(t, payoutBody("payout.failed", "evt_f2", payoutID))
	assert.NoError(t, err)

	var w model.Wallet
	assert.NoError(t, e.db.Where("user_id = ? AND currency = ?", "u1", "SLE").First(&w).Error)
	assert.Equal(t, "100", w.Available.StringFixed(0))
	assert.Equal(t, "0", w.Pending.StringFixed(0))

	var c model.CashoutRequest
	assert.NoError(t, e.db.First(&c, "id = ?", cashout.ID).Error)
	assert.Equal(t, model.CashoutStatusFailed, c.Status)
	assert.NotNil(t, c.FailureReason)
	assert.Equal(t, "insufficient float", *c.FailureReason)
	assert.EqualValues(t, 1, e.notifCount(t, "u1", model.NotificationCashoutFailed))
}

func TestWebhook_PayoutFailed_EscrowKeepsStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	esc := seedEscrow(t, e, "esc_1", 100)
	assert.NoError(t, e.db.Model(&model.DeliveryEscrow{}).Where("id = ?", esc.ID).
		Updates(map[string]interface{}{"status": model.EscrowStatusPayoutInitiated, "monime_payout_id": "pout_3"}).Error)

	_, err := e.deliver(t, payoutBody("payout.failed", "evt_f", "pout_3"))
	assert.NoError(t, err)

	var after model.DeliveryEscrow
	assert.NoError(t, e.db.First(&after, "id = ?", "esc_1").Error)
	assert.Equal(t, model.EscrowStatusPayoutInitiated, after.Status,
		"escrow is left for manual intervention")
	assert.EqualValues(t, 1, e.notifCount(t, "creative_1", model.NotificationPayoutFailed))
}

func TestWebhook_PayoutFailed_InvestmentMarksPayoutStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	seedInvestment(t, e, "inv_1", "pitch_1", 100)
	assert.NoError(t, e.db.Model(&model.PitchInvestment{}).Where("id = ?", "inv_1").
		Updates(map[string]interface{}{"status": model.InvestmentStatusPayoutInitiated, "monime_payout_id": "pout_4"}).Error)

	_, err := e.deliver(t, payoutBody("payout.failed", "evt_f", "pout_4"))
	assert.NoError(t, err)

	var inv model.PitchInvestment
	assert.NoError(t, e.db.First(&inv, "id = ?", "inv_1").Error)
	assert.Equal(t, model.PayoutStatusFailed, inv.PayoutStatus)
	assert.Equal(t, model.InvestmentStatusPayoutInitiated, inv.Status, "primary status untouched")
}

func TestWebhook_UnknownEventName(t *testing.T) {
	e, _ := newTestEngine(t)

	body := `{"event":{"name":"refund.created","id":"evt_u1"},"object":{"id":"rf_1","type":"refund"},"data":{}}`
	res, err := e.deliver(t, body)
	assert.NoError(t, err)
	assert.True(t, res.Received)

	assert.EqualValues(t, 1, e.count(t, &model.WebhookEvent{}), "event recorded for audit")
	assert.EqualValues(t, 0, e.count(t, &model.Transaction{}))
	assert.EqualValues(t, 0, e.count(t, &model.Notification{}))
	assert.EqualValues(t, 0, e.count(t, &model.WalletEntry{}))
}

func TestWebhook_PayoutDelayedLogsOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	res, err := e.deliver(t, payoutBody("payout.delayed", "evt_d", "pout_1"))
	assert.NoError(t, err)
	assert.True(t, res.Received)
	assert.EqualValues(t, 0, e.count(t, &model.Notification{}))
}
