package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftvine/payments-service/internal/model"
	"github.com/craftvine/payments-service/internal/monime"
	"github.com/craftvine/payments-service/internal/repo"
)

// Gate errors, mapped onto HTTP statuses by the transport layer.
var (
	// ErrNotConfigured means no webhook secret is set outside development.
	ErrNotConfigured = errors.New("webhook secret not configured")
	// ErrInvalidSignature means the delivery failed HMAC verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent means the body is not a valid event envelope.
	ErrMalformedEvent = errors.New("malformed webhook payload")
)

// WebhookResult acknowledges a delivery to the provider.
type WebhookResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// WebhookService is the reconciliation engine behind
// POST /api/payments/webhook: it authenticates deliveries, records each
// event id exactly once, and routes to the payment and payout handlers.
type WebhookService struct {
	repo    repo.RepositoryInterface
	wallets *WalletService
	payouts monime.PayoutCreator
	secret  string
	devMode bool
	log     *zap.SugaredLogger
}

// NewWebhookService returns a WebhookService. devMode relaxes the
// missing-secret rejection for local development only.
func NewWebhookService(r repo.RepositoryInterface, wallets *WalletService, payouts monime.PayoutCreator, secret string, devMode bool, logger *zap.SugaredLogger) *WebhookService {
	return &WebhookService{
		repo:    r,
		wallets: wallets,
		payouts: payouts,
		secret:  secret,
		devMode: devMode,
		log:     logger,
	}
}

// Process runs the full gate-and-dispatch pipeline for one delivery.
//
// The event row is inserted before any handler runs. A conflict on
// (provider, event id) acknowledges the delivery as a duplicate with no
// side effects. A handler error after the insert surfaces to the
// provider as a 500; its retry will then short-circuit as a duplicate,
// so handlers guard their own transitions against partial prior runs.
func (s *WebhookService) Process(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if s.secret == "" {
		if !s.devMode {
			return nil, ErrNotConfigured
		}
		s.log.Warn("webhook secret not set, skipping signature verification (development)")
	} else if !monime.VerifySignature(body, signature, s.secret) {
		return nil, ErrInvalidSignature
	}

	env, err := monime.ParseEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event.ID == "" || env.Event.Name == "" {
		return nil, fmt.Errorf("%w: missing event id or name", ErrMalformedEvent)
	}

	inserted, err := s.repo.InsertWebhookEvent(ctx, &model.WebhookEvent{
		Provider:  model.ProviderMonime,
		EventID:   env.Event.ID,
		EventName: env.Event.Name,
		ObjectID:  env.Object.ID,
		Payload:   string(body),
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !inserted {
		s.log.Infow("duplicate webhook delivery", "event", env.Event.Name, "event_id", env.Event.ID)
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	if err := s.route(ctx, env); err != nil {
		s.log.Errorw("webhook handler failed", "event", env.Event.Name, "event_id", env.Event.ID, "error", err)
		return nil, err
	}
	return &WebhookResult{Received: true}, nil
}

// route dispatches by event name. Unknown names are acknowledged
// without error so new provider events cannot poison deliveries.
func (s *WebhookService) route(ctx context.Context, env *monime.Envelope) error {
	switch env.Event.Name {
	case monime.EventCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, env)
	case monime.EventPayoutCompleted:
		return s.handlePayoutCompleted(ctx, env)
	case monime.EventPayoutFailed:
		return s.handlePayoutFailed(ctx, env)
	case monime.EventPayoutDelayed:
		s.log.Infow("payout delayed", "payout_id", env.Object.ID)
		return nil
	default:
		s.log.Infow("ignoring unhandled webhook event", "event", env.Event.Name)
		return nil
	}
}

// notify records a user-facing message. Callers may ignore the returned
// error: notifications are UX, not ledger state.
func (s *WebhookService) notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error {
	payload, _ := json.Marshal(data)
	err := s.repo.CreateNotification(ctx, s.repo.DB(ctx), &model.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Data:    string(payload),
	})
	if err != nil {
		s.log.Warnw("create notification", "user", userID, "type", kind, "error", err)
	}
	return err
}
