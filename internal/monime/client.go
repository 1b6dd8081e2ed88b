package monime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutDestination addresses an external payout. Exactly one of the
// detail fields is set, matching Provider.
type PayoutDestination struct {
	Provider      string `json:"provider"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	WalletID      string `json:"walletId,omitempty"`
	ProviderID    string `json:"providerId,omitempty"`
}

// PayoutRequest is the payload for payout creation.
type PayoutRequest struct {
	Amount      decimal.Decimal   `json:"-"`
	Currency    string            `json:"-"`
	Destination PayoutDestination `json:"destination"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Payout is the provider's record of an initiated transfer.
type Payout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PayoutCreator creates payouts at the provider. The webhook engine and
// the cashout flow depend on this interface, not on the HTTP client.
type PayoutCreator interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
}

// Client talks to the Monime API.
type Client struct {
	baseURL string
	apiKey  string
	spaceID string
	http    *http.Client
}

// NewClient builds a Client. baseURL defaults to the production API.
func NewClient(baseURL, apiKey, spaceID string) *Client {
	if baseURL == "" {
		baseURL = "https://api.monime.io"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		spaceID: spaceID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

var _ PayoutCreator = (*Client)(nil)

type payoutWire struct {
	Amount struct {
		Currency string `json:"currency"`
		Value    string `json:"value"`
	} `json:"amount"`
	Destination PayoutDestination `json:"destination"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreatePayout initiates an external transfer and returns the provider
// payout id used to correlate later payout.* webhooks.
func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	var wire payoutWire
	wire.Amount.Currency = req.Currency
	wire.Amount.Value = req.Amount.String()
	wire.Destination = req.Destination
	wire.Metadata = req.Metadata

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal payout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Monime-Space-Id", c.spaceID)
	httpReq.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payout response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create payout: status %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Result Payout `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payout response: %w", err)
	}
	if out.Result.ID == "" {
		return nil, fmt.Errorf("create payout: empty payout id in response")
	}
	return &out.Result, nil
}
