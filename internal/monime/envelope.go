package monime

import "encoding/json"

// Webhook event names this service reacts to. Anything else is logged
// and acknowledged, so new provider events cannot break deliveries.
const (
	EventCheckoutSessionCompleted = "checkout_session.completed"
	EventPayoutCompleted          = "payout.completed"
	EventPayoutFailed             = "payout.failed"
	EventPayoutDelayed            = "payout.delayed"
)

// Envelope is the wire shape of a Monime webhook delivery.
type Envelope struct {
	Event  EventInfo              `json:"event"`
	Object ObjectInfo             `json:"object"`
	Data   map[string]interface{} `json:"data"`
}

type EventInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type ObjectInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ParseEnvelope decodes a raw webhook body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Metadata returns the flat string-keyed metadata map attached to the
// checkout session, or an empty map when absent or malformed.
func (e *Envelope) Metadata() map[string]string {
	out := make(map[string]string)
	raw, ok := e.Data["metadata"].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// FailureReason extracts the failure detail of a payout.failed event:
// message first, then code, then a generic fallback.
func (e *Envelope) FailureReason() string {
	detail, ok := e.Data["failureDetail"].(map[string]interface{})
	if !ok {
		return "payout failed"
	}
	if msg, ok := detail["message"].(string); ok && msg != "" {
		return msg
	}
	if code, ok := detail["code"].(string); ok && code != "" {
		return code
	}
	return "payout failed"
}
