package model

import "time"

// ProviderMonime is the only payment provider currently wired in.
const ProviderMonime = "monime"

// WebhookEvent is the audit record for a processed provider event.
// The unique (provider, event_id) index is the idempotency gate: the
// insert either wins and the event is handled, or conflicts and the
// delivery is acknowledged as a duplicate. Rows are never updated or
// deleted.
type WebhookEvent struct {
	ID        uint64    `gorm:"primaryKey"`
	Provider  string    `gorm:"size:32;not null;index:uniq_provider_event,unique"`
	EventID   string    `gorm:"size:128;not null;index:uniq_provider_event,unique"`
	EventName string    `gorm:"size:64;not null"`
	ObjectID  string    `gorm:"size:128"`
	Payload   string    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
