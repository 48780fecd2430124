package models

import (
	"time"

	"github.com/uptrace/bun"
)

// WebhookEvent is the append-only log of inbound gateway events.
// It exists for observability and replay diagnosis; idempotency is
// enforced inside the issuance engine, not here.
type WebhookEvent struct {
	bun.BaseModel `bun:"table:webhook_events"`

	ID          string    `json:"id" bun:"id,pk"`
	Gateway     string    `json:"gateway" bun:"gateway"`
	EventType   string    `json:"event_type" bun:"event_type"`
	Payload     []byte    `json:"payload" bun:"payload"`
	Signature   string    `json:"signature,omitempty" bun:"signature,nullzero"`
	Processed   bool      `json:"processed" bun:"processed"`
	CreatedAt   time.Time `json:"created_at" bun:"created_at"`
	ProcessedAt time.Time `json:"processed_at,omitempty" bun:"processed_at,nullzero"`
}
