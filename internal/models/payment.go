package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentStatusInitialized PaymentStatus = "initialized"
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusPaid        PaymentStatus = "paid"
	PaymentStatusFailed      PaymentStatus = "failed"
	PaymentStatusRefunded    PaymentStatus = "refunded"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
)

// Payment is one gateway attempt tied to an order. The schema allows
// several rows per order for retries; in practice there is one.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID               string         `json:"id" bun:"id,pk"`
	OrderID          string         `json:"order_id" bun:"order_id"`
	Gateway          string         `json:"gateway" bun:"gateway"`
	GatewayReference string         `json:"gateway_reference" bun:"gateway_reference"`
	AmountMinor      int64          `json:"amount_minor" bun:"amount_minor"`
	Currency         string         `json:"currency" bun:"currency"`
	Status           PaymentStatus  `json:"status" bun:"status"`
	RawResponse      map[string]any `json:"raw_response,omitempty" bun:"raw_response,type:jsonb,nullzero"`
	CreatedAt        time.Time      `json:"created_at" bun:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" bun:"updated_at,nullzero"`
}
