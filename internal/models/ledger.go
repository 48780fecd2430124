package models

import (
	"time"

	"github.com/uptrace/bun"
)

type LedgerStatus string

const (
	LedgerStatusPending   LedgerStatus = "pending"
	LedgerStatusSettled   LedgerStatus = "settled"
	LedgerStatusRefunded  LedgerStatus = "refunded"
	LedgerStatusCancelled LedgerStatus = "cancelled"
)

// LedgerEntry is the fee/settlement breakdown for one paid order.
// Invariant: PlatformFeeMinor + GatewayFeeMinor + OrganizerNetMinor
// equals the order total.
type LedgerEntry struct {
	bun.BaseModel `bun:"table:transactions_ledger"`

	ID                string       `json:"id" bun:"id,pk"`
	OrderID           string       `json:"order_id" bun:"order_id,unique"`
	PlatformFeeMinor  int64        `json:"platform_fee_minor" bun:"platform_fee_minor"`
	GatewayFeeMinor   int64        `json:"gateway_fee_minor" bun:"gateway_fee_minor"`
	OrganizerNetMinor int64        `json:"organizer_net_minor" bun:"organizer_net_minor"`
	Currency          string       `json:"currency" bun:"currency"`
	Status            LedgerStatus `json:"status" bun:"status"`
	CreatedAt         time.Time    `json:"created_at" bun:"created_at"`
}
