package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID               string      `json:"id" bun:"id,pk"`
	OrganizerID      string      `json:"organizer_id" bun:"organizer_id"`
	ProductID        string      `json:"product_id" bun:"product_id"`
	TicketTypeID     string      `json:"ticket_type_id" bun:"ticket_type_id"`
	Quantity         int         `json:"quantity" bun:"quantity"`
	TotalMinor       int64       `json:"total_minor" bun:"total_minor"`
	Currency         string      `json:"currency" bun:"currency"`
	Status           OrderStatus `json:"status" bun:"status"`
	BuyerName        string      `json:"buyer_name" bun:"buyer_name"`
	BuyerEmail       string      `json:"buyer_email" bun:"buyer_email"`
	BuyerPhone       string      `json:"buyer_phone,omitempty" bun:"buyer_phone,nullzero"`
	GatewayReference string      `json:"gateway_reference,omitempty" bun:"gateway_reference,nullzero"`
	RedirectURL      string      `json:"redirect_url,omitempty" bun:"redirect_url,nullzero"`
	CreatedAt        time.Time   `json:"created_at" bun:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at,omitempty" bun:"updated_at,nullzero"`
}

// OrderWithRelations bundles an order with everything issuance needs
// in a single load.
type OrderWithRelations struct {
	Order    Order         `json:"order"`
	Tickets  []Ticket      `json:"tickets"`
	Payments []Payment     `json:"payments"`
	Ledger   []LedgerEntry `json:"ledger"`
}

type CheckoutRequest struct {
	OrganizerID  string `json:"organizer_id"`
	ProductID    string `json:"product_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	BuyerName    string `json:"buyer_name"`
	BuyerEmail   string `json:"buyer_email"`
	BuyerPhone   string `json:"buyer_phone,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

type CheckoutSession struct {
	RedirectURL string `json:"redirectUrl"`
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}
