package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID          string    `json:"id" bun:"id,pk"`
	OrganizerID string    `json:"organizer_id" bun:"organizer_id"`
	Title       string    `json:"title" bun:"title"`
	Description string    `json:"description,omitempty" bun:"description,nullzero"`
	StartAt     time.Time `json:"start_at,omitempty" bun:"start_at,nullzero"`
	EndAt       time.Time `json:"end_at,omitempty" bun:"end_at,nullzero"`
	Venue       string    `json:"venue,omitempty" bun:"venue,nullzero"`
	CreatedAt   time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" bun:"updated_at,nullzero"`
}

// TicketType is the inventory unit within a product.
// quantity_available must stay within [0, quantity_total]; all
// decrements go through the store's conditional update, never
// read-then-write.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID                    string    `json:"id" bun:"id,pk"`
	ProductID             string    `json:"product_id" bun:"product_id"`
	Name                  string    `json:"name" bun:"name"`
	PriceMinor            int64     `json:"price_minor" bun:"price_minor"`
	Currency              string    `json:"currency" bun:"currency"`
	QuantityTotal         int       `json:"quantity_total" bun:"quantity_total"`
	QuantityAvailable     int       `json:"quantity_available" bun:"quantity_available"`
	SalesStart            time.Time `json:"sales_start,omitempty" bun:"sales_start,nullzero"`
	SalesEnd              time.Time `json:"sales_end,omitempty" bun:"sales_end,nullzero"`
	SalesLimitPerCustomer int       `json:"sales_limit_per_customer,omitempty" bun:"sales_limit_per_customer,nullzero"`
	CreatedAt             time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt             time.Time `json:"updated_at,omitempty" bun:"updated_at,nullzero"`
}

type ProductWithTicketTypes struct {
	Product     Product      `json:"product"`
	TicketTypes []TicketType `json:"ticket_types"`
}
