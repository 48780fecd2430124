package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketStatusUnused    TicketStatus = "unused"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Ticket rows are created only by the issuance engine, one per seat
// purchased, never twice for the same order.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            string       `json:"id" bun:"id,pk"`
	OrderID       string       `json:"order_id" bun:"order_id"`
	ProductID     string       `json:"product_id" bun:"product_id"`
	TicketTypeID  string       `json:"ticket_type_id" bun:"ticket_type_id"`
	TicketCode    string       `json:"ticket_code" bun:"ticket_code,unique"`
	QRURL         string       `json:"qr_url,omitempty" bun:"qr_url,nullzero"`
	Status        TicketStatus `json:"status" bun:"status"`
	AttendeeName  string       `json:"attendee_name,omitempty" bun:"attendee_name,nullzero"`
	AttendeeEmail string       `json:"attendee_email,omitempty" bun:"attendee_email,nullzero"`
	AttendeePhone string       `json:"attendee_phone,omitempty" bun:"attendee_phone,nullzero"`
	IssuedAt      time.Time    `json:"issued_at" bun:"issued_at"`
}
