package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accezzpay/internal/errs"
	"accezzpay/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// CreateOrder → insert new order
func (d *DB) CreateOrder(order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(context.Background())
	return err
}

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("order", id)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderByReference → fetch one order by its gateway reference
func (d *DB) GetOrderByReference(reference string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("gateway_reference = ?", reference).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("order", reference)
		}
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus → move an order through its lifecycle
func (d *DB) UpdateOrderStatus(orderID string, status models.OrderStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", orderID).
		Exec(context.Background())
	return err
}

// UpdateOrderReference → attach the gateway reference and redirect URL
// once the checkout session exists
func (d *DB) UpdateOrderReference(orderID, reference, redirectURL string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("gateway_reference = ?", reference).
		Set("redirect_url = ?", redirectURL).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", orderID).
		Exec(context.Background())
	return err
}

// GetOrderWithRelations loads an order plus its tickets, payments and
// ledger rows in one call. Issuance and the receipt endpoint both need
// the full picture.
func (d *DB) GetOrderWithRelations(orderID string) (*models.OrderWithRelations, error) {
	order, err := d.GetOrderByID(orderID)
	if err != nil {
		return nil, err
	}

	tickets, err := d.ListTicketsForOrder(orderID)
	if err != nil {
		return nil, err
	}

	var payments []models.Payment
	err = d.Bun.NewSelect().
		Model(&payments).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}

	var ledger []models.LedgerEntry
	err = d.Bun.NewSelect().
		Model(&ledger).
		Where("order_id = ?", orderID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}

	return &models.OrderWithRelations{
		Order:    *order,
		Tickets:  tickets,
		Payments: payments,
		Ledger:   ledger,
	}, nil
}

// ---------------- PAYMENTS ----------------

// CreatePaymentRecord → insert a gateway attempt row
func (d *DB) CreatePaymentRecord(payment models.Payment) error {
	_, err := d.Bun.NewInsert().Model(&payment).Exec(context.Background())
	return err
}

// UpdatePaymentStatusByReference → settle or fail the attempt matching
// a gateway reference, keeping the raw gateway snapshot when provided
func (d *DB) UpdatePaymentStatusByReference(reference string, status models.PaymentStatus, raw map[string]any) error {
	query := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("gateway_reference = ?", reference)
	if raw != nil {
		query = query.Set("raw_response = ?", raw)
	}
	_, err := query.Exec(context.Background())
	return err
}

// ---------------- TICKETS ----------------

// ListTicketsForOrder → fetch all tickets linked to an order
func (d *DB) ListTicketsForOrder(orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("issued_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// CreateTickets → batch insert, all-or-nothing
func (d *DB) CreateTickets(tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&tickets).Exec(context.Background())
	return err
}

// UpdateTicketsStatusForOrder → void or restore every ticket on an
// order in one statement (refund path)
func (d *DB) UpdateTicketsStatusForOrder(orderID string, status models.TicketStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", status).
		Where("order_id = ?", orderID).
		Exec(context.Background())
	return err
}

// GetTicketByCode → fetch one ticket by its unique code
func (d *DB) GetTicketByCode(code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_code = ?", code).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("ticket", code)
		}
		return nil, err
	}
	return &ticket, nil
}

// ---------------- INVENTORY ----------------

// AdjustTicketInventory decrements quantity_available by the given
// amount in a single conditional UPDATE. A read-then-write here would
// oversell under concurrent checkouts; the WHERE clause is the guard.
// Pass a negative quantity to restock (refunds).
func (d *DB) AdjustTicketInventory(ticketTypeID string, quantity int) error {
	result, err := d.Bun.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity_available = quantity_available - ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", ticketTypeID).
		Where("quantity_available >= ?", quantity).
		Exec(context.Background())
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		available := 0
		_ = d.Bun.NewSelect().
			Model((*models.TicketType)(nil)).
			Column("quantity_available").
			Where("id = ?", ticketTypeID).
			Limit(1).
			Scan(context.Background(), &available)
		return &errs.InsufficientInventoryError{
			TicketTypeID: ticketTypeID,
			Requested:    quantity,
			Available:    available,
		}
	}
	return nil
}

// ---------------- LEDGER ----------------

// CreateLedgerEntry → insert the fee breakdown for a paid order. The
// unique constraint on order_id makes a second insert fail, which is
// the idempotency guard against double-crediting.
func (d *DB) CreateLedgerEntry(entry models.LedgerEntry) error {
	_, err := d.Bun.NewInsert().Model(&entry).Exec(context.Background())
	return err
}

// GetLedgerEntryForOrder → fetch the ledger row for an order, nil
// error with NotFound when absent
func (d *DB) GetLedgerEntryForOrder(orderID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("ledger entry", orderID)
		}
		return nil, err
	}
	return &entry, nil
}

// UpdateLedgerStatus → settle, refund or cancel a ledger entry
func (d *DB) UpdateLedgerStatus(orderID string, status models.LedgerStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.LedgerEntry)(nil)).
		Set("status = ?", status).
		Where("order_id = ?", orderID).
		Exec(context.Background())
	return err
}

// ---------------- WEBHOOK EVENTS ----------------

// RecordWebhookEvent → append an inbound event before any processing
func (d *DB) RecordWebhookEvent(event models.WebhookEvent) error {
	_, err := d.Bun.NewInsert().Model(&event).Exec(context.Background())
	return err
}

// MarkWebhookProcessed → flip the processed flag once handling is done
func (d *DB) MarkWebhookProcessed(eventID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.WebhookEvent)(nil)).
		Set("processed = ?", true).
		Set("processed_at = ?", time.Now()).
		Where("id = ?", eventID).
		Exec(context.Background())
	return err
}

// ---------------- ORGANIZERS ----------------

// GetOrganizerByID → fetch one organizer by its ID
func (d *DB) GetOrganizerByID(id string) (*models.Organizer, error) {
	var organizer models.Organizer
	err := d.Bun.NewSelect().
		Model(&organizer).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("organizer", id)
		}
		return nil, err
	}
	return &organizer, nil
}

// UpdateOrganizerSettlement → store (or clear) the gateway subaccount
// and split codes after provisioning
func (d *DB) UpdateOrganizerSettlement(organizerID, subaccountCode, splitCode string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Organizer)(nil)).
		Set("subaccount_code = ?", subaccountCode).
		Set("split_code = ?", splitCode).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", organizerID).
		Exec(context.Background())
	return err
}

// ---------------- PRODUCTS ----------------

// GetProductWithTicketTypes → fetch a product and its inventory units
func (d *DB) GetProductWithTicketTypes(productID string) (*models.ProductWithTicketTypes, error) {
	var product models.Product
	err := d.Bun.NewSelect().
		Model(&product).
		Where("id = ?", productID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("product", productID)
		}
		return nil, err
	}

	var ticketTypes []models.TicketType
	err = d.Bun.NewSelect().
		Model(&ticketTypes).
		Where("product_id = ?", productID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}

	return &models.ProductWithTicketTypes{
		Product:     product,
		TicketTypes: ticketTypes,
	}, nil
}

// GetTicketType → fetch one inventory unit by its ID
func (d *DB) GetTicketType(id string) (*models.TicketType, error) {
	var ticketType models.TicketType
	err := d.Bun.NewSelect().
		Model(&ticketType).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("ticket type", id)
		}
		return nil, err
	}
	return &ticketType, nil
}
