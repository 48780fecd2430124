// Package issuance turns a verified payment into tickets exactly once:
// inventory decrement, QR minting, ledger entry and emails all run off
// a single queue behind a per-order lock.
package issuance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"accezzpay/internal/config"
	"accezzpay/internal/errs"
	"accezzpay/internal/kafka"
	"accezzpay/internal/ledger"
	"accezzpay/internal/logger"
	"accezzpay/internal/models"
	"accezzpay/internal/notify"
	"accezzpay/internal/utils"

	"github.com/google/uuid"
)

// maxMintAttempts bounds ticket-code regeneration on unique-constraint
// collisions.
const maxMintAttempts = 3

type DBLayer interface {
	GetOrderWithRelations(orderID string) (*models.OrderWithRelations, error)
	UpdateOrderStatus(orderID string, status models.OrderStatus) error
	UpdatePaymentStatusByReference(reference string, status models.PaymentStatus, raw map[string]any) error
	AdjustTicketInventory(ticketTypeID string, quantity int) error
	CreateTickets(tickets []models.Ticket) error
	GetLedgerEntryForOrder(orderID string) (*models.LedgerEntry, error)
	CreateLedgerEntry(entry models.LedgerEntry) error
	GetOrganizerByID(id string) (*models.Organizer, error)
	GetProductWithTicketTypes(productID string) (*models.ProductWithTicketTypes, error)
}

// Minter abstracts QR generation so tests can skip the PNG work.
type Minter interface {
	Mint(orderID, ticketID, ticketCode string) (url string, png []byte, err error)
}

type Engine struct {
	DB         DBLayer
	Minter     Minter
	Mailer     notify.Mailer
	Kafka      kafka.Publisher
	Lock       OrderLock
	Fees       config.FeeConfig
	CodePrefix string

	// GenerateCode mints ticket codes; overridable so collision
	// handling can be exercised deterministically.
	GenerateCode func(prefix string) string

	log *logger.Logger
}

func NewEngine(db DBLayer, minter Minter, mailer notify.Mailer, publisher kafka.Publisher,
	lock OrderLock, fees config.FeeConfig, codePrefix string, log *logger.Logger) *Engine {
	return &Engine{
		DB:           db,
		Minter:       minter,
		Mailer:       mailer,
		Kafka:        publisher,
		Lock:         lock,
		Fees:         fees,
		CodePrefix:   codePrefix,
		GenerateCode: utils.GenerateTicketCode,
		log:          log,
	}
}

// Issue fulfils a confirmed payment. Safe to call any number of times
// for the same order: replays converge on the state the first call
// produced and send nothing twice.
func (e *Engine) Issue(orderID string) error {
	// Step 1: Take the per-order lock so webhook and redirect replays
	// on other replicas wait their turn
	acquired, err := e.Lock.Acquire(orderID)
	if err != nil {
		return fmt.Errorf("failed to acquire issuance lock: %w", err)
	}
	if !acquired {
		e.log.LogIssuance(orderID, "Issuance already in progress elsewhere, skipping")
		return nil
	}
	defer func() { _ = e.Lock.Release(orderID) }()

	// Step 2: Load the full order picture
	relations, err := e.DB.GetOrderWithRelations(orderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	order := relations.Order

	// Step 3: Never fulfil dead orders
	if order.Status == models.OrderStatusRefunded || order.Status == models.OrderStatusCancelled {
		e.log.LogIssuance(orderID, "Order is "+string(order.Status)+", skipping issuance")
		return nil
	}

	// Step 4: Existing-tickets guard. A replay lands here and only
	// repairs whatever the first run left unfinished.
	if len(relations.Tickets) > 0 {
		e.log.LogIssuance(orderID, fmt.Sprintf("Tickets already issued (%d), converging state", len(relations.Tickets)))
		if err := e.markPaid(&order, relations.Payments); err != nil {
			return err
		}
		_, err := e.ensureLedger(order)
		return err
	}

	// Step 5: Mark the order and its payment paid before any
	// fulfilment side effects
	if err := e.markPaid(&order, relations.Payments); err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	// Step 6: Atomic inventory decrement. Losing the race here means
	// money moved for seats that no longer exist.
	if err := e.DB.AdjustTicketInventory(order.TicketTypeID, order.Quantity); err != nil {
		var insufficient *errs.InsufficientInventoryError
		if errors.As(err, &insufficient) {
			e.log.Error("ISSUANCE", fmt.Sprintf("Order %s paid but only %d of %d seats left", orderID, insufficient.Available, insufficient.Requested))
			return &ReconciliationError{OrderID: orderID, Reason: insufficient.Error()}
		}
		return fmt.Errorf("failed to decrement inventory: %w", err)
	}

	// Step 7: Mint codes and QR images, then batch insert. A
	// ticket_code collision regenerates the whole batch with fresh
	// codes instead of failing a paid order.
	var tickets []models.Ticket
	var attachments []notify.Attachment
	for attempt := 1; ; attempt++ {
		tickets = make([]models.Ticket, 0, order.Quantity)
		attachments = make([]notify.Attachment, 0, order.Quantity)
		for i := 0; i < order.Quantity; i++ {
			ticketID := uuid.New().String()
			code := e.GenerateCode(e.CodePrefix)

			qrURL, png, err := e.Minter.Mint(orderID, ticketID, code)
			if err != nil {
				e.restock(order)
				return fmt.Errorf("failed to mint QR: %w", err)
			}

			tickets = append(tickets, models.Ticket{
				ID:            ticketID,
				OrderID:       orderID,
				ProductID:     order.ProductID,
				TicketTypeID:  order.TicketTypeID,
				TicketCode:    code,
				QRURL:         qrURL,
				Status:        models.TicketStatusUnused,
				AttendeeName:  order.BuyerName,
				AttendeeEmail: order.BuyerEmail,
				AttendeePhone: order.BuyerPhone,
				IssuedAt:      time.Now(),
			})
			attachments = append(attachments, notify.Attachment{
				Filename:    code + ".png",
				ContentType: "image/png",
				Data:        png,
			})
		}

		// Step 8: Batch insert, all-or-nothing
		err := e.DB.CreateTickets(tickets)
		if err == nil {
			break
		}
		if isUniqueViolation(err) && attempt < maxMintAttempts {
			e.log.Warn("ISSUANCE", fmt.Sprintf("Ticket code collision for order %s, regenerating batch (attempt %d)", orderID, attempt))
			continue
		}
		e.restock(order)
		return fmt.Errorf("failed to insert tickets: %w", err)
	}

	// Step 9: Ledger entry, guarded by the unique order_id constraint
	entry, err := e.ensureLedger(order)
	if err != nil {
		return err
	}

	e.log.LogIssuance(orderID, fmt.Sprintf("✅ Issued %d ticket(s)", len(tickets)))

	// Step 10: Downstream notifications. The order is fulfilled at
	// this point, so failures are logged, not returned.
	if err := e.Kafka.PublishTicketsIssued(order, tickets); err != nil {
		e.log.Error("KAFKA", fmt.Sprintf("Failed to publish tickets issued for %s: %v", orderID, err))
	}
	e.sendEmails(order, tickets, entry, attachments)

	return nil
}

// markPaid transitions an order and its payment attempt to paid.
// Mock-path orders arrive here still pending; webhook orders are
// already paid and this is a no-op.
func (e *Engine) markPaid(order *models.Order, payments []models.Payment) error {
	if order.Status == models.OrderStatusPaid {
		return nil
	}
	if err := e.DB.UpdateOrderStatus(order.ID, models.OrderStatusPaid); err != nil {
		return err
	}
	order.Status = models.OrderStatusPaid

	reference := order.GatewayReference
	if reference == "" && len(payments) > 0 {
		reference = payments[len(payments)-1].GatewayReference
	}
	if reference != "" {
		if err := e.DB.UpdatePaymentStatusByReference(reference, models.PaymentStatusPaid, nil); err != nil {
			e.log.Error("ISSUANCE", fmt.Sprintf("Failed to mark payment paid for order %s: %v", order.ID, err))
		}
	}
	return nil
}

func (e *Engine) restock(order models.Order) {
	if err := e.DB.AdjustTicketInventory(order.TicketTypeID, -order.Quantity); err != nil {
		e.log.Error("ISSUANCE", fmt.Sprintf("Failed to restock %d seat(s) for order %s: %v", order.Quantity, order.ID, err))
	}
}

// isUniqueViolation matches the unique-constraint wording of both
// Postgres ("duplicate key value violates unique constraint") and
// sqlite ("UNIQUE constraint failed").
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

// ensureLedger creates the fee breakdown if this is the first pass.
func (e *Engine) ensureLedger(order models.Order) (*models.LedgerEntry, error) {
	existing, err := e.DB.GetLedgerEntryForOrder(order.ID)
	if err == nil {
		return existing, nil
	}
	var notFound *errs.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, fmt.Errorf("failed to check ledger: %w", err)
	}

	split := ledger.ComputeLedger(order.TotalMinor, e.Fees.GatewayRate(), e.Fees.PlatformRate())
	entry := models.LedgerEntry{
		ID:                uuid.New().String(),
		OrderID:           order.ID,
		PlatformFeeMinor:  split.PlatformFee,
		GatewayFeeMinor:   split.GatewayFee,
		OrganizerNetMinor: split.OrganizerNet,
		Currency:          order.Currency,
		Status:            models.LedgerStatusPending,
		CreatedAt:         time.Now(),
	}
	if err := e.DB.CreateLedgerEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to create ledger entry: %w", err)
	}
	e.log.LogIssuance(order.ID, fmt.Sprintf("Ledger recorded: platform=%d gateway=%d organizer=%d",
		split.PlatformFee, split.GatewayFee, split.OrganizerNet))
	return &entry, nil
}

func (e *Engine) sendEmails(order models.Order, tickets []models.Ticket, entry *models.LedgerEntry, attachments []notify.Attachment) {
	productInfo, err := e.DB.GetProductWithTicketTypes(order.ProductID)
	if err != nil {
		e.log.Error("MAIL", fmt.Sprintf("Failed to load product for order %s emails: %v", order.ID, err))
		return
	}
	product := productInfo.Product

	subject, html := notify.BuildPurchaseReceipt(order, product, tickets)
	if err := e.Mailer.Send(order.BuyerEmail, subject, html, attachments); err != nil {
		e.log.Error("MAIL", fmt.Sprintf("Failed to send receipt for order %s: %v", order.ID, err))
	}

	organizer, err := e.DB.GetOrganizerByID(order.OrganizerID)
	if err != nil {
		e.log.Error("MAIL", fmt.Sprintf("Failed to load organizer for order %s: %v", order.ID, err))
		return
	}
	if entry == nil {
		return
	}
	subject, html = notify.BuildOrganizerSaleAlert(*organizer, order, *entry, product)
	if err := e.Mailer.Send(organizer.Email, subject, html, nil); err != nil {
		e.log.Error("MAIL", fmt.Sprintf("Failed to send sale alert for order %s: %v", order.ID, err))
	}
}
