// Package webhook is the verification side of the pipeline: inbound
// gateway events and the redirect-verification fallback both land
// here, and both feed the same issuance queue.
package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"accezzpay/internal/errs"
	"accezzpay/internal/gateway"
	"accezzpay/internal/kafka"
	"accezzpay/internal/logger"
	"accezzpay/internal/models"
	"accezzpay/internal/notify"

	"github.com/google/uuid"
)

type DBLayer interface {
	RecordWebhookEvent(event models.WebhookEvent) error
	MarkWebhookProcessed(eventID string) error
	GetOrderByReference(reference string) (*models.Order, error)
	GetOrderByID(id string) (*models.Order, error)
	UpdateOrderStatus(orderID string, status models.OrderStatus) error
	UpdatePaymentStatusByReference(reference string, status models.PaymentStatus, raw map[string]any) error
	UpdateLedgerStatus(orderID string, status models.LedgerStatus) error
	UpdateTicketsStatusForOrder(orderID string, status models.TicketStatus) error
	AdjustTicketInventory(ticketTypeID string, quantity int) error
	GetProductWithTicketTypes(productID string) (*models.ProductWithTicketTypes, error)
}

type GatewayAPI interface {
	VerifySignature(rawBody []byte, signatureHeader string) bool
	Verify(ctx context.Context, reference string) (*gateway.Verification, error)
	MockMode() bool
	Name() string
}

type IssuanceQueue interface {
	Enqueue(orderID string) error
}

// Issuer is the synchronous path used by redirect verification, where
// the buyer is waiting on the receipt.
type Issuer interface {
	Issue(orderID string) error
}

type Service struct {
	DB      DBLayer
	Gateway GatewayAPI
	Queue   IssuanceQueue
	Issuer  Issuer
	Mailer  notify.Mailer
	Kafka   kafka.Publisher
	log     *logger.Logger
}

func NewService(db DBLayer, gw GatewayAPI, queue IssuanceQueue, issuer Issuer,
	mailer notify.Mailer, publisher kafka.Publisher, log *logger.Logger) *Service {
	return &Service{DB: db, Gateway: gw, Queue: queue, Issuer: issuer, Mailer: mailer, Kafka: publisher, log: log}
}

// HandleWebhook verifies, durably logs and dispatches one inbound
// event. A SignatureError or parse error means nothing was written;
// any error after the event row exists is swallowed so the gateway
// gets its 200 and stops retrying.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	// Step 1: Reject forgeries before any state changes
	if !s.Gateway.VerifySignature(rawBody, signature) {
		return &errs.SignatureError{Reason: "HMAC mismatch"}
	}

	// Step 2: Decode the envelope
	event, err := ParseEvent(rawBody)
	if err != nil {
		return errs.Validation("payload", err.Error())
	}

	// Step 3: Durable event log. This is the point of no return: once
	// the row exists the gateway gets a 200 whatever happens next.
	row := models.WebhookEvent{
		ID:        uuid.New().String(),
		Gateway:   s.Gateway.Name(),
		EventType: event.RawType,
		Payload:   rawBody,
		Signature: signature,
		CreatedAt: time.Now(),
	}
	if err := s.DB.RecordWebhookEvent(row); err != nil {
		return fmt.Errorf("failed to log webhook event: %w", err)
	}

	s.log.LogWebhook(event.RawType, event.Reference, "Event logged")

	// Step 4: Dispatch
	switch event.Type {
	case EventChargeSuccess:
		s.handleChargeSuccess(event)
	case EventChargeRefund:
		s.handleRefund(event)
	default:
		s.log.LogWebhook(event.RawType, event.Reference, "Unknown event type, logged only")
	}

	// Step 5: Flag the row; a failure here only costs observability
	if err := s.DB.MarkWebhookProcessed(row.ID); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to mark event %s processed: %v", row.ID, err))
	}
	return nil
}

func (s *Service) handleChargeSuccess(event *Event) {
	order, err := s.DB.GetOrderByReference(event.Reference)
	if err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("charge.success for unknown reference %s: %v", event.Reference, err))
		return
	}

	if order.Status == models.OrderStatusRefunded || order.Status == models.OrderStatusCancelled {
		s.log.LogWebhook(event.RawType, event.Reference, "Order is "+string(order.Status)+", ignoring late success")
		return
	}

	// The paid transition belongs to this path, not the queue task: a
	// full queue must not leave a confirmed charge on a pending order.
	if order.Status == models.OrderStatusPending {
		if err := s.DB.UpdateOrderStatus(order.ID, models.OrderStatusPaid); err != nil {
			s.log.Error("WEBHOOK", fmt.Sprintf("Failed to mark order %s paid: %v", order.ID, err))
			return
		}
		order.Status = models.OrderStatusPaid
	}

	if err := s.DB.UpdatePaymentStatusByReference(event.Reference, models.PaymentStatusPaid, event.Raw); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to update payment for %s: %v", event.Reference, err))
	}

	if err := s.Kafka.PublishOrderPaid(*order); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish order paid for %s: %v", order.ID, err))
	}

	// Fulfilment happens on the queue; the engine handles replays
	if err := s.Queue.Enqueue(order.ID); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to enqueue order %s: %v", order.ID, err))
	}
}

func (s *Service) handleRefund(event *Event) {
	order, err := s.DB.GetOrderByReference(event.Reference)
	if err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("refund for unknown reference %s: %v", event.Reference, err))
		return
	}

	// Only a paid order can move to refunded
	if order.Status != models.OrderStatusPaid {
		s.log.LogWebhook(event.RawType, event.Reference, "Refund for non-paid order ("+string(order.Status)+"), ignoring")
		return
	}

	if err := s.DB.UpdateOrderStatus(order.ID, models.OrderStatusRefunded); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to mark order %s refunded: %v", order.ID, err))
		return
	}
	if err := s.DB.UpdatePaymentStatusByReference(event.Reference, models.PaymentStatusRefunded, event.Raw); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to update payment for %s: %v", event.Reference, err))
	}
	if err := s.DB.UpdateLedgerStatus(order.ID, models.LedgerStatusRefunded); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to update ledger for %s: %v", order.ID, err))
	}
	if err := s.DB.UpdateTicketsStatusForOrder(order.ID, models.TicketStatusCancelled); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to void tickets for %s: %v", order.ID, err))
	}
	// Seats go back on sale
	if err := s.DB.AdjustTicketInventory(order.TicketTypeID, -order.Quantity); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to restock inventory for %s: %v", order.ID, err))
	}

	if err := s.Kafka.PublishOrderRefunded(*order); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish refund for %s: %v", order.ID, err))
	}

	// The buyer hears about the refund right away, not via the queue
	s.sendRefundNotice(*order)

	s.log.LogWebhook(event.RawType, event.Reference, "✅ Order refunded, tickets voided")
}

func (s *Service) sendRefundNotice(order models.Order) {
	productInfo, err := s.DB.GetProductWithTicketTypes(order.ProductID)
	if err != nil {
		s.log.Error("MAIL", fmt.Sprintf("Failed to load product for refund email %s: %v", order.ID, err))
		return
	}
	subject, html := notify.BuildRefundNotice(order, productInfo.Product)
	if err := s.Mailer.Send(order.BuyerEmail, subject, html, nil); err != nil {
		s.log.Error("MAIL", fmt.Sprintf("Failed to send refund notice for %s: %v", order.ID, err))
	}
}

// VerifyRedirect is the fallback for buyers landing on the success
// page before (or instead of) the webhook. It confirms the charge with
// the gateway and fulfils synchronously so the receipt is ready when
// the handler asks for it.
func (s *Service) VerifyRedirect(ctx context.Context, reference string) (*models.Order, error) {
	order, err := s.DB.GetOrderByReference(reference)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusPaid {
		return order, nil
	}
	if order.Status != models.OrderStatusPending {
		return order, nil
	}

	// Mock references carry no gateway state to verify; payment is
	// assumed successful the moment the redirect lands.
	verified := false
	if strings.HasPrefix(reference, "mock_") && s.Gateway.MockMode() {
		verified = true
	} else if !s.Gateway.MockMode() {
		verification, err := s.Gateway.Verify(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("gateway verification failed: %w", err)
		}
		verified = verification.Success
		if verified {
			if err := s.DB.UpdatePaymentStatusByReference(reference, models.PaymentStatusPaid, verification.Raw); err != nil {
				s.log.Error("WEBHOOK", fmt.Sprintf("Failed to update payment for %s: %v", reference, err))
			}
		}
	}

	if !verified {
		return order, nil
	}

	if err := s.Issuer.Issue(order.ID); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Inline issuance failed for %s: %v", order.ID, err))
		return nil, err
	}

	return s.DB.GetOrderByID(order.ID)
}
