// Package checkout turns a buy request into a pending order and a
// gateway redirect. It never issues tickets; that belongs to the
// issuance queue after payment is verified.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accezzpay/internal/config"
	"accezzpay/internal/errs"
	"accezzpay/internal/gateway"
	"accezzpay/internal/logger"
	"accezzpay/internal/models"
	"accezzpay/internal/utils"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateOrder(order models.Order) error
	UpdateOrderStatus(orderID string, status models.OrderStatus) error
	UpdateOrderReference(orderID, reference, redirectURL string) error
	CreatePaymentRecord(payment models.Payment) error
	GetOrganizerByID(id string) (*models.Organizer, error)
	UpdateOrganizerSettlement(organizerID, subaccountCode, splitCode string) error
	GetProductWithTicketTypes(productID string) (*models.ProductWithTicketTypes, error)
}

type GatewayAPI interface {
	Initialize(ctx context.Context, params gateway.InitializeParams) (*gateway.InitializeResult, error)
	CreateSubaccount(ctx context.Context, params gateway.SubaccountParams) (string, error)
	CreateSplit(ctx context.Context, params gateway.SplitParams) (string, error)
	MockMode() bool
	Name() string
}

// IssuanceQueue is the handoff for mock-mode orders, which have no
// webhook to trigger fulfilment.
type IssuanceQueue interface {
	Enqueue(orderID string) error
}

type Service struct {
	DB      DBLayer
	Gateway GatewayAPI
	Queue   IssuanceQueue
	Config  *config.Config
	log     *logger.Logger
}

func NewService(db DBLayer, gw GatewayAPI, queue IssuanceQueue, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{DB: db, Gateway: gw, Queue: queue, Config: cfg, log: log}
}

// CreateCheckoutSession validates the request, provisions organizer
// settlement, writes the pending order and payment rows and opens the
// gateway session. The buyer's browser goes to the returned URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	// Step 1: Validate input before touching anything
	if err := s.validate(req); err != nil {
		return nil, err
	}

	// Step 2: Load organizer and catalog
	organizer, err := s.DB.GetOrganizerByID(req.OrganizerID)
	if err != nil {
		return nil, err
	}

	productInfo, err := s.DB.GetProductWithTicketTypes(req.ProductID)
	if err != nil {
		return nil, err
	}
	if productInfo.Product.OrganizerID != req.OrganizerID {
		return nil, errs.Validation("product_id", "product does not belong to this organizer")
	}

	ticketType, err := findTicketType(productInfo.TicketTypes, req.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if err := checkSalesWindow(ticketType); err != nil {
		return nil, err
	}
	if limit := perCustomerLimit(ticketType, s.Config.App.MaxTicketsPerBuy); req.Quantity > limit {
		return nil, errs.Validation("quantity", fmt.Sprintf("at most %d tickets per purchase", limit))
	}

	// Step 3: Inventory precheck. The authoritative decrement happens
	// at issuance; this only rejects obviously doomed checkouts early.
	if ticketType.QuantityAvailable < req.Quantity {
		return nil, &errs.InsufficientInventoryError{
			TicketTypeID: ticketType.ID,
			Requested:    req.Quantity,
			Available:    ticketType.QuantityAvailable,
		}
	}

	// Step 4: Make sure the organizer can get paid
	splitCode, err := s.ensureOrganizerSettlement(ctx, organizer)
	if err != nil {
		return nil, err
	}

	// Step 5: Pending order + payment rows
	total := ticketType.PriceMinor * int64(req.Quantity)
	order := models.Order{
		ID:           uuid.New().String(),
		OrganizerID:  req.OrganizerID,
		ProductID:    req.ProductID,
		TicketTypeID: ticketType.ID,
		Quantity:     req.Quantity,
		TotalMinor:   total,
		Currency:     ticketType.Currency,
		Status:       models.OrderStatusPending,
		BuyerName:    req.BuyerName,
		BuyerEmail:   req.BuyerEmail,
		BuyerPhone:   req.BuyerPhone,
		CreatedAt:    time.Now(),
	}
	if err := s.DB.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	reference := utils.GenerateReference(order.ID)
	if s.Gateway.MockMode() {
		reference = utils.GenerateMockReference(order.ID)
	}

	payment := models.Payment{
		ID:               utils.GeneratePaymentID(),
		OrderID:          order.ID,
		Gateway:          s.Gateway.Name(),
		GatewayReference: reference,
		AmountMinor:      total,
		Currency:         ticketType.Currency,
		Status:           models.PaymentStatusInitialized,
		CreatedAt:        time.Now(),
	}
	if err := s.DB.CreatePaymentRecord(payment); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	// Step 6: Open the gateway session
	callback := req.RedirectURL
	if callback == "" {
		callback = s.Config.App.BaseURL + "/checkout/success"
	}
	params := gateway.InitializeParams{
		Email:       req.BuyerEmail,
		AmountMinor: total,
		Reference:   reference,
		Currency:    ticketType.Currency,
		CallbackURL: callback,
		SplitCode:   splitCode,
		Metadata: map[string]any{
			"order_id":     order.ID,
			"organizer_id": req.OrganizerID,
			"product_id":   req.ProductID,
		},
	}

	result, err := s.Gateway.Initialize(ctx, params)
	if err != nil {
		// A stored split can go stale on the gateway side. Clear it,
		// provision a fresh one and retry once with that.
		var splitErr *gateway.InvalidSplitError
		if errors.As(err, &splitErr) {
			s.log.LogCheckout("initialize", order.ID, "Stored split rejected, re-provisioning settlement and retrying once")
			if clearErr := s.DB.UpdateOrganizerSettlement(organizer.ID, organizer.SubaccountCode, ""); clearErr != nil {
				s.log.Error("CHECKOUT", fmt.Sprintf("Failed to clear stale split for organizer %s: %v", organizer.ID, clearErr))
			}
			organizer.SplitCode = ""

			freshSplit, provisionErr := s.ensureOrganizerSettlement(ctx, organizer)
			if provisionErr != nil {
				// No replacement split; this charge settles to the
				// platform account rather than failing the buyer.
				s.log.Error("CHECKOUT", fmt.Sprintf("Failed to re-provision split for organizer %s: %v", organizer.ID, provisionErr))
				freshSplit = ""
			}
			params.SplitCode = freshSplit
			result, err = s.Gateway.Initialize(ctx, params)
		}
		if err != nil {
			if statusErr := s.DB.UpdateOrderStatus(order.ID, models.OrderStatusCancelled); statusErr != nil {
				s.log.Error("CHECKOUT", fmt.Sprintf("Failed to cancel order %s after gateway error: %v", order.ID, statusErr))
			}
			return nil, fmt.Errorf("gateway initialize failed: %w", err)
		}
	}

	if err := s.DB.UpdateOrderReference(order.ID, result.Reference, result.RedirectURL); err != nil {
		return nil, fmt.Errorf("failed to store gateway reference: %w", err)
	}

	// Step 7: Mock mode has no webhook; hand the order to issuance now
	if s.Gateway.MockMode() {
		if err := s.Queue.Enqueue(order.ID); err != nil {
			s.log.Error("CHECKOUT", fmt.Sprintf("Failed to enqueue mock order %s: %v", order.ID, err))
		}
	}

	s.log.LogCheckout("session", order.ID, fmt.Sprintf("Checkout session for %s x%d (%s)", ticketType.Name, req.Quantity, reference))

	return &models.CheckoutSession{
		RedirectURL: result.RedirectURL,
		Reference:   result.Reference,
		Amount:      total,
		Currency:    ticketType.Currency,
	}, nil
}

func (s *Service) validate(req models.CheckoutRequest) error {
	if req.OrganizerID == "" {
		return errs.Validation("organizer_id", "required")
	}
	if req.ProductID == "" {
		return errs.Validation("product_id", "required")
	}
	if req.TicketTypeID == "" {
		return errs.Validation("ticket_type_id", "required")
	}
	if req.BuyerName == "" {
		return errs.Validation("buyer_name", "required")
	}
	if req.BuyerEmail == "" || !strings.Contains(req.BuyerEmail, "@") {
		return errs.Validation("buyer_email", "a valid email is required")
	}
	if req.Quantity < 1 {
		return errs.Validation("quantity", "must be at least 1")
	}
	if req.Quantity > s.Config.App.MaxTicketsPerBuy {
		return errs.Validation("quantity", fmt.Sprintf("at most %d tickets per purchase", s.Config.App.MaxTicketsPerBuy))
	}
	return nil
}

// ensureOrganizerSettlement returns the split code to charge with,
// provisioning the subaccount and split on first use. Splits are only
// created when enabled; otherwise everything settles to the platform
// account and payouts happen off-ledger.
func (s *Service) ensureOrganizerSettlement(ctx context.Context, organizer *models.Organizer) (string, error) {
	if !s.Config.Gateway.EnableSplits {
		return "", nil
	}
	if organizer.SplitCode != "" {
		return organizer.SplitCode, nil
	}

	subaccount := organizer.SubaccountCode
	if subaccount == "" {
		if !organizer.HasBankDetails() && !s.Gateway.MockMode() {
			// Mock codes against live keys would silently swallow
			// organizer money, so this is a hard configuration error.
			return "", errs.Validation("organizer", "organizer has no bank details; cannot provision settlement")
		}

		code, err := s.Gateway.CreateSubaccount(ctx, gateway.SubaccountParams{
			BusinessName:     organizer.Name,
			SettlementBank:   organizer.BankDetails.BankCode,
			AccountNumber:    organizer.BankDetails.AccountNumber,
			PercentageCharge: 100 - s.Config.Fees.PlatformPercent,
			AccountName:      organizer.BankDetails.AccountName,
			Email:            organizer.Email,
		})
		if err != nil {
			return "", fmt.Errorf("failed to create subaccount: %w", err)
		}
		subaccount = code
	}

	splitCode, err := s.Gateway.CreateSplit(ctx, gateway.SplitParams{
		Name:            "accezzpay-" + organizer.ID,
		SubaccountCode:  subaccount,
		PercentageShare: 100 - s.Config.Fees.PlatformPercent,
		Currency:        "NGN",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create split: %w", err)
	}

	if err := s.DB.UpdateOrganizerSettlement(organizer.ID, subaccount, splitCode); err != nil {
		return "", fmt.Errorf("failed to store settlement codes: %w", err)
	}
	organizer.SubaccountCode = subaccount
	organizer.SplitCode = splitCode

	s.log.LogCheckout("settlement", organizer.ID, fmt.Sprintf("Provisioned settlement: %s / %s", subaccount, splitCode))
	return splitCode, nil
}

func findTicketType(ticketTypes []models.TicketType, id string) (*models.TicketType, error) {
	for i := range ticketTypes {
		if ticketTypes[i].ID == id {
			return &ticketTypes[i], nil
		}
	}
	return nil, errs.NotFound("ticket type", id)
}

func checkSalesWindow(ticketType *models.TicketType) error {
	now := time.Now()
	if !ticketType.SalesStart.IsZero() && now.Before(ticketType.SalesStart) {
		return errs.Validation("ticket_type_id", "sales have not started for this ticket type")
	}
	if !ticketType.SalesEnd.IsZero() && now.After(ticketType.SalesEnd) {
		return errs.Validation("ticket_type_id", "sales have ended for this ticket type")
	}
	return nil
}

func perCustomerLimit(ticketType *models.TicketType, maxPerBuy int) int {
	if ticketType.SalesLimitPerCustomer > 0 && ticketType.SalesLimitPerCustomer < maxPerBuy {
		return ticketType.SalesLimitPerCustomer
	}
	return maxPerBuy
}
