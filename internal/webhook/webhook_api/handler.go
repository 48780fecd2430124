package webhook_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"accezzpay/internal/errs"
	"accezzpay/internal/logger"
	"accezzpay/internal/models"
	"accezzpay/internal/receipt"
	"accezzpay/internal/utils"
	"accezzpay/internal/webhook"

	"github.com/go-chi/chi/v5"
)

// SignatureHeader is where Paystack-style gateways put the HMAC.
const SignatureHeader = "x-paystack-signature"

// ReceiptSource loads everything the receipt PDF needs.
type ReceiptSource interface {
	GetOrderWithRelations(orderID string) (*models.OrderWithRelations, error)
	GetProductWithTicketTypes(productID string) (*models.ProductWithTicketTypes, error)
}

type Handler struct {
	Service *webhook.Service
	Store   ReceiptSource
	Builder receipt.Builder
	Logger  *logger.Logger
}

func NewHandler(service *webhook.Service, store ReceiptSource, builder receipt.Builder, log *logger.Logger) *Handler {
	return &Handler{Service: service, Store: store, Builder: builder, Logger: log}
}

// HandleGatewayWebhook handles POST /webhooks/gateway. The body must
// be read raw; the signature covers the exact bytes on the wire.
func (h *Handler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Webhook: failed to read body: %v", err))
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unreadable body", err.Error()))
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if err := h.Service.HandleWebhook(r.Context(), rawBody, signature); err != nil {
		var sigErr *errs.SignatureError
		var validation *errs.ValidationError
		switch {
		case errors.As(err, &sigErr):
			h.Logger.Warn("API", "Webhook rejected: bad signature")
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid signature", sigErr.Error()))
		case errors.As(err, &validation):
			h.Logger.Warn("API", fmt.Sprintf("Webhook rejected: %v", err))
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid payload", err.Error()))
		default:
			h.Logger.Error("API", fmt.Sprintf("Webhook processing failed: %v", err))
			writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to process webhook", err.Error()))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// GetReceipt handles GET /orders/{reference}/receipt. When the
// webhook has not arrived yet it verifies the charge inline, so a
// buyer coming straight from the gateway redirect still gets a PDF.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	h.Logger.Info("API", fmt.Sprintf("GetReceipt: reference=%s", reference))

	order, err := h.Service.VerifyRedirect(r.Context(), reference)
	if err != nil {
		var notFound *errs.NotFoundError
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetReceipt: verification failed: %v", err))
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("Payment not verified", err.Error()))
		return
	}

	if order.Status != models.OrderStatusPaid {
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("Order not paid",
			fmt.Sprintf("order is %s", order.Status)))
		return
	}

	relations, err := h.Store.GetOrderWithRelations(order.ID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetReceipt: failed to load order: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load order", err.Error()))
		return
	}
	productInfo, err := h.Store.GetProductWithTicketTypes(order.ProductID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetReceipt: failed to load product: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load product", err.Error()))
		return
	}

	var entry *models.LedgerEntry
	if len(relations.Ledger) > 0 {
		entry = &relations.Ledger[0]
	}

	pdf, filename, err := h.Builder.Build(relations.Order, productInfo.Product, relations.Tickets, entry)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetReceipt: failed to build PDF: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to build receipt", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
