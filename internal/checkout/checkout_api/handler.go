package checkout_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"accezzpay/internal/checkout"
	"accezzpay/internal/errs"
	"accezzpay/internal/gateway"
	"accezzpay/internal/logger"
	"accezzpay/internal/models"
	"accezzpay/internal/utils"
)

type Handler struct {
	Service *checkout.Service
	Logger  *logger.Logger
}

func NewHandler(service *checkout.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// InitializePayment handles POST /payments/initialize.
func (h *Handler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("InitializePayment: failed to decode body: %v", err))
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	h.Logger.Info("API", fmt.Sprintf("InitializePayment: product=%s ticket_type=%s qty=%d", req.ProductID, req.TicketTypeID, req.Quantity))

	session, err := h.Service.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		status, message := mapCheckoutError(err)
		h.Logger.Error("API", fmt.Sprintf("InitializePayment: %v", err))
		writeJSON(w, status, utils.ErrorResponse(message, err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Checkout session created", session))
}

func mapCheckoutError(err error) (int, string) {
	var validation *errs.ValidationError
	var notFound *errs.NotFoundError
	var insufficient *errs.InsufficientInventoryError
	var timeout *gateway.TimeoutError
	var apiErr *gateway.APIError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "Invalid checkout request"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "Resource not found"
	case errors.As(err, &insufficient):
		return http.StatusConflict, "Not enough tickets available"
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, "Payment gateway timed out"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "Payment gateway rejected the request"
	default:
		return http.StatusInternalServerError, "Failed to create checkout session"
	}
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
