// Package errs defines the error types handlers branch on when
// mapping failures to HTTP responses. Gateway-specific errors live in
// the gateway package; the issuance package defines its own
// reconciliation error.
package errs

import "fmt"

// ValidationError marks bad caller input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError marks a missing order, product, organizer or ticket
// type.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InsufficientInventoryError aborts a checkout before any order side
// effects when the requested quantity exceeds availability.
type InsufficientInventoryError struct {
	TicketTypeID string
	Requested    int
	Available    int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("ticket type %s has %d available, %d requested",
		e.TicketTypeID, e.Available, e.Requested)
}

// SignatureError rejects a webhook whose HMAC does not match. No
// state is changed when it is returned.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "invalid webhook signature: " + e.Reason
}
