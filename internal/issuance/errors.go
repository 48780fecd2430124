package issuance

import "fmt"

// ReconciliationError flags a paid order the engine could not fulfil,
// for example inventory drained between payment and issuance. The
// money has moved, so this needs a human rather than a retry.
type ReconciliationError struct {
	OrderID string
	Reason  string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("order %s needs reconciliation: %s", e.OrderID, e.Reason)
}
