package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateReference builds a gateway transaction reference for an
// order. References stay unique per order since the order ID is a
// UUID.
func GenerateReference(orderID string) string {
	return fmt.Sprintf("order_%s", orderID)
}

// GenerateMockReference marks references minted without a gateway
// round trip so the success page can tell them apart.
func GenerateMockReference(orderID string) string {
	return fmt.Sprintf("mock_%s", orderID)
}

// GenerateTicketCode mints a ticket code like "ACCEZZ-9F3A21BC".
// Collision probability is negligible; the caller still regenerates
// on a unique violation.
func GenerateTicketCode(prefix string) string {
	suffix := strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
	return fmt.Sprintf("%s-%s", prefix, suffix)
}

// GeneratePaymentID creates a payment row identifier in the
// "pay_<ts>_<rand>" form.
func GeneratePaymentID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("pay_%d_%06d", timestamp, randomNum.Int64())
}

// GenerateSubaccountCode synthesizes a settlement subaccount code.
// Only ever used in mock mode.
func GenerateSubaccountCode() string {
	return fmt.Sprintf("SUB_%s", uuid.NewString()[:8])
}

// GenerateSplitCode synthesizes a split code. Only ever used in mock
// mode.
func GenerateSplitCode() string {
	return fmt.Sprintf("SPL_%s", uuid.NewString()[:8])
}
