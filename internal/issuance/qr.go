package issuance

import (
	"fmt"

	"accezzpay/internal/assets"

	"github.com/skip2/go-qrcode"
)

// QRMinter renders a ticket code into a PNG and stores it through the
// asset uploader.
type QRMinter struct {
	Uploader assets.Uploader
}

// Mint encodes the ticket code itself; scanners resolve it against the
// tickets table at the gate. The raw PNG comes back alongside the URL
// so the receipt email can attach it.
func (m *QRMinter) Mint(orderID, ticketID, ticketCode string) (string, []byte, error) {
	png, err := qrcode.Encode(ticketCode, qrcode.Medium, 256)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode QR for %s: %w", ticketCode, err)
	}
	url, err := m.Uploader.Upload(png, fmt.Sprintf("qr/%s/%s.png", orderID, ticketID))
	if err != nil {
		return "", nil, err
	}
	return url, png, nil
}
