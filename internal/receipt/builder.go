// Package receipt renders the paid-order PDF streamed by the receipt
// endpoint and attached to the buyer email.
package receipt

import (
	"bytes"
	"fmt"
	"image/png"

	"accezzpay/internal/models"
	"accezzpay/internal/notify"

	"github.com/signintech/gopdf"
	"github.com/skip2/go-qrcode"
)

// Builder produces the receipt document. Handlers depend on this
// interface so tests can swap in a stub.
type Builder interface {
	Build(order models.Order, product models.Product, tickets []models.Ticket, entry *models.LedgerEntry) (data []byte, filename string, err error)
}

type PDFBuilder struct {
	FontPath string
}

// NewPDFBuilder expects a TTF font on disk; gopdf cannot draw text
// without one.
func NewPDFBuilder(fontPath string) *PDFBuilder {
	if fontPath == "" {
		fontPath = "./fonts/DejaVuSans.ttf"
	}
	return &PDFBuilder{FontPath: fontPath}
}

func (b *PDFBuilder) Build(order models.Order, product models.Product, tickets []models.Ticket, entry *models.LedgerEntry) ([]byte, string, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("dejavu", b.FontPath); err != nil {
		return nil, "", fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("dejavu", "", 14); err != nil {
		return nil, "", fmt.Errorf("failed to set font: %w", err)
	}

	addHeader(pdf, product)

	pdf.SetY(80)
	addOrderInfo(pdf, order, entry)

	pdf.SetY(pdf.GetY() + 20)
	addTickets(pdf, tickets)

	addFooter(pdf)

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to write PDF: %w", err)
	}

	filename := fmt.Sprintf("receipt_%s.pdf", order.ID)
	return buf.Bytes(), filename, nil
}

func addHeader(pdf *gopdf.GoPdf, product models.Product) {
	pdf.SetX(40)
	pdf.SetY(30)
	pdf.Cell(nil, "PAYMENT RECEIPT")
	pdf.Br(20)
	pdf.SetX(40)
	pdf.Cell(nil, product.Title)
}

func addOrderInfo(pdf *gopdf.GoPdf, order models.Order, entry *models.LedgerEntry) {
	info := []struct {
		Label string
		Value string
	}{
		{"Order", order.ID},
		{"Reference", order.GatewayReference},
		{"Buyer", order.BuyerName},
		{"Email", order.BuyerEmail},
		{"Status", string(order.Status)},
		{"Total", notify.FormatAmount(order.TotalMinor, order.Currency)},
		{"Paid At", order.UpdatedAt.Format("2006-01-02 15:04")},
	}
	if entry != nil {
		info = append(info, struct {
			Label string
			Value string
		}{"Organizer Payout", notify.FormatAmount(entry.OrganizerNetMinor, order.Currency)})
	}

	for _, item := range info {
		pdf.SetX(40)
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(20)
	}
}

func addTickets(pdf *gopdf.GoPdf, tickets []models.Ticket) {
	pdf.SetX(40)
	pdf.Cell(nil, fmt.Sprintf("Tickets (%d):", len(tickets)))
	pdf.Br(24)

	for _, ticket := range tickets {
		pdf.SetX(40)
		pdf.Cell(nil, ticket.TicketCode)
		pdf.Br(8)
		addQRCode(pdf, ticket.TicketCode)
		pdf.Br(16)
	}
}

func addQRCode(pdf *gopdf.GoPdf, ticketCode string) {
	qrPNG, err := qrcode.Encode(ticketCode, qrcode.Medium, 256)
	if err != nil {
		pdf.Cell(nil, "Failed to render QR code")
		return
	}
	img, err := png.Decode(bytes.NewReader(qrPNG))
	if err != nil {
		pdf.Cell(nil, "Failed to load QR code")
		return
	}

	rect := &gopdf.Rect{W: 100, H: 100}
	if err := pdf.ImageFrom(img, 40, pdf.GetY(), rect); err != nil {
		pdf.Cell(nil, "Failed to draw QR code")
		return
	}
	pdf.SetY(pdf.GetY() + 100)
}

func addFooter(pdf *gopdf.GoPdf) {
	pdf.SetY(800)
	pdf.SetX(40)
	pdf.Cell(nil, "Keep this receipt. Each QR code admits one person and is valid once.")
}
