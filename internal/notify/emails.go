package notify

import (
	"fmt"
	"strings"

	"accezzpay/internal/models"
)

// BuildPurchaseReceipt renders the buyer-facing email listing every
// ticket code with its QR link.
func BuildPurchaseReceipt(order models.Order, product models.Product, tickets []models.Ticket) (subject, html string) {
	subject = fmt.Sprintf("🎟 Your tickets for %s", product.Title)

	var rows strings.Builder
	for _, ticket := range tickets {
		rows.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 8px; border-bottom: 1px solid #eee; font-family: monospace; font-size: 16px;">%s</td>
				<td style="padding: 8px; border-bottom: 1px solid #eee;"><a href="%s" style="color: #FF6600;">View QR</a></td>
			</tr>`, ticket.TicketCode, ticket.QRURL))
	}

	html = fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 560px; margin: auto; border: 2px dashed #FF6600; border-radius: 10px; padding: 24px; background-color: #fff9f2;">
			<h2 style="color: #FF6600; text-align: center;">🎟 Your tickets are ready</h2>
			<p style="font-size: 15px; color: #555;">Hi %s,</p>
			<p style="font-size: 15px; color: #555;">Thanks for your purchase. Your order for <strong>%s</strong> is confirmed and paid (%s).</p>
			<table style="width: 100%%; border-collapse: collapse; margin-top: 16px;">
				<tr>
					<th style="text-align: left; padding: 8px; color: #888;">Ticket code</th>
					<th style="text-align: left; padding: 8px; color: #888;">QR</th>
				</tr>
				%s
			</table>
			<p style="font-size: 13px; color: #888; margin-top: 20px;">Present the QR code at the venue entrance. Each code admits one person and is valid once.</p>
		</div>`,
		order.BuyerName, product.Title, FormatAmount(order.TotalMinor, order.Currency), rows.String())

	return subject, html
}

// BuildOrganizerSaleAlert tells the organizer what they earned on a
// sale after fees.
func BuildOrganizerSaleAlert(organizer models.Organizer, order models.Order, entry models.LedgerEntry, product models.Product) (subject, html string) {
	subject = fmt.Sprintf("💰 New sale on %s", product.Title)

	html = fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 560px; margin: auto; border: 1px solid #ddd; border-radius: 10px; padding: 24px;">
			<h2 style="color: #2e7d32;">💰 New sale</h2>
			<p style="font-size: 15px; color: #555;">Hi %s, %s just bought tickets to <strong>%s</strong>.</p>
			<table style="width: 100%%; border-collapse: collapse; margin-top: 16px;">
				<tr><td style="padding: 6px; color: #888;">Gross</td><td style="padding: 6px; text-align: right;">%s</td></tr>
				<tr><td style="padding: 6px; color: #888;">Gateway fee</td><td style="padding: 6px; text-align: right;">-%s</td></tr>
				<tr><td style="padding: 6px; color: #888;">Platform fee</td><td style="padding: 6px; text-align: right;">-%s</td></tr>
				<tr><td style="padding: 6px; font-weight: bold; border-top: 1px solid #ddd;">Your payout</td><td style="padding: 6px; text-align: right; font-weight: bold; border-top: 1px solid #ddd;">%s</td></tr>
			</table>
		</div>`,
		organizer.Name, order.BuyerName, product.Title,
		FormatAmount(order.TotalMinor, order.Currency),
		FormatAmount(entry.GatewayFeeMinor, order.Currency),
		FormatAmount(entry.PlatformFeeMinor, order.Currency),
		FormatAmount(entry.OrganizerNetMinor, order.Currency))

	return subject, html
}

// BuildRefundNotice confirms to the buyer that their order was
// refunded and the tickets voided.
func BuildRefundNotice(order models.Order, product models.Product) (subject, html string) {
	subject = fmt.Sprintf("Refund processed for %s", product.Title)

	html = fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 560px; margin: auto; border: 1px solid #ddd; border-radius: 10px; padding: 24px;">
			<h2 style="color: #c62828;">Refund processed</h2>
			<p style="font-size: 15px; color: #555;">Hi %s,</p>
			<p style="font-size: 15px; color: #555;">Your order for <strong>%s</strong> has been refunded in full (%s). Any tickets on this order are no longer valid for entry.</p>
			<p style="font-size: 13px; color: #888;">Refunds usually reach your account within 5-7 business days, depending on your bank.</p>
		</div>`,
		order.BuyerName, product.Title, FormatAmount(order.TotalMinor, order.Currency))

	return subject, html
}

// FormatAmount renders a minor-unit amount as "NGN 10,000.00".
func FormatAmount(minor int64, currency string) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}

	major := minor / 100
	cents := minor % 100

	digits := fmt.Sprintf("%d", major)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%s %s.%02d", sign, currency, grouped.String(), cents)
}
