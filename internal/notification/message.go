package notification

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	orderdomain "github.com/novabot503/novacat/internal/order/domain"
)

// Operator messages are written for an Indonesian audience in WIB.
var wib = time.FixedZone("WIB", 7*60*60)

// PanelCreatedMessage renders the operator notification for a provisioned
// order. Buyer-supplied values are HTML-escaped.
func PanelCreatedMessage(order orderdomain.Order, resource orderdomain.ProvisionedResource, source string, at time.Time) string {
	header := "✅ PANEL BARU DIBUAT"
	if s := strings.TrimSpace(source); s != "" && !strings.EqualFold(s, "api") {
		header += " VIA " + strings.ToUpper(s)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n\n", header)
	fmt.Fprintf(&b, "<b>📅 Waktu:</b> %s\n", at.In(wib).Format("2/1/2006, 15.04.05"))
	fmt.Fprintf(&b, "<b>📧 Email:</b> %s\n", html.EscapeString(order.Contact))
	fmt.Fprintf(&b, "<b>📦 Tipe Panel:</b> %s\n", html.EscapeString(strings.ToUpper(string(order.Tier))))
	fmt.Fprintf(&b, "<b>💰 Harga:</b> Rp %s\n", formatRupiah(order.Amount))
	fmt.Fprintf(&b, "<b>🆔 Server ID:</b> <code>%d</code>\n", resource.ServerID)
	fmt.Fprintf(&b, "<b>🏷️ Nama Server:</b> %s\n", html.EscapeString(resource.ServerName))
	fmt.Fprintf(&b, "<b>💾 RAM:</b> %s\n", formatLimit(resource.Limits.MemoryMB, "MB"))
	fmt.Fprintf(&b, "<b>💿 Disk:</b> %s\n", formatLimit(resource.Limits.DiskMB, "MB"))
	fmt.Fprintf(&b, "<b>⚡ CPU:</b> %s", formatLimit(resource.Limits.CPUPercent, "%"))
	return b.String()
}

func formatLimit(value int, unit string) string {
	if value == 0 {
		return "Unlimited"
	}
	return strconv.Itoa(value) + unit
}

// formatRupiah groups thousands with dots, e.g. 10000 -> "10.000".
func formatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
