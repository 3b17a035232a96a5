package payments

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// UPI is the static payee advertisers pay into.
type UPI struct {
	ID        string `json:"upi_id"`
	PayeeName string `json:"payee_name"`
}

// URI returns the upi://pay deep link. amount is omitted when zero.
func (u UPI) URI(amount int64) string {
	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(escape(u.ID))
	b.WriteString("&pn=")
	b.WriteString(escape(u.PayeeName))
	if amount > 0 {
		fmt.Fprintf(&b, "&am=%d", amount)
	}
	b.WriteString("&cu=INR")
	return b.String()
}

// QRCode renders the deep link as a PNG of size x size pixels.
func (u UPI) QRCode(amount int64, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(u.URI(amount), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// escape query-escapes a value but keeps '@' readable and encodes spaces as %20, as UPI apps expect.
func escape(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "%40", "@")
	return strings.ReplaceAll(e, "+", "%20")
}
