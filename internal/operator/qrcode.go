package operator

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// PairingLink builds the client URL that carries code. An empty baseURL
// yields an empty link.
func PairingLink(baseURL, code string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/?pair=" + url.QueryEscape(code)
}

// QRDataURL renders link as a PNG QR code inside a data: URL.
func QRDataURL(link string) (string, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
