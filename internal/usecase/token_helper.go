package usecase

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// tokenBytes gives 256 bits of entropy per access token.
const tokenBytes = 32

// generateAccessToken returns a random, URL-safe, lowercase hex token.
func generateAccessToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// accessURL joins the public base URL and the redemption path.
func accessURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/access/" + token
}

// qrDataURL renders content as a PNG QR code embedded in a data URL.
func qrDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
