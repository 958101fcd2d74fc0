// Package ticketcode encodes and decodes the payload carried by a ticket's QR code.
package ticketcode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

// DefaultImageSize is the PNG edge length in pixels
const DefaultImageSize = 256

var (
	ErrEmptyPayload   = errors.New("empty payload")
	ErrInvalidPayload = errors.New("payload is not a ticket code")
	ErrMissingTicket  = errors.New("payload has no ticketId")
)

// Payload is the decoded content of a scanned code
type Payload struct {
	TicketID  string `json:"ticketId"`
	EventID   string `json:"eventId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	BookingID string `json:"bookingId,omitempty"`
}

// IsGift reports whether the payload points at a gift ticket
func (p Payload) IsGift() bool {
	return strings.HasPrefix(p.TicketID, domain.GiftTicketPrefix)
}

// Decode accepts a raw JSON object or the same object base64 encoded (std, url, padded or not)
func Decode(raw string) (*Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyPayload
	}

	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := decodeBase64(raw)
		if err != nil {
			return nil, ErrInvalidPayload
		}
		data = bytes.TrimSpace(decoded)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	p.TicketID = strings.TrimSpace(p.TicketID)
	p.EventID = strings.TrimSpace(p.EventID)
	p.UserID = strings.TrimSpace(p.UserID)
	p.BookingID = strings.TrimSpace(p.BookingID)

	if p.TicketID == "" {
		return nil, ErrMissingTicket
	}
	return &p, nil
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Encode returns the base64url form of p, as printed on tickets
func Encode(p Payload) (string, error) {
	if strings.TrimSpace(p.TicketID) == "" {
		return "", ErrMissingTicket
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RenderPNG encodes p and renders it as a QR code image
func RenderPNG(p Payload, size int) ([]byte, error) {
	content, err := Encode(p)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultImageSize
	}

	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
