package dto

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

// ValidateTicketRequest represents a scan submitted by a validator device
type ValidateTicketRequest struct {
	// Payload is the scanned content: a string (raw JSON or base64) or the JSON object itself
	Payload        json.RawMessage `json:"payload" binding:"required"`
	ValidationDate string          `json:"validation_date" binding:"omitempty"`
	Source         string          `json:"source" binding:"omitempty,oneof=qr scanner manual"`
	ValidationType string          `json:"validation_type" binding:"omitempty,oneof=entry exit general"`
}

// PayloadString returns the payload as the text a scanner would have read
func (r *ValidateTicketRequest) PayloadString() string {
	raw := bytes.TrimSpace(r.Payload)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// ParseValidationDate returns nil when no date was supplied
func (r *ValidateTicketRequest) ParseValidationDate() (*domain.CalendarDate, error) {
	if strings.TrimSpace(r.ValidationDate) == "" {
		return nil, nil
	}
	d, err := domain.ParseCalendarDate(r.ValidationDate)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ValidationLogResponse is one entry of a ticket's validation history
type ValidationLogResponse struct {
	ID             string `json:"id"`
	ValidatorID    string `json:"validator_id"`
	ValidatorName  string `json:"validator_name"`
	TicketID       string `json:"ticket_id"`
	BookingID      string `json:"booking_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	EventTitle     string `json:"event_title,omitempty"`
	ValidationType string `json:"validation_type"`
	Status         string `json:"status"`
	Notes          string `json:"notes,omitempty"`
	Source         string `json:"source,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ToValidationLogResponse converts a log entry for output
func ToValidationLogResponse(e *domain.ValidationLog) *ValidationLogResponse {
	return &ValidationLogResponse{
		ID:             e.ID,
		ValidatorID:    e.ValidatorID,
		ValidatorName:  e.ValidatorName,
		TicketID:       e.TicketID,
		BookingID:      e.BookingID,
		EventID:        e.EventID,
		EventTitle:     e.EventTitle,
		ValidationType: string(e.ValidationType),
		Status:         string(e.Status),
		Notes:          e.Notes,
		Source:         string(e.Source),
		DeviceID:       e.Device.DeviceID,
		IPAddress:      e.Device.IPAddress,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
}

// ValidationHistoryQuery filters a ticket's validation history
type ValidationHistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// SetDefaults sets default values
func (q *ValidationHistoryQuery) SetDefaults() {
	if q.Limit == 0 {
		q.Limit = 50
	}
}

// TicketQRQuery carries the booking fields embedded in a rendered ticket code
type TicketQRQuery struct {
	BookingID string `form:"booking_id"`
	EventID   string `form:"event_id"`
	UserID    string `form:"user_id"`
	Size      int    `form:"size" binding:"omitempty,min=64,max=1024"`
}
