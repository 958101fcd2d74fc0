package domain

import (
	"strings"
	"time"
)

// Caller roles
const (
	RoleAdmin     = "admin"
	RoleValidator = "validator"
	RoleCustomer  = "customer"
)

// Caller is the authenticated identity performing an operation, supplied by the boundary layer
type Caller struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// IsAuthenticated reports whether the caller carries an identity
func (c Caller) IsAuthenticated() bool {
	return strings.TrimSpace(c.ID) != ""
}

// CanValidate reports whether the caller holds a role allowed to admit tickets
func (c Caller) CanValidate() bool {
	role := strings.ToLower(c.Role)
	return role == RoleAdmin || role == RoleValidator
}

// DisplayName returns Name, falling back to ID
func (c Caller) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// ScanSource is how a payload reached the service
type ScanSource string

const (
	ScanSourceQR      ScanSource = "qr"
	ScanSourceScanner ScanSource = "scanner"
	ScanSourceManual  ScanSource = "manual"
)

// DefaultAntiReplayTTL replaces a missing or non-positive anti-replay TTL
const DefaultAntiReplayTTL = 10 * time.Second

// AntiReplayTTLOrDefault returns ttl, or DefaultAntiReplayTTL when ttl is not positive.
// A zero TTL would turn a replay claim into a permanent lock.
func AntiReplayTTLOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultAntiReplayTTL
	}
	return ttl
}

// ValidationPolicy is an immutable snapshot of the admission policy, read once per call
type ValidationPolicy struct {
	QREnabled            bool           `json:"qr_enabled"`
	ScannerEnabled       bool           `json:"scanner_enabled"`
	RequireValidatorRole bool           `json:"require_validator_role"`
	ScanTimeWindowDays   int            `json:"scan_time_window_days"`
	AntiReplayEnabled    bool           `json:"anti_replay_enabled"`
	AntiReplayTTL        time.Duration  `json:"anti_replay_ttl"`
	Location             *time.Location `json:"-"`
}

// WindowEnabled reports whether the event-date window is enforced. A negative window disables it.
func (p ValidationPolicy) WindowEnabled() bool {
	return p.ScanTimeWindowDays >= 0
}

// Today returns the calendar day of now in the policy's time zone
func (p ValidationPolicy) Today(now time.Time) CalendarDate {
	return CalendarDateOf(now, p.Location)
}

// WithinWindow reports whether |eventDate - today| <= ScanTimeWindowDays
func (p ValidationPolicy) WithinWindow(eventDate, today CalendarDate) bool {
	if !p.WindowEnabled() || eventDate.IsZero() {
		return true
	}
	return absInt(today.DaysUntil(eventDate)) <= p.ScanTimeWindowDays
}

// SourceEnabled reports whether scans from source are accepted
func (p ValidationPolicy) SourceEnabled(source ScanSource) bool {
	switch source {
	case ScanSourceQR:
		return p.QREnabled
	case ScanSourceScanner:
		return p.ScannerEnabled
	default:
		return true
	}
}

// ValidationType of a log entry
type ValidationType string

const (
	ValidationTypeEntry   ValidationType = "entry"
	ValidationTypeExit    ValidationType = "exit"
	ValidationTypeGeneral ValidationType = "general"
)

// ParseValidationType defaults unknown or empty values to entry
func ParseValidationType(s string) ValidationType {
	switch ValidationType(strings.ToLower(s)) {
	case ValidationTypeExit:
		return ValidationTypeExit
	case ValidationTypeGeneral:
		return ValidationTypeGeneral
	default:
		return ValidationTypeEntry
	}
}

// ValidationStatus of a log entry
type ValidationStatus string

const (
	ValidationStatusValidated ValidationStatus = "validated"
	ValidationStatusRejected  ValidationStatus = "rejected"
	ValidationStatusFlagged   ValidationStatus = "flagged"
)

// RejectionReason explains a soft rejection
type RejectionReason string

const (
	ReasonAlreadyValidated RejectionReason = "already_validated"
	ReasonWrongDate        RejectionReason = "wrong_date"
	ReasonOutsideWindow    RejectionReason = "outside_window"
	ReasonReplayDetected   RejectionReason = "replay_detected"
)

// LogStatus maps a rejection to the status written to the validation log
func (r RejectionReason) LogStatus() ValidationStatus {
	if r == ReasonReplayDetected {
		return ValidationStatusFlagged
	}
	return ValidationStatusRejected
}

// DeviceInfo describes where a scan came from
type DeviceInfo struct {
	DeviceID  string `json:"device_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ValidationLog is an append-only record of one admission decision
type ValidationLog struct {
	ID             string           `json:"id"`
	ValidatorID    string           `json:"validator_id"`
	ValidatorName  string           `json:"validator_name"`
	TicketID       string           `json:"ticket_id"`
	BookingID      string           `json:"booking_id,omitempty"`
	EventID        string           `json:"event_id,omitempty"`
	EventTitle     string           `json:"event_title,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
	ValidationType ValidationType   `json:"validation_type"`
	Status         ValidationStatus `json:"status"`
	Notes          string           `json:"notes,omitempty"`
	Source         ScanSource       `json:"source,omitempty"`
	Device         DeviceInfo       `json:"device"`
	CreatedAt      time.Time        `json:"created_at"`
}

// TicketKind distinguishes booking tickets from gift tickets
type TicketKind string

const (
	TicketKindBooking TicketKind = "booking"
	TicketKindGift    TicketKind = "gift"
)

// TicketInfo is the ticket view returned with a decision
type TicketInfo struct {
	Kind             TicketKind `json:"kind"`
	TicketID         string     `json:"ticket_id"`
	TicketName       string     `json:"ticket_name,omitempty"`
	BookingID        string     `json:"booking_id,omitempty"`
	BookingReference string     `json:"booking_reference,omitempty"`
	HolderName       string     `json:"holder_name,omitempty"`
	IsUsed           bool       `json:"is_used"`
	UsedAt           *time.Time `json:"used_at,omitempty"`
	ValidatedBy      string     `json:"validated_by,omitempty"`
}

// EventInfo is the event view returned with a decision
type EventInfo struct {
	EventID string       `json:"event_id,omitempty"`
	Title   string       `json:"title"`
	Date    CalendarDate `json:"date"`
	Time    string       `json:"time,omitempty"`
	Venue   string       `json:"venue,omitempty"`
}

// ValidationResult is the outcome of a scan that reached a decision.
// Success false with a Reason is a soft rejection, not an error.
type ValidationResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Reason  RejectionReason `json:"reason,omitempty"`
	Ticket  *TicketInfo     `json:"ticket,omitempty"`
	Event   *EventInfo      `json:"event,omitempty"`
	LogID   string          `json:"log_id,omitempty"`
}

// BookingTicketInfo builds the ticket view of one booking ticket
func BookingTicketInfo(b *Booking, t *Ticket) *TicketInfo {
	info := &TicketInfo{
		Kind:             TicketKindBooking,
		TicketID:         t.TicketID,
		TicketName:       t.TicketName,
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		HolderName:       b.CustomerName,
		IsUsed:           t.IsUsed,
		ValidatedBy:      t.ValidatedBy,
	}
	if t.UsedAt != nil {
		u := *t.UsedAt
		info.UsedAt = &u
	}
	return info
}

// BookingEventInfo builds the event view of a booking
func BookingEventInfo(b *Booking) *EventInfo {
	return &EventInfo{EventID: b.EventID, Title: b.EventTitle, Date: b.EventDate, Time: b.EventTime, Venue: b.EventVenue}
}

// GiftTicketInfo builds the ticket view of a gift ticket
func GiftTicketInfo(g *GiftTicket) *TicketInfo {
	info := &TicketInfo{
		Kind:        TicketKindGift,
		TicketID:    g.TicketID,
		TicketName:  "Gift ticket",
		HolderName:  g.RecipientName,
		IsUsed:      g.IsValidated,
		ValidatedBy: g.ValidatedBy,
	}
	if g.ValidatedAt != nil {
		v := *g.ValidatedAt
		info.UsedAt = &v
	}
	return info
}

// GiftEventInfo builds the event view of a gift ticket
func GiftEventInfo(g *GiftTicket) *EventInfo {
	return &EventInfo{EventID: g.EventID, Title: g.EventTitle, Date: g.EventDate, Time: g.EventTime, Venue: g.EventVenue}
}
