package dto

import (
	"time"
)

// Event types published to the event topic
const (
	EventTypeTicketValidated       = "ticket.validated"
	EventTypeBookingReconciled     = "booking.reconciled"
	EventTypeTicketResendRequested = "ticket.resend_requested"
)

// Event is a domain event with a partition key
type Event interface {
	Key() string
	Type() string
}

// TicketValidatedEvent is published after a ticket is admitted
type TicketValidatedEvent struct {
	EventType   string    `json:"event_type"`
	TicketID    string    `json:"ticket_id"`
	TicketKind  string    `json:"ticket_kind"`
	BookingID   string    `json:"booking_id,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	ValidatorID string    `json:"validator_id"`
	Source      string    `json:"source,omitempty"`
	LogID       string    `json:"log_id"`
	ValidatedAt time.Time `json:"validated_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// Key returns the Kafka message key for partitioning
func (e *TicketValidatedEvent) Key() string {
	return e.TicketID
}

// Type returns the event type
func (e *TicketValidatedEvent) Type() string {
	return EventTypeTicketValidated
}

// BookingReconciledEvent is published after an operator applies a reconciliation action
type BookingReconciledEvent struct {
	EventType     string    `json:"event_type"`
	BookingID     string    `json:"booking_id"`
	OrderID       string    `json:"order_id,omitempty"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Changed       bool      `json:"changed"`
	OperatorID    string    `json:"operator_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Key returns the Kafka message key for partitioning
func (e *BookingReconciledEvent) Key() string {
	return e.BookingID
}

// Type returns the event type
func (e *BookingReconciledEvent) Type() string {
	return EventTypeBookingReconciled
}

// TicketResendRequestedEvent asks the delivery service to send a booking's tickets again
type TicketResendRequestedEvent struct {
	EventType        string    `json:"event_type"`
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	EventID          string    `json:"event_id"`
	EventTitle       string    `json:"event_title,omitempty"`
	UserID           string    `json:"user_id"`
	CustomerName     string    `json:"customer_name,omitempty"`
	CustomerEmail    string    `json:"customer_email"`
	TicketIDs        []string  `json:"ticket_ids"`
	RequestedBy      string    `json:"requested_by,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Key returns the Kafka message key for partitioning
func (e *TicketResendRequestedEvent) Key() string {
	return e.BookingID
}

// Type returns the event type
func (e *TicketResendRequestedEvent) Type() string {
	return EventTypeTicketResendRequested
}
