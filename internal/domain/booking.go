package domain

import "time"

// BookingStatus values
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusRefunded  = "refunded"
)

// PaymentStatus values
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Booking groups the tickets bought in one order.
// PaymentStatus paid implies Status confirmed; the reverse does not hold.
type Booking struct {
	ID               string       `json:"id"`
	BookingReference string       `json:"booking_reference"`
	EventID          string       `json:"event_id"`
	EventTitle       string       `json:"event_title"`
	EventDate        CalendarDate `json:"event_date"`
	EventTime        string       `json:"event_time,omitempty"`
	EventVenue       string       `json:"event_venue,omitempty"`
	UserID           string       `json:"user_id"`
	CustomerName     string       `json:"customer_name"`
	CustomerEmail    string       `json:"customer_email"`
	CustomerPhone    string       `json:"customer_phone,omitempty"`
	Tickets          []Ticket     `json:"tickets"`
	Status           string       `json:"status"`
	PaymentStatus    string       `json:"payment_status"`
	OrderID          string       `json:"order_id,omitempty"`
	TransactionID    string       `json:"transaction_id,omitempty"`
	TotalAmount      float64      `json:"total_amount"`
	Currency         string       `json:"currency"`
	PaymentDate      *time.Time   `json:"payment_date,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Ticket is one admission inside a booking. IsUsed flips false to true once and never back.
type Ticket struct {
	TicketID    string     `json:"ticket_id"`
	TicketName  string     `json:"ticket_name"`
	Price       float64    `json:"price"`
	IsUsed      bool       `json:"is_used"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ValidatedBy string     `json:"validated_by,omitempty"`
}

// FindTicket returns the ticket entry with ticketID, or nil
func (b *Booking) FindTicket(ticketID string) *Ticket {
	for i := range b.Tickets {
		if b.Tickets[i].TicketID == ticketID {
			return &b.Tickets[i]
		}
	}
	return nil
}

// IsConfirmedAndPaid reports whether the booking is fully settled locally
func (b *Booking) IsConfirmedAndPaid() bool {
	return b.Status == BookingStatusConfirmed && b.PaymentStatus == PaymentStatusPaid
}

// IsPending reports whether either the booking or its payment is still pending
func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending || b.PaymentStatus == PaymentStatusPending
}

// Clone returns a deep copy
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Tickets = make([]Ticket, len(b.Tickets))
	for i, t := range b.Tickets {
		c.Tickets[i] = t
		if t.UsedAt != nil {
			u := *t.UsedAt
			c.Tickets[i].UsedAt = &u
		}
	}
	if b.PaymentDate != nil {
		p := *b.PaymentDate
		c.PaymentDate = &p
	}
	return &c
}

// GiftTicket delivery status values
const (
	GiftStatusPending = "pending"
	GiftStatusSent    = "sent"
	GiftStatusFailed  = "failed"
)

// GiftTicketPrefix distinguishes gift ticket ids from booking ticket ids
const GiftTicketPrefix = "GIFT-"

// GiftTicket is a standalone ticket sent to a recipient.
// It can only be validated once its delivery status is sent.
type GiftTicket struct {
	ID             string       `json:"id"`
	TicketID       string       `json:"ticket_id"`
	RecipientName  string       `json:"recipient_name"`
	RecipientEmail string       `json:"recipient_email"`
	Status         string       `json:"status"`
	IsValidated    bool         `json:"is_validated"`
	ValidatedAt    *time.Time   `json:"validated_at,omitempty"`
	ValidatedBy    string       `json:"validated_by,omitempty"`
	EventID        string       `json:"event_id,omitempty"`
	EventTitle     string       `json:"event_title"`
	EventDate      CalendarDate `json:"event_date"`
	EventTime      string       `json:"event_time,omitempty"`
	EventVenue     string       `json:"event_venue,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Clone returns a deep copy
func (g *GiftTicket) Clone() *GiftTicket {
	if g == nil {
		return nil
	}
	c := *g
	if g.ValidatedAt != nil {
		v := *g.ValidatedAt
		c.ValidatedAt = &v
	}
	return &c
}
