package domain

import (
	"testing"
	"time"
)

func TestBooking_FindTicket(t *testing.T) {
	b := &Booking{Tickets: []Ticket{{TicketID: "T1"}, {TicketID: "T2"}}}

	if got := b.FindTicket("T2"); got == nil || got.TicketID != "T2" {
		t.Errorf("FindTicket(T2) = %v", got)
	}
	if got := b.FindTicket("T3"); got != nil {
		t.Errorf("FindTicket(T3) = %v, want nil", got)
	}

	b.FindTicket("T1").IsUsed = true
	if !b.Tickets[0].IsUsed {
		t.Error("FindTicket should return a pointer into the ticket list")
	}
}

func TestBooking_StatusHelpers(t *testing.T) {
	tests := []struct {
		name          string
		status        string
		paymentStatus string
		settled       bool
		pending       bool
	}{
		{"confirmed and paid", BookingStatusConfirmed, PaymentStatusPaid, true, false},
		{"confirmed awaiting payment", BookingStatusConfirmed, PaymentStatusPending, false, true},
		{"pending", BookingStatusPending, PaymentStatusPending, false, true},
		{"pending with failed payment", BookingStatusPending, PaymentStatusFailed, false, true},
		{"cancelled", BookingStatusCancelled, PaymentStatusFailed, false, false},
		{"refunded", BookingStatusRefunded, PaymentStatusRefunded, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Booking{Status: tt.status, PaymentStatus: tt.paymentStatus}
			if got := b.IsConfirmedAndPaid(); got != tt.settled {
				t.Errorf("IsConfirmedAndPaid() = %v, want %v", got, tt.settled)
			}
			if got := b.IsPending(); got != tt.pending {
				t.Errorf("IsPending() = %v, want %v", got, tt.pending)
			}
		})
	}
}

func TestBooking_Clone(t *testing.T) {
	usedAt := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	paidAt := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	b := &Booking{
		ID:          "B1",
		Tickets:     []Ticket{{TicketID: "T1", IsUsed: true, UsedAt: &usedAt}},
		PaymentDate: &paidAt,
	}

	c := b.Clone()
	c.Tickets[0].IsUsed = false
	*c.Tickets[0].UsedAt = time.Time{}
	*c.PaymentDate = time.Time{}

	if !b.Tickets[0].IsUsed || !b.Tickets[0].UsedAt.Equal(usedAt) || !b.PaymentDate.Equal(paidAt) {
		t.Error("Clone shares state with the original")
	}

	var nilBooking *Booking
	if nilBooking.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestGiftTicket_Clone(t *testing.T) {
	at := time.Now()
	g := &GiftTicket{TicketID: "GIFT-1", IsValidated: true, ValidatedAt: &at}

	c := g.Clone()
	*c.ValidatedAt = time.Time{}

	if !g.ValidatedAt.Equal(at) {
		t.Error("Clone shares ValidatedAt with the original")
	}
}
