package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

// BookingRepository defines the interface for booking data access.
// Lookups return nil, nil when nothing matches.
type BookingRepository interface {
	// Create inserts a booking with its tickets
	Create(ctx context.Context, booking *domain.Booking) error
	// GetByID retrieves a booking with its tickets
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// FindByEventUserTicket finds the booking of userID for eventID that contains ticketID
	FindByEventUserTicket(ctx context.Context, eventID, userID, ticketID string) (*domain.Booking, error)
	// GetByOrderID retrieves the booking correlated with a gateway order
	GetByOrderID(ctx context.Context, orderID string) (*domain.Booking, error)
	// SearchByCustomerName returns bookings carrying an order id whose customer name contains name, case-insensitively
	SearchByCustomerName(ctx context.Context, name string, limit int) ([]*domain.Booking, error)
	// ListPendingWithOrder returns pending bookings carrying an order id, oldest first
	ListPendingWithOrder(ctx context.Context, limit int) ([]*domain.Booking, error)
	// MarkTicketUsed flips one ticket to used only if it is still unused.
	// Returns domain.ErrAlreadyValidated when the conditional write matched nothing.
	MarkTicketUsed(ctx context.Context, bookingID, ticketID, validatedBy string, at time.Time) error
	// MarkPaid sets confirmed/paid and fills payment_date only when it is empty
	MarkPaid(ctx context.Context, bookingID string, at time.Time) error
	// MarkFailed sets cancelled/failed
	MarkFailed(ctx context.Context, bookingID string, at time.Time) error
}
