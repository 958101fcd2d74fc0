package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

// MemoryBookingRepository is an in-memory BookingRepository for tests and local runs.
// Writes hold the lock across check and set, matching the conditional updates of the Postgres store.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking
}

// NewMemoryBookingRepository creates an empty repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[string]*domain.Booking)}
}

// Create stores a copy of b
func (r *MemoryBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID] = b.Clone()
	return nil
}

// GetByID retrieves a booking by ID
func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bookings[id].Clone(), nil
}

// FindByEventUserTicket retrieves the booking owning ticketID for the event and user
func (r *MemoryBookingRepository) FindByEventUserTicket(ctx context.Context, eventID, userID, ticketID string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bookings {
		if b.EventID == eventID && b.UserID == userID && b.FindTicket(ticketID) != nil {
			return b.Clone(), nil
		}
	}
	return nil, nil
}

// GetByOrderID retrieves the newest booking with orderID
func (r *MemoryBookingRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Booking
	for _, b := range r.bookings {
		if b.OrderID == orderID && (found == nil || b.CreatedAt.After(found.CreatedAt)) {
			found = b
		}
	}
	return found.Clone(), nil
}

// SearchByCustomerName finds bookings with an order id by customer name substring
func (r *MemoryBookingRepository) SearchByCustomerName(ctx context.Context, name string, limit int) ([]*domain.Booking, error) {
	needle := strings.ToLower(name)
	matches := r.filter(func(b *domain.Booking) bool {
		return b.OrderID != "" && strings.Contains(strings.ToLower(b.CustomerName), needle)
	})
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return truncate(matches, limit), nil
}

// ListPendingWithOrder lists pending bookings with an order id, oldest first
func (r *MemoryBookingRepository) ListPendingWithOrder(ctx context.Context, limit int) ([]*domain.Booking, error) {
	matches := r.filter(func(b *domain.Booking) bool {
		return b.OrderID != "" && b.IsPending()
	})
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	return truncate(matches, limit), nil
}

// MarkTicketUsed flips a ticket to used if it is still unused
func (r *MemoryBookingRepository) MarkTicketUsed(ctx context.Context, bookingID, ticketID, validatedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[bookingID]
	if !ok {
		return domain.ErrAlreadyValidated
	}
	t := b.FindTicket(ticketID)
	if t == nil || t.IsUsed {
		return domain.ErrAlreadyValidated
	}

	usedAt := at
	t.IsUsed = true
	t.UsedAt = &usedAt
	t.ValidatedBy = validatedBy
	b.UpdatedAt = at
	return nil
}

// MarkPaid sets confirmed/paid, keeping an existing payment date
func (r *MemoryBookingRepository) MarkPaid(ctx context.Context, bookingID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.Status = domain.BookingStatusConfirmed
	b.PaymentStatus = domain.PaymentStatusPaid
	if b.PaymentDate == nil {
		paidAt := at
		b.PaymentDate = &paidAt
	}
	b.UpdatedAt = at
	return nil
}

// MarkFailed sets cancelled/failed
func (r *MemoryBookingRepository) MarkFailed(ctx context.Context, bookingID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.Status = domain.BookingStatusCancelled
	b.PaymentStatus = domain.PaymentStatusFailed
	b.UpdatedAt = at
	return nil
}

func (r *MemoryBookingRepository) filter(keep func(*domain.Booking) bool) []*domain.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Booking
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	return out
}

func truncate(bookings []*domain.Booking, limit int) []*domain.Booking {
	if limit > 0 && len(bookings) > limit {
		return bookings[:limit]
	}
	return bookings
}
