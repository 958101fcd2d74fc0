package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

const bookingColumns = `
	b.id, b.booking_reference, b.event_id, b.event_title, b.event_date, b.event_time, b.event_venue,
	b.user_id, b.customer_name, b.customer_email, b.customer_phone, b.status, b.payment_status,
	COALESCE(b.order_id, ''), COALESCE(b.transaction_id, ''), b.total_amount::float8, b.currency,
	b.payment_date, b.created_at, b.updated_at`

// PostgresBookingRepository implements BookingRepository using PostgreSQL
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// Create inserts a booking and its tickets in one transaction
func (r *PostgresBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO bookings (
			id, booking_reference, event_id, event_title, event_date, event_time, event_venue,
			user_id, customer_name, customer_email, customer_phone, status, payment_status,
			order_id, transaction_id, total_amount, currency, payment_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = tx.Exec(ctx, query,
		b.ID,
		b.BookingReference,
		b.EventID,
		b.EventTitle,
		dateOrNull(b.EventDate),
		b.EventTime,
		b.EventVenue,
		b.UserID,
		b.CustomerName,
		b.CustomerEmail,
		b.CustomerPhone,
		b.Status,
		b.PaymentStatus,
		nullIfEmpty(b.OrderID),
		nullIfEmpty(b.TransactionID),
		b.TotalAmount,
		b.Currency,
		b.PaymentDate,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	for i, t := range b.Tickets {
		_, err = tx.Exec(ctx, `
			INSERT INTO booking_tickets (ticket_id, booking_id, position, ticket_name, price, is_used, used_at, validated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, t.TicketID, b.ID, i, t.TicketName, t.Price, t.IsUsed, t.UsedAt, nullIfEmpty(t.ValidatedBy))
		if err != nil {
			return fmt.Errorf("failed to insert ticket %s: %w", t.TicketID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a booking by ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1`
	return r.getOne(ctx, query, id)
}

// FindByEventUserTicket retrieves the booking owning ticketID for the event and user
func (r *PostgresBookingRepository) FindByEventUserTicket(ctx context.Context, eventID, userID, ticketID string) (*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN booking_tickets t ON t.booking_id = b.id
		WHERE b.event_id = $1 AND b.user_id = $2 AND t.ticket_id = $3
		LIMIT 1
	`
	return r.getOne(ctx, query, eventID, userID, ticketID)
}

// GetByOrderID retrieves a booking by its gateway order id
func (r *PostgresBookingRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE b.order_id = $1
		ORDER BY b.created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, orderID)
}

// SearchByCustomerName finds bookings with an order id by customer name substring
func (r *PostgresBookingRepository) SearchByCustomerName(ctx context.Context, name string, limit int) ([]*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE b.customer_name ILIKE '%' || $1 || '%' ESCAPE '\'
		  AND COALESCE(b.order_id, '') <> ''
		ORDER BY b.created_at DESC
		LIMIT $2
	`
	return r.getMany(ctx, query, escapeLike(name), limit)
}

// ListPendingWithOrder lists pending bookings with an order id, oldest first
func (r *PostgresBookingRepository) ListPendingWithOrder(ctx context.Context, limit int) ([]*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE (b.status = 'pending' OR b.payment_status = 'pending')
		  AND COALESCE(b.order_id, '') <> ''
		ORDER BY b.created_at ASC
		LIMIT $1
	`
	return r.getMany(ctx, query, limit)
}

// MarkTicketUsed sets is_used on one ticket where it is still false
func (r *PostgresBookingRepository) MarkTicketUsed(ctx context.Context, bookingID, ticketID, validatedBy string, at time.Time) error {
	query := `
		UPDATE booking_tickets
		SET is_used = TRUE, used_at = $3, validated_by = $4
		WHERE booking_id = $1 AND ticket_id = $2 AND is_used = FALSE
	`
	result, err := r.pool.Exec(ctx, query, bookingID, ticketID, at, validatedBy)
	if err != nil {
		return fmt.Errorf("failed to mark ticket used: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyValidated
	}

	if _, err := r.pool.Exec(ctx, `UPDATE bookings SET updated_at = $2 WHERE id = $1`, bookingID, at); err != nil {
		return fmt.Errorf("failed to touch booking: %w", err)
	}
	return nil
}

// MarkPaid sets the booking to confirmed/paid, keeping an existing payment date
func (r *PostgresBookingRepository) MarkPaid(ctx context.Context, bookingID string, at time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid',
		    payment_date = COALESCE(payment_date, $2), updated_at = $2
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, bookingID, at)
	if err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed sets the booking to cancelled/failed
func (r *PostgresBookingRepository) MarkFailed(ctx context.Context, bookingID string, at time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'cancelled', payment_status = 'failed', updated_at = $2
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, bookingID, at)
	if err != nil {
		return fmt.Errorf("failed to mark booking failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresBookingRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadTickets(ctx, []*domain.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PostgresBookingRepository) getMany(ctx context.Context, query string, args ...any) ([]*domain.Booking, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadTickets(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *PostgresBookingRepository) loadTickets(ctx context.Context, bookings []*domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Booking, len(bookings))
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	query := `
		SELECT booking_id, ticket_id, ticket_name, price::float8, is_used, used_at, COALESCE(validated_by, '')
		FROM booking_tickets
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, position
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookingID string
		var t domain.Ticket
		if err := rows.Scan(&bookingID, &t.TicketID, &t.TicketName, &t.Price, &t.IsUsed, &t.UsedAt, &t.ValidatedBy); err != nil {
			return err
		}
		if b, ok := byID[bookingID]; ok {
			b.Tickets = append(b.Tickets, t)
		}
	}
	return rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	b := &domain.Booking{}
	var eventDate *time.Time
	err := row.Scan(
		&b.ID,
		&b.BookingReference,
		&b.EventID,
		&b.EventTitle,
		&eventDate,
		&b.EventTime,
		&b.EventVenue,
		&b.UserID,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&b.Status,
		&b.PaymentStatus,
		&b.OrderID,
		&b.TransactionID,
		&b.TotalAmount,
		&b.Currency,
		&b.PaymentDate,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if eventDate != nil {
		b.EventDate = domain.CalendarDateOf(*eventDate, time.UTC)
	}
	b.Tickets = []domain.Ticket{}
	return b, nil
}

func dateOrNull(d domain.CalendarDate) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
