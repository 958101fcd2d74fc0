package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

// GiftTicketRepository defines the interface for gift ticket data access
type GiftTicketRepository interface {
	// Create inserts a gift ticket
	Create(ctx context.Context, gift *domain.GiftTicket) error
	// GetByTicketID retrieves a gift ticket by its ticket id, nil when absent
	GetByTicketID(ctx context.Context, ticketID string) (*domain.GiftTicket, error)
	// MarkValidated flips is_validated only for a sent, not yet validated gift ticket.
	// Returns domain.ErrAlreadyValidated when the conditional write matched nothing.
	MarkValidated(ctx context.Context, ticketID, validatedBy string, at time.Time) error
}

// PostgresGiftTicketRepository implements GiftTicketRepository using PostgreSQL
type PostgresGiftTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresGiftTicketRepository creates a new PostgresGiftTicketRepository
func NewPostgresGiftTicketRepository(pool *pgxpool.Pool) *PostgresGiftTicketRepository {
	return &PostgresGiftTicketRepository{pool: pool}
}

// Create inserts a gift ticket
func (r *PostgresGiftTicketRepository) Create(ctx context.Context, g *domain.GiftTicket) error {
	query := `
		INSERT INTO gift_tickets (
			id, ticket_id, recipient_name, recipient_email, status, is_validated, validated_at, validated_by,
			event_id, event_title, event_date, event_time, event_venue, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.pool.Exec(ctx, query,
		g.ID,
		g.TicketID,
		g.RecipientName,
		g.RecipientEmail,
		g.Status,
		g.IsValidated,
		g.ValidatedAt,
		nullIfEmpty(g.ValidatedBy),
		nullIfEmpty(g.EventID),
		g.EventTitle,
		dateOrNull(g.EventDate),
		g.EventTime,
		g.EventVenue,
		g.CreatedAt,
		g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert gift ticket: %w", err)
	}
	return nil
}

// GetByTicketID retrieves a gift ticket by ticket id
func (r *PostgresGiftTicketRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.GiftTicket, error) {
	query := `
		SELECT id, ticket_id, recipient_name, recipient_email, status, is_validated, validated_at,
		       COALESCE(validated_by, ''), COALESCE(event_id, ''), event_title, event_date, event_time,
		       event_venue, created_at, updated_at
		FROM gift_tickets
		WHERE ticket_id = $1
	`
	g := &domain.GiftTicket{}
	var eventDate *time.Time
	err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&g.ID,
		&g.TicketID,
		&g.RecipientName,
		&g.RecipientEmail,
		&g.Status,
		&g.IsValidated,
		&g.ValidatedAt,
		&g.ValidatedBy,
		&g.EventID,
		&g.EventTitle,
		&eventDate,
		&g.EventTime,
		&g.EventVenue,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if eventDate != nil {
		g.EventDate = domain.CalendarDateOf(*eventDate, time.UTC)
	}
	return g, nil
}

// MarkValidated sets is_validated on a sent gift ticket where it is still false
func (r *PostgresGiftTicketRepository) MarkValidated(ctx context.Context, ticketID, validatedBy string, at time.Time) error {
	query := `
		UPDATE gift_tickets
		SET is_validated = TRUE, validated_at = $2, validated_by = $3, updated_at = $2
		WHERE ticket_id = $1 AND status = 'sent' AND is_validated = FALSE
	`
	result, err := r.pool.Exec(ctx, query, ticketID, at, validatedBy)
	if err != nil {
		return fmt.Errorf("failed to mark gift ticket validated: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyValidated
	}
	return nil
}

// MemoryGiftTicketRepository is an in-memory GiftTicketRepository
type MemoryGiftTicketRepository struct {
	mu    sync.RWMutex
	gifts map[string]*domain.GiftTicket
}

// NewMemoryGiftTicketRepository creates an empty repository
func NewMemoryGiftTicketRepository() *MemoryGiftTicketRepository {
	return &MemoryGiftTicketRepository{gifts: make(map[string]*domain.GiftTicket)}
}

// Create stores a copy of g keyed by ticket id
func (r *MemoryGiftTicketRepository) Create(ctx context.Context, g *domain.GiftTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gifts[g.TicketID] = g.Clone()
	return nil
}

// GetByTicketID retrieves a gift ticket by ticket id
func (r *MemoryGiftTicketRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.GiftTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gifts[ticketID].Clone(), nil
}

// MarkValidated flips is_validated on a sent gift ticket where it is still false
func (r *MemoryGiftTicketRepository) MarkValidated(ctx context.Context, ticketID, validatedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.gifts[ticketID]
	if !ok || g.Status != domain.GiftStatusSent || g.IsValidated {
		return domain.ErrAlreadyValidated
	}
	validatedAt := at
	g.IsValidated = true
	g.ValidatedAt = &validatedAt
	g.ValidatedBy = validatedBy
	g.UpdatedAt = at
	return nil
}
