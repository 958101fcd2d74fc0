package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

// ValidationLogRepository is the append-only sink for validation decisions
type ValidationLogRepository interface {
	// Append writes one entry; entries are never updated or deleted
	Append(ctx context.Context, entry *domain.ValidationLog) error
	// ListByTicket returns the entries of one ticket, newest first
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]*domain.ValidationLog, error)
}

// PostgresValidationLogRepository implements ValidationLogRepository using PostgreSQL
type PostgresValidationLogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresValidationLogRepository creates a new PostgresValidationLogRepository
func NewPostgresValidationLogRepository(pool *pgxpool.Pool) *PostgresValidationLogRepository {
	return &PostgresValidationLogRepository{pool: pool}
}

// Append inserts one entry
func (r *PostgresValidationLogRepository) Append(ctx context.Context, e *domain.ValidationLog) error {
	query := `
		INSERT INTO ticket_validation_logs (
			id, validator_id, validator_name, ticket_id, booking_id, event_id, event_title, user_id,
			validation_type, status, notes, source, device_id, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.ValidatorID,
		e.ValidatorName,
		e.TicketID,
		nullIfEmpty(e.BookingID),
		nullIfEmpty(e.EventID),
		nullIfEmpty(e.EventTitle),
		nullIfEmpty(e.UserID),
		string(e.ValidationType),
		string(e.Status),
		nullIfEmpty(e.Notes),
		nullIfEmpty(string(e.Source)),
		nullIfEmpty(e.Device.DeviceID),
		nullIfEmpty(e.Device.IPAddress),
		nullIfEmpty(e.Device.UserAgent),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append validation log: %w", err)
	}
	return nil
}

// ListByTicket returns the entries of one ticket, newest first
func (r *PostgresValidationLogRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]*domain.ValidationLog, error) {
	query := `
		SELECT id, validator_id, validator_name, ticket_id, COALESCE(booking_id, ''), COALESCE(event_id, ''),
		       COALESCE(event_title, ''), COALESCE(user_id, ''), validation_type, status, COALESCE(notes, ''),
		       COALESCE(source, ''), COALESCE(device_id, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		       created_at
		FROM ticket_validation_logs
		WHERE ticket_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, ticketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ValidationLog
	for rows.Next() {
		e := &domain.ValidationLog{}
		var validationType, status, source string
		if err := rows.Scan(
			&e.ID,
			&e.ValidatorID,
			&e.ValidatorName,
			&e.TicketID,
			&e.BookingID,
			&e.EventID,
			&e.EventTitle,
			&e.UserID,
			&validationType,
			&status,
			&e.Notes,
			&source,
			&e.Device.DeviceID,
			&e.Device.IPAddress,
			&e.Device.UserAgent,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.ValidationType = domain.ValidationType(validationType)
		e.Status = domain.ValidationStatus(status)
		e.Source = domain.ScanSource(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MemoryValidationLogRepository keeps entries in memory
type MemoryValidationLogRepository struct {
	mu      sync.RWMutex
	entries []*domain.ValidationLog
}

// NewMemoryValidationLogRepository creates an empty log
func NewMemoryValidationLogRepository() *MemoryValidationLogRepository {
	return &MemoryValidationLogRepository{}
}

// Append stores a copy of e
func (r *MemoryValidationLogRepository) Append(ctx context.Context, e *domain.ValidationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	r.entries = append(r.entries, &c)
	return nil
}

// ListByTicket returns the entries of one ticket, newest first
func (r *MemoryValidationLogRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]*domain.ValidationLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.ValidationLog
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].TicketID == ticketID {
			c := *r.entries[i]
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a copy of every entry in append order
func (r *MemoryValidationLogRepository) All() []*domain.ValidationLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ValidationLog, len(r.entries))
	for i, e := range r.entries {
		c := *e
		out[i] = &c
	}
	return out
}
