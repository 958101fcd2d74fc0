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

// SettingsRepository reads the shared validation policy record
type SettingsRepository interface {
	// GetValidationPolicy returns the stored policy, nil when no record exists
	GetValidationPolicy(ctx context.Context) (*domain.ValidationPolicy, error)
}

// PostgresSettingsRepository implements SettingsRepository using PostgreSQL
type PostgresSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSettingsRepository creates a new PostgresSettingsRepository
func NewPostgresSettingsRepository(pool *pgxpool.Pool) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{pool: pool}
}

// GetValidationPolicy reads the single validation_settings row
func (r *PostgresSettingsRepository) GetValidationPolicy(ctx context.Context) (*domain.ValidationPolicy, error) {
	query := `
		SELECT qr_enabled, scanner_enabled, require_validator_role, scan_time_window_days,
		       anti_replay_enabled, anti_replay_ttl_ms, time_zone
		FROM validation_settings
		WHERE id = 1
	`
	p := &domain.ValidationPolicy{}
	var ttlMs int64
	var tz string
	err := r.pool.QueryRow(ctx, query).Scan(
		&p.QREnabled,
		&p.ScannerEnabled,
		&p.RequireValidatorRole,
		&p.ScanTimeWindowDays,
		&p.AntiReplayEnabled,
		&ttlMs,
		&tz,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	p.AntiReplayTTL = domain.AntiReplayTTLOrDefault(time.Duration(ttlMs) * time.Millisecond)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q in validation settings: %w", tz, err)
	}
	p.Location = loc
	return p, nil
}

// MemorySettingsRepository holds a policy set by the caller
type MemorySettingsRepository struct {
	mu     sync.RWMutex
	policy *domain.ValidationPolicy
}

// NewMemorySettingsRepository creates a repository with no stored policy
func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{}
}

// Set replaces the stored policy
func (r *MemorySettingsRepository) Set(p domain.ValidationPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = &p
}

// GetValidationPolicy returns a copy of the stored policy
func (r *MemorySettingsRepository) GetValidationPolicy(ctx context.Context) (*domain.ValidationPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.policy == nil {
		return nil, nil
	}
	p := *r.policy
	return &p, nil
}
