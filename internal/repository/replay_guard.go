package repository

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/eventgate/pkg/redis"
)

const replayKeyPrefix = "eventgate:replay:"

// ReplayGuard takes a short-lived exclusive claim on a ticket id
type ReplayGuard interface {
	// Acquire reports false when another scan of ticketID holds the claim
	Acquire(ctx context.Context, ticketID string, ttl time.Duration) (bool, error)
	// Release drops the claim so the ticket can be scanned again at once
	Release(ctx context.Context, ticketID string) error
}

// RedisReplayGuard claims tickets with SET NX PX
type RedisReplayGuard struct {
	client *redis.Client
}

// NewRedisReplayGuard creates a guard backed by client
func NewRedisReplayGuard(client *redis.Client) *RedisReplayGuard {
	return &RedisReplayGuard{client: client}
}

// Acquire claims ticketID for ttl
func (g *RedisReplayGuard) Acquire(ctx context.Context, ticketID string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, replayKeyPrefix+ticketID, time.Now().UTC().Format(time.RFC3339Nano), ttl)
}

// Release deletes the claim on ticketID
func (g *RedisReplayGuard) Release(ctx context.Context, ticketID string) error {
	return g.client.Del(ctx, replayKeyPrefix+ticketID)
}

// MemoryReplayGuard is an in-process ReplayGuard
type MemoryReplayGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewMemoryReplayGuard creates an empty guard
func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{claims: make(map[string]time.Time), now: time.Now}
}

// Acquire claims ticketID for ttl unless an unexpired claim exists
func (g *MemoryReplayGuard) Acquire(ctx context.Context, ticketID string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expires, ok := g.claims[ticketID]; ok && now.Before(expires) {
		return false, nil
	}
	g.claims[ticketID] = now.Add(ttl)
	return true, nil
}

// Release deletes the claim on ticketID
func (g *MemoryReplayGuard) Release(ctx context.Context, ticketID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, ticketID)
	return nil
}
