package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AuditAction represents the operator action being audited
type AuditAction string

const (
	AuditActionReconcileApply AuditAction = "reconcile_apply"
	AuditActionReconcileScan  AuditAction = "reconcile_scan"
	AuditActionReconcileCheck AuditAction = "reconcile_check"
	AuditActionTicketRender   AuditAction = "ticket_render"
	AuditActionUpdate         AuditAction = "update"
	AuditActionView           AuditAction = "view"
)

// Context keys for audit data
const (
	ContextKeyAuditResourceType = "audit_resource_type"
	ContextKeyAuditResourceID   = "audit_resource_id"
	ContextKeyAuditMetadata     = "audit_metadata"
	contextKeyAuditSkip         = "audit_skip"
)

// AuditEntry is one operator action
type AuditEntry struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id,omitempty"`
	UserName     string                 `json:"user_name,omitempty"`
	UserRole     string                 `json:"user_role,omitempty"`
	Action       AuditAction            `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Method       string                 `json:"method"`
	Path         string                 `json:"path"`
	StatusCode   int                    `json:"status_code"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	TraceID      string                 `json:"trace_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// AuditSink persists batches of audit entries
type AuditSink interface {
	WriteBatch(ctx context.Context, entries []*AuditEntry) error
}

// PostgresAuditSink writes entries to the operator_audit_logs table
type PostgresAuditSink struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditSink creates a sink backed by pool
func NewPostgresAuditSink(pool *pgxpool.Pool) *PostgresAuditSink {
	return &PostgresAuditSink{pool: pool}
}

// WriteBatch inserts entries in a single round trip
func (s *PostgresAuditSink) WriteBatch(ctx context.Context, entries []*AuditEntry) error {
	const query = `
		INSERT INTO operator_audit_logs (
			id, user_id, user_name, user_role, action, resource_type, resource_id,
			method, path, status_code, ip_address, user_agent, request_id, trace_id,
			metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil || e.Metadata == nil {
			metadata = []byte("{}")
		}
		batch.Queue(query,
			e.ID, e.UserID, e.UserName, e.UserRole, string(e.Action), e.ResourceType, e.ResourceID,
			e.Method, e.Path, e.StatusCode, e.IPAddress, e.UserAgent, e.RequestID, e.TraceID,
			metadata, e.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	var errs []error
	for range entries {
		if _, err := results.Exec(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := results.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MemoryAuditSink keeps entries in memory
type MemoryAuditSink struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

// NewMemoryAuditSink creates an empty in-memory sink
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

// WriteBatch appends entries
func (s *MemoryAuditSink) WriteBatch(_ context.Context, entries []*AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// Entries returns a copy of everything written so far
func (s *MemoryAuditSink) Entries() []*AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// AuditConfig holds configuration for the audit middleware
type AuditConfig struct {
	Sink          AuditSink
	Logger        *logger.Logger
	BufferSize    int
	FlushInterval time.Duration
	BatchSize     int
	SkipPaths     []string
	SkipMethods   []string
	ActionMapper  func(method, path string) AuditAction
}

// DefaultAuditConfig returns default configuration
func DefaultAuditConfig(sink AuditSink) *AuditConfig {
	return &AuditConfig{
		Sink:          sink,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		BatchSize:     100,
		SkipPaths:     []string{"/health", "/ready"},
		SkipMethods:   []string{http.MethodHead, http.MethodOptions},
		ActionMapper:  defaultActionMapper,
	}
}

// AuditLogger buffers entries and flushes them from a background goroutine
type AuditLogger struct {
	config    *AuditConfig
	log       *logger.Logger
	buffer    chan *AuditEntry
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAuditLogger creates a new audit logger and starts its flusher
func NewAuditLogger(config *AuditConfig) *AuditLogger {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.ActionMapper == nil {
		config.ActionMapper = defaultActionMapper
	}
	log := config.Logger
	if log == nil {
		log = logger.Get()
	}

	al := &AuditLogger{
		config: config,
		log:    log,
		buffer: make(chan *AuditEntry, config.BufferSize),
	}

	al.wg.Add(1)
	go al.worker()

	return al
}

// Log enqueues an entry without blocking. Entries are dropped when the buffer is full.
func (al *AuditLogger) Log(entry *AuditEntry) {
	select {
	case al.buffer <- entry:
	default:
		al.log.Warn("audit buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("resource_id", entry.ResourceID),
		)
	}
}

// Close flushes pending entries and stops the worker
func (al *AuditLogger) Close() error {
	al.closeOnce.Do(func() {
		close(al.buffer)
		al.wg.Wait()
	})
	return nil
}

func (al *AuditLogger) worker() {
	defer al.wg.Done()

	ticker := time.NewTicker(al.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*AuditEntry, 0, al.config.BatchSize)

	for {
		select {
		case entry, ok := <-al.buffer:
			if !ok {
				al.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= al.config.BatchSize {
				al.flush(batch)
				batch = make([]*AuditEntry, 0, al.config.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				al.flush(batch)
				batch = make([]*AuditEntry, 0, al.config.BatchSize)
			}
		}
	}
}

func (al *AuditLogger) flush(entries []*AuditEntry) {
	if len(entries) == 0 || al.config.Sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// audit persistence never fails the request that produced it
	if err := al.config.Sink.WriteBatch(ctx, entries); err != nil {
		al.log.Error("failed to write audit entries", zap.Int("count", len(entries)), zap.Error(err))
	}
}

// AuditMiddleware records an entry for every request that reaches a handler
func AuditMiddleware(al *AuditLogger) gin.HandlerFunc {
	config := al.config

	return func(c *gin.Context) {
		for _, path := range config.SkipPaths {
			if matchPath(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}
		for _, method := range config.SkipMethods {
			if c.Request.Method == method {
				c.Next()
				return
			}
		}

		startTime := time.Now()

		c.Next()

		if skip, exists := c.Get(contextKeyAuditSkip); exists {
			if b, ok := skip.(bool); ok && b {
				return
			}
		}

		entry := &AuditEntry{
			ID:         uuid.New().String(),
			Action:     config.ActionMapper(c.Request.Method, c.Request.URL.Path),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: c.Writer.Status(),
			IPAddress:  ClientIP(c),
			UserAgent:  c.GetHeader("User-Agent"),
			RequestID:  GetRequestID(c),
			CreatedAt:  startTime,
		}

		entry.UserID, _ = GetUserID(c)
		entry.UserName, _ = GetName(c)
		entry.UserRole, _ = GetRole(c)

		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			entry.TraceID = sc.TraceID().String()
		}

		if rt, ok := getString(c, ContextKeyAuditResourceType); ok {
			entry.ResourceType = rt
		} else {
			entry.ResourceType = resourceFromPath(c.Request.URL.Path)
		}
		entry.ResourceID, _ = getString(c, ContextKeyAuditResourceID)

		if meta, exists := c.Get(ContextKeyAuditMetadata); exists {
			if m, ok := meta.(map[string]interface{}); ok {
				entry.Metadata = m
			}
		}

		al.Log(entry)
	}
}

func defaultActionMapper(method, path string) AuditAction {
	p := strings.ToLower(path)

	switch {
	case strings.HasSuffix(p, "/reconciliations/apply"):
		return AuditActionReconcileApply
	case strings.HasSuffix(p, "/reconciliations/scan-pending"):
		return AuditActionReconcileScan
	case strings.Contains(p, "/reconciliations"):
		return AuditActionReconcileCheck
	case strings.HasSuffix(p, "/qr"):
		return AuditActionTicketRender
	}

	if method == http.MethodGet {
		return AuditActionView
	}
	return AuditActionUpdate
}

// resourceFromPath returns the first segment after the /api/vN prefix, singularised.
// /api/v1/reconciliations/apply -> reconciliation
func resourceFromPath(path string) string {
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" || part == "api" || (len(part) > 1 && part[0] == 'v' && part[1] >= '0' && part[1] <= '9') {
			continue
		}
		return strings.TrimSuffix(part, "s")
	}
	return "unknown"
}

func matchPath(path, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return path == pattern
}

// SetAuditResource sets the resource type and ID for the current request
func SetAuditResource(c *gin.Context, resourceType, resourceID string) {
	c.Set(ContextKeyAuditResourceType, resourceType)
	c.Set(ContextKeyAuditResourceID, resourceID)
}

// SetAuditMetadata attaches metadata to the current request's entry
func SetAuditMetadata(c *gin.Context, metadata map[string]interface{}) {
	c.Set(ContextKeyAuditMetadata, metadata)
}

// SkipAudit marks the current request to skip audit logging
func SkipAudit(c *gin.Context) {
	c.Set(contextKeyAuditSkip, true)
}
