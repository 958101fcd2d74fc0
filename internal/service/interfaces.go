package service

import (
	"context"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/dto"
)

// ValidationService decides whether a presented ticket is admitted
type ValidationService interface {
	// Validate runs one scan through the admission state machine.
	// Hard failures return a *domain.Error; soft rejections return a result with Success false.
	Validate(ctx context.Context, req *ValidateRequest) (*domain.ValidationResult, error)
	// ListTicketValidations returns the validation history of a ticket, newest first
	ListTicketValidations(ctx context.Context, ticketID string, limit int) ([]*domain.ValidationLog, error)
}

// ReconciliationService compares local bookings with the bank gateway and applies corrections
type ReconciliationService interface {
	// Reconcile runs exactly one mode: booking id, order id or customer name
	Reconcile(ctx context.Context, req *ReconcileRequest) ([]*domain.ReconciliationResult, error)
	// ReconcileByCustomerName reconciles up to 50 bookings whose customer name contains name
	ReconcileByCustomerName(ctx context.Context, name string) ([]*domain.ReconciliationResult, error)
	// ReconcilePending reconciles pending bookings that carry an order id, oldest first
	ReconcilePending(ctx context.Context, limit int) ([]*domain.ReconciliationResult, error)
	// Apply executes an operator-confirmed action on one booking
	Apply(ctx context.Context, req *ApplyRequest) (*domain.ApplyResult, error)
}

// PolicyProvider returns an immutable snapshot of the validation policy
type PolicyProvider interface {
	GetValidationPolicy(ctx context.Context) (domain.ValidationPolicy, error)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, event dto.Event) error
}

// ValidateRequest is one scan with the identity of the device operator
type ValidateRequest struct {
	Payload        string
	ValidationDate *domain.CalendarDate
	Caller         domain.Caller
	Source         domain.ScanSource
	ValidationType domain.ValidationType
	Device         domain.DeviceInfo
}

// ReconcileRequest selects one reconciliation mode
type ReconcileRequest struct {
	BookingID    string
	OrderID      string
	CustomerName string
}

// ApplyRequest confirms one action for one booking
type ApplyRequest struct {
	BookingID string
	Action    string
	Resend    bool
	Operator  domain.Caller
}
