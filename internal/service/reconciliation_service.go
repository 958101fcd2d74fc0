package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/dto"
	"github.com/prohmpiriya/eventgate/internal/gateway"
	"github.com/prohmpiriya/eventgate/internal/repository"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/telemetry"
)

const defaultGatewayTimeout = 10 * time.Second

// ReconciliationServiceConfig holds the collaborators of the reconciliation service
type ReconciliationServiceConfig struct {
	Bookings       repository.BookingRepository
	Gateway        gateway.BankGateway
	GatewayTimeout time.Duration
	Publisher      EventPublisher
	Logger         *logger.Logger
	Now            func() time.Time
}

type reconciliationService struct {
	bookings       repository.BookingRepository
	gateway        gateway.BankGateway
	gatewayTimeout time.Duration
	publisher      EventPublisher
	log            *logger.Logger
	now            func() time.Time
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(cfg ReconciliationServiceConfig) ReconciliationService {
	s := &reconciliationService{
		bookings:       cfg.Bookings,
		gateway:        cfg.Gateway,
		gatewayTimeout: cfg.GatewayTimeout,
		publisher:      cfg.Publisher,
		log:            cfg.Logger,
		now:            cfg.Now,
	}
	if s.gatewayTimeout <= 0 {
		s.gatewayTimeout = defaultGatewayTimeout
	}
	if s.publisher == nil {
		s.publisher = NewNoopEventPublisher()
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Reconcile runs exactly one mode
func (s *reconciliationService) Reconcile(ctx context.Context, req *ReconcileRequest) ([]*domain.ReconciliationResult, error) {
	bookingID := strings.TrimSpace(req.BookingID)
	orderID := strings.TrimSpace(req.OrderID)
	name := strings.TrimSpace(req.CustomerName)

	modes := 0
	for _, v := range []string{bookingID, orderID, name} {
		if v != "" {
			modes++
		}
	}
	if modes != 1 {
		return nil, domain.NewError(domain.ErrBadRequest, "exactly one of booking id, order id or customer name is required")
	}

	if name != "" {
		return s.ReconcileByCustomerName(ctx, name)
	}

	ctx, span := telemetry.StartSpan(ctx, "service.reconcile", trace.WithAttributes(
		telemetry.BookingIDAttr(bookingID),
		telemetry.OrderIDAttr(orderID),
	))
	defer span.End()

	var local *domain.Booking
	var err error
	if bookingID != "" {
		local, err = s.bookings.GetByID(ctx, bookingID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to get booking: %w", err)
		}
		if local == nil {
			return nil, domain.NewError(domain.ErrNotFound, "booking %s not found", bookingID)
		}
	} else {
		local, err = s.bookings.GetByOrderID(ctx, orderID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to get booking by order: %w", err)
		}
	}

	if local != nil && local.OrderID != "" {
		orderID = local.OrderID
	}
	if orderID == "" {
		return nil, domain.NewError(domain.ErrBadRequest, "booking %s has no gateway order id", bookingID)
	}

	mode := "booking"
	if bookingID == "" {
		mode = "order"
	}
	return []*domain.ReconciliationResult{s.reconcileOne(ctx, local, orderID, mode)}, nil
}

// ReconcileByCustomerName reconciles bookings whose customer name contains name
func (s *reconciliationService) ReconcileByCustomerName(ctx context.Context, name string) ([]*domain.ReconciliationResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewError(domain.ErrBadRequest, "customer name is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "service.reconcile_by_customer_name")
	defer span.End()

	bookings, err := s.bookings.SearchByCustomerName(ctx, name, dto.MaxReconcileBatch)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to search bookings: %w", err)
	}
	return s.reconcileAll(ctx, bookings, "customer_name"), nil
}

// ReconcilePending sweeps pending bookings with an order id, oldest first
func (s *reconciliationService) ReconcilePending(ctx context.Context, limit int) ([]*domain.ReconciliationResult, error) {
	if limit <= 0 || limit > dto.MaxReconcileBatch {
		limit = dto.MaxReconcileBatch
	}

	ctx, span := telemetry.StartSpan(ctx, "service.reconcile_pending")
	defer span.End()

	bookings, err := s.bookings.ListPendingWithOrder(ctx, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}
	return s.reconcileAll(ctx, bookings, "pending"), nil
}

// reconcileAll reconciles each booking in turn; gateway failures stay inside each result
func (s *reconciliationService) reconcileAll(ctx context.Context, bookings []*domain.Booking, mode string) []*domain.ReconciliationResult {
	results := make([]*domain.ReconciliationResult, 0, len(bookings))
	for _, b := range bookings {
		if ctx.Err() != nil {
			res := domain.NewReconciliationResult(b, domain.RemoteSnapshot{OrderID: b.OrderID, Status: domain.RemoteStatusUnknown, Error: ctx.Err().Error()})
			results = append(results, res)
			continue
		}
		results = append(results, s.reconcileOne(ctx, b, b.OrderID, mode))
	}
	return results
}

func (s *reconciliationService) reconcileOne(ctx context.Context, local *domain.Booking, orderID, mode string) *domain.ReconciliationResult {
	remote := domain.RemoteSnapshot{OrderID: orderID, Status: domain.RemoteStatusUnknown}
	var problems []string

	details, err := s.getOrderDetails(ctx, orderID)
	if err != nil {
		problems = append(problems, "order details: "+err.Error())
	} else {
		remote.Details = details
	}

	list, err := s.getOrderTransactions(ctx, orderID)
	if err != nil {
		problems = append(problems, "transactions: "+err.Error())
	} else {
		n := gateway.Normalize(list)
		remote.Status = n.Status
		remote.StatusCode = n.StatusCode
		remote.TransactionCount = n.TransactionCount
		remote.TransactionsFetched = true
	}
	remote.Error = strings.Join(problems, "; ")

	result := domain.NewReconciliationResult(local, remote)

	log := s.log.WithContext(ctx)
	fields := []zap.Field{
		zap.String("order_id", orderID),
		zap.String("remote_status", remote.Status),
		zap.String("action", string(result.RecommendedAction)),
	}
	if local != nil {
		fields = append(fields, zap.String("booking_id", local.ID))
	}
	if remote.Error != "" {
		log.Warn("gateway degraded during reconciliation", append(fields, zap.String("error", remote.Error))...)
	} else {
		log.Info("booking reconciled", fields...)
	}

	getMetrics().reconciliations.Inc(ctx,
		telemetry.ReconcileActionAttr(string(result.RecommendedAction)),
		telemetry.ReconcileModeAttr(mode),
	)
	return result
}

func (s *reconciliationService) getOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	details, err := s.gateway.GetOrderDetails(ctx, orderID)
	s.recordLatency(ctx, "get_order_details", start, err)
	return details, err
}

func (s *reconciliationService) getOrderTransactions(ctx context.Context, orderID string) (*gateway.TransactionList, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	list, err := s.gateway.GetOrderTransactions(ctx, orderID)
	s.recordLatency(ctx, "get_order_transactions", start, err)
	return list, err
}

func (s *reconciliationService) recordLatency(ctx context.Context, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	getMetrics().gatewayLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		telemetry.GatewayNameAttr(s.gateway.Name()),
		telemetry.GatewayOperationAttr(op),
		telemetry.ErrorTypeAttr(outcome),
	)
}

// Apply executes an operator-confirmed action. Target-state writes make repeats safe.
func (s *reconciliationService) Apply(ctx context.Context, req *ApplyRequest) (*domain.ApplyResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.apply_reconciliation", trace.WithAttributes(
		telemetry.BookingIDAttr(req.BookingID),
		telemetry.ReconcileActionAttr(req.Action),
	))
	defer span.End()

	action, ok := domain.ParseReconcileAction(req.Action)
	if !ok {
		return nil, domain.NewError(domain.ErrBadRequest, "unsupported reconciliation action %q", req.Action)
	}
	if strings.TrimSpace(req.BookingID) == "" {
		return nil, domain.NewError(domain.ErrBadRequest, "booking id is required")
	}

	before, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if before == nil {
		return nil, domain.NewError(domain.ErrNotFound, "booking %s not found", req.BookingID)
	}

	now := s.now()
	switch action {
	case domain.ActionMarkPaidAndResend:
		err = s.bookings.MarkPaid(ctx, before.ID, now)
	case domain.ActionMarkFailed:
		err = s.bookings.MarkFailed(ctx, before.ID, now)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewError(domain.ErrNotFound, "booking %s not found", req.BookingID)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to apply %s: %w", action, err)
	}

	after, err := s.bookings.GetByID(ctx, before.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read booking: %w", err)
	}
	if after == nil {
		return nil, domain.NewError(domain.ErrNotFound, "booking %s not found", req.BookingID)
	}

	result := &domain.ApplyResult{
		Success:       true,
		BookingID:     after.ID,
		Action:        action,
		Changed:       before.Status != after.Status || before.PaymentStatus != after.PaymentStatus,
		Status:        after.Status,
		PaymentStatus: after.PaymentStatus,
		PaymentDate:   after.PaymentDate,
	}

	switch action {
	case domain.ActionMarkPaidAndResend:
		result.Message = "Booking marked as paid"
		if req.Resend {
			if err := s.requestResend(ctx, after, req.Operator); err != nil {
				s.log.WithContext(ctx).Warn("failed to request ticket resend",
					zap.String("booking_id", after.ID), zap.Error(err))
				result.Message += "; ticket resend could not be queued"
			} else {
				result.ResendQueued = true
				result.Message += "; ticket resend queued"
			}
		}
	case domain.ActionMarkFailed:
		result.Message = "Booking marked as failed"
		if req.Resend {
			result.Message += "; resend ignored for a failed booking"
		}
	}
	if !result.Changed {
		result.Message += " (already in target state)"
	}

	s.log.WithContext(ctx).Info("reconciliation applied",
		zap.String("booking_id", after.ID),
		zap.String("action", string(action)),
		zap.Bool("changed", result.Changed),
		zap.String("operator_id", req.Operator.ID),
	)
	getMetrics().applies.Inc(ctx, telemetry.ReconcileActionAttr(string(action)))

	evt := &dto.BookingReconciledEvent{
		EventType:     dto.EventTypeBookingReconciled,
		BookingID:     after.ID,
		OrderID:       after.OrderID,
		Action:        string(action),
		Status:        after.Status,
		PaymentStatus: after.PaymentStatus,
		Changed:       result.Changed,
		OperatorID:    req.Operator.ID,
		Timestamp:     now,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.WithContext(ctx).Warn("failed to publish booking reconciled event",
			zap.String("booking_id", after.ID), zap.Error(err))
	}

	return result, nil
}

func (s *reconciliationService) requestResend(ctx context.Context, b *domain.Booking, operator domain.Caller) error {
	ticketIDs := make([]string, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		ticketIDs = append(ticketIDs, t.TicketID)
	}
	return s.publisher.Publish(ctx, &dto.TicketResendRequestedEvent{
		EventType:        dto.EventTypeTicketResendRequested,
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		EventID:          b.EventID,
		EventTitle:       b.EventTitle,
		UserID:           b.UserID,
		CustomerName:     b.CustomerName,
		CustomerEmail:    b.CustomerEmail,
		TicketIDs:        ticketIDs,
		RequestedBy:      operator.ID,
		Timestamp:        s.now(),
	})
}
