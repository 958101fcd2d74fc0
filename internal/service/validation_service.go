package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/dto"
	"github.com/prohmpiriya/eventgate/internal/repository"
	"github.com/prohmpiriya/eventgate/internal/ticketcode"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/telemetry"
)

// ValidationServiceConfig holds the collaborators of the validation service
type ValidationServiceConfig struct {
	Bookings repository.BookingRepository
	Gifts    repository.GiftTicketRepository
	Logs     repository.ValidationLogRepository
	Policies PolicyProvider
	// ReplayGuard is required only when the policy enables anti-replay
	ReplayGuard repository.ReplayGuard
	Publisher   EventPublisher
	Logger      *logger.Logger
	Now         func() time.Time
}

type validationService struct {
	bookings  repository.BookingRepository
	gifts     repository.GiftTicketRepository
	logs      repository.ValidationLogRepository
	policies  PolicyProvider
	replay    repository.ReplayGuard
	publisher EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewValidationService creates a new ValidationService
func NewValidationService(cfg ValidationServiceConfig) ValidationService {
	s := &validationService{
		bookings:  cfg.Bookings,
		gifts:     cfg.Gifts,
		logs:      cfg.Logs,
		policies:  cfg.Policies,
		replay:    cfg.ReplayGuard,
		publisher: cfg.Publisher,
		log:       cfg.Logger,
		now:       cfg.Now,
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

// scan carries the per-call state shared by the gift and booking paths
type scan struct {
	req    *ValidateRequest
	policy domain.ValidationPolicy
	code   *ticketcode.Payload
	entry  domain.ValidationLog
	// claimed is set once the anti-replay claim on the ticket is held
	claimed bool
}

// Validate runs one scan through the admission state machine
func (s *validationService) Validate(ctx context.Context, req *ValidateRequest) (*domain.ValidationResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.validate", trace.WithAttributes(
		telemetry.ValidationSourceAttr(string(req.Source)),
		telemetry.CallerRoleAttr(req.Caller.Role),
	))
	defer span.End()

	result, err := s.validate(ctx, req)
	outcome := "validated"
	switch {
	case err != nil:
		outcome = "error"
		telemetry.RecordError(span, err)
	case !result.Success:
		outcome = string(result.Reason)
	}
	getMetrics().validations.Inc(ctx, telemetry.ValidationOutcomeAttr(outcome), telemetry.ValidationSourceAttr(string(req.Source)))
	return result, err
}

func (s *validationService) validate(ctx context.Context, req *ValidateRequest) (*domain.ValidationResult, error) {
	if !req.Caller.IsAuthenticated() {
		return nil, domain.NewError(domain.ErrUnauthorized, "caller identity is required")
	}

	policy, err := s.policies.GetValidationPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation policy: %w", err)
	}

	if !policy.SourceEnabled(req.Source) {
		return nil, domain.NewError(domain.ErrValidationDisabled, "%s validation is disabled", req.Source)
	}
	if policy.RequireValidatorRole && !req.Caller.CanValidate() {
		return nil, domain.NewError(domain.ErrForbidden, "validator or admin role required")
	}

	code, err := ticketcode.Decode(req.Payload)
	if err != nil {
		return nil, domain.NewError(domain.ErrBadRequest, "invalid ticket code: %v", err)
	}

	sc := &scan{
		req:    req,
		policy: policy,
		code:   code,
		entry: domain.ValidationLog{
			ValidatorID:    req.Caller.ID,
			ValidatorName:  req.Caller.DisplayName(),
			TicketID:       code.TicketID,
			ValidationType: req.ValidationType,
			Source:         req.Source,
			Device:         req.Device,
		},
	}
	if sc.entry.ValidationType == "" {
		sc.entry.ValidationType = domain.ValidationTypeEntry
	}

	if code.IsGift() {
		return s.validateGift(ctx, sc)
	}
	return s.validateBooking(ctx, sc)
}

func (s *validationService) validateGift(ctx context.Context, sc *scan) (*domain.ValidationResult, error) {
	gift, err := s.gifts.GetByTicketID(ctx, sc.code.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get gift ticket: %w", err)
	}
	if gift == nil {
		return nil, domain.NewError(domain.ErrNotFound, "gift ticket %s not found", sc.code.TicketID)
	}
	if gift.Status != domain.GiftStatusSent {
		return nil, domain.NewError(domain.ErrNotReady, "gift ticket has not been sent yet (status %s)", gift.Status).
			WithDetail("status", gift.Status)
	}

	sc.entry.EventID = gift.EventID
	sc.entry.EventTitle = gift.EventTitle
	event := domain.GiftEventInfo(gift)

	if msg, ok := wrongDate(sc.req.ValidationDate, gift.EventDate); ok {
		return s.reject(ctx, sc, domain.ReasonWrongDate, msg, domain.GiftTicketInfo(gift), event)
	}
	if gift.IsValidated {
		return s.reject(ctx, sc, domain.ReasonAlreadyValidated, alreadyValidatedMessage(gift.ValidatedAt, gift.ValidatedBy),
			domain.GiftTicketInfo(gift), event)
	}
	if res, rejected, err := s.checkReplay(ctx, sc, domain.GiftTicketInfo(gift), event); rejected || err != nil {
		return res, err
	}

	now := s.now()
	err = s.gifts.MarkValidated(ctx, gift.TicketID, sc.req.Caller.ID, now)
	if errors.Is(err, domain.ErrAlreadyValidated) {
		return s.giftWriteLost(ctx, sc, gift.TicketID, event)
	}
	if err != nil {
		s.releaseClaim(ctx, sc)
		return nil, fmt.Errorf("failed to validate gift ticket: %w", err)
	}

	gift.IsValidated = true
	gift.ValidatedAt = &now
	gift.ValidatedBy = sc.req.Caller.ID
	return s.admit(ctx, sc, domain.GiftTicketInfo(gift), event, now)
}

func (s *validationService) validateBooking(ctx context.Context, sc *scan) (*domain.ValidationResult, error) {
	code := sc.code
	if code.EventID == "" || code.UserID == "" {
		return nil, domain.NewError(domain.ErrBadRequest, "ticket code must carry eventId, ticketId and userId")
	}

	var booking *domain.Booking
	var err error
	if code.BookingID != "" {
		booking, err = s.bookings.GetByID(ctx, code.BookingID)
	} else {
		booking, err = s.bookings.FindByEventUserTicket(ctx, code.EventID, code.UserID, code.TicketID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, domain.NewError(domain.ErrNotFound, "booking for ticket %s not found", code.TicketID)
	}

	if booking.UserID != code.UserID || booking.EventID != code.EventID {
		return nil, domain.NewError(domain.ErrInvalidOwnership, "ticket does not belong to this booking")
	}
	if booking.Status != domain.BookingStatusConfirmed {
		return nil, domain.NewError(domain.ErrBookingNotConfirmed, "booking is %s", booking.Status).
			WithDetail("status", booking.Status).
			WithDetail("payment_status", booking.PaymentStatus)
	}

	ticket := booking.FindTicket(code.TicketID)
	if ticket == nil {
		return nil, domain.NewError(domain.ErrNotFound, "ticket %s not found in booking", code.TicketID)
	}

	sc.entry.BookingID = booking.ID
	sc.entry.EventID = booking.EventID
	sc.entry.EventTitle = booking.EventTitle
	sc.entry.UserID = booking.UserID
	event := domain.BookingEventInfo(booking)

	if ticket.IsUsed {
		return s.reject(ctx, sc, domain.ReasonAlreadyValidated, alreadyValidatedMessage(ticket.UsedAt, ticket.ValidatedBy),
			domain.BookingTicketInfo(booking, ticket), event)
	}
	if msg, ok := wrongDate(sc.req.ValidationDate, booking.EventDate); ok {
		return s.reject(ctx, sc, domain.ReasonWrongDate, msg, domain.BookingTicketInfo(booking, ticket), event)
	}

	today := sc.policy.Today(s.now())
	if !sc.policy.WithinWindow(booking.EventDate, today) {
		msg := fmt.Sprintf("event date %s is outside the %d day scan window (today is %s)",
			booking.EventDate, sc.policy.ScanTimeWindowDays, today)
		return s.reject(ctx, sc, domain.ReasonOutsideWindow, msg, domain.BookingTicketInfo(booking, ticket), event)
	}
	if res, rejected, err := s.checkReplay(ctx, sc, domain.BookingTicketInfo(booking, ticket), event); rejected || err != nil {
		return res, err
	}

	now := s.now()
	err = s.bookings.MarkTicketUsed(ctx, booking.ID, ticket.TicketID, sc.req.Caller.ID, now)
	if errors.Is(err, domain.ErrAlreadyValidated) {
		winner, rerr := s.bookings.GetByID(ctx, booking.ID)
		if rerr != nil {
			return nil, fmt.Errorf("failed to re-read booking: %w", rerr)
		}
		if winner == nil {
			return nil, domain.NewError(domain.ErrNotFound, "booking %s not found", booking.ID)
		}
		wt := winner.FindTicket(ticket.TicketID)
		if wt == nil {
			return nil, domain.NewError(domain.ErrNotFound, "ticket %s not found in booking", ticket.TicketID)
		}
		return s.reject(ctx, sc, domain.ReasonAlreadyValidated, alreadyValidatedMessage(wt.UsedAt, wt.ValidatedBy),
			domain.BookingTicketInfo(winner, wt), event)
	}
	if err != nil {
		s.releaseClaim(ctx, sc)
		return nil, fmt.Errorf("failed to mark ticket used: %w", err)
	}

	ticket.IsUsed = true
	ticket.UsedAt = &now
	ticket.ValidatedBy = sc.req.Caller.ID
	return s.admit(ctx, sc, domain.BookingTicketInfo(booking, ticket), event, now)
}

// giftWriteLost explains a conditional gift write that matched nothing, from a fresh read
func (s *validationService) giftWriteLost(ctx context.Context, sc *scan, ticketID string, event *domain.EventInfo) (*domain.ValidationResult, error) {
	winner, err := s.gifts.GetByTicketID(ctx, ticketID)
	if err != nil {
		s.releaseClaim(ctx, sc)
		return nil, fmt.Errorf("failed to re-read gift ticket: %w", err)
	}
	if winner == nil {
		s.releaseClaim(ctx, sc)
		return nil, domain.NewError(domain.ErrNotFound, "gift ticket %s not found", ticketID)
	}
	if winner.IsValidated {
		return s.reject(ctx, sc, domain.ReasonAlreadyValidated, alreadyValidatedMessage(winner.ValidatedAt, winner.ValidatedBy),
			domain.GiftTicketInfo(winner), event)
	}
	s.releaseClaim(ctx, sc)
	if winner.Status != domain.GiftStatusSent {
		return nil, domain.NewError(domain.ErrNotReady, "gift ticket has not been sent yet (status %s)", winner.Status).
			WithDetail("status", winner.Status)
	}
	return nil, fmt.Errorf("gift ticket %s changed during validation", ticketID)
}

// checkReplay claims the ticket for the anti-replay TTL. A guard outage does not block admission:
// the conditional write still guarantees a single success.
func (s *validationService) checkReplay(ctx context.Context, sc *scan, ticket *domain.TicketInfo, event *domain.EventInfo) (*domain.ValidationResult, bool, error) {
	if !sc.policy.AntiReplayEnabled || s.replay == nil {
		return nil, false, nil
	}

	ttl := domain.AntiReplayTTLOrDefault(sc.policy.AntiReplayTTL)
	ok, err := s.replay.Acquire(ctx, sc.code.TicketID, ttl)
	if err != nil {
		s.log.WithContext(ctx).Warn("anti-replay guard unavailable",
			zap.String("ticket_id", sc.code.TicketID), zap.Error(err))
		return nil, false, nil
	}
	if ok {
		sc.claimed = true
		return nil, false, nil
	}

	res, err := s.reject(ctx, sc, domain.ReasonReplayDetected,
		fmt.Sprintf("ticket was scanned again within %s", ttl), ticket, event)
	return res, true, err
}

// releaseClaim drops the anti-replay claim after a write that left the ticket unvalidated,
// so the holder is not turned away as a replay on retry
func (s *validationService) releaseClaim(ctx context.Context, sc *scan) {
	if !sc.claimed {
		return
	}
	sc.claimed = false
	if err := s.replay.Release(ctx, sc.code.TicketID); err != nil {
		s.log.WithContext(ctx).Warn("failed to release anti-replay claim",
			zap.String("ticket_id", sc.code.TicketID), zap.Error(err))
	}
}

func (s *validationService) admit(ctx context.Context, sc *scan, ticket *domain.TicketInfo, event *domain.EventInfo, at time.Time) (*domain.ValidationResult, error) {
	entry := sc.entry
	entry.Status = domain.ValidationStatusValidated
	logID := s.appendLog(ctx, &entry)

	s.log.WithContext(ctx).Info("ticket validated",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("booking_id", ticket.BookingID),
		zap.String("validator_id", sc.req.Caller.ID),
	)

	evt := &dto.TicketValidatedEvent{
		EventType:   dto.EventTypeTicketValidated,
		TicketID:    ticket.TicketID,
		TicketKind:  string(ticket.Kind),
		BookingID:   ticket.BookingID,
		EventID:     event.EventID,
		UserID:      sc.entry.UserID,
		ValidatorID: sc.req.Caller.ID,
		Source:      string(sc.req.Source),
		LogID:       logID,
		ValidatedAt: at,
		Timestamp:   s.now(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.WithContext(ctx).Warn("failed to publish ticket validated event",
			zap.String("ticket_id", ticket.TicketID), zap.Error(err))
	}

	return &domain.ValidationResult{
		Success: true,
		Message: "Ticket validated",
		Ticket:  ticket,
		Event:   event,
		LogID:   logID,
	}, nil
}

func (s *validationService) reject(ctx context.Context, sc *scan, reason domain.RejectionReason, message string, ticket *domain.TicketInfo, event *domain.EventInfo) (*domain.ValidationResult, error) {
	entry := sc.entry
	entry.Status = reason.LogStatus()
	entry.Notes = string(reason) + ": " + message
	logID := s.appendLog(ctx, &entry)

	s.log.WithContext(ctx).Info("ticket rejected",
		zap.String("ticket_id", sc.code.TicketID),
		zap.String("reason", string(reason)),
		zap.String("validator_id", sc.req.Caller.ID),
	)

	return &domain.ValidationResult{
		Success: false,
		Message: message,
		Reason:  reason,
		Ticket:  ticket,
		Event:   event,
		LogID:   logID,
	}, nil
}

// appendLog writes the single log entry of a decided call. The decision stands even if the write fails.
func (s *validationService) appendLog(ctx context.Context, entry *domain.ValidationLog) string {
	entry.ID = uuid.New().String()
	entry.CreatedAt = s.now()
	if err := s.logs.Append(ctx, entry); err != nil {
		s.log.WithContext(ctx).Error("failed to append validation log",
			zap.String("ticket_id", entry.TicketID),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
		return ""
	}
	return entry.ID
}

// ListTicketValidations returns the validation history of a ticket
func (s *validationService) ListTicketValidations(ctx context.Context, ticketID string, limit int) ([]*domain.ValidationLog, error) {
	if ticketID == "" {
		return nil, domain.NewError(domain.ErrBadRequest, "ticket id is required")
	}
	return s.logs.ListByTicket(ctx, ticketID, limit)
}

// wrongDate compares calendar days. No requested date or no event date means no check.
func wrongDate(requested *domain.CalendarDate, eventDate domain.CalendarDate) (string, bool) {
	if requested == nil || requested.IsZero() || eventDate.IsZero() {
		return "", false
	}
	if requested.Equal(eventDate) {
		return "", false
	}
	return fmt.Sprintf("ticket is valid for %s, not %s", eventDate, requested), true
}

func alreadyValidatedMessage(at *time.Time, by string) string {
	msg := "already validated"
	if at != nil {
		msg += " at " + at.UTC().Format(time.RFC3339)
	}
	if by != "" {
		msg += " by " + by
	}
	return msg
}
