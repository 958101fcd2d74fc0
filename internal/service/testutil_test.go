package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/dto"
	"github.com/prohmpiriya/eventgate/internal/gateway"
	"github.com/prohmpiriya/eventgate/internal/repository"
	"github.com/prohmpiriya/eventgate/pkg/logger"
)

var errGatewayDown = errors.New("dial tcp: connection refused")

// fakeGateway serves canned responses per order id
type fakeGateway struct {
	mu           sync.Mutex
	details      map[string]*domain.OrderDetails
	transactions map[string]*gateway.TransactionList
	detailsErr   error
	txErr        error
	calls        int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		details:      make(map[string]*domain.OrderDetails),
		transactions: make(map[string]*gateway.TransactionList),
	}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) GetOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.detailsErr != nil {
		return nil, g.detailsErr
	}
	if d, ok := g.details[orderID]; ok {
		return d, nil
	}
	return &domain.OrderDetails{OrderID: orderID}, nil
}

func (g *fakeGateway) GetOrderTransactions(ctx context.Context, orderID string) (*gateway.TransactionList, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.txErr != nil {
		return nil, g.txErr
	}
	if l, ok := g.transactions[orderID]; ok {
		return l, nil
	}
	return &gateway.TransactionList{OrderID: orderID}, nil
}

func (g *fakeGateway) setTransactions(orderID string, txs ...gateway.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transactions[orderID] = &gateway.TransactionList{OrderID: orderID, Transactions: txs}
}

// recordingPublisher keeps published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event dto.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t string) []dto.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []dto.Event
	for _, e := range p.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// failingLogRepository rejects every append
type failingLogRepository struct {
	repository.ValidationLogRepository
}

func (failingLogRepository) Append(ctx context.Context, e *domain.ValidationLog) error {
	return errors.New("disk full")
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *logger.Logger {
	return logger.NewNop()
}

// flakyBookingRepository fails the next MarkTicketUsed with markErr, and can hide bookings from GetByID
type flakyBookingRepository struct {
	*repository.MemoryBookingRepository
	mu        sync.Mutex
	markErr   error
	hideByID  bool
	markCalls int
	// hideAfterPaid hides every booking from GetByID once MarkPaid succeeds
	hideAfterPaid bool
}

func (r *flakyBookingRepository) MarkPaid(ctx context.Context, bookingID string, at time.Time) error {
	if err := r.MemoryBookingRepository.MarkPaid(ctx, bookingID, at); err != nil {
		return err
	}
	r.mu.Lock()
	if r.hideAfterPaid {
		r.hideByID = true
	}
	r.mu.Unlock()
	return nil
}

func (r *flakyBookingRepository) MarkTicketUsed(ctx context.Context, bookingID, ticketID, validatedBy string, at time.Time) error {
	r.mu.Lock()
	r.markCalls++
	err := r.markErr
	r.markErr = nil
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryBookingRepository.MarkTicketUsed(ctx, bookingID, ticketID, validatedBy, at)
}

func (r *flakyBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.Lock()
	hide := r.hideByID
	r.mu.Unlock()
	if hide {
		return nil, nil
	}
	return r.MemoryBookingRepository.GetByID(ctx, id)
}

// flakyGiftRepository fails the next MarkValidated with markErr and lets a test
// change what later reads see
type flakyGiftRepository struct {
	*repository.MemoryGiftTicketRepository
	mu        sync.Mutex
	markErr   error
	marked    bool
	afterMark func(g *domain.GiftTicket)
}

func (r *flakyGiftRepository) MarkValidated(ctx context.Context, ticketID, validatedBy string, at time.Time) error {
	r.mu.Lock()
	err := r.markErr
	r.markErr = nil
	r.marked = true
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryGiftTicketRepository.MarkValidated(ctx, ticketID, validatedBy, at)
}

func (r *flakyGiftRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.GiftTicket, error) {
	g, err := r.MemoryGiftTicketRepository.GetByTicketID(ctx, ticketID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil && g != nil && r.marked && r.afterMark != nil {
		r.afterMark(g)
	}
	return g, err
}
