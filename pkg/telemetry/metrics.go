package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricOpts holds options for creating metrics
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter wraps an OTel counter
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a new counter metric
func NewCounter(opts MetricOpts) (*Counter, error) {
	counter, err := GetMeter().Int64Counter(
		opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{counter: counter}, nil
}

// Add increments the counter by value
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increments the counter by 1
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Histogram wraps an OTel histogram
type Histogram struct {
	histogram metric.Float64Histogram
}

// NewHistogramWithBuckets creates a histogram with explicit bucket boundaries
func NewHistogramWithBuckets(opts MetricOpts, boundaries []float64) (*Histogram, error) {
	histogram, err := GetMeter().Float64Histogram(
		opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
		metric.WithExplicitBucketBoundaries(boundaries...),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{histogram: histogram}, nil
}

// Record records a value in the histogram
func (h *Histogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// Attribute keys shared by spans and metrics
const (
	AttrTicketID          = "ticket.id"
	AttrBookingID         = "booking.id"
	AttrEventID           = "event.id"
	AttrOrderID           = "order.id"
	AttrCallerRole        = "caller.role"
	AttrValidationSource  = "validation.source"
	AttrValidationOutcome = "validation.outcome"
	AttrReconcileAction   = "reconcile.action"
	AttrReconcileMode     = "reconcile.mode"
	AttrGatewayName       = "gateway.name"
	AttrGatewayOperation  = "gateway.operation"
	AttrErrorType         = "error.type"
)

func TicketIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrTicketID, id)
}

func BookingIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrBookingID, id)
}

func EventIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrEventID, id)
}

func OrderIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrOrderID, id)
}

func CallerRoleAttr(role string) attribute.KeyValue {
	return attribute.String(AttrCallerRole, role)
}

func ValidationSourceAttr(source string) attribute.KeyValue {
	return attribute.String(AttrValidationSource, source)
}

func ValidationOutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(AttrValidationOutcome, outcome)
}

func ReconcileActionAttr(action string) attribute.KeyValue {
	return attribute.String(AttrReconcileAction, action)
}

func ReconcileModeAttr(mode string) attribute.KeyValue {
	return attribute.String(AttrReconcileMode, mode)
}

func GatewayNameAttr(name string) attribute.KeyValue {
	return attribute.String(AttrGatewayName, name)
}

func GatewayOperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrGatewayOperation, op)
}

func ErrorTypeAttr(errType string) attribute.KeyValue {
	return attribute.String(AttrErrorType, errType)
}
