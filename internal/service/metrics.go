package service

import (
	"sync"

	"github.com/prohmpiriya/eventgate/pkg/telemetry"
)

type serviceMetrics struct {
	validations     *telemetry.Counter
	reconciliations *telemetry.Counter
	applies         *telemetry.Counter
	gatewayLatency  *telemetry.Histogram
}

var (
	metricsOnce sync.Once
	metrics     *serviceMetrics
)

// getMetrics creates the instruments on first use. Instruments that fail to register stay nil and record nothing.
func getMetrics() *serviceMetrics {
	metricsOnce.Do(func() {
		m := &serviceMetrics{}
		m.validations, _ = telemetry.NewCounter(telemetry.MetricOpts{
			Name:        "eventgate_validations_total",
			Description: "Ticket validation decisions by outcome",
			Unit:        "{decision}",
		})
		m.reconciliations, _ = telemetry.NewCounter(telemetry.MetricOpts{
			Name:        "eventgate_reconciliations_total",
			Description: "Reconciliation results by recommended action",
			Unit:        "{result}",
		})
		m.applies, _ = telemetry.NewCounter(telemetry.MetricOpts{
			Name:        "eventgate_reconciliation_applies_total",
			Description: "Reconciliation actions applied by operators",
			Unit:        "{apply}",
		})
		m.gatewayLatency, _ = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
			Name:        "eventgate_gateway_latency_ms",
			Description: "Bank gateway call latency",
			Unit:        "ms",
		}, []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000})
		metrics = m
	})
	return metrics
}
