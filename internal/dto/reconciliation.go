package dto

import "strings"

// MaxReconcileBatch bounds customer-name and pending sweeps
const MaxReconcileBatch = 50

// ReconcileQuery selects exactly one reconciliation mode
type ReconcileQuery struct {
	BookingID    string `form:"booking_id"`
	OrderID      string `form:"order_id"`
	CustomerName string `form:"customer_name"`
}

// Validate checks that exactly one mode is selected
func (q *ReconcileQuery) Validate() (bool, string) {
	n := 0
	for _, v := range []string{q.BookingID, q.OrderID, q.CustomerName} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	if n != 1 {
		return false, "Exactly one of booking_id, order_id or customer_name is required"
	}
	return true, ""
}

// ScanPendingRequest starts a sweep over pending bookings
type ScanPendingRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=50"`
}

// SetDefaults sets default values
func (r *ScanPendingRequest) SetDefaults() {
	if r.Limit == 0 {
		r.Limit = MaxReconcileBatch
	}
}

// ApplyReconciliationRequest confirms a recommended action for one booking
type ApplyReconciliationRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
	Action    string `json:"action" binding:"required"`
	Resend    bool   `json:"resend"`
}

// ReconciliationSummary counts the outcomes of a batch
type ReconciliationSummary struct {
	Total         int `json:"total"`
	Discrepancies int `json:"discrepancies"`
	Inconclusive  int `json:"inconclusive"`
}
