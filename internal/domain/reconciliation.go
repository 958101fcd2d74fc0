package domain

import (
	"strings"
	"time"
)

// ReconcileAction is the corrective action recommended for a booking
type ReconcileAction string

const (
	ActionNone              ReconcileAction = "none"
	ActionMarkPaidAndResend ReconcileAction = "markPaidAndResend"
	ActionMarkFailed        ReconcileAction = "markFailed"
)

// ParseReconcileAction accepts only the two applicable actions
func ParseReconcileAction(s string) (ReconcileAction, bool) {
	switch ReconcileAction(strings.TrimSpace(s)) {
	case ActionMarkPaidAndResend:
		return ActionMarkPaidAndResend, true
	case ActionMarkFailed:
		return ActionMarkFailed, true
	default:
		return "", false
	}
}

// RemoteStatusUnknown is the normalized status of an empty or missing transaction list
const RemoteStatusUnknown = "UNKNOWN"

// RemoteSuccessCode is the gateway's approval code
const RemoteSuccessCode = "0000"

// RemoteStatusSuccess is the status reported for an approved transaction that carries only a code
const RemoteStatusSuccess = "SUCCESS"

var (
	remoteSuccessStatuses = map[string]bool{"SUCCESS": true, "COMPLETED": true}
	remoteFailedStatuses  = map[string]bool{"FAILED": true, "DECLINED": true, "ERROR": true, "CANCELLED": true}
)

// OrderDetails is the gateway's view of an order, as far as reconciliation cares
type OrderDetails struct {
	OrderID   string     `json:"order_id"`
	Status    string     `json:"status,omitempty"`
	Amount    float64    `json:"amount,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// LocalSnapshot is the part of a booking compared against the gateway
type LocalSnapshot struct {
	BookingID        string     `json:"booking_id"`
	BookingReference string     `json:"booking_reference"`
	CustomerName     string     `json:"customer_name"`
	CustomerEmail    string     `json:"customer_email"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	OrderID          string     `json:"order_id,omitempty"`
	TransactionID    string     `json:"transaction_id,omitempty"`
	TotalAmount      float64    `json:"total_amount"`
	Currency         string     `json:"currency"`
	PaymentDate      *time.Time `json:"payment_date,omitempty"`
}

// SnapshotOf captures b for a reconciliation result
func SnapshotOf(b *Booking) *LocalSnapshot {
	if b == nil {
		return nil
	}
	s := &LocalSnapshot{
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		CustomerName:     b.CustomerName,
		CustomerEmail:    b.CustomerEmail,
		Status:           b.Status,
		PaymentStatus:    b.PaymentStatus,
		OrderID:          b.OrderID,
		TransactionID:    b.TransactionID,
		TotalAmount:      b.TotalAmount,
		Currency:         b.Currency,
	}
	if b.PaymentDate != nil {
		p := *b.PaymentDate
		s.PaymentDate = &p
	}
	return s
}

// RemoteSnapshot is the normalized gateway state of one order
type RemoteSnapshot struct {
	OrderID          string        `json:"order_id"`
	Status           string        `json:"status"`
	StatusCode       string        `json:"status_code,omitempty"`
	TransactionCount int           `json:"transaction_count"`
	Details          *OrderDetails `json:"details,omitempty"`
	Error            string        `json:"error,omitempty"`
	// TransactionsFetched is false when the transaction list could not be read
	TransactionsFetched bool `json:"transactions_fetched"`
}

// IsSuccess reports an approved payment: code 0000 or status SUCCESS/COMPLETED
func (r RemoteSnapshot) IsSuccess() bool {
	return r.StatusCode == RemoteSuccessCode || remoteSuccessStatuses[r.Status]
}

// IsFailed reports a terminal failure status
func (r RemoteSnapshot) IsFailed() bool {
	return !r.IsSuccess() && remoteFailedStatuses[r.Status]
}

// ReconciliationResult pairs local and remote views with the recommended correction. Never persisted.
type ReconciliationResult struct {
	Local             *LocalSnapshot  `json:"local"`
	Remote            RemoteSnapshot  `json:"remote"`
	RecommendedAction ReconcileAction `json:"recommended_action"`
	Discrepancy       bool            `json:"discrepancy"`
	// Inconclusive is set when the gateway could not be read; the action is then never guessed
	Inconclusive bool   `json:"inconclusive"`
	Error        string `json:"error,omitempty"`
}

// Recommend applies the decision table to a local booking and a normalized remote state.
// Without a local booking, or without a readable transaction list, nothing is recommended.
func Recommend(local *Booking, remote RemoteSnapshot) ReconcileAction {
	if local == nil || !remote.TransactionsFetched {
		return ActionNone
	}

	switch {
	case remote.IsSuccess() && !local.IsConfirmedAndPaid():
		return ActionMarkPaidAndResend
	case remote.IsFailed() && local.IsPending():
		return ActionMarkFailed
	default:
		return ActionNone
	}
}

// NewReconciliationResult derives action, discrepancy and inconclusiveness
func NewReconciliationResult(local *Booking, remote RemoteSnapshot) *ReconciliationResult {
	action := Recommend(local, remote)
	return &ReconciliationResult{
		Local:             SnapshotOf(local),
		Remote:            remote,
		RecommendedAction: action,
		Discrepancy:       action != ActionNone,
		Inconclusive:      local != nil && !remote.TransactionsFetched,
	}
}

// ApplyResult reports what the applier did
type ApplyResult struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	BookingID     string          `json:"booking_id"`
	Action        ReconcileAction `json:"action"`
	Changed       bool            `json:"changed"`
	ResendQueued  bool            `json:"resend_queued"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
}
