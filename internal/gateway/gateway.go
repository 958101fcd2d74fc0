package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/prohmpiriya/eventgate/internal/domain"
)

// BankGateway is the read side of the bank payment gateway
type BankGateway interface {
	// GetOrderDetails retrieves the gateway's order record
	GetOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error)

	// GetOrderTransactions retrieves the order's transactions in gateway order, oldest first
	GetOrderTransactions(ctx context.Context, orderID string) (*TransactionList, error)

	// Name returns the gateway name
	Name() string
}

// Transaction is one gateway transaction. The gateway has been seen to use
// both status/statusCode and transactionStatus/transactionStatusCode.
type Transaction struct {
	TransactionID         FlexString `json:"transactionId"`
	Status                FlexString `json:"status"`
	TransactionStatus     FlexString `json:"transactionStatus"`
	StatusCode            FlexString `json:"statusCode"`
	TransactionStatusCode FlexString `json:"transactionStatusCode"`
	Amount                FlexString `json:"amount"`
	CreatedAt             FlexString `json:"createdAt"`
}

// TransactionList is the transactions endpoint payload
type TransactionList struct {
	OrderID      string        `json:"orderId"`
	Transactions []Transaction `json:"transactions"`
}

// Normalized is the status read from a transaction list
type Normalized struct {
	Status           string
	StatusCode       string
	TransactionCount int
}

// Normalize reads the last transaction.
// Status precedence: status, transactionStatus. Code precedence: statusCode, transactionStatusCode.
// Both are trimmed and upper-cased. A transaction with no status but the approval code 0000
// is SUCCESS; with any other code it is UNKNOWN. An empty or missing list is UNKNOWN with no code.
func Normalize(list *TransactionList) Normalized {
	if list == nil || len(list.Transactions) == 0 {
		return Normalized{Status: domain.RemoteStatusUnknown}
	}

	last := list.Transactions[len(list.Transactions)-1]
	n := Normalized{
		Status:           firstNonEmpty(last.Status, last.TransactionStatus),
		StatusCode:       firstNonEmpty(last.StatusCode, last.TransactionStatusCode),
		TransactionCount: len(list.Transactions),
	}
	switch {
	case n.Status != "":
	case n.StatusCode == domain.RemoteSuccessCode:
		n.Status = domain.RemoteStatusSuccess
	default:
		n.Status = domain.RemoteStatusUnknown
	}
	return n
}

func firstNonEmpty(values ...FlexString) string {
	for _, v := range values {
		if s := strings.ToUpper(strings.TrimSpace(string(v))); s != "" {
			return s
		}
	}
	return ""
}

// FlexString decodes a JSON string, number or boolean as its text. null is empty.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// Float parses the value as a number, zero when it is not one
func (f FlexString) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
	if err != nil {
		return 0
	}
	return v
}

// Time parses the value as RFC 3339, nil when it is not one
func (f FlexString) Time() *time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(f)))
	if err != nil {
		return nil
	}
	return &t
}

// orderPayload is the order details endpoint payload
type orderPayload struct {
	OrderID     FlexString `json:"orderId"`
	Status      FlexString `json:"status"`
	OrderStatus FlexString `json:"orderStatus"`
	Amount      FlexString `json:"amount"`
	Currency    FlexString `json:"currency"`
	CreatedAt   FlexString `json:"createdAt"`
}

func (p orderPayload) toDomain(fallbackID string) *domain.OrderDetails {
	id := strings.TrimSpace(string(p.OrderID))
	if id == "" {
		id = fallbackID
	}
	return &domain.OrderDetails{
		OrderID:   id,
		Status:    firstNonEmpty(p.Status, p.OrderStatus),
		Amount:    p.Amount.Float(),
		Currency:  strings.ToUpper(strings.TrimSpace(string(p.Currency))),
		CreatedAt: p.CreatedAt.Time(),
	}
}
