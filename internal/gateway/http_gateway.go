package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/pkg/telemetry"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx gateway response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
}

// Config holds the HTTP gateway settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPBankGateway implements BankGateway over the gateway's REST API
type HTTPBankGateway struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPBankGateway creates a new HTTP gateway client
func NewHTTPBankGateway(cfg Config) *HTTPBankGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPBankGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the gateway name
func (g *HTTPBankGateway) Name() string {
	return "bank"
}

// GetOrderDetails fetches GET /orders/{orderId}
func (g *HTTPBankGateway) GetOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.get_order_details",
		trace.WithAttributes(telemetry.GatewayNameAttr(g.Name()), telemetry.OrderIDAttr(orderID)))
	defer span.End()

	body, err := g.get(ctx, "/orders/"+url.PathEscape(orderID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var payload orderPayload
	if err := decodeEnveloped(body, &payload); err != nil {
		err = fmt.Errorf("failed to decode order details: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return payload.toDomain(orderID), nil
}

// GetOrderTransactions fetches GET /orders/{orderId}/transactions
func (g *HTTPBankGateway) GetOrderTransactions(ctx context.Context, orderID string) (*TransactionList, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.get_order_transactions",
		trace.WithAttributes(telemetry.GatewayNameAttr(g.Name()), telemetry.OrderIDAttr(orderID)))
	defer span.End()

	body, err := g.get(ctx, "/orders/"+url.PathEscape(orderID)+"/transactions")
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	list, err := decodeTransactions(body)
	if err != nil {
		err = fmt.Errorf("failed to decode transactions: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if list.OrderID == "" {
		list.OrderID = orderID
	}
	return list, nil
}

func (g *HTTPBankGateway) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// decodeEnveloped accepts either the bare object or {"data": {...}}
func decodeEnveloped(body []byte, v interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		return json.Unmarshal(envelope.Data, v)
	}
	return json.Unmarshal(body, v)
}

// decodeTransactions accepts a bare array, {"transactions": [...]} or either inside {"data": ...}
func decodeTransactions(body []byte) (*TransactionList, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		body = envelope.Data
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var txs []Transaction
		if err := json.Unmarshal(body, &txs); err != nil {
			return nil, err
		}
		return &TransactionList{Transactions: txs}, nil
	}

	var list TransactionList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// NoOpBankGateway is used when no gateway is configured. Every call fails, so reconciliation degrades instead of guessing.
type NoOpBankGateway struct{}

// NewNoOpBankGateway creates a new no-op gateway
func NewNoOpBankGateway() *NoOpBankGateway {
	return &NoOpBankGateway{}
}

// ErrNotConfigured is returned by NoOpBankGateway
var ErrNotConfigured = errors.New("bank gateway is not configured")

// Name returns the gateway name
func (g *NoOpBankGateway) Name() string {
	return "noop"
}

// GetOrderDetails always fails
func (g *NoOpBankGateway) GetOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	return nil, ErrNotConfigured
}

// GetOrderTransactions always fails
func (g *NoOpBankGateway) GetOrderTransactions(ctx context.Context, orderID string) (*TransactionList, error) {
	return nil, ErrNotConfigured
}
