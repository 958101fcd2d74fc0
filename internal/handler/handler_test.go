package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/gateway"
	"github.com/prohmpiriya/eventgate/internal/repository"
	"github.com/prohmpiriya/eventgate/internal/service"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/middleware"
)

const testSecret = "handler-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct {
	transactions map[string][]gateway.Transaction
	err          error
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) GetOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &domain.OrderDetails{OrderID: orderID, Status: "PAID"}, nil
}

func (g *stubGateway) GetOrderTransactions(ctx context.Context, orderID string) (*gateway.TransactionList, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.TransactionList{OrderID: orderID, Transactions: g.transactions[orderID]}, nil
}

type testEnv struct {
	router   *gin.Engine
	bookings *repository.MemoryBookingRepository
	logs     *repository.MemoryValidationLogRepository
	gateway  *stubGateway
	audit    *middleware.MemoryAuditSink
	auditLog *middleware.AuditLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	env := &testEnv{
		bookings: repository.NewMemoryBookingRepository(),
		logs:     repository.NewMemoryValidationLogRepository(),
		gateway:  &stubGateway{transactions: map[string][]gateway.Transaction{}},
		audit:    middleware.NewMemoryAuditSink(),
	}

	today := domain.CalendarDateOf(time.Now(), time.UTC)
	ctx := context.Background()
	require.NoError(t, env.bookings.Create(ctx, &domain.Booking{
		ID: "B1", EventID: "E1", EventDate: today, UserID: "U1", CustomerName: "Ana",
		Status: domain.BookingStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid,
		Tickets: []domain.Ticket{{TicketID: "T1"}},
	}))
	require.NoError(t, env.bookings.Create(ctx, &domain.Booking{
		ID: "B2", EventID: "E1", EventDate: today, UserID: "U2", CustomerName: "Ben", OrderID: "ORD-2",
		Status: domain.BookingStatusPending, PaymentStatus: domain.PaymentStatusPending,
		Tickets: []domain.Ticket{{TicketID: "T2"}},
	}))

	policy := domain.ValidationPolicy{QREnabled: true, ScannerEnabled: false, RequireValidatorRole: true, ScanTimeWindowDays: 1, Location: time.UTC}
	validationSvc := service.NewValidationService(service.ValidationServiceConfig{
		Bookings: env.bookings,
		Gifts:    repository.NewMemoryGiftTicketRepository(),
		Logs:     env.logs,
		Policies: service.NewStaticPolicyProvider(policy),
		Logger:   log,
	})
	reconcileSvc := service.NewReconciliationService(service.ReconciliationServiceConfig{
		Bookings: env.bookings,
		Gateway:  env.gateway,
		Logger:   log,
	})

	auditCfg := middleware.DefaultAuditConfig(env.audit)
	auditCfg.Logger = log
	auditCfg.BatchSize = 1
	env.auditLog = middleware.NewAuditLogger(auditCfg)
	t.Cleanup(func() { _ = env.auditLog.Close() })

	env.router = NewRouter(&RouterConfig{
		JWT:            &middleware.JWTConfig{Secret: testSecret},
		CORS:           middleware.DefaultCORSConfig(),
		Audit:          env.auditLog,
		Health:         NewHealthHandler(map[string]HealthCheck{"postgres": func(context.Context) error { return nil }}),
		Validation:     NewValidationHandler(validationSvc, log),
		Reconciliation: NewReconciliationHandler(reconcileSvc, log),
		Ticket:         NewTicketHandler(log),
	})
	return env
}

func token(userID, role string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"name":    "Test " + userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, _ := tok.SignedString([]byte(testSecret))
	return s
}

func (env *testEnv) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderDeviceID, "gate-1")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
}

func TestReady_FailingDependency(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
		"none":  nil,
	})
	r := gin.New()
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.NotContains(t, w.Body.String(), "none")
}

func TestValidate_AdmitThenReject(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{
		"payload": map[string]string{"ticketId": "T1", "eventId": "E1", "userId": "U1"},
	}

	w := env.do(http.MethodPost, "/api/v1/validations", token("V1", "validator"), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.True(t, res.Success)

	var result domain.ValidationResult
	require.NoError(t, json.Unmarshal(res.Data, &result))
	assert.True(t, result.Ticket.IsUsed)
	assert.NotEmpty(t, result.LogID)

	w = env.do(http.MethodPost, "/api/v1/validations", token("V1", "validator"), body)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode(t, w)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "ALREADY_VALIDATED", res.Error.Code)
	assert.Contains(t, res.Error.Message, "already validated")

	entries := env.logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "gate-1", entries[0].Device.DeviceID)
	assert.Equal(t, domain.ScanSourceQR, entries[0].Source)

	w = env.do(http.MethodGet, "/api/v1/validations/tickets/T1?limit=10", token("A1", "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"validated"`)
	assert.Contains(t, w.Body.String(), `"status":"rejected"`)
}

func TestValidate_Base64PayloadString(t *testing.T) {
	env := newTestEnv(t)
	// base64 of {"ticketId":"T1","eventId":"E1","userId":"U1"}
	body := map[string]string{"payload": "eyJ0aWNrZXRJZCI6IlQxIiwiZXZlbnRJZCI6IkUxIiwidXNlcklkIjoiVTEifQ=="}

	w := env.do(http.MethodPost, "/api/v1/validations", token("V1", "validator"), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode(t, w).Success)
}

func TestValidate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		bearer string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "no token",
			body:   map[string]interface{}{"payload": "x"},
			status: http.StatusUnauthorized,
			code:   "MISSING_TOKEN",
		},
		{
			name:   "customer role",
			bearer: token("U1", "customer"),
			body:   map[string]interface{}{"payload": map[string]string{"ticketId": "T1", "eventId": "E1", "userId": "U1"}},
			status: http.StatusForbidden,
			code:   "FORBIDDEN",
		},
		{
			name:   "missing payload",
			bearer: token("V1", "validator"),
			body:   map[string]interface{}{},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "bad validation date",
			bearer: token("V1", "validator"),
			body:   map[string]interface{}{"payload": "x", "validation_date": "tomorrow"},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "undecodable payload",
			bearer: token("V1", "validator"),
			body:   map[string]interface{}{"payload": "not a ticket"},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "ownership mismatch",
			bearer: token("V1", "validator"),
			body:   map[string]interface{}{"payload": map[string]string{"ticketId": "T1", "eventId": "E1", "userId": "U9", "bookingId": "B1"}},
			status: http.StatusForbidden,
			code:   "INVALID_OWNERSHIP",
		},
		{
			name:   "booking not confirmed",
			bearer: token("V1", "validator"),
			body:   map[string]interface{}{"payload": map[string]string{"ticketId": "T2", "eventId": "E1", "userId": "U2"}},
			status: http.StatusUnprocessableEntity,
			code:   "BOOKING_NOT_CONFIRMED",
		},
		{
			name:   "unknown ticket",
			bearer: token("V1", "validator"),
			body:   map[string]interface{}{"payload": map[string]string{"ticketId": "T404", "eventId": "E1", "userId": "U1"}},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "scanner source disabled",
			bearer: token("V1", "validator"),
			body:   map[string]interface{}{"payload": map[string]string{"ticketId": "T1", "eventId": "E1", "userId": "U1"}, "source": "scanner"},
			status: http.StatusServiceUnavailable,
			code:   "VALIDATION_DISABLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(http.MethodPost, "/api/v1/validations", tt.bearer, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			res := decode(t, w)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.Empty(t, env.logs.All())
		})
	}
}

func TestValidate_BookingNotConfirmedDetails(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{"payload": map[string]string{"ticketId": "T2", "eventId": "E1", "userId": "U2"}}

	w := env.do(http.MethodPost, "/api/v1/validations", token("V1", "admin"), body)
	res := decode(t, w)
	require.NotNil(t, res.Error)
	assert.Equal(t, "pending", res.Error.Details["status"])
	assert.Equal(t, "pending", res.Error.Details["payment_status"])
}

func TestReconciliation_AdminOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/reconciliations?booking_id=B2", token("V1", "validator"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/api/v1/reconciliations/apply", token("V1", "validator"), map[string]interface{}{"booking_id": "B2", "action": "markFailed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	b, _ := env.bookings.GetByID(context.Background(), "B2")
	assert.Equal(t, domain.BookingStatusPending, b.Status)
}

func TestReconciliation_CheckAndApply(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.transactions["ORD-2"] = []gateway.Transaction{{StatusCode: "0000"}}
	admin := token("A1", "admin")

	w := env.do(http.MethodGet, "/api/v1/reconciliations?booking_id=B2", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch ReconciliationBatchResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &batch))
	require.Len(t, batch.Results, 1)
	assert.Equal(t, domain.ActionMarkPaidAndResend, batch.Results[0].RecommendedAction)
	assert.Equal(t, 1, batch.Summary.Discrepancies)

	w = env.do(http.MethodPost, "/api/v1/reconciliations/apply", admin, map[string]interface{}{
		"booking_id": "B2",
		"action":     "markPaidAndResend",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var applied domain.ApplyResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &applied))
	assert.True(t, applied.Changed)
	assert.Equal(t, domain.PaymentStatusPaid, applied.PaymentStatus)

	require.NoError(t, env.auditLog.Close())
	entries := env.audit.Entries()
	require.Len(t, entries, 2)
	apply := entries[1]
	assert.Equal(t, middleware.AuditActionReconcileApply, apply.Action)
	assert.Equal(t, "booking", apply.ResourceType)
	assert.Equal(t, "B2", apply.ResourceID)
	assert.Equal(t, "A1", apply.UserID)
}

func TestReconciliation_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	admin := token("A1", "admin")

	w := env.do(http.MethodGet, "/api/v1/reconciliations", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/reconciliations?booking_id=B1&order_id=ORD-2", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/reconciliations?booking_id=B404", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/reconciliations/apply", admin, map[string]interface{}{"booking_id": "B2", "action": "none"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/reconciliations/apply", admin, map[string]interface{}{"booking_id": "B404", "action": "markFailed"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconciliation_ScanPendingDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = errors.New("gateway timeout")

	w := env.do(http.MethodPost, "/api/v1/reconciliations/scan-pending", token("A1", "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var batch ReconciliationBatchResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &batch))
	require.Len(t, batch.Results, 1)
	assert.Equal(t, 1, batch.Summary.Inconclusive)
	assert.Contains(t, batch.Results[0].Remote.Error, "gateway timeout")
}

func TestTicketQRCode(t *testing.T) {
	env := newTestEnv(t)
	admin := token("A1", "admin")

	w := env.do(http.MethodGet, "/api/v1/tickets/T1/qr?event_id=E1&user_id=U1&booking_id=B1&size=128", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	w = env.do(http.MethodGet, "/api/v1/tickets/T1/qr", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/tickets/GIFT-1/qr", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.NewError(domain.ErrNotReady, "gift pending"), "NOT_READY"},
		{domain.NewError(domain.ErrUnauthorized, "who"), "UNAUTHORIZED"},
		{gateway.ErrNotConfigured, "SERVICE_UNAVAILABLE"},
		{errors.New("boom"), "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err))
	}
}
