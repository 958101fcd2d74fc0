package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/dto"
	"github.com/prohmpiriya/eventgate/internal/service"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/middleware"
	"github.com/prohmpiriya/eventgate/pkg/response"
)

// ReconciliationHandler handles operator reconciliation requests
type ReconciliationHandler struct {
	reconciliationService service.ReconciliationService
	log                   *logger.Logger
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService service.ReconciliationService, log *logger.Logger) *ReconciliationHandler {
	if log == nil {
		log = logger.Get()
	}
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		log:                   log,
	}
}

// ReconciliationBatchResponse wraps the results of one reconciliation call
type ReconciliationBatchResponse struct {
	Results []*domain.ReconciliationResult `json:"results"`
	Summary dto.ReconciliationSummary      `json:"summary"`
}

func newBatchResponse(results []*domain.ReconciliationResult) *ReconciliationBatchResponse {
	out := &ReconciliationBatchResponse{Results: results}
	if out.Results == nil {
		out.Results = []*domain.ReconciliationResult{}
	}
	out.Summary.Total = len(results)
	for _, r := range results {
		if r.Discrepancy {
			out.Summary.Discrepancies++
		}
		if r.Inconclusive {
			out.Summary.Inconclusive++
		}
	}
	return out
}

// Reconcile handles GET /reconciliations - compares bookings with the bank gateway
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	var query dto.ReconcileQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid query parameters"))
		return
	}
	if valid, msg := query.Validate(); !valid {
		c.JSON(http.StatusBadRequest, response.BadRequest(msg))
		return
	}

	results, err := h.reconciliationService.Reconcile(c.Request.Context(), &service.ReconcileRequest{
		BookingID:    query.BookingID,
		OrderID:      query.OrderID,
		CustomerName: query.CustomerName,
	})
	if err != nil {
		respondError(c, h.log, err, "Failed to reconcile")
		return
	}

	c.JSON(http.StatusOK, response.Success(newBatchResponse(results)))
}

// ScanPending handles POST /reconciliations/scan-pending - sweeps pending bookings
func (h *ReconciliationHandler) ScanPending(c *gin.Context) {
	var req dto.ScanPendingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
			return
		}
	}
	req.SetDefaults()

	results, err := h.reconciliationService.ReconcilePending(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, h.log, err, "Failed to scan pending bookings")
		return
	}

	resp := newBatchResponse(results)
	middleware.SetAuditMetadata(c, map[string]interface{}{
		"total":         resp.Summary.Total,
		"discrepancies": resp.Summary.Discrepancies,
	})
	c.JSON(http.StatusOK, response.Success(resp))
}

// Apply handles POST /reconciliations/apply - executes a confirmed corrective action
func (h *ReconciliationHandler) Apply(c *gin.Context) {
	var req dto.ApplyReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}

	middleware.SetAuditResource(c, "booking", req.BookingID)
	middleware.SetAuditMetadata(c, map[string]interface{}{
		"action": req.Action,
		"resend": req.Resend,
	})

	result, err := h.reconciliationService.Apply(c.Request.Context(), &service.ApplyRequest{
		BookingID: req.BookingID,
		Action:    req.Action,
		Resend:    req.Resend,
		Operator:  callerFromContext(c),
	})
	if err != nil {
		respondError(c, h.log, err, "Failed to apply reconciliation")
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}
