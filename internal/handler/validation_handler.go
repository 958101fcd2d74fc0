package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/dto"
	"github.com/prohmpiriya/eventgate/internal/service"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/middleware"
	"github.com/prohmpiriya/eventgate/pkg/response"
)

// ValidationHandler handles ticket admission requests
type ValidationHandler struct {
	validationService service.ValidationService
	log               *logger.Logger
}

// NewValidationHandler creates a new ValidationHandler
func NewValidationHandler(validationService service.ValidationService, log *logger.Logger) *ValidationHandler {
	if log == nil {
		log = logger.Get()
	}
	return &ValidationHandler{
		validationService: validationService,
		log:               log,
	}
}

// Validate handles POST /validations - admits or rejects one scanned ticket
func (h *ValidationHandler) Validate(c *gin.Context) {
	var req dto.ValidateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}

	validationDate, err := req.ParseValidationDate()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("validation_date must be YYYY-MM-DD"))
		return
	}

	source := domain.ScanSource(req.Source)
	if source == "" {
		source = domain.ScanSourceQR
	}

	result, err := h.validationService.Validate(c.Request.Context(), &service.ValidateRequest{
		Payload:        req.PayloadString(),
		ValidationDate: validationDate,
		Caller:         callerFromContext(c),
		Source:         source,
		ValidationType: domain.ParseValidationType(req.ValidationType),
		Device:         deviceFromContext(c),
	})
	if err != nil {
		respondError(c, h.log, err, "Failed to validate ticket")
		return
	}

	if result.Ticket != nil {
		middleware.SetAuditResource(c, "ticket", result.Ticket.TicketID)
	}

	if !result.Success {
		c.JSON(http.StatusOK, response.Rejected(strings.ToUpper(string(result.Reason)), result.Message, result))
		return
	}
	c.JSON(http.StatusOK, response.Success(result))
}

// ListTicketValidations handles GET /validations/tickets/:ticketId - a ticket's validation history
func (h *ValidationHandler) ListTicketValidations(c *gin.Context) {
	ticketID := c.Param("ticketId")
	if ticketID == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("Ticket ID is required"))
		return
	}

	var query dto.ValidationHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid query parameters"))
		return
	}
	query.SetDefaults()

	entries, err := h.validationService.ListTicketValidations(c.Request.Context(), ticketID, query.Limit)
	if err != nil {
		respondError(c, h.log, err, "Failed to list validations")
		return
	}

	out := make([]*dto.ValidationLogResponse, len(entries))
	for i, e := range entries {
		out[i] = dto.ToValidationLogResponse(e)
	}
	c.JSON(http.StatusOK, response.List(out, len(out), query.Limit))
}
