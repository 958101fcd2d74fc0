package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prohmpiriya/eventgate/internal/dto"
	"github.com/prohmpiriya/eventgate/internal/ticketcode"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/middleware"
	"github.com/prohmpiriya/eventgate/pkg/response"
)

// TicketHandler renders scannable ticket codes
type TicketHandler struct {
	log *logger.Logger
}

// NewTicketHandler creates a new TicketHandler
func NewTicketHandler(log *logger.Logger) *TicketHandler {
	if log == nil {
		log = logger.Get()
	}
	return &TicketHandler{log: log}
}

// QRCode handles GET /tickets/:ticketId/qr - renders the scan payload as a PNG
func (h *TicketHandler) QRCode(c *gin.Context) {
	var query dto.TicketQRQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid query parameters"))
		return
	}

	payload := ticketcode.Payload{
		TicketID:  c.Param("ticketId"),
		EventID:   query.EventID,
		UserID:    query.UserID,
		BookingID: query.BookingID,
	}
	if payload.TicketID == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("Ticket ID is required"))
		return
	}
	if !payload.IsGift() && (payload.EventID == "" || payload.UserID == "") {
		c.JSON(http.StatusBadRequest, response.BadRequest("event_id and user_id are required for booking tickets"))
		return
	}

	png, err := ticketcode.RenderPNG(payload, query.Size)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("failed to render ticket code",
			zap.String("ticket_id", payload.TicketID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, response.InternalError("Failed to render ticket code"))
		return
	}

	middleware.SetAuditResource(c, "ticket", payload.TicketID)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
