package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderDeviceID identifies the scanning device
const HeaderDeviceID = "X-Device-ID"

// ClientIP extracts the client IP address, honouring proxy headers
func ClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}

	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return ip
}
