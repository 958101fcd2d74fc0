package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/pkg/middleware"
)

// callerFromContext builds the caller from the JWT claims set by the auth middleware
func callerFromContext(c *gin.Context) domain.Caller {
	var caller domain.Caller
	caller.ID, _ = middleware.GetUserID(c)
	caller.Name, _ = middleware.GetName(c)
	caller.Role, _ = middleware.GetRole(c)
	return caller
}

func deviceFromContext(c *gin.Context) domain.DeviceInfo {
	return domain.DeviceInfo{
		DeviceID:  c.GetHeader(middleware.HeaderDeviceID),
		IPAddress: middleware.ClientIP(c),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
