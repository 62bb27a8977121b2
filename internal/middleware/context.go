package middleware

import (
	"github.com/scribehub/scribegate/internal/util"

	"github.com/gin-gonic/gin"
)

// IPMiddleware resolves the caller's IP (X-Forwarded-For aware) once per
// request and threads it into the request context. Handlers pass services
// c.Request.Context(), not the gin context, so the audit trail's ActorIP
// depends on the value living there.
func IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		c.Set("client_ip", ip)
		c.Request = c.Request.WithContext(util.WithClientIP(c.Request.Context(), ip))
		c.Next()
	}
}
