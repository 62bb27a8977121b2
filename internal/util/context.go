package util

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey string

const clientIPKey contextKey = "client_ip"

// WithClientIP returns a context carrying the caller's IP. The audit pipeline
// reads it back through GetIPFromContext.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetIPFromContext extracts the client IP address from the context.
func GetIPFromContext(ctx context.Context) string {
	// A gin context resolves the IP itself (X-Forwarded-For aware)
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return ginCtx.ClientIP()
	}

	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}

	return ""
}
