package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsMiddleware is the teacher's CORS handling, trimmed of the frontend's
// Auth0 coupling: the admin surface has no browser login flow, just a
// permissive preflight response for operator tooling running elsewhere.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
