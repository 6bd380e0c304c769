package middleware

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/lumichat/credit/common/graceful"
)

// RequestTracker counts in-flight requests for shutdown draining and refuses
// new work once draining has started.
func RequestTracker() gin.HandlerFunc {
	return func(c *gin.Context) {
		if graceful.IsDraining() {
			AbortWithError(c, http.StatusServiceUnavailable, errors.New("server is shutting down"))
			return
		}
		defer graceful.BeginRequest()()
		c.Next()
	}
}
