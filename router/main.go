package router

import (
	"github.com/gin-gonic/gin"
)

// SetRouter registers every route group on the server.
func SetRouter(server *gin.Engine) {
	SetApiRouter(server)
}
