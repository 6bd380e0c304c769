package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// Status is the liveness probe.
func Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": ""})
}
