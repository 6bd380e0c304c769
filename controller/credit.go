// Package controller holds the HTTP handlers of the credit API.
package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/middleware"
	"github.com/lumichat/credit/model"
)

// GetCreditConfig exposes the public bits the frontend needs to render the
// top-up dialog.
func GetCreditConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"CREDIT_EXCHANGE_RATIO": config.CreditExchangeRatio,
		"EZFP_PAY_PRIORITY":     config.EZFPPayPriority,
	})
}

// ListMyCreditLogs pages the calling user's own ledger. Without a page
// parameter only the ten most recent entries are returned.
func ListMyCreditLogs(c *gin.Context) {
	user := middleware.GetUser(c)

	offset, limit := 0, 10
	if page := parseInt(c.Query("page"), 0); page > 0 {
		limit = config.PageItemCount
		offset = (page - 1) * limit
	}

	logs, err := model.GetCreditLogsByPage([]string{user.Id}, offset, limit)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// ListAllCreditLogs is the admin ledger view: optional user keyword filter,
// usernames joined in memory.
func ListAllCreditLogs(c *gin.Context) {
	query := c.Query("query")
	page := parseInt(c.Query("page"), 1)
	limit := parseInt(c.Query("limit"), config.PageItemCount)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > config.MaxItemsPerPage {
		limit = config.PageItemCount
	}
	offset := (page - 1) * limit

	var userIDs []string
	userNames := map[string]string{}
	if query != "" {
		users, err := model.SearchUsers(query)
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, err)
			return
		}
		if len(users) == 0 {
			c.JSON(http.StatusOK, gin.H{"total": 0, "results": []*model.CreditLog{}})
			return
		}
		for _, u := range users {
			userIDs = append(userIDs, u.Id)
			userNames[u.Id] = u.Name()
		}
	}

	logs, err := model.GetCreditLogsByPage(userIDs, offset, limit)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	total, err := model.CountCreditLogs(userIDs)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	if query == "" {
		ids := make([]string, 0, len(logs))
		for _, entry := range logs {
			ids = append(ids, entry.UserId)
		}
		users, err := model.GetUsersByIds(ids)
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, err)
			return
		}
		for _, u := range users {
			userNames[u.Id] = u.Name()
		}
	}
	for _, entry := range logs {
		entry.Username = userNames[entry.UserId]
	}

	c.JSON(http.StatusOK, gin.H{"total": total, "results": logs})
}

type deleteLogsRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// DeleteCreditLogs prunes ledger entries older than the given timestamp.
func DeleteCreditLogs(c *gin.Context) {
	var req deleteLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Timestamp <= 0 {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("timestamp must be positive"))
		return
	}
	affected, err := model.DeleteCreditLogsBefore(req.Timestamp)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affect_rows": affected})
}
