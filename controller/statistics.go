package controller

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/helper"
	"github.com/lumichat/credit/middleware"
	"github.com/lumichat/credit/model"
)

type statisticsRequest struct {
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
}

type pieSlice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// GetStatistics folds the ledger window into usage aggregates and the ticket
// window into a daily payment series.
func GetStatistics(c *gin.Context) {
	var req statisticsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StartTime <= 0 || req.EndTime <= req.StartTime {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("invalid time window"))
		return
	}

	logs, err := model.GetCreditLogsByTime(req.StartTime, req.EndTime)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	tickets, err := model.GetTicketsByTime(req.StartTime, req.EndTime)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	userNames, err := model.GetUserNameMap()
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	totalTokens := 0
	totalCredit := 0.0
	modelCost := map[string]float64{}
	modelTokens := map[string]int{}
	userCost := map[string]float64{}
	userTokens := map[string]int{}
	var modelOrder, userOrder []string

	for _, entry := range logs {
		detail := entry.ParsedDetail()
		if detail.Usage == nil {
			continue
		}
		modelID, _ := detail.APIParams.Model["id"].(string)
		if modelID == "" {
			continue
		}

		totalTokens += detail.Usage.TotalTokens
		totalCredit += detail.Usage.TotalPrice

		if _, seen := modelCost[modelID]; !seen {
			modelOrder = append(modelOrder, modelID)
		}
		modelCost[modelID] += detail.Usage.TotalPrice
		modelTokens[modelID] += detail.Usage.TotalTokens

		name := userNames[entry.UserId]
		if name == "" {
			name = entry.UserId
		}
		userKey := entry.UserId + ":" + name
		if _, seen := userCost[userKey]; !seen {
			userOrder = append(userOrder, userKey)
		}
		userCost[userKey] += detail.Usage.TotalPrice
		userTokens[userKey] += detail.Usage.TotalTokens
	}

	totalPayment := decimal.Zero
	paymentByDay := map[string]decimal.Decimal{}
	var paymentDays []string
	for _, ticket := range tickets {
		callback, _ := ticket.Detail["callback"].(map[string]any)
		if callback == nil {
			continue
		}
		if status, _ := callback["trade_status"].(string); status != "TRADE_SUCCESS" {
			continue
		}
		day := helper.DayKey(ticket.CreatedAt)
		if _, seen := paymentByDay[day]; !seen {
			paymentDays = append(paymentDays, day)
		}
		paymentByDay[day] = paymentByDay[day].Add(ticket.Amount)
		totalPayment = totalPayment.Add(ticket.Amount)
	}

	modelCostPie := make([]pieSlice, 0, len(modelOrder))
	modelTokenPie := make([]pieSlice, 0, len(modelOrder))
	for _, id := range modelOrder {
		modelCostPie = append(modelCostPie, pieSlice{Name: id, Value: modelCost[id]})
		modelTokenPie = append(modelTokenPie, pieSlice{Name: id, Value: float64(modelTokens[id])})
	}
	userCostPie := make([]pieSlice, 0, len(userOrder))
	userTokenPie := make([]pieSlice, 0, len(userOrder))
	for _, key := range userOrder {
		// strip the id prefix, charts only show the name
		name := key
		if idx := strings.IndexByte(key, ':'); idx >= 0 {
			name = key[idx+1:]
		}
		userCostPie = append(userCostPie, pieSlice{Name: name, Value: userCost[key]})
		userTokenPie = append(userTokenPie, pieSlice{Name: name, Value: float64(userTokens[key])})
	}

	paymentX := make([]string, 0, len(paymentDays))
	paymentY := make([]decimal.Decimal, 0, len(paymentDays))
	for _, day := range paymentDays {
		paymentX = append(paymentX, day)
		paymentY = append(paymentY, paymentByDay[day])
	}

	c.JSON(http.StatusOK, gin.H{
		"total_tokens":         totalTokens,
		"total_credit":         totalCredit,
		"model_cost_pie":       modelCostPie,
		"model_token_pie":      modelTokenPie,
		"user_cost_pie":        userCostPie,
		"user_token_pie":       userTokenPie,
		"total_payment":        totalPayment,
		"user_payment_stats_x": paymentX,
		"user_payment_stats_y": paymentY,
	})
}
