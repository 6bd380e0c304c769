package controller

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/helper"
	"github.com/lumichat/credit/common/random"
	"github.com/lumichat/credit/middleware"
	"github.com/lumichat/credit/model"
)

// ListRedemptionCodes pages codes for the admin view, with usernames of the
// receivers joined in memory.
func ListRedemptionCodes(c *gin.Context) {
	keyword := c.Query("keyword")
	page := parseInt(c.Query("page"), 1)
	limit := parseInt(c.Query("limit"), config.PageItemCount)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > config.MaxItemsPerPage {
		limit = config.PageItemCount
	}

	total, codes, err := model.SearchRedemptionCodes(keyword, (page-1)*limit, limit)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if len(codes) == 0 {
		c.JSON(http.StatusOK, gin.H{"total": 0, "results": []*model.RedemptionCode{}})
		return
	}

	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		if code.UserId != "" {
			ids = append(ids, code.UserId)
		}
	}
	users, err := model.GetUsersByIds(ids)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.Id] = u.Name()
	}
	for _, code := range codes {
		code.Username = names[code.UserId]
	}

	c.JSON(http.StatusOK, gin.H{"total": total, "results": codes})
}

type createRedemptionCodesRequest struct {
	Purpose   string          `json:"purpose"`
	Count     int             `json:"count"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiredAt int64           `json:"expired_at"`
}

// CreateRedemptionCodes issues a batch of codes sharing purpose and amount.
func CreateRedemptionCodes(c *gin.Context) {
	var req createRedemptionCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}
	if req.Purpose == "" || len(req.Purpose) > 255 {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("purpose must be 1-255 characters"))
		return
	}
	if req.Count < 1 || req.Count > 1000 {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("count must be between 1 and 1000"))
		return
	}
	if !req.Amount.IsPositive() {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("amount must be positive"))
		return
	}
	now := helper.GetTimestamp()
	if req.ExpiredAt != 0 && req.ExpiredAt < now {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("expiration time must be in the future"))
		return
	}

	codes := make([]*model.RedemptionCode, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		codes = append(codes, &model.RedemptionCode{
			Code:      random.GetRedemptionCode(),
			Purpose:   req.Purpose,
			Amount:    req.Amount,
			CreatedAt: now,
			ExpiredAt: req.ExpiredAt,
		})
	}
	if err := model.InsertRedemptionCodes(codes); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(codes)})
}

type updateRedemptionCodeRequest struct {
	Purpose   string          `json:"purpose"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiredAt int64           `json:"expired_at"`
}

// UpdateRedemptionCode rewrites an unreceived code.
func UpdateRedemptionCode(c *gin.Context) {
	code, err := model.GetRedemptionCode(c.Param("code"))
	if err != nil {
		middleware.AbortWithError(c, http.StatusNotFound, errors.New("redemption code not found"))
		return
	}
	if code.Received() {
		middleware.AbortWithError(c, http.StatusBadRequest,
			errors.New("cannot update a code that has already been received"))
		return
	}

	var req updateRedemptionCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}
	if !req.Amount.IsPositive() {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("amount must be positive"))
		return
	}
	if req.ExpiredAt != 0 && req.ExpiredAt < helper.GetTimestamp() {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("expiration time must be in the future"))
		return
	}

	code.Purpose = req.Purpose
	code.Amount = req.Amount
	code.ExpiredAt = req.ExpiredAt
	if err := code.Update(); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteRedemptionCode removes an unreceived code.
func DeleteRedemptionCode(c *gin.Context) {
	if err := model.DeleteRedemptionCode(c.Param("code")); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExportRedemptionCodes streams the full keyword match set as CSV.
func ExportRedemptionCodes(c *gin.Context) {
	keyword := c.Query("keyword")
	_, codes, err := model.SearchRedemptionCodes(keyword, 0, 0)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	var sb strings.Builder
	sb.WriteString("Code,Purpose,Amount,User ID,Created At,Expired At,Received At\n")
	for _, code := range codes {
		sb.WriteString(strings.Join([]string{
			code.Code,
			fmt.Sprintf("%q", code.Purpose),
			code.Amount.String(),
			code.UserId,
			helper.FormatTimestamp(code.CreatedAt),
			helper.FormatTimestamp(code.ExpiredAt),
			helper.FormatTimestamp(code.ReceivedAt),
		}, ","))
		sb.WriteByte('\n')
	}

	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s.csv", url.QueryEscape(keyword)))
	c.Data(http.StatusOK, "text/csv", []byte(sb.String()))
}

// ReceiveRedemptionCode redeems a code for the calling user.
func ReceiveRedemptionCode(c *gin.Context) {
	user := middleware.GetUser(c)
	amount, err := model.ReceiveRedemptionCode(c.Param("code"), user.Id)
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "amount": amount})
}
