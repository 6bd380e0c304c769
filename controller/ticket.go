package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/logger"
	"github.com/lumichat/credit/common/metrics"
	"github.com/lumichat/credit/common/random"
	"github.com/lumichat/credit/middleware"
	"github.com/lumichat/credit/model"
	"github.com/lumichat/credit/payment/ezfp"
)

type createTicketRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	PayType string          `json:"pay_type"`
}

// CreateTradeTicket opens a checkout with the payment gateway and records the
// pending ticket. The gateway's response is stored verbatim in the ticket
// detail and forwarded to the frontend.
func CreateTradeTicket(c *gin.Context) {
	user := middleware.GetUser(c)

	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.Wrap(err, "parse ticket request"))
		return
	}
	if !req.Amount.IsPositive() {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("amount must be positive"))
		return
	}

	outTradeNo := random.GetTradeNo()
	detail, err := ezfp.CreateTrade(c.Request.Context(), req.PayType, outTradeNo,
		req.Amount, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	ticket, err := model.InsertTicket(outTradeNo, user.Id, req.Amount, detail)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// TicketCallback is the gateway webhook. Responses are plain text because the
// provider retries on non-200; verification failures and unknown tickets are
// acknowledged with a body, not an HTTP error. Crediting is idempotent per
// ticket: replays of the same successful callback answer "success" without a
// second credit.
func TicketCallback(c *gin.Context) {
	_ = c.Request.ParseForm()
	callback := make(map[string]string, len(c.Request.Form))
	for key := range c.Request.Form {
		callback[key] = c.Request.Form.Get(key)
	}

	if !ezfp.Verify(callback) {
		metrics.GlobalRecorder.RecordPaymentCallback("invalid_signature")
		c.String(http.StatusOK, "invalid signature")
		return
	}
	if callback["trade_status"] != "TRADE_SUCCESS" {
		metrics.GlobalRecorder.RecordPaymentCallback("not_success")
		c.String(http.StatusOK, "success")
		return
	}

	ticket, err := model.GetTicketById(callback["out_trade_no"])
	if err != nil {
		metrics.GlobalRecorder.RecordPaymentCallback("no_ticket")
		c.String(http.StatusOK, "no ticket fount")
		return
	}
	if ticket.Completed() {
		metrics.GlobalRecorder.RecordPaymentCallback("replay")
		c.String(http.StatusOK, "success")
		return
	}

	detail := make(map[string]any, len(callback))
	for k, v := range callback {
		detail[k] = v
	}
	if _, err := ticket.Seal(detail); err != nil {
		// Non-200 so the provider retries the notification.
		metrics.GlobalRecorder.RecordPaymentCallback("seal_failed")
		logger.Logger.Error("seal payment ticket",
			zap.String("ticket", ticket.Id), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	metrics.GlobalRecorder.RecordPaymentCallback("credited")
	c.String(http.StatusOK, "success")
}

// TicketCallbackRedirect bounces the payer's browser back to the platform.
func TicketCallbackRedirect(c *gin.Context) {
	c.Redirect(http.StatusFound, config.EZFPCallbackHost)
}
