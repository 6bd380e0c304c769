package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/lumichat/credit/controller"
	"github.com/lumichat/credit/middleware"
)

// SetApiRouter mounts the credit API under /api. The payment callback is
// registered for both GET and POST because gateways differ in how they
// deliver notifications.
func SetApiRouter(server *gin.Engine) {
	api := server.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	api.Use(cors.Default())

	api.GET("/status", controller.Status)

	credit := api.Group("/credit")
	{
		credit.GET("/config", controller.GetCreditConfig)

		credit.GET("/logs", middleware.UserAuth(), controller.ListMyCreditLogs)
		credit.DELETE("/logs", middleware.AdminAuth(), controller.DeleteCreditLogs)
		credit.GET("/all_logs", middleware.AdminAuth(), controller.ListAllCreditLogs)

		credit.POST("/tickets", middleware.UserAuth(), controller.CreateTradeTicket)
		credit.GET("/callback", controller.TicketCallback)
		credit.POST("/callback", controller.TicketCallback)
		credit.GET("/callback/redirect", controller.TicketCallbackRedirect)

		credit.GET("/models/price", middleware.AdminAuth(), controller.GetModelPrices)
		credit.PUT("/models/price", middleware.AdminAuth(), controller.UpdateModelPrices)

		credit.POST("/statistics", middleware.AdminAuth(), controller.GetStatistics)

		credit.GET("/redemption_codes", middleware.AdminAuth(), controller.ListRedemptionCodes)
		credit.POST("/redemption_codes", middleware.AdminAuth(), controller.CreateRedemptionCodes)
		credit.GET("/redemption_codes/export", middleware.AdminAuth(), controller.ExportRedemptionCodes)
		credit.PUT("/redemption_codes/:code", middleware.AdminAuth(), controller.UpdateRedemptionCode)
		credit.DELETE("/redemption_codes/:code", middleware.AdminAuth(), controller.DeleteRedemptionCode)
		credit.GET("/redemption_codes/:code/receive", middleware.UserAuth(), controller.ReceiveRedemptionCode)
	}
}
