package controller

import (
	"net/http"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/lumichat/credit/common/logger"
	"github.com/lumichat/credit/middleware"
	"github.com/lumichat/credit/model"
)

// GetModelPrices lists the price maps of models that own their pricing.
// Derived models inherit their base model's price and are not editable.
func GetModelPrices(c *gin.Context) {
	models, err := model.ListModels()
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	prices := map[string]map[string]any{}
	for _, m := range models {
		if m.BaseModelId != "" {
			continue
		}
		price := map[string]any(m.Price)
		if price == nil {
			price = map[string]any{}
		}
		prices[m.Id] = price
	}
	c.JSON(http.StatusOK, prices)
}

// UpdateModelPrices bulk-updates price maps keyed by model id. Unknown models
// are skipped, matching how operators paste full catalogues.
func UpdateModelPrices(c *gin.Context) {
	var req map[string]map[string]any
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}

	for modelID, price := range req {
		if err := model.UpdateModelPrice(modelID, price); err != nil {
			logger.Logger.Warn("update model price",
				zap.String("model", modelID), zap.Error(err))
			continue
		}
	}
	c.String(http.StatusOK, "success update price for %d models", len(req))
}
