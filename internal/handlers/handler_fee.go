package handlers

import (
	"net/http"

	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/Dours-d/D2C/internal/middleware"
	"github.com/gin-gonic/gin"
)

type feeHandler struct {
	feeService portssvc.FeeCalculatorSvc
}

// RegisterFeeRoutes registers the fee preview.
func RegisterFeeRoutes(rg *gin.RouterGroup, fs portssvc.FeeCalculatorSvc) {
	h := &feeHandler{feeService: fs}
	rg.POST("/fees/calculate", h.calculateFees)
}

// calculateFees godoc
// @Summary Preview a fee split
// @Tags fees
// @Accept  json
// @Produce  json
// @Param   request body dto.CalculateFeesRequest true "Gross amount and optional percentages"
// @Success 200 {object} domain.FeeBreakdown
// @Failure 400 {object} map[string]string "Invalid amount or percentages"
// @Security BearerAuth
// @Router /fees/calculate [post]
func (h *feeHandler) calculateFees(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CalculateFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, "CalculateFees", err)
		return
	}

	breakdown, err := h.feeService.CalculateFees(req.Amount, req.Percentages(h.feeService.DefaultPercentages()))
	if err != nil {
		respondError(c, logger, err, "Failed to calculate fees")
		return
	}
	c.JSON(http.StatusOK, breakdown)
}
