package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Dours-d/D2C/internal/core/domain"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/Dours-d/D2C/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// cycleHandler handles HTTP requests about the processing cadence.
type cycleHandler struct {
	cycleService portssvc.CycleSvcFacade
}

// RegisterCycleRoutes registers the cadence routes on rg.
func RegisterCycleRoutes(rg *gin.RouterGroup, cs portssvc.CycleSvcFacade) {
	h := &cycleHandler{cycleService: cs}

	cycles := rg.Group("/cycles")
	{
		cycles.GET("", h.listCycles)
		cycles.PUT("", h.updateCycle)
		cycles.GET("/active", h.getActiveCycle)
		cycles.POST("/recommend", h.recommendCycle)
		cycles.GET("/estimate", h.estimateCost)
		cycles.GET("/optimization", h.optimizationPotential)
	}
}

func (h *cycleHandler) respondCycle(c *gin.Context, status int, cycle *domain.ProcessingCycle) {
	from := cycle.EffectiveFrom
	if cycle.LastRunAt != nil {
		from = *cycle.LastRunAt
	}
	c.JSON(status, dto.ToCycleResponse(cycle, h.cycleService.CalculateNextProcessingDate(cycle.CycleType, from)))
}

// getActiveCycle godoc
// @Summary Get the active processing cycle
// @Tags cycles
// @Produce  json
// @Success 200 {object} dto.CycleResponse
// @Failure 500 {object} map[string]string "Failed to load cycle"
// @Security BearerAuth
// @Router /cycles/active [get]
func (h *cycleHandler) getActiveCycle(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	cycle, err := h.cycleService.GetActiveCycle(c.Request.Context())
	if err != nil {
		respondError(c, logger, err, "Failed to load active cycle")
		return
	}
	h.respondCycle(c, http.StatusOK, cycle)
}

// listCycles godoc
// @Summary List cycle history
// @Tags cycles
// @Produce  json
// @Param   limit query int false "Maximum entries" default(50)
// @Success 200 {array} dto.CycleResponse
// @Security BearerAuth
// @Router /cycles [get]
func (h *cycleHandler) listCycles(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	cycles, err := h.cycleService.ListCycleHistory(c.Request.Context(), limit)
	if err != nil {
		respondError(c, logger, err, "Failed to list cycles")
		return
	}
	c.JSON(http.StatusOK, dto.ToListCycleResponse(cycles))
}

// updateCycle godoc
// @Summary Change the processing cycle
// @Description Supersedes the active cycle with a new entry
// @Tags cycles
// @Accept  json
// @Produce  json
// @Param   cycle body dto.UpdateCycleRequest true "New cycle"
// @Success 200 {object} dto.CycleResponse
// @Failure 400 {object} map[string]string "Invalid cycle"
// @Security BearerAuth
// @Router /cycles [put]
func (h *cycleHandler) updateCycle(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.UpdateCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, "UpdateCycle", err)
		return
	}
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	cycle, err := h.cycleService.UpdateCycle(c.Request.Context(), req, userID)
	if err != nil {
		respondError(c, logger, err, "Failed to update cycle")
		return
	}
	logger.Info("Processing cycle updated", slog.String("cycle", string(cycle.CycleType)))
	h.respondCycle(c, http.StatusOK, cycle)
}

// recommendCycle godoc
// @Summary Recommend a processing cycle
// @Description Recommends a cadence from the given statistics, or from live pending volume when the body is empty
// @Tags cycles
// @Accept  json
// @Produce  json
// @Param   stats body dto.RecommendCycleRequest false "Volume statistics"
// @Success 200 {object} domain.CycleRecommendation
// @Security BearerAuth
// @Router /cycles/recommend [post]
func (h *cycleHandler) recommendCycle(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.RecommendCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, logger, "RecommendCycle", err)
		return
	}

	if req.TotalAmount == nil {
		rec, err := h.cycleService.RecommendFromVolume(c.Request.Context())
		if err != nil {
			respondError(c, logger, err, "Failed to recommend cycle")
			return
		}
		c.JSON(http.StatusOK, rec)
		return
	}

	stats := domain.VolumeStats{TotalAmount: *req.TotalAmount}
	if req.DonationCount != nil {
		stats.DonationCount = *req.DonationCount
	}
	switch {
	case req.AvgAmount != nil:
		stats.AvgAmount = *req.AvgAmount
	case stats.DonationCount > 0:
		stats.AvgAmount = stats.TotalAmount.Div(decimal.NewFromInt(int64(stats.DonationCount)))
	}
	c.JSON(http.StatusOK, h.cycleService.RecommendCycle(stats))
}

// estimateCost godoc
// @Summary Estimate the monthly cost of a cycle
// @Tags cycles
// @Produce  json
// @Param   cycle query string true "Cycle type"
// @Param   monthlyVolumeEur query string true "Monthly volume in EUR"
// @Success 200 {object} domain.ProcessingCostEstimate
// @Failure 400 {object} map[string]string "Invalid cycle or volume"
// @Security BearerAuth
// @Router /cycles/estimate [get]
func (h *cycleHandler) estimateCost(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var q dto.EstimateCostQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, logger, "EstimateProcessingCost", err)
		return
	}
	volume, err := decimal.NewFromString(q.MonthlyVolumeEur)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "monthlyVolumeEur must be a decimal number"})
		return
	}

	estimate, err := h.cycleService.EstimateProcessingCost(domain.CycleType(q.Cycle), volume)
	if err != nil {
		respondError(c, logger, err, "Failed to estimate cost")
		return
	}
	c.JSON(http.StatusOK, estimate)
}

// optimizationPotential godoc
// @Summary Compare the active cycle with the cheapest one
// @Tags cycles
// @Produce  json
// @Success 200 {object} domain.OptimizationPotential
// @Security BearerAuth
// @Router /cycles/optimization [get]
func (h *cycleHandler) optimizationPotential(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	potential, err := h.cycleService.CalculateOptimizationPotential(c.Request.Context())
	if err != nil {
		respondError(c, logger, err, "Failed to compute optimization potential")
		return
	}
	c.JSON(http.StatusOK, potential)
}
