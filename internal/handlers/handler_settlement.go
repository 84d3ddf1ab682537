package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/Dours-d/D2C/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// settlementHandler serves the strategy preview and the provider webhook.
type settlementHandler struct {
	settlementService portssvc.SettlementStrategySvc
	batchService      portssvc.BatchSvcFacade
}

// RegisterSettlementRoutes registers the authenticated strategy preview.
func RegisterSettlementRoutes(rg *gin.RouterGroup, ss portssvc.SettlementStrategySvc) {
	h := &settlementHandler{settlementService: ss}
	rg.GET("/settlement/strategy", h.previewStrategy)
}

// RegisterWebhookRoutes registers the provider callbacks. They carry no operator token, so the
// caller is expected to put them behind a rate limit.
func RegisterWebhookRoutes(rg *gin.RouterGroup, bs portssvc.BatchSvcFacade) {
	h := &settlementHandler{batchService: bs}
	rg.POST("/webhooks/settlement", h.settlementWebhook)
}

// previewStrategy godoc
// @Summary Preview settlement strategies
// @Description Evaluates every settlement route for a wallet and amount without executing any
// @Tags settlement
// @Produce  json
// @Param   wallet query string true "Destination wallet"
// @Param   amount query string true "Amount in EUR"
// @Param   count query int false "Number of donations"
// @Success 200 {object} domain.StrategyDecision
// @Failure 400 {object} map[string]string "Invalid amount"
// @Security BearerAuth
// @Router /settlement/strategy [get]
func (h *settlementHandler) previewStrategy(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var q dto.StrategyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, logger, "PreviewStrategy", err)
		return
	}
	amount, err := decimal.NewFromString(q.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal number"})
		return
	}

	decision, err := h.settlementService.SelectStrategy(c.Request.Context(), domain.StrategyRequest{
		Wallet:        q.Wallet,
		AmountEur:     amount,
		DonationCount: q.Count,
	})
	if err != nil {
		respondError(c, logger, err, "Failed to select strategy")
		return
	}
	c.JSON(http.StatusOK, decision)
}

// settlementWebhook godoc
// @Summary Settlement provider callback
// @Description Applies the provider's answer to the batch matched by quote id. Every delivery the
// @Description provider should not retry is acknowledged with 200, including malformed callbacks
// @Description and state conflicts. The ack's error field says why nothing was applied.
// @Tags webhooks
// @Accept  json
// @Produce  json
// @Param   callback body domain.SettlementCallback true "Provider callback"
// @Success 200 {object} dto.WebhookAck
// @Failure 404 {object} dto.WebhookAck "No batch for the quote"
// @Failure 500 {object} dto.WebhookAck "Transient failure, retry"
// @Router /webhooks/settlement [post]
func (h *settlementHandler) settlementWebhook(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var callback domain.SettlementCallback
	if err := c.ShouldBindJSON(&callback); err != nil {
		logger.Warn("Malformed settlement callback", slog.String("error", err.Error()))
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Error: "malformed callback"})
		return
	}
	logger = logger.With(slog.String("quote_id", callback.QuoteID), slog.String("provider_status", callback.Status))

	batch, err := h.batchService.HandleSettlementCallback(c.Request.Context(), callback)
	switch {
	case err == nil:
		resp := dto.ToBatchResponse(batch)
		logger.Info("Settlement callback applied", slog.String("batch_id", batch.BatchID), slog.String("status", string(batch.Status)))
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, BatchID: batch.BatchID, Batch: &resp})
	case errors.Is(err, apperrors.ErrNotFound):
		logger.Warn("Settlement callback matched no batch")
		c.JSON(http.StatusNotFound, dto.WebhookAck{Error: "unknown quote"})
	case errors.Is(err, apperrors.ErrValidation):
		logger.Warn("Invalid settlement callback", slog.String("error", err.Error()))
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Error: err.Error()})
	case errors.Is(err, apperrors.ErrInvalidState):
		logger.Warn("Settlement callback conflicts with batch state", slog.String("error", err.Error()))
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Error: err.Error()})
	default:
		logger.Error("Failed to apply settlement callback", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.WebhookAck{Error: "failed to apply callback"})
	}
}
