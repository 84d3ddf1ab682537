package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/Dours-d/D2C/internal/middleware"
	"github.com/gin-gonic/gin"
)

// batchHandler handles HTTP requests related to donation batches.
type batchHandler struct {
	batchService      portssvc.BatchSvcFacade
	settlementService portssvc.SettlementStrategySvc
}

func newBatchHandler(bs portssvc.BatchSvcFacade, ss portssvc.SettlementStrategySvc) *batchHandler {
	return &batchHandler{
		batchService:      bs,
		settlementService: ss,
	}
}

// RegisterBatchRoutes registers the batch lifecycle routes on rg.
func RegisterBatchRoutes(rg *gin.RouterGroup, bs portssvc.BatchSvcFacade, ss portssvc.SettlementStrategySvc) {
	h := newBatchHandler(bs, ss)

	batches := rg.Group("/batches")
	{
		batches.POST("", h.createBatch)
		batches.GET("", h.listBatches)
		batches.GET("/:batchID", h.getBatch)
		batches.DELETE("/:batchID", h.cancelBatch)
		batches.GET("/:batchID/status", h.getBatchStatus)
		batches.GET("/:batchID/reserve", h.getReserve)
		batches.GET("/:batchID/checklist", h.getChecklist)
		batches.GET("/:batchID/operational-fee", h.getOperationalFee)
		batches.POST("/:batchID/gross-deposit", h.setGrossDeposit)
		batches.POST("/:batchID/operational-fee-payments", h.recordFeePayment)
		batches.POST("/:batchID/process", h.processBatch)
		batches.POST("/:batchID/settlement", h.initiateSettlement)
		batches.POST("/:batchID/execute", h.executeSettlement)
		batches.POST("/:batchID/send-onchain", h.sendOnChain)
	}
}

// actor returns the authenticated operator, answering 401 when the context has none.
func actor(c *gin.Context, logger *slog.Logger) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Operator ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

// createBatch godoc
// @Summary Create a batch
// @Description Claims pending donations into a new draft batch for one wallet
// @Tags batches
// @Accept  json
// @Produce  json
// @Param   batch body dto.CreateBatchRequest true "Donations and target wallet"
// @Success 201 {object} dto.BatchResponse
// @Failure 400 {object} map[string]string "Invalid input or donations not pending"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create batch"
// @Security BearerAuth
// @Router /batches [post]
func (h *batchHandler) createBatch(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, "CreateBatch", err)
		return
	}
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	logger.Info("Received request to create batch",
		slog.Int("donations", len(req.DonationIDs)),
		slog.String("wallet", req.TargetWallet))

	batch, err := h.batchService.CreateBatch(c.Request.Context(), req, userID)
	if err != nil {
		respondError(c, logger, err, "Failed to create batch")
		return
	}

	logger.Info("Batch created successfully", slog.String("batch_id", batch.BatchID))
	c.JSON(http.StatusCreated, dto.ToBatchResponse(batch))
}

// listBatches godoc
// @Summary List batches
// @Description Lists batches newest first with keyset pagination
// @Tags batches
// @Produce  json
// @Param   status query string false "Filter by status"
// @Param   campaignId query string false "Filter by campaign"
// @Param   limit query int false "Page size" default(20)
// @Param   nextToken query string false "Token of the next page"
// @Success 200 {object} dto.ListBatchesResponse
// @Failure 400 {object} map[string]string "Invalid filter or token"
// @Failure 500 {object} map[string]string "Failed to list batches"
// @Security BearerAuth
// @Router /batches [get]
func (h *batchHandler) listBatches(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var params dto.ListBatchesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, logger, "ListBatches", err)
		return
	}

	batches, next, err := h.batchService.ListBatches(c.Request.Context(), params)
	if err != nil {
		respondError(c, logger, err, "Failed to list batches")
		return
	}
	c.JSON(http.StatusOK, dto.ToListBatchesResponse(batches, next))
}

// getBatch godoc
// @Summary Get a batch
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.BatchResponse
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 500 {object} map[string]string "Failed to retrieve batch"
// @Security BearerAuth
// @Router /batches/{batchID} [get]
func (h *batchHandler) getBatch(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	batch, err := h.batchService.GetBatch(c.Request.Context(), c.Param("batchID"))
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve batch")
		return
	}
	c.JSON(http.StatusOK, dto.ToBatchResponse(batch))
}

// getBatchStatus godoc
// @Summary Get batch status
// @Description Returns the status, provider status, tx hash and last error of a batch
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.BatchStatusResponse
// @Failure 404 {object} map[string]string "Batch not found"
// @Security BearerAuth
// @Router /batches/{batchID}/status [get]
func (h *batchHandler) getBatchStatus(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	batch, err := h.batchService.GetBatch(c.Request.Context(), c.Param("batchID"))
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve batch status")
		return
	}
	c.JSON(http.StatusOK, dto.ToBatchStatusResponse(batch))
}

// getReserve godoc
// @Summary Get settlement reserve
// @Description Returns how much the batch falls short of the settlement minimum
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.ReserveResponse
// @Failure 404 {object} map[string]string "Batch not found"
// @Security BearerAuth
// @Router /batches/{batchID}/reserve [get]
func (h *batchHandler) getReserve(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	batch, reserve, err := h.batchService.GetReserve(c.Request.Context(), c.Param("batchID"))
	if err != nil {
		respondError(c, logger, err, "Failed to compute reserve")
		return
	}
	c.JSON(http.StatusOK, dto.ToReserveResponse(batch, reserve))
}

// getChecklist godoc
// @Summary Get landing checklist
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} domain.LandingChecklist
// @Failure 404 {object} map[string]string "Batch not found"
// @Security BearerAuth
// @Router /batches/{batchID}/checklist [get]
func (h *batchHandler) getChecklist(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	checklist, err := h.batchService.GetLandingChecklist(c.Request.Context(), c.Param("batchID"))
	if err != nil {
		respondError(c, logger, err, "Failed to build checklist")
		return
	}
	c.JSON(http.StatusOK, checklist)
}

// getOperationalFee godoc
// @Summary Get operational fee status
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.OperationalFeeResponse
// @Failure 404 {object} map[string]string "Batch not found"
// @Security BearerAuth
// @Router /batches/{batchID}/operational-fee [get]
func (h *batchHandler) getOperationalFee(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	batch, err := h.batchService.GetBatch(c.Request.Context(), c.Param("batchID"))
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve operational fee")
		return
	}
	c.JSON(http.StatusOK, dto.ToOperationalFeeResponse(batch))
}

// setGrossDeposit godoc
// @Summary Record the gross deposit
// @Description Records the operator-confirmed fiat deposit and recomputes the operational fee
// @Tags batches
// @Accept  json
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Param   deposit body dto.SetGrossDepositRequest true "Deposit"
// @Success 200 {object} dto.BatchResponse
// @Failure 400 {object} map[string]string "Invalid amount"
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 409 {object} map[string]string "Batch is terminal"
// @Security BearerAuth
// @Router /batches/{batchID}/gross-deposit [post]
func (h *batchHandler) setGrossDeposit(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	var req dto.SetGrossDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, "SetGrossDeposit", err)
		return
	}
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	batch, err := h.batchService.SetGrossDeposit(c.Request.Context(), c.Param("batchID"), req, userID)
	if err != nil {
		respondError(c, logger, err, "Failed to record gross deposit")
		return
	}
	logger.Info("Gross deposit recorded", slog.String("gross_deposit_eur", req.GrossDepositEur.String()))
	c.JSON(http.StatusOK, dto.ToBatchResponse(batch))
}

// recordFeePayment godoc
// @Summary Record an operational fee payment
// @Tags batches
// @Accept  json
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Param   payment body dto.RecordFeePaymentRequest true "Payment"
// @Success 200 {object} dto.OperationalFeeResponse
// @Failure 400 {object} map[string]string "Invalid amount or no gross deposit"
// @Failure 404 {object} map[string]string "Batch not found"
// @Security BearerAuth
// @Router /batches/{batchID}/operational-fee-payments [post]
func (h *batchHandler) recordFeePayment(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	var req dto.RecordFeePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, "RecordOperationalFeePayment", err)
		return
	}
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	batch, err := h.batchService.RecordOperationalFeePayment(c.Request.Context(), c.Param("batchID"), req, userID)
	if err != nil {
		respondError(c, logger, err, "Failed to record operational fee payment")
		return
	}
	c.JSON(http.StatusOK, dto.ToOperationalFeeResponse(batch))
}

// processBatch godoc
// @Summary Process a batch
// @Description Snapshots the exchange rate and computes the target amount and reserve
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.BatchResponse
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 409 {object} map[string]string "Batch is not draft or pending"
// @Failure 502 {object} map[string]string "Rate provider failed"
// @Security BearerAuth
// @Router /batches/{batchID}/process [post]
func (h *batchHandler) processBatch(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	batch, err := h.batchService.ProcessBatch(c.Request.Context(), c.Param("batchID"), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to process batch")
		return
	}
	logger.Info("Batch processed", slog.String("status", string(batch.Status)))
	c.JSON(http.StatusOK, dto.ToBatchResponse(batch))
}

// initiateSettlement godoc
// @Summary Initiate the fiat to crypto purchase
// @Tags batches
// @Accept  json
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Param   request body dto.InitiateSettlementRequest true "Operator identity"
// @Success 200 {object} domain.PaymentSession
// @Failure 400 {object} map[string]string "Below the settlement minimum"
// @Failure 409 {object} map[string]string "Batch is not processing"
// @Failure 502 {object} map[string]string "Payment provider failed"
// @Security BearerAuth
// @Router /batches/{batchID}/settlement [post]
func (h *batchHandler) initiateSettlement(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	var req dto.InitiateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, "InitiateSettlement", err)
		return
	}
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	session, err := h.batchService.InitiateSettlement(c.Request.Context(), c.Param("batchID"), req.UserContext.ToDomain(), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to initiate settlement")
		return
	}
	logger.Info("Settlement initiated", slog.String("quote_id", session.QuoteID))
	c.JSON(http.StatusOK, session)
}

// executeSettlement godoc
// @Summary Execute the cheapest settlement route
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} domain.SettlementResult
// @Failure 400 {object} map[string]string "No viable route"
// @Failure 409 {object} map[string]string "Batch is not processing"
// @Failure 502 {object} map[string]string "Settlement route failed"
// @Security BearerAuth
// @Router /batches/{batchID}/execute [post]
func (h *batchHandler) executeSettlement(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	result, err := h.settlementService.ExecuteSettlement(c.Request.Context(), c.Param("batchID"), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to execute settlement")
		return
	}
	logger.Info("Settlement executed", slog.String("strategy", string(result.Strategy)), slog.Int("groups", result.GroupCount))
	c.JSON(http.StatusOK, result)
}

// sendOnChain godoc
// @Summary Send the target amount on-chain
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.SendOnChainResponse
// @Failure 409 {object} map[string]string "Batch is not sending"
// @Failure 502 {object} map[string]string "Broadcast failed"
// @Security BearerAuth
// @Router /batches/{batchID}/send-onchain [post]
func (h *batchHandler) sendOnChain(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	batch, txHash, err := h.batchService.SendOnChain(c.Request.Context(), c.Param("batchID"), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to send on-chain")
		return
	}
	logger.Info("Batch sent on-chain", slog.String("tx_hash", txHash))
	c.JSON(http.StatusOK, dto.SendOnChainResponse{Batch: dto.ToBatchResponse(batch), TxHash: txHash})
}

// cancelBatch godoc
// @Summary Cancel a batch
// @Description Cancels a non-terminal batch. Its donations are marked failed.
// @Tags batches
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.BatchResponse
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 409 {object} map[string]string "Batch is terminal"
// @Security BearerAuth
// @Router /batches/{batchID} [delete]
func (h *batchHandler) cancelBatch(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("batch_id", c.Param("batchID")))
	userID, ok := actor(c, logger)
	if !ok {
		return
	}

	batch, err := h.batchService.CancelBatch(c.Request.Context(), c.Param("batchID"), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to cancel batch")
		return
	}
	logger.Info("Batch cancelled")
	c.JSON(http.StatusOK, dto.ToBatchResponse(batch))
}
