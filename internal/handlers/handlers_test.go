package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/Dours-d/D2C/internal/handlers"
	"github.com/Dours-d/D2C/internal/platform/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	testSecret = "test-secret-key-that-is-long-enough"
	testIssuer = "d2c-test"
	operatorID = "operator-1"
)

// --- Test Suite ---
type HandlerTestSuite struct {
	suite.Suite
	router     *gin.Engine
	batches    *MockBatchService
	settlement *MockSettlementService
	cycles     *MockCycleService
	fees       *MockFeeService
	rates      *MockExchangeRateService
	healthErr  error
	now        time.Time
}

func (suite *HandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.batches = new(MockBatchService)
	suite.settlement = new(MockSettlementService)
	suite.cycles = new(MockCycleService)
	suite.fees = new(MockFeeService)
	suite.rates = new(MockExchangeRateService)
	suite.healthErr = nil
	suite.now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cfg := &config.Config{JWTSecret: testSecret, JWTIssuer: testIssuer, IsProduction: true}
	container := &portssvc.ServiceContainer{
		Fees:         suite.fees,
		Cycles:       suite.cycles,
		Batches:      suite.batches,
		Settlement:   suite.settlement,
		ExchangeRate: suite.rates,
	}
	suite.router = gin.New()
	handlers.RegisterRoutes(suite.router, cfg, container,
		handlers.WithHealthCheck(func(context.Context) error { return suite.healthErr }))
}

func (suite *HandlerTestSuite) token() string {
	claims := jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   operatorID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	suite.Require().NoError(err)
	return signed
}

func (suite *HandlerTestSuite) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+suite.token())
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlerTestSuite) decode(w *httptest.ResponseRecorder, out any) {
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func (suite *HandlerTestSuite) sampleBatch(status domain.BatchStatus) *domain.Batch {
	return &domain.Batch{
		BatchID:        "batch-1",
		Status:         status,
		DonationIDs:    []string{"d1", "d2"},
		DonationCount:  2,
		TotalGrossEur:  decimal.RequireFromString("100"),
		TotalNetEur:    decimal.RequireFromString("75"),
		TargetCurrency: domain.DefaultTargetCurrency,
		TargetWallet:   "TWallet",
		Network:        domain.DefaultNetwork,
		Metadata:       domain.NewBatchMetadata(),
		AuditFields: domain.AuditFields{
			CreatedAt:     suite.now,
			CreatedBy:     operatorID,
			LastUpdatedAt: suite.now,
			LastUpdatedBy: operatorID,
		},
	}
}

// --- Routing and auth ---

func (suite *HandlerTestSuite) TestHealth() {
	w := suite.do(http.MethodGet, "/health", nil, false)
	suite.Equal(http.StatusOK, w.Code)

	suite.healthErr = errors.New("db down")
	w = suite.do(http.MethodGet, "/health", nil, false)
	suite.Equal(http.StatusServiceUnavailable, w.Code)
}

func (suite *HandlerTestSuite) TestAPIRequiresToken() {
	w := suite.do(http.MethodGet, "/api/v1/batches/batch-1", nil, false)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.batches.AssertNotCalled(suite.T(), "GetBatch", mock.Anything, mock.Anything)
}

// --- Batches ---

func (suite *HandlerTestSuite) TestCreateBatch_Success() {
	req := dto.CreateBatchRequest{DonationIDs: []string{"d1", "d2"}, TargetWallet: "TWallet"}
	suite.batches.On("CreateBatch", mock.Anything, req, operatorID).Return(suite.sampleBatch(domain.BatchDraft), nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/batches", req, true)

	suite.Equal(http.StatusCreated, w.Code)
	var resp dto.BatchResponse
	suite.decode(w, &resp)
	suite.Equal("batch-1", resp.BatchID)
	suite.Equal(domain.BatchDraft, resp.Status)
	suite.True(decimal.RequireFromString("75").Equal(resp.TotalNetEur))
	suite.batches.AssertExpectations(suite.T())
}

func (suite *HandlerTestSuite) TestCreateBatch_BindError() {
	w := suite.do(http.MethodPost, "/api/v1/batches", `{"donationIds":[]}`, true)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.batches.AssertNotCalled(suite.T(), "CreateBatch", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *HandlerTestSuite) TestCreateBatch_DonationsNotPending() {
	req := dto.CreateBatchRequest{DonationIDs: []string{"d1"}, TargetWallet: "TWallet"}
	suite.batches.On("CreateBatch", mock.Anything, req, operatorID).Return(nil, apperrors.ErrNoPendingDonations).Once()

	w := suite.do(http.MethodPost, "/api/v1/batches", req, true)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *HandlerTestSuite) TestListBatches_PassesFilters() {
	next := "next-page"
	suite.batches.On("ListBatches", mock.Anything, mock.MatchedBy(func(p dto.ListBatchesParams) bool {
		return p.Status == "pending" && p.Limit == 5 && p.NextToken == "tok"
	})).Return([]domain.Batch{*suite.sampleBatch(domain.BatchPending)}, &next, nil).Once()

	w := suite.do(http.MethodGet, "/api/v1/batches?status=pending&limit=5&nextToken=tok", nil, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.ListBatchesResponse
	suite.decode(w, &resp)
	suite.Len(resp.Batches, 1)
	suite.Require().NotNil(resp.NextToken)
	suite.Equal(next, *resp.NextToken)
}

func (suite *HandlerTestSuite) TestErrorMapping() {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: batch", apperrors.ErrNotFound), http.StatusNotFound},
		{"invalid state", &domain.InvalidTransitionError{From: domain.BatchCompleted, To: domain.BatchProcessing}, http.StatusConflict},
		{"external", apperrors.NewExternalServiceError("rates", errors.New("timeout")), http.StatusBadGateway},
		{"validation", fmt.Errorf("%w: bad", apperrors.ErrValidation), http.StatusBadRequest},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for i, tt := range tests {
		suite.Run(tt.name, func() {
			batchID := fmt.Sprintf("batch-%d", i)
			suite.batches.On("ProcessBatch", mock.Anything, batchID, operatorID).Return(nil, tt.err).Once()
			w := suite.do(http.MethodPost, "/api/v1/batches/"+batchID+"/process", nil, true)
			suite.Equal(tt.status, w.Code)
		})
	}
}

func (suite *HandlerTestSuite) TestInternalErrorHidesDetails() {
	suite.batches.On("GetBatch", mock.Anything, "batch-1").Return(nil, errors.New("pq: relation does not exist")).Once()

	w := suite.do(http.MethodGet, "/api/v1/batches/batch-1", nil, true)

	suite.Equal(http.StatusInternalServerError, w.Code)
	suite.NotContains(w.Body.String(), "relation")
}

func (suite *HandlerTestSuite) TestInitiateSettlement_ShortfallCarriesAmounts() {
	shortfall := &apperrors.ReserveShortfallError{
		MinimumEur:  decimal.RequireFromString("44"),
		RequiredEur: decimal.RequireFromString("4.50"),
	}
	suite.batches.On("InitiateSettlement", mock.Anything, "batch-1", mock.MatchedBy(func(u domain.UserContext) bool {
		return u.Email == "ops@example.org"
	}), operatorID).Return(nil, shortfall).Once()

	body := dto.InitiateSettlementRequest{UserContext: dto.UserContextRequest{Email: "ops@example.org", FirstName: "Ops", LastName: "Team"}}
	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/settlement", body, true)

	suite.Equal(http.StatusBadRequest, w.Code)
	var resp map[string]any
	suite.decode(w, &resp)
	suite.Equal("44", resp["minimumEur"])
	suite.Equal("4.5", resp["requiredEur"])
}

func (suite *HandlerTestSuite) TestInitiateSettlement_Success() {
	session := &domain.PaymentSession{PaymentURL: "https://pay.example/1", PaymentID: "pay-1", QuoteID: "quote-1"}
	suite.batches.On("InitiateSettlement", mock.Anything, "batch-1", mock.Anything, operatorID).Return(session, nil).Once()

	body := dto.InitiateSettlementRequest{UserContext: dto.UserContextRequest{Email: "ops@example.org", FirstName: "Ops", LastName: "Team"}}
	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/settlement", body, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp domain.PaymentSession
	suite.decode(w, &resp)
	suite.Equal(*session, resp)
}

func (suite *HandlerTestSuite) TestInitiateSettlement_EmailIsOptional() {
	session := &domain.PaymentSession{PaymentID: "pay-1", QuoteID: "quote-1"}
	suite.batches.On("InitiateSettlement", mock.Anything, "batch-1", domain.UserContext{}, operatorID).Return(session, nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/settlement", `{}`, true)

	suite.Equal(http.StatusOK, w.Code)
}

func (suite *HandlerTestSuite) TestInitiateSettlement_RejectsMalformedEmail() {
	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/settlement", `{"userContext":{"email":"not-an-address"}}`, true)

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.batches.AssertNotCalled(suite.T(), "InitiateSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *HandlerTestSuite) TestSetGrossDeposit() {
	suite.batches.On("SetGrossDeposit", mock.Anything, "batch-1", mock.MatchedBy(func(r dto.SetGrossDepositRequest) bool {
		return r.GrossDepositEur.Equal(decimal.RequireFromString("250.50"))
	}), operatorID).Return(suite.sampleBatch(domain.BatchDraft), nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/gross-deposit", `{"grossDepositEur":"250.50"}`, true)

	suite.Equal(http.StatusOK, w.Code)
	suite.batches.AssertExpectations(suite.T())
}

func (suite *HandlerTestSuite) TestRecordFeePayment_ReturnsFeeStatus() {
	b := suite.sampleBatch(domain.BatchDraft)
	deposit := decimal.RequireFromString("100")
	b.Metadata.GrossDepositEur = &deposit
	b.Metadata.OperationalFee.CurrentEur = decimal.RequireFromString("10")
	b.Metadata.OperationalFee.PaidEur = decimal.RequireFromString("4")
	b.Metadata.OperationalFee.DueEur = decimal.RequireFromString("6")
	suite.batches.On("RecordOperationalFeePayment", mock.Anything, "batch-1", mock.Anything, operatorID).Return(b, nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/operational-fee-payments", `{"amountEur":4}`, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.OperationalFeeResponse
	suite.decode(w, &resp)
	suite.True(decimal.RequireFromString("6").Equal(resp.DueEur))
}

func (suite *HandlerTestSuite) TestSendOnChain() {
	suite.batches.On("SendOnChain", mock.Anything, "batch-1", operatorID).Return(suite.sampleBatch(domain.BatchSending), "abc123", nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/send-onchain", nil, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.SendOnChainResponse
	suite.decode(w, &resp)
	suite.Equal("abc123", resp.TxHash)
	suite.Equal(domain.BatchSending, resp.Batch.Status)
}

func (suite *HandlerTestSuite) TestExecuteSettlement() {
	result := &domain.SettlementResult{BatchID: "batch-1", Strategy: domain.StrategyBankTransfer, Status: domain.BatchAwaitingSettlement, GroupCount: 1}
	suite.settlement.On("ExecuteSettlement", mock.Anything, "batch-1", operatorID).Return(result, nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/batches/batch-1/execute", nil, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp domain.SettlementResult
	suite.decode(w, &resp)
	suite.Equal(domain.StrategyBankTransfer, resp.Strategy)
}

func (suite *HandlerTestSuite) TestCancelBatch_Terminal() {
	suite.batches.On("CancelBatch", mock.Anything, "batch-1", operatorID).
		Return(nil, &domain.InvalidTransitionError{From: domain.BatchCompleted, To: domain.BatchCancelled}).Once()

	w := suite.do(http.MethodDelete, "/api/v1/batches/batch-1", nil, true)
	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *HandlerTestSuite) TestGetReserve() {
	reserve := domain.SettlementReserve{MinimumEur: decimal.RequireFromString("44"), RequiredEur: decimal.Zero}
	suite.batches.On("GetReserve", mock.Anything, "batch-1").Return(suite.sampleBatch(domain.BatchProcessing), reserve, nil).Once()

	w := suite.do(http.MethodGet, "/api/v1/batches/batch-1/reserve", nil, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.ReserveResponse
	suite.decode(w, &resp)
	suite.True(resp.Eligible)
}

// --- Webhook ---

func (suite *HandlerTestSuite) TestWebhook() {
	callback := domain.SettlementCallback{QuoteID: "quote-1", PaymentID: "pay-1", Status: domain.CallbackSuccess}
	tests := []struct {
		name     string
		batch    *domain.Batch
		err      error
		status   int
		received bool
	}{
		{"applied", suite.sampleBatch(domain.BatchSending), nil, http.StatusOK, true},
		{"unmatched", nil, fmt.Errorf("%w: batch", apperrors.ErrNotFound), http.StatusNotFound, false},
		{"invalid", nil, fmt.Errorf("%w: quote_id is required", apperrors.ErrValidation), http.StatusOK, true},
		{"state conflict", nil, &domain.InvalidTransitionError{From: domain.BatchCancelled, To: domain.BatchSending}, http.StatusOK, true},
		{"transient", nil, errors.New("db timeout"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.batches.On("HandleSettlementCallback", mock.Anything, callback).Return(tt.batch, tt.err).Once()

			w := suite.do(http.MethodPost, "/webhooks/settlement", callback, false)

			suite.Equal(tt.status, w.Code)
			var ack dto.WebhookAck
			suite.decode(w, &ack)
			suite.Equal(tt.received, ack.Received)
		})
	}
}

func (suite *HandlerTestSuite) TestWebhook_MalformedIsAcknowledged() {
	w := suite.do(http.MethodPost, "/webhooks/settlement", `{"quote_id":`, false)

	suite.Equal(http.StatusOK, w.Code)
	var ack dto.WebhookAck
	suite.decode(w, &ack)
	suite.True(ack.Received)
	suite.Equal("malformed callback", ack.Error)
	suite.Empty(ack.BatchID)
	suite.batches.AssertNotCalled(suite.T(), "HandleSettlementCallback", mock.Anything, mock.Anything)
}

// --- Strategy and fees ---

func (suite *HandlerTestSuite) TestPreviewStrategy() {
	decision := &domain.StrategyDecision{Viable: false, Fallback: domain.StrategyBankTransfer}
	suite.settlement.On("SelectStrategy", mock.Anything, mock.MatchedBy(func(r domain.StrategyRequest) bool {
		return r.Wallet == "TWallet" && r.AmountEur.Equal(decimal.RequireFromString("30")) && r.DonationCount == 3
	})).Return(decision, nil).Once()

	w := suite.do(http.MethodGet, "/api/v1/settlement/strategy?wallet=TWallet&amount=30&count=3", nil, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp domain.StrategyDecision
	suite.decode(w, &resp)
	suite.Equal(domain.StrategyBankTransfer, resp.Fallback)
}

func (suite *HandlerTestSuite) TestPreviewStrategy_BadAmount() {
	w := suite.do(http.MethodGet, "/api/v1/settlement/strategy?wallet=TWallet&amount=lots", nil, true)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *HandlerTestSuite) TestCalculateFees_OverlaysDefaults() {
	defaults := domain.DefaultFeePercentages()
	suite.fees.On("DefaultPercentages").Return(defaults).Once()
	suite.fees.On("CalculateFees", mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(decimal.NewFromInt(100))
	}), mock.MatchedBy(func(p domain.FeePercentages) bool {
		return p.DebtPct.Equal(decimal.NewFromInt(20)) && p.OperationalPct.Equal(defaults.OperationalPct)
	})).Return(&domain.FeeBreakdown{GrossAmount: decimal.NewFromInt(100)}, nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/fees/calculate", `{"amount":100,"debtPct":20}`, true)

	suite.Equal(http.StatusOK, w.Code)
	suite.fees.AssertExpectations(suite.T())
}

// --- Cycles ---

func (suite *HandlerTestSuite) TestGetActiveCycle_IncludesNextDate() {
	cycle := &domain.ProcessingCycle{CycleID: "c1", CycleType: domain.CycleWeekly, EffectiveFrom: suite.now}
	next := suite.now.AddDate(0, 0, 7)
	suite.cycles.On("GetActiveCycle", mock.Anything).Return(cycle, nil).Once()
	suite.cycles.On("CalculateNextProcessingDate", domain.CycleWeekly, suite.now).Return(&next).Once()

	w := suite.do(http.MethodGet, "/api/v1/cycles/active", nil, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.CycleResponse
	suite.decode(w, &resp)
	suite.Require().NotNil(resp.NextProcessingDate)
	suite.True(next.Equal(*resp.NextProcessingDate))
}

func (suite *HandlerTestSuite) TestRecommendCycle_EmptyBodyUsesLiveVolume() {
	rec := &domain.CycleRecommendation{Recommended: domain.CycleWeekly, Reason: "default"}
	suite.cycles.On("RecommendFromVolume", mock.Anything).Return(rec, nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/cycles/recommend", nil, true)

	suite.Equal(http.StatusOK, w.Code)
	suite.cycles.AssertNotCalled(suite.T(), "RecommendCycle", mock.Anything)
}

func (suite *HandlerTestSuite) TestRecommendCycle_FromStats() {
	suite.cycles.On("RecommendCycle", mock.MatchedBy(func(s domain.VolumeStats) bool {
		return s.DonationCount == 4 && s.AvgAmount.Equal(decimal.NewFromInt(250))
	})).Return(domain.CycleRecommendation{Recommended: domain.CycleMonthly}).Once()

	w := suite.do(http.MethodPost, "/api/v1/cycles/recommend", `{"totalAmount":1000,"donationCount":4}`, true)

	suite.Equal(http.StatusOK, w.Code)
	var resp domain.CycleRecommendation
	suite.decode(w, &resp)
	suite.Equal(domain.CycleMonthly, resp.Recommended)
}

func (suite *HandlerTestSuite) TestEstimateCost_BadVolume() {
	w := suite.do(http.MethodGet, "/api/v1/cycles/estimate?cycle=weekly&monthlyVolumeEur=abc", nil, true)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *HandlerTestSuite) TestUpdateCycle_RejectsUnknownType() {
	w := suite.do(http.MethodPut, "/api/v1/cycles", `{"cycleType":"hourly"}`, true)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.cycles.AssertNotCalled(suite.T(), "UpdateCycle", mock.Anything, mock.Anything, mock.Anything)
}

// --- Exchange rates ---

func (suite *HandlerTestSuite) TestGetExchangeRate_NotFound() {
	suite.rates.On("GetExchangeRate", mock.Anything, "EUR", "USDT").Return(nil, fmt.Errorf("lookup: %w", apperrors.ErrNotFound)).Once()

	w := suite.do(http.MethodGet, "/api/v1/exchange-rates/EUR/USDT", nil, true)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestCreateExchangeRate() {
	created := &domain.ExchangeRate{ExchangeRateID: "rate-1", FromCurrencyCode: "EUR", ToCurrencyCode: "USDT", Rate: decimal.RequireFromString("1.08")}
	suite.rates.On("CreateExchangeRate", mock.Anything, mock.MatchedBy(func(r dto.CreateExchangeRateRequest) bool {
		return r.FromCurrencyCode == "EUR" && r.Rate.Equal(decimal.RequireFromString("1.08"))
	}), operatorID).Return(created, nil).Once()

	body := `{"fromCurrencyCode":"EUR","toCurrencyCode":"USDT","rate":"1.08","dateEffective":"2025-03-10T00:00:00Z"}`
	w := suite.do(http.MethodPost, "/api/v1/exchange-rates", body, true)

	suite.Equal(http.StatusCreated, w.Code)
	var resp dto.ExchangeRateResponse
	suite.decode(w, &resp)
	suite.Equal("rate-1", resp.ExchangeRateID)
}

// --- Run Test Suite ---
func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
