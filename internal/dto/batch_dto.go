package dto

import (
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateBatchRequest defines the data needed to bundle pending donations into a batch.
type CreateBatchRequest struct {
	DonationIDs  []string `json:"donationIds" binding:"required,min=1,dive,required"`
	TargetWallet string   `json:"targetWallet" binding:"required"`
	CampaignID   *string  `json:"campaignId"` // Optional
}

// ListBatchesParams defines the query parameters of the batch listing.
type ListBatchesParams struct {
	Status     string `form:"status"`
	CampaignID string `form:"campaignId"`
	Limit      int    `form:"limit,default=20"`
	NextToken  string `form:"nextToken"`
}

// SetGrossDepositRequest records the fiat deposit backing a batch.
type SetGrossDepositRequest struct {
	GrossDepositEur decimal.Decimal `json:"grossDepositEur" binding:"required"`
	Note            string          `json:"note"`
}

// RecordFeePaymentRequest records a payment towards the operational fee.
type RecordFeePaymentRequest struct {
	AmountEur decimal.Decimal `json:"amountEur" binding:"required"`
	Note      string          `json:"note"`
}

// InitiateSettlementRequest carries the operator on whose behalf the purchase is made.
// Without an email the configured operator identity is used.
type InitiateSettlementRequest struct {
	UserContext UserContextRequest `json:"userContext"`
}

// UserContextRequest is the identity forwarded to the payment provider.
type UserContextRequest struct {
	UserID      string `json:"userId"`
	Email       string `json:"email" binding:"omitempty,email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Phone       string `json:"phone"`
}

// ToDomain converts the request into the domain user context.
func (r UserContextRequest) ToDomain() domain.UserContext {
	return domain.UserContext{
		UserID:      r.UserID,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		DateOfBirth: r.DateOfBirth,
		Phone:       r.Phone,
	}
}

// BatchResponse defines the data returned for a batch.
type BatchResponse struct {
	BatchID                string               `json:"batchID"`
	CampaignID             *string              `json:"campaignID,omitempty"`
	Status                 domain.BatchStatus   `json:"status"`
	DonationIDs            []string             `json:"donationIDs"`
	DonationCount          int                  `json:"donationCount"`
	TotalGrossEur          decimal.Decimal      `json:"totalGrossEur"`
	TotalNetEur            decimal.Decimal      `json:"totalNetEur"`
	TotalDebtFeeEur        decimal.Decimal      `json:"totalDebtFeeEur"`
	TotalOperationalFeeEur decimal.Decimal      `json:"totalOperationalFeeEur"`
	TotalTransactionFeeEur decimal.Decimal      `json:"totalTransactionFeeEur"`
	TotalFeesEur           decimal.Decimal      `json:"totalFeesEur"`
	TargetCurrency         string               `json:"targetCurrency"`
	TargetAmount           *decimal.Decimal     `json:"targetAmount,omitempty"`
	ExchangeRate           *decimal.Decimal     `json:"exchangeRate,omitempty"`
	RateSource             string               `json:"rateSource,omitempty"`
	TargetWallet           string               `json:"targetWallet"`
	Network                string               `json:"network"`
	Metadata               domain.BatchMetadata `json:"metadata"`
	InitiatedAt            *time.Time           `json:"initiatedAt,omitempty"`
	SentToBlockchainAt     *time.Time           `json:"sentToBlockchainAt,omitempty"`
	CompletedAt            *time.Time           `json:"completedAt,omitempty"`
	CreatedAt              time.Time            `json:"createdAt"`
	CreatedBy              string               `json:"createdBy"`
	LastUpdatedAt          time.Time            `json:"lastUpdatedAt"`
	LastUpdatedBy          string               `json:"lastUpdatedBy"`
}

// ToBatchResponse converts a domain.Batch to BatchResponse DTO
func ToBatchResponse(b *domain.Batch) BatchResponse {
	return BatchResponse{
		BatchID:                b.BatchID,
		CampaignID:             b.CampaignID,
		Status:                 b.Status,
		DonationIDs:            b.DonationIDs,
		DonationCount:          b.DonationCount,
		TotalGrossEur:          b.TotalGrossEur,
		TotalNetEur:            b.TotalNetEur,
		TotalDebtFeeEur:        b.TotalDebtFeeEur,
		TotalOperationalFeeEur: b.TotalOperationalFeeEur,
		TotalTransactionFeeEur: b.TotalTransactionFeeEur,
		TotalFeesEur:           b.TotalFeesEur,
		TargetCurrency:         b.TargetCurrency,
		TargetAmount:           b.TargetAmount,
		ExchangeRate:           b.ExchangeRate,
		RateSource:             b.RateSource,
		TargetWallet:           b.TargetWallet,
		Network:                b.Network,
		Metadata:               b.Metadata,
		InitiatedAt:            b.InitiatedAt,
		SentToBlockchainAt:     b.SentToBlockchainAt,
		CompletedAt:            b.CompletedAt,
		CreatedAt:              b.CreatedAt,
		CreatedBy:              b.CreatedBy,
		LastUpdatedAt:          b.LastUpdatedAt,
		LastUpdatedBy:          b.LastUpdatedBy,
	}
}

// ListBatchesResponse is a page of batches.
type ListBatchesResponse struct {
	Batches   []BatchResponse `json:"batches"`
	NextToken *string         `json:"nextToken,omitempty"`
}

// ToListBatchesResponse converts a page of domain batches.
func ToListBatchesResponse(batches []domain.Batch, nextToken *string) ListBatchesResponse {
	responses := make([]BatchResponse, len(batches))
	for i := range batches {
		responses[i] = ToBatchResponse(&batches[i])
	}
	return ListBatchesResponse{Batches: responses, NextToken: nextToken}
}

// BatchStatusResponse is the compact status projection.
type BatchStatusResponse struct {
	BatchID            string             `json:"batchID"`
	Status             domain.BatchStatus `json:"status"`
	ProviderStatus     string             `json:"providerStatus,omitempty"`
	TxHash             string             `json:"txHash,omitempty"`
	ManualIntervention bool               `json:"manualIntervention"`
	LastError          *domain.BatchError `json:"lastError,omitempty"`
	LastUpdatedAt      time.Time          `json:"lastUpdatedAt"`
}

// ToBatchStatusResponse projects the status fields of a batch.
func ToBatchStatusResponse(b *domain.Batch) BatchStatusResponse {
	return BatchStatusResponse{
		BatchID:            b.BatchID,
		Status:             b.Status,
		ProviderStatus:     b.Metadata.ProviderStatus,
		TxHash:             b.Metadata.ExternalRefs.TxHash,
		ManualIntervention: b.Metadata.ManualIntervention,
		LastError:          b.Metadata.LastError,
		LastUpdatedAt:      b.LastUpdatedAt,
	}
}

// ReserveResponse is the settlement-minimum projection of a batch.
type ReserveResponse struct {
	BatchID     string          `json:"batchID"`
	TotalNetEur decimal.Decimal `json:"totalNetEur"`
	MinimumEur  decimal.Decimal `json:"minimumEur"`
	RequiredEur decimal.Decimal `json:"requiredEur"`
	Eligible    bool            `json:"eligible"`
}

// ToReserveResponse builds the reserve projection.
func ToReserveResponse(b *domain.Batch, reserve domain.SettlementReserve) ReserveResponse {
	return ReserveResponse{
		BatchID:     b.BatchID,
		TotalNetEur: b.TotalNetEur,
		MinimumEur:  reserve.MinimumEur,
		RequiredEur: reserve.RequiredEur,
		Eligible:    reserve.Eligible(),
	}
}

// OperationalFeeResponse reports the operational fee status of a batch.
type OperationalFeeResponse struct {
	BatchID         string           `json:"batchID"`
	GrossDepositEur *decimal.Decimal `json:"grossDepositEur,omitempty"`
	CurrentEur      decimal.Decimal  `json:"currentEur"`
	PaidEur         decimal.Decimal  `json:"paidEur"`
	DueEur          decimal.Decimal  `json:"dueEur"`
}

// ToOperationalFeeResponse projects the operational fee of a batch.
func ToOperationalFeeResponse(b *domain.Batch) OperationalFeeResponse {
	return OperationalFeeResponse{
		BatchID:         b.BatchID,
		GrossDepositEur: b.Metadata.GrossDepositEur,
		CurrentEur:      b.Metadata.OperationalFee.CurrentEur,
		PaidEur:         b.Metadata.OperationalFee.PaidEur,
		DueEur:          b.Metadata.OperationalFee.DueEur,
	}
}

// SendOnChainResponse is returned after the on-chain transfer was broadcast.
type SendOnChainResponse struct {
	Batch  BatchResponse `json:"batch"`
	TxHash string        `json:"txHash"`
}
