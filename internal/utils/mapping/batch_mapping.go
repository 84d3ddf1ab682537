package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/models"
)

// ToModelBatch converts a domain Batch to a model Batch, encoding the metadata as JSON.
func ToModelBatch(d domain.Batch) (models.Batch, error) {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to encode metadata of batch %s: %w", d.BatchID, err)
	}
	return models.Batch{
		BatchID:                d.BatchID,
		CampaignID:             nullString(d.CampaignID),
		DonationIDs:            d.DonationIDs,
		DonationCount:          d.DonationCount,
		TotalGrossEur:          d.TotalGrossEur,
		TotalNetEur:            d.TotalNetEur,
		TotalDebtFeeEur:        d.TotalDebtFeeEur,
		TotalOperationalFeeEur: d.TotalOperationalFeeEur,
		TotalTransactionFeeEur: d.TotalTransactionFeeEur,
		TotalFeesEur:           d.TotalFeesEur,
		TargetCurrency:         d.TargetCurrency,
		TargetAmount:           nullDecimal(d.TargetAmount),
		ExchangeRate:           nullDecimal(d.ExchangeRate),
		RateSource:             nonEmptyString(d.RateSource),
		RateSnapshotAt:         nullTime(d.RateSnapshotAt),
		TargetWallet:           d.TargetWallet,
		Network:                d.Network,
		Status:                 string(d.Status),
		Metadata:               metadata,
		InitiatedAt:            nullTime(d.InitiatedAt),
		SentToBlockchainAt:     nullTime(d.SentToBlockchainAt),
		CompletedAt:            nullTime(d.CompletedAt),
		Revision:               d.Revision,
		AuditFields:            ToModelAuditFields(d.AuditFields),
	}, nil
}

// ToDomainBatch converts a model Batch to a domain Batch. Metadata written before a field
// existed decodes with that field at its default.
func ToDomainBatch(m models.Batch) (domain.Batch, error) {
	metadata := domain.NewBatchMetadata()
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return domain.Batch{}, fmt.Errorf("failed to decode metadata of batch %s: %w", m.BatchID, err)
		}
	}
	return domain.Batch{
		BatchID:                m.BatchID,
		CampaignID:             stringPtr(m.CampaignID),
		DonationIDs:            m.DonationIDs,
		DonationCount:          m.DonationCount,
		TotalGrossEur:          m.TotalGrossEur,
		TotalNetEur:            m.TotalNetEur,
		TotalDebtFeeEur:        m.TotalDebtFeeEur,
		TotalOperationalFeeEur: m.TotalOperationalFeeEur,
		TotalTransactionFeeEur: m.TotalTransactionFeeEur,
		TotalFeesEur:           m.TotalFeesEur,
		TargetCurrency:         m.TargetCurrency,
		TargetAmount:           decimalPtr(m.TargetAmount),
		ExchangeRate:           decimalPtr(m.ExchangeRate),
		RateSource:             m.RateSource.String,
		RateSnapshotAt:         timePtr(m.RateSnapshotAt),
		TargetWallet:           m.TargetWallet,
		Network:                m.Network,
		Status:                 domain.BatchStatus(m.Status),
		Metadata:               metadata,
		InitiatedAt:            timePtr(m.InitiatedAt),
		SentToBlockchainAt:     timePtr(m.SentToBlockchainAt),
		CompletedAt:            timePtr(m.CompletedAt),
		Revision:               m.Revision,
		AuditFields:            ToDomainAuditFields(m.AuditFields),
	}, nil
}
