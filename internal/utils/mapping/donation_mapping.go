package mapping

import (
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/models"
)

// ToDomainDonation converts a model Donation to a domain Donation
func ToDomainDonation(m models.Donation) domain.Donation {
	return domain.Donation{
		DonationID:        m.DonationID,
		CampaignID:        stringPtr(m.CampaignID),
		CampaignWallet:    m.CampaignWallet.String,
		GrossAmount:       m.GrossAmount,
		SourceCurrency:    m.SourceCurrency,
		GrossAmountEur:    m.GrossAmountEur,
		NetAmountEur:      m.NetAmountEur,
		DebtFeeEur:        m.DebtFeeEur,
		OperationalFeeEur: m.OperationalFeeEur,
		TransactionFeeEur: m.TransactionFeeEur,
		Status:            domain.DonationStatus(m.Status),
		BatchID:           stringPtr(m.BatchID),
		ProcessedAt:       timePtr(m.ProcessedAt),
		AuditFields:       ToDomainAuditFields(m.AuditFields),
	}
}

// ToModelFeeAllocation converts a domain FeeAllocation to a model FeeAllocation
func ToModelFeeAllocation(d domain.FeeAllocation) models.FeeAllocation {
	return models.FeeAllocation{
		AllocationID: d.AllocationID,
		DonationID:   d.DonationID,
		BatchID:      d.BatchID,
		FeeType:      string(d.FeeType),
		Percent:      d.Percent,
		AmountEur:    d.AmountEur,
		Destination:  d.Destination,
		Transferred:  d.Transferred,
		AuditFields:  ToModelAuditFields(d.AuditFields),
	}
}

// ToDomainFeeAllocation converts a model FeeAllocation to a domain FeeAllocation
func ToDomainFeeAllocation(m models.FeeAllocation) domain.FeeAllocation {
	return domain.FeeAllocation{
		AllocationID: m.AllocationID,
		DonationID:   m.DonationID,
		BatchID:      m.BatchID,
		FeeType:      domain.FeeType(m.FeeType),
		Percent:      m.Percent,
		AmountEur:    m.AmountEur,
		Destination:  m.Destination,
		Transferred:  m.Transferred,
		AuditFields:  ToDomainAuditFields(m.AuditFields),
	}
}
