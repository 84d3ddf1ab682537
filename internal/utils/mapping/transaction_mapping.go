package mapping

import (
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/models"
)

// ToModelBlockchainTransaction converts a domain BlockchainTransaction to a model BlockchainTransaction
func ToModelBlockchainTransaction(d domain.BlockchainTransaction) models.BlockchainTransaction {
	return models.BlockchainTransaction{
		TransactionID: d.TransactionID,
		BatchID:       d.BatchID,
		TxHash:        d.TxHash,
		Network:       d.Network,
		AmountUsdt:    d.AmountUsdt,
		Status:        string(d.Status),
		Confirmations: d.Confirmations,
		BlockNumber:   nullInt64(d.BlockNumber),
		ErrorMessage:  nonEmptyString(d.ErrorMessage),
		LastCheckedAt: nullTime(d.LastCheckedAt),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// ToDomainBlockchainTransaction converts a model BlockchainTransaction to a domain BlockchainTransaction
func ToDomainBlockchainTransaction(m models.BlockchainTransaction) domain.BlockchainTransaction {
	return domain.BlockchainTransaction{
		TransactionID: m.TransactionID,
		BatchID:       m.BatchID,
		TxHash:        m.TxHash,
		Network:       m.Network,
		AmountUsdt:    m.AmountUsdt,
		Status:        domain.TxStatus(m.Status),
		Confirmations: m.Confirmations,
		BlockNumber:   int64Ptr(m.BlockNumber),
		ErrorMessage:  m.ErrorMessage.String,
		LastCheckedAt: timePtr(m.LastCheckedAt),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
