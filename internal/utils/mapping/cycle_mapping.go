package mapping

import (
	"database/sql"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/models"
)

// ToModelProcessingCycle converts a domain ProcessingCycle to a model ProcessingCycle
func ToModelProcessingCycle(d domain.ProcessingCycle) models.ProcessingCycle {
	m := models.ProcessingCycle{
		CycleID:          d.CycleID,
		CycleType:        string(d.CycleType),
		EffectiveFrom:    d.EffectiveFrom,
		TriggerOnChain:   d.TriggerOnChain,
		TriggerBanking:   d.TriggerBanking,
		MinimumAmountEur: d.MinimumAmountEur,
		ChangedBy:        nullString(d.ChangedBy),
		Reason:           d.Reason,
		LastRunAt:        nullTime(d.LastRunAt),
		SupersededAt:     nullTime(d.SupersededAt),
		CreatedAt:        d.CreatedAt,
	}
	if d.PreviousCycle != nil {
		m.PreviousCycle = sql.NullString{String: string(*d.PreviousCycle), Valid: true}
	}
	return m
}

// ToDomainProcessingCycle converts a model ProcessingCycle to a domain ProcessingCycle
func ToDomainProcessingCycle(m models.ProcessingCycle) domain.ProcessingCycle {
	d := domain.ProcessingCycle{
		CycleID:          m.CycleID,
		CycleType:        domain.CycleType(m.CycleType),
		EffectiveFrom:    m.EffectiveFrom,
		TriggerOnChain:   m.TriggerOnChain,
		TriggerBanking:   m.TriggerBanking,
		MinimumAmountEur: m.MinimumAmountEur,
		ChangedBy:        stringPtr(m.ChangedBy),
		Reason:           m.Reason,
		LastRunAt:        timePtr(m.LastRunAt),
		SupersededAt:     timePtr(m.SupersededAt),
		CreatedAt:        m.CreatedAt,
	}
	if m.PreviousCycle.Valid {
		previous := domain.CycleType(m.PreviousCycle.String)
		d.PreviousCycle = &previous
	}
	return d
}
