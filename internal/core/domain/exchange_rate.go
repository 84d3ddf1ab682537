package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a stored conversion rate between two currencies.
type ExchangeRate struct {
	ExchangeRateID   string          `json:"exchangeRateID"`
	FromCurrencyCode string          `json:"fromCurrencyCode"`
	ToCurrencyCode   string          `json:"toCurrencyCode"`
	Rate             decimal.Decimal `json:"rate"`
	Source           string          `json:"source"`
	DateEffective    time.Time       `json:"dateEffective"`
	AuditFields
}

// ExchangeRateSnapshot is the read-only rate consumed when a batch is processed.
type ExchangeRateSnapshot struct {
	Base       string          `json:"base"`
	Target     string          `json:"target"`
	Rate       decimal.Decimal `json:"rate"`
	Source     string          `json:"source"`
	ValidFrom  time.Time       `json:"validFrom"`
	ValidUntil *time.Time      `json:"validUntil,omitempty"`
}

// IsValidAt reports whether the snapshot may be used at t.
func (s ExchangeRateSnapshot) IsValidAt(t time.Time) bool {
	if t.Before(s.ValidFrom) {
		return false
	}
	return s.ValidUntil == nil || !t.After(*s.ValidUntil)
}
