package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyName identifies a settlement route.
type StrategyName string

const (
	StrategyDirectPurchase  StrategyName = "direct_crypto_purchase"
	StrategyInternalBalance StrategyName = "internal_crypto_transfer"
	StrategyP2PPurchase     StrategyName = "p2p_crypto_purchase"
	StrategyBankTransfer    StrategyName = "bank_transfer"
)

// Settlement speeds as advertised by each route.
const (
	SpeedInstant = "instant"
	SpeedSameDay = "1-24 hours"
	SpeedTwoDays = "1-48 hours"
)

// CryptoProvider is the fee schedule of a fiat-to-crypto purchase provider.
type CryptoProvider struct {
	Name         string          `json:"name"`
	FixedFeeEur  decimal.Decimal `json:"fixedFeeEur"`
	FeePercent   decimal.Decimal `json:"feePercent"`
	MinAmountEur decimal.Decimal `json:"minAmountEur"`
}

// CostFor returns max(fixed fee, amount × percent / 100).
func (p CryptoProvider) CostFor(amountEur decimal.Decimal) decimal.Decimal {
	pct := amountEur.Mul(p.FeePercent).Div(decimal.NewFromInt(100))
	if p.FixedFeeEur.GreaterThan(pct) {
		return p.FixedFeeEur
	}
	return pct
}

// KnownCryptoProviders is the published fee table of the purchase providers the pipeline knows.
func KnownCryptoProviders() map[string]CryptoProvider {
	return map[string]CryptoProvider{
		"simplex": {Name: "simplex", FixedFeeEur: decimal.NewFromInt(10), FeePercent: decimal.RequireFromString("3.5"), MinAmountEur: decimal.NewFromInt(50)},
		"revolut": {Name: "revolut", FixedFeeEur: decimal.Zero, FeePercent: decimal.RequireFromString("1.5"), MinAmountEur: decimal.NewFromInt(1)},
		"kraken":  {Name: "kraken", FixedFeeEur: decimal.Zero, FeePercent: decimal.RequireFromString("0.26"), MinAmountEur: decimal.NewFromInt(10)},
	}
}

// StrategyRequest is the input of strategy selection.
type StrategyRequest struct {
	Wallet        string           `json:"wallet"`
	AmountEur     decimal.Decimal  `json:"amountEur"`
	DonationCount int              `json:"donationCount"`
	Rate          *decimal.Decimal `json:"rate,omitempty"`
}

// StrategyCandidate is one evaluated settlement route.
type StrategyCandidate struct {
	Name     StrategyName    `json:"name"`
	Provider string          `json:"provider"`
	CostEur  decimal.Decimal `json:"costEur"`
	Viable   bool            `json:"viable"`
	Speed    string          `json:"speed"`
	Reason   string          `json:"reason,omitempty"`
}

// IsInstant reports whether the route settles immediately.
func (c StrategyCandidate) IsInstant() bool {
	return c.Speed == SpeedInstant
}

// StrategyDecision is the selector's answer for a wallet and amount.
type StrategyDecision struct {
	Viable     bool                `json:"viable"`
	Strategy   *StrategyCandidate  `json:"strategy,omitempty"`
	Fallback   StrategyName        `json:"fallback,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Candidates []StrategyCandidate `json:"candidates"`
}

// UserContext identifies the operator on whose behalf a purchase is initiated.
type UserContext struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// SettlementQuote is sent to the payment gateway to start a fiat-to-crypto purchase.
type SettlementQuote struct {
	QuoteID           string          `json:"quoteId"`
	BatchID           string          `json:"batchId"`
	FiatAmount        decimal.Decimal `json:"fiatAmount"`
	FiatCurrency      string          `json:"fiatCurrency"`
	DigitalAmount     decimal.Decimal `json:"digitalAmount"`
	DigitalCurrency   string          `json:"digitalCurrency"`
	DestinationWallet string          `json:"destinationWallet"`
	Network           string          `json:"network"`
	User              UserContext     `json:"user"`
}

// PaymentSession is what the payment gateway hands back for a quote.
type PaymentSession struct {
	PaymentURL string `json:"paymentUrl"`
	PaymentID  string `json:"paymentId"`
	QuoteID    string `json:"quoteId"`
}

// Callback statuses understood by the lifecycle.
const (
	CallbackSuccess   = "success"
	CallbackCompleted = "completed"
	CallbackFailed    = "failed"
	CallbackRejected  = "rejected"
)

// SettlementCallback is the provider's asynchronous notification about a quote.
type SettlementCallback struct {
	QuoteID   string `json:"quote_id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Succeeded reports whether the callback confirms the purchase.
func (c SettlementCallback) Succeeded() bool {
	return c.Status == CallbackSuccess || c.Status == CallbackCompleted
}

// Failed reports whether the callback is a definitive rejection.
func (c SettlementCallback) Failed() bool {
	return c.Status == CallbackFailed || c.Status == CallbackRejected
}

// SettlementOrder is one donation group dispatched to a settlement route.
type SettlementOrder struct {
	BatchID      string          `json:"batchId"`
	GroupIndex   int             `json:"groupIndex"`
	Reference    string          `json:"reference"`
	Wallet       string          `json:"wallet"`
	Network      string          `json:"network"`
	AmountEur    decimal.Decimal `json:"amountEur"`
	AmountTarget decimal.Decimal `json:"amountTarget"`
	DonationIDs  []string        `json:"donationIds"`
}

// SettlementReceipt acknowledges a dispatched order. TxHash is set for on-chain routes,
// QuoteID for routes the provider confirms through the settlement webhook.
type SettlementReceipt struct {
	Reference string `json:"reference"`
	QuoteID   string `json:"quoteId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
}

// BankTransferOrder is one SEPA transfer of the bank fallback.
type BankTransferOrder struct {
	Reference   string          `json:"reference"`
	AmountEur   decimal.Decimal `json:"amountEur"`
	Description string          `json:"description"`
}

// SettlementResult summarises an executed route.
type SettlementResult struct {
	BatchID          string              `json:"batchId"`
	Strategy         StrategyName        `json:"strategy"`
	Status           BatchStatus         `json:"status"`
	GroupCount       int                 `json:"groupCount"`
	Receipts         []SettlementReceipt `json:"receipts"`
	AwaitingManual   bool                `json:"awaitingManualConversion"`
	ExecutedAt       time.Time           `json:"executedAt"`
	EstimatedCostEur decimal.Decimal     `json:"estimatedCostEur"`
}
