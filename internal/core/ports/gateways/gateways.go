// Package gateways declares the external collaborators the settlement pipeline calls out to.
// Every method that leaves the process takes a context and must honour its deadline.
package gateways

import (
	"context"
	"time"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/shopspring/decimal"
)

// RateProvider supplies the conversion rate consumed when a batch is processed.
type RateProvider interface {
	GetRate(ctx context.Context, base, target string) (*domain.ExchangeRateSnapshot, error)
}

// PaymentGateway starts a fiat-to-crypto purchase. The provider reports the outcome
// asynchronously through the settlement webhook.
type PaymentGateway interface {
	Initiate(ctx context.Context, quote domain.SettlementQuote) (*domain.PaymentSession, error)
}

// BlockchainGateway sends stablecoin transfers and answers receipt lookups.
type BlockchainGateway interface {
	// Send transfers amount of the settlement token to wallet and returns the transaction hash.
	Send(ctx context.Context, wallet string, amount decimal.Decimal) (string, error)

	// GetTransaction returns the chain's current answer for a hash.
	GetTransaction(ctx context.Context, txHash string) (*domain.ChainReceipt, error)

	// ValidateAddress reports whether address is well formed for the network.
	ValidateAddress(address string) bool

	// GetBalance returns the hot wallet's settlement token balance.
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// BankGateway executes the bank-transfer fallback.
type BankGateway interface {
	Transfer(ctx context.Context, order domain.BankTransferOrder) (string, error)
}

// P2PGateway places a purchase with a peer-to-peer desk that delivers to the order's wallet.
// The desk reports delivery through the settlement webhook, quoting the order reference.
type P2PGateway interface {
	Purchase(ctx context.Context, order domain.SettlementOrder) (string, error)
}

// EventPublisher emits settlement events after the state change they describe was committed.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SettlementEvent) error
}

// TxLocker is a short-lived mutual exclusion keyed by transaction hash or batch.
type TxLocker interface {
	// TryLock acquires key for ttl. It returns false without error when someone else holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
