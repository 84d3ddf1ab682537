// Package tron sends USDT (TRC20) transfers and reads receipts over a TRON full node.
package tron

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	"github.com/Dours-d/D2C/internal/platform/config"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

// usdtDecimals is the TRC20 USDT precision.
const usdtDecimals = 6

var (
	// ErrNoSigner is returned by Send when no hot wallet key is configured.
	ErrNoSigner = errors.New("tron hot wallet key not configured")
	// ErrInvalidAmount is returned for non-positive amounts or amounts finer than the token precision.
	ErrInvalidAmount = errors.New("invalid USDT amount")
)

var usdtContracts = map[string]string{
	"mainnet": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
	"shasta":  "TG3XXyExBkPp9nzdajDZsozEu4BkaSJozs",
	"nile":    "TXLAQ63Xg1NAzckPwKHvzw7CSEmLMEqcdj",
}

var grpcEndpoints = map[string]string{
	"mainnet": "grpc.trongrid.io:50051",
	"shasta":  "grpc.shasta.trongrid.io:50051",
	"nile":    "grpc.nile.trongrid.io:50051",
}

// node is the part of the gotron-sdk gRPC client the gateway calls.
type node interface {
	TRC20Send(from, to, contract string, amount *big.Int, feeLimit int64) (*api.TransactionExtention, error)
	Broadcast(tx *core.Transaction) (*api.Return, error)
	GetTransactionInfoByID(id string) (*core.TransactionInfo, error)
	TRC20ContractBalance(addr, contractAddress string) (*big.Int, error)
}

// Gateway implements gateways.BlockchainGateway for TRC20 USDT.
type Gateway struct {
	node     node
	stop     func()
	key      *ecdsa.PrivateKey
	from     string
	contract string
	feeLimit int64
	limiter  ratelimit.Limiter
}

var _ gateways.BlockchainGateway = (*Gateway)(nil)

// NewGateway dials the configured node. An empty private key gives a read-only gateway that can
// still look up receipts.
func NewGateway(cfg config.TronConfig) (*Gateway, error) {
	endpoint := cfg.GRPCURL
	if endpoint == "" {
		endpoint = grpcEndpoints[cfg.Network]
	}
	if endpoint == "" {
		return nil, fmt.Errorf("unsupported tron network: %s", cfg.Network)
	}

	c := client.NewGrpcClient(endpoint)
	if cfg.APIKey != "" {
		if err := c.SetAPIKey(cfg.APIKey); err != nil {
			return nil, fmt.Errorf("failed to set tron api key: %w", err)
		}
	}
	if err := c.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, fmt.Errorf("failed to start tron grpc client: %w", err)
	}

	g, err := newGateway(c, cfg)
	if err != nil {
		c.Stop()
		return nil, err
	}
	g.stop = c.Stop
	slog.Info("TRON gateway initialized",
		slog.String("network", cfg.Network),
		slog.String("endpoint", endpoint),
		slog.String("hot_wallet", g.from))
	return g, nil
}

func newGateway(n node, cfg config.TronConfig) (*Gateway, error) {
	contract := cfg.USDTContract
	if contract == "" {
		contract = usdtContracts[cfg.Network]
	}
	if _, err := address.Base58ToAddress(contract); err != nil {
		return nil, fmt.Errorf("invalid USDT contract address %q: %w", contract, err)
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	g := &Gateway{
		node:     n,
		stop:     func() {},
		contract: contract,
		feeLimit: cfg.FeeLimitSun,
		limiter:  ratelimit.New(rps),
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid tron private key: %w", err)
		}
		g.key = key
		g.from = address.PubkeyToAddress(key.PublicKey).String()
	}
	return g, nil
}

// Close stops the gRPC connection.
func (g *Gateway) Close() {
	g.stop()
}

// Send signs and broadcasts a USDT transfer from the hot wallet to wallet.
func (g *Gateway) Send(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	if g.key == nil {
		return "", ErrNoSigner
	}
	if !g.ValidateAddress(wallet) {
		return "", fmt.Errorf("invalid destination address %q", wallet)
	}
	units, err := toBaseUnits(amount)
	if err != nil {
		return "", err
	}

	ext, err := call(ctx, g, func() (*api.TransactionExtention, error) {
		return g.node.TRC20Send(g.from, wallet, g.contract, units, g.feeLimit)
	})
	if err != nil {
		return "", fmt.Errorf("failed to build transfer: %w", err)
	}
	if ext.GetResult() != nil && !ext.GetResult().GetResult() {
		return "", fmt.Errorf("transfer build rejected: %s", string(ext.GetResult().GetMessage()))
	}
	tx := ext.GetTransaction()
	if tx == nil || tx.GetRawData() == nil {
		return "", errors.New("node returned no transaction")
	}

	txHash, err := sign(tx, g.key)
	if err != nil {
		return "", err
	}

	ret, err := call(ctx, g, func() (*api.Return, error) {
		return g.node.Broadcast(tx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to broadcast %s: %w", txHash, err)
	}
	if !ret.GetResult() {
		return "", fmt.Errorf("broadcast of %s rejected: %s", txHash, string(ret.GetMessage()))
	}
	return txHash, nil
}

// GetTransaction returns the chain's answer for txHash. An unknown or unmined hash is pending.
func (g *Gateway) GetTransaction(ctx context.Context, txHash string) (*domain.ChainReceipt, error) {
	info, err := call(ctx, g, func() (*core.TransactionInfo, error) {
		return g.node.GetTransactionInfoByID(txHash)
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return &domain.ChainReceipt{TxHash: txHash, State: domain.ReceiptPending}, nil
		}
		return nil, fmt.Errorf("failed to look up %s: %w", txHash, err)
	}
	return receiptFrom(txHash, info), nil
}

// ValidateAddress reports whether address is a base58check TRON address.
func (g *Gateway) ValidateAddress(addr string) bool {
	if len(addr) != 34 || addr[0] != 'T' {
		return false
	}
	_, err := address.Base58ToAddress(addr)
	return err == nil
}

// GetBalance returns the hot wallet's USDT balance.
func (g *Gateway) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	if g.from == "" {
		return decimal.Zero, ErrNoSigner
	}
	units, err := call(ctx, g, func() (*big.Int, error) {
		return g.node.TRC20ContractBalance(g.from, g.contract)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read USDT balance: %w", err)
	}
	return decimal.NewFromBigInt(units, -usdtDecimals), nil
}

func receiptFrom(txHash string, info *core.TransactionInfo) *domain.ChainReceipt {
	receipt := &domain.ChainReceipt{TxHash: txHash, State: domain.ReceiptPending}
	if info == nil || info.GetBlockNumber() == 0 {
		return receipt
	}
	block := info.GetBlockNumber()
	receipt.BlockNumber = &block

	contractResult := info.GetReceipt().GetResult()
	switch {
	case info.GetResult() == core.TransactionInfo_FAILED:
		receipt.State = domain.ReceiptFailed
		receipt.Message = string(info.GetResMessage())
	case contractResult != core.Transaction_Result_SUCCESS && contractResult != core.Transaction_Result_DEFAULT:
		receipt.State = domain.ReceiptFailed
		receipt.Message = contractResult.String()
	default:
		receipt.State = domain.ReceiptConfirmed
	}
	return receipt
}

// sign attaches the hot wallet signature and returns the transaction id.
func sign(tx *core.Transaction, key *ecdsa.PrivateKey) (string, error) {
	raw, err := proto.Marshal(tx.GetRawData())
	if err != nil {
		return "", fmt.Errorf("failed to marshal raw data: %w", err)
	}
	hash := sha256.Sum256(raw)
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx.Signature = append(tx.Signature, sig)
	return hex.EncodeToString(hash[:]), nil
}

func toBaseUnits(amount decimal.Decimal) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	shifted := amount.Shift(usdtDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, amount, usdtDecimals)
	}
	return shifted.BigInt(), nil
}

// call runs a blocking node request under the rate limit, giving up when ctx ends.
func call[T any](ctx context.Context, g *Gateway, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	g.limiter.Take()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
