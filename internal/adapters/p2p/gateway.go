// Package p2p places purchases with a peer-to-peer desk that delivers to the order wallet.
package p2p

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Dours-d/D2C/internal/adapters/httpjson"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	"github.com/Dours-d/D2C/internal/platform/config"
)

const ordersPath = "/v1/orders"

type gateway struct {
	client *httpjson.Client
}

// NewGateway creates the desk gateway.
func NewGateway(cfg config.P2PConfig, opts ...httpjson.Option) gateways.P2PGateway {
	opts = append([]httpjson.Option{httpjson.WithHeader("X-API-Key", cfg.APIKey)}, opts...)
	return &gateway{client: httpjson.New(cfg.APIURL, opts...)}
}

var _ gateways.P2PGateway = (*gateway)(nil)

type orderRequest struct {
	ClientReference string   `json:"clientReference"`
	Wallet          string   `json:"wallet"`
	Network         string   `json:"network"`
	FiatAmount      string   `json:"fiatAmount"`
	FiatCurrency    string   `json:"fiatCurrency"`
	CryptoAmount    string   `json:"cryptoAmount"`
	CryptoCurrency  string   `json:"cryptoCurrency"`
	Items           []string `json:"items"`
}

type orderResponse struct {
	OrderID string `json:"orderId"`
}

// Purchase places one order and returns the desk's order id.
func (g *gateway) Purchase(ctx context.Context, order domain.SettlementOrder) (string, error) {
	payload, err := httpjson.Encode(orderRequest{
		ClientReference: order.Reference,
		Wallet:          order.Wallet,
		Network:         order.Network,
		FiatAmount:      order.AmountEur.StringFixed(2),
		FiatCurrency:    domain.BaseCurrency,
		CryptoAmount:    order.AmountTarget.String(),
		CryptoCurrency:  domain.DefaultTargetCurrency,
		Items:           order.DonationIDs,
	})
	if err != nil {
		return "", err
	}

	var rsp orderResponse
	if err := g.client.Do(ctx, http.MethodPost, ordersPath, payload, &rsp); err != nil {
		return "", fmt.Errorf("p2p order %s: %w", order.Reference, err)
	}
	if rsp.OrderID == "" {
		return "", fmt.Errorf("p2p order %s: desk returned no order id", order.Reference)
	}
	return rsp.OrderID, nil
}
