// Package bank executes the SEPA transfers of the bank fallback route.
package bank

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Dours-d/D2C/internal/adapters/httpjson"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	"github.com/Dours-d/D2C/internal/platform/config"
)

// ErrRejected is returned when the bank accepts the request but rejects the payment.
var ErrRejected = errors.New("bank rejected the transfer")

const transferPath = "/v3/payments/sepa-credit-transfers"

type gateway struct {
	client *httpjson.Client
	iban   string
}

// NewGateway creates the bank gateway. Transfers are debited from cfg.AccountIBAN.
func NewGateway(cfg config.BankConfig, opts ...httpjson.Option) gateways.BankGateway {
	opts = append([]httpjson.Option{httpjson.WithHeader("Authorization", "Bearer "+cfg.APIKey)}, opts...)
	return &gateway{
		client: httpjson.New(cfg.APIURL, opts...),
		iban:   cfg.AccountIBAN,
	}
}

var _ gateways.BankGateway = (*gateway)(nil)

type instructedAmount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type account struct {
	IBAN string `json:"iban"`
}

type transferRequest struct {
	InstructedAmount                  instructedAmount `json:"instructedAmount"`
	DebtorAccount                     account          `json:"debtorAccount"`
	EndToEndIdentification            string           `json:"endToEndIdentification"`
	RemittanceInformationUnstructured string           `json:"remittanceInformationUnstructured"`
}

type transferResponse struct {
	PaymentID         string `json:"paymentId"`
	TransactionStatus string `json:"transactionStatus"`
}

// Transfer submits one SEPA credit transfer and returns the bank's payment id.
func (g *gateway) Transfer(ctx context.Context, order domain.BankTransferOrder) (string, error) {
	payload, err := httpjson.Encode(transferRequest{
		InstructedAmount:                  instructedAmount{Amount: order.AmountEur.StringFixed(2), Currency: domain.BaseCurrency},
		DebtorAccount:                     account{IBAN: g.iban},
		EndToEndIdentification:            order.Reference,
		RemittanceInformationUnstructured: order.Description,
	})
	if err != nil {
		return "", err
	}

	var rsp transferResponse
	err = g.client.Do(ctx, http.MethodPost, transferPath, payload, &rsp,
		http.Header{"X-Request-ID": {order.Reference}})
	if err != nil {
		return "", fmt.Errorf("bank transfer %s: %w", order.Reference, err)
	}
	if rsp.TransactionStatus == "RJCT" {
		return "", fmt.Errorf("bank transfer %s: %w", order.Reference, ErrRejected)
	}
	if rsp.PaymentID == "" {
		return order.Reference, nil
	}
	return rsp.PaymentID, nil
}
