// Package simplex starts fiat-to-crypto purchases with the Simplex partner API.
package simplex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/Dours-d/D2C/internal/adapters/httpjson"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	"github.com/Dours-d/D2C/internal/platform/config"
)

// ErrNotConfigured is returned when the API key or provider id is missing.
var ErrNotConfigured = errors.New("simplex credentials not configured")

const initiatePath = "/payments/partner/initiate"

type gateway struct {
	client        *httpjson.Client
	apiKey        string
	appProviderID string
}

// NewGateway creates the payment gateway from the Simplex settings.
func NewGateway(cfg config.SimplexConfig, opts ...httpjson.Option) gateways.PaymentGateway {
	opts = append([]httpjson.Option{httpjson.WithHeader("Authorization", "Bearer "+cfg.APIKey)}, opts...)
	return &gateway{
		client:        httpjson.New(cfg.APIURL, opts...),
		apiKey:        cfg.APIKey,
		appProviderID: cfg.AppProviderID,
	}
}

var _ gateways.PaymentGateway = (*gateway)(nil)

type amount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type initiateRequest struct {
	AccountDetails struct {
		AppProviderID string `json:"app_provider_id"`
		AppEndUserID  string `json:"app_end_user_id"`
		AppInstallID  string `json:"app_install_id"`
	} `json:"account_details"`
	TransactionDetails struct {
		PaymentDetails struct {
			QuoteID                string `json:"quote_id"`
			FiatTotalAmount        amount `json:"fiat_total_amount"`
			RequestedDigitalAmount amount `json:"requested_digital_amount"`
			DestinationWallet      string `json:"destination_wallet"`
			Network                string `json:"network"`
		} `json:"payment_details"`
	} `json:"transaction_details"`
	UserDetails struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Email       string `json:"email"`
		DateOfBirth string `json:"date_of_birth,omitempty"`
		Phone       string `json:"phone,omitempty"`
	} `json:"user_details"`
}

type initiateResponse struct {
	PaymentURL string `json:"payment_url"`
	PaymentID  string `json:"payment_id"`
	QuoteID    string `json:"quote_id"`
}

// Initiate posts the signed purchase request. The provider may assign its own quote id; the
// session carries whichever id the provider will use in its callback.
func (g *gateway) Initiate(ctx context.Context, quote domain.SettlementQuote) (*domain.PaymentSession, error) {
	if g.apiKey == "" || g.appProviderID == "" {
		return nil, ErrNotConfigured
	}

	var req initiateRequest
	req.AccountDetails.AppProviderID = g.appProviderID
	req.AccountDetails.AppEndUserID = quote.User.UserID
	if req.AccountDetails.AppEndUserID == "" {
		req.AccountDetails.AppEndUserID = quote.User.Email
	}
	req.AccountDetails.AppInstallID = quote.BatchID

	pd := &req.TransactionDetails.PaymentDetails
	pd.QuoteID = quote.QuoteID
	pd.FiatTotalAmount = amount{Amount: quote.FiatAmount.String(), Currency: quote.FiatCurrency}
	pd.RequestedDigitalAmount = amount{Amount: quote.DigitalAmount.String(), Currency: quote.DigitalCurrency}
	pd.DestinationWallet = quote.DestinationWallet
	pd.Network = quote.Network

	req.UserDetails.FirstName = quote.User.FirstName
	req.UserDetails.LastName = quote.User.LastName
	req.UserDetails.Email = quote.User.Email
	req.UserDetails.DateOfBirth = quote.User.DateOfBirth
	req.UserDetails.Phone = quote.User.Phone

	payload, err := httpjson.Encode(req)
	if err != nil {
		return nil, err
	}

	var rsp initiateResponse
	err = g.client.Do(ctx, http.MethodPost, initiatePath, payload, &rsp,
		http.Header{"X-Signature": {Sign(g.apiKey, payload)}})
	if err != nil {
		return nil, fmt.Errorf("simplex initiate for batch %s: %w", quote.BatchID, err)
	}

	session := &domain.PaymentSession{
		PaymentURL: rsp.PaymentURL,
		PaymentID:  rsp.PaymentID,
		QuoteID:    rsp.QuoteID,
	}
	if session.QuoteID == "" {
		session.QuoteID = quote.QuoteID
	}
	return session, nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed with the API key.
func Sign(apiKey string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
