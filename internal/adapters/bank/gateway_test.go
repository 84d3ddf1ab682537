package bank_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dours-d/D2C/internal/adapters/bank"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/platform/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantRef string
		wantErr error
	}{
		{name: "accepted", reply: `{"paymentId":"pay-7","transactionStatus":"ACTC"}`, wantRef: "pay-7"},
		{name: "accepted without id", reply: `{"transactionStatus":"RCVD"}`, wantRef: "b1-bank-0"},
		{name: "rejected", reply: `{"paymentId":"pay-8","transactionStatus":"RJCT"}`, wantErr: bank.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v3/payments/sepa-credit-transfers", r.URL.Path)
				assert.Equal(t, "b1-bank-0", r.Header.Get("X-Request-ID"))

				var req map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "150.00", req["instructedAmount"].(map[string]any)["amount"])
				assert.Equal(t, "DE00123", req["debtorAccount"].(map[string]any)["iban"])

				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			gw := bank.NewGateway(config.BankConfig{APIURL: srv.URL, APIKey: "k", AccountIBAN: "DE00123"})
			ref, err := gw.Transfer(context.Background(), domain.BankTransferOrder{
				Reference:   "b1-bank-0",
				AmountEur:   decimal.NewFromInt(150),
				Description: "batch b1",
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRef, ref)
		})
	}
}
