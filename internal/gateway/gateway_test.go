package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roadready/theory-backend/internal/config"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.PaymentConfig{
		GatewayBaseURL: srv.URL,
		SecretKey:      "sk_test",
		WebhookSecret:  "hook-secret",
		Timeout:        2 * time.Second,
	}, zerolog.Nop())
}

func TestInitiate(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.example/pay/abc"}}`))
	})

	res, err := c.Initiate(context.Background(), InitiateRequest{
		TxRef:       "tx-1",
		Amount:      decimal.NewFromInt(1500),
		Currency:    "NGN",
		Customer:    Customer{Email: "a@example.com", Name: "Ada"},
		RedirectURL: "http://localhost/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/pay/abc", res.Link)
	assert.Equal(t, "tx-1", res.TxRef)
	assert.Equal(t, "tx-1", got["tx_ref"])
	assert.EqualValues(t, 1500, got["amount"])
	assert.Equal(t, "NGN", got["currency"])
}

func TestInitiateRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"Invalid currency","data":null}`))
	})

	_, err := c.Initiate(context.Background(), InitiateRequest{TxRef: "tx-1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid currency")
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   Status
	}{
		{"successful", "successful", StatusSuccessful},
		{"failed", "failed", StatusFailed},
		{"unknown maps to pending", "processing", StatusPending},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transactions/verify_by_reference", r.URL.Path)
				assert.Equal(t, "tx-9", r.URL.Query().Get("tx_ref"))
				_, _ = w.Write([]byte(`{"status":"success","message":"ok","data":{
					"id": 4815162342, "tx_ref": "tx-9", "status": "` + tc.status + `",
					"amount": 5000, "currency": "NGN", "payment_type": "card",
					"processor_response": "Approved"}}`))
			})

			v, err := c.Verify(context.Background(), "tx-9")
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Status)
			assert.Equal(t, "4815162342", v.TransactionID)
			assert.True(t, v.Amount.Equal(decimal.NewFromInt(5000)))
			assert.Equal(t, "card", v.Method)
		})
	}
}

func TestVerifyNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"No transaction was found for this id","data":null}`))
	})

	_, err := c.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestRefundRejectsMalformedID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called")
	})

	assert.Error(t, c.Refund(context.Background(), "../payments", decimal.NewFromInt(1)))
}

func TestValidWebhookSignature(t *testing.T) {
	c := NewClient(config.PaymentConfig{WebhookSecret: "hook-secret"}, zerolog.Nop())
	assert.True(t, c.ValidWebhookSignature("hook-secret"))
	assert.False(t, c.ValidWebhookSignature("nope"))
	assert.False(t, c.ValidWebhookSignature(""))

	unconfigured := NewClient(config.PaymentConfig{}, zerolog.Nop())
	assert.False(t, unconfigured.ValidWebhookSignature(""))
	assert.False(t, unconfigured.ValidWebhookSignature("anything"))
}
