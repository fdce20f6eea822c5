package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-pipeline/internal/config"
)

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "0.00", FormatMinor(0))
	assert.Equal(t, "0.05", FormatMinor(5))
	assert.Equal(t, "1.00", FormatMinor(100))
	assert.Equal(t, "123.45", FormatMinor(12345))
	assert.Equal(t, "-9.99", FormatMinor(-999))
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.Gateway{
		APIKey:    "key",
		SecretKey: "secret",
		BaseURL:   srv.URL,
		Timeout:   time.Second,
		Currency:  "TRY",
	})
}

func TestCreateSession(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/checkoutform/initialize", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Basic ")

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		// Amounts cross the wire as decimal strings of the minor units.
		assert.Equal(t, "150.00", payload["price"])
		assert.Equal(t, payload["price"], payload["paidPrice"])

		json.NewEncoder(w).Encode(map[string]string{
			"status": "success", "token": "tok-1", "paymentPageUrl": "https://pay.example/tok-1",
		})
	})

	session, err := gw.CreateSession(context.Background(), SessionRequest{
		ConversationID: "conv-1", OrderID: "ORD-1", AmountMinor: 15000, Currency: "TRY",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Token)
	assert.Equal(t, "https://pay.example/tok-1", session.RedirectURL)
}

func TestCreateSessionRejected(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "failure", "errorMessage": "invalid price"})
	})
	_, err := gw.CreateSession(context.Background(), SessionRequest{AmountMinor: 100})
	assert.ErrorContains(t, err, "invalid price")
}

func TestRetrieve(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/checkoutform/retrieve", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"paymentStatus": "SUCCESS", "paymentId": "pay-1", "transactionIds": []string{"tx-1", "tx-2"},
		})
	})

	result, err := gw.Retrieve(context.Background(), "tok-1", "conv-1")
	require.NoError(t, err)
	assert.True(t, result.Paid())
	assert.Equal(t, "pay-1", result.PaymentID)
	assert.Equal(t, []string{"tx-1", "tx-2"}, result.TransactionIDs)
}

func TestGatewayErrorStatus(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := gw.Retrieve(context.Background(), "tok-1", "")
	assert.Error(t, err)
}

func TestCancelAndRefund(t *testing.T) {
	var paths []string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})

	require.NoError(t, gw.Cancel(context.Background(), "pay-1"))
	require.NoError(t, gw.Refund(context.Background(), "tx-1", 2500, "TRY"))
	assert.Equal(t, []string{"/payment/cancel", "/payment/refund"}, paths)
}
