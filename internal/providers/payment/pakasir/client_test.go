package pakasir

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.PaymentConfig{BaseURL: srv.URL, Project: "novacat", APIKey: "secret", Timeout: time.Second})
}

func TestCreatePaymentSendsOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/transactioncreate/qris", r.URL.Path)

		var body createRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, createRequest{Project: "novacat", APIKey: "secret", OrderID: "ORDER_1", Amount: 500}, body)

		_, _ = w.Write([]byte(`{"success":true,"payment":{"payment_number":"00020101021226","expired_at":"2026-03-01T10:15:00Z"}}`))
	})

	payment, err := client.CreatePayment(context.Background(), "ORDER_1", 500)
	require.NoError(t, err)
	assert.Equal(t, "00020101021226", payment.PaymentNumber)
	assert.Equal(t, "00020101021226", payment.QRISString)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC), payment.ExpiresAt)
}

func TestCreatePaymentTopLevelShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"code":"C-9","qris_string":"QR"}`))
	})

	payment, err := client.CreatePayment(context.Background(), "ORDER_2", 500)
	require.NoError(t, err)
	assert.Equal(t, "C-9", payment.PaymentNumber)
	assert.Equal(t, "QR", payment.QRISString)
	assert.True(t, payment.ExpiresAt.IsZero())
}

func TestCreatePaymentRejectsInvalidShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"project not found"}`))
	})

	_, err := client.CreatePayment(context.Background(), "ORDER_3", 500)
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.Contains(t, err.Error(), "project not found")
}

func TestCreatePaymentHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	})

	_, err := client.CreatePayment(context.Background(), "ORDER_4", 500)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestQueryPaymentStatusNormalizes(t *testing.T) {
	cases := map[string]domain.Status{
		`{"transaction":{"status":"SETTLED"}}`: domain.StatusPaid,
		`{"transaction":{"status":"cancel"}}`:  domain.StatusExpired,
		`{"status":"pending"}`:                 domain.StatusPending,
		`{}`:                                   domain.StatusPending,
	}
	for payload, want := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/transactiondetail", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "novacat", q.Get("project"))
			assert.Equal(t, "0", q.Get("amount"))
			assert.Equal(t, "ORDER_5", q.Get("order_id"))
			assert.Equal(t, "secret", q.Get("api_key"))
			_, _ = w.Write([]byte(payload))
		})

		status, err := client.QueryPaymentStatus(context.Background(), "ORDER_5")
		require.NoError(t, err)
		assert.Equal(t, want, status, payload)
	}
}

func TestClientRequiresCredentials(t *testing.T) {
	client := New(config.PaymentConfig{BaseURL: "http://127.0.0.1:0"})
	_, err := client.CreatePayment(context.Background(), "ORDER_6", 500)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = client.QueryPaymentStatus(context.Background(), "ORDER_6")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestQueryPaymentStatusTransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(config.PaymentConfig{BaseURL: srv.URL, Project: "novacat", APIKey: "sk_live_hunter2", Timeout: time.Second})

	_, err := client.QueryPaymentStatus(context.Background(), "ORDER_7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pakasir GET /api/transactiondetail")
	assert.NotContains(t, err.Error(), "sk_live_hunter2")
	assert.NotContains(t, err.Error(), "api_key")
}
