package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_CreatePayment_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoice/init-payment", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req initPaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "inv-1", req.InvoiceID)
		assert.Equal(t, "click", req.Provider)
		assert.Equal(t, "https://clinic.example/return", req.ReturnURL)

		json.NewEncoder(w).Encode(initPaymentResponse{
			Success:           true,
			PaymentURL:        "https://gw/pay/1",
			ProviderPaymentID: "p1",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, server.Client())
	res, err := client.CreatePayment(context.Background(), CreateRequest{
		InvoiceID: "inv-1",
		Provider:  ProviderClick,
		ReturnURL: "https://clinic.example/return",
		CancelURL: "https://clinic.example/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://gw/pay/1", res.PaymentURL)
	assert.Equal(t, "p1", res.ProviderPaymentID)
}

func TestHTTPClient_CreatePayment_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(initPaymentResponse{
			Success:      false,
			ErrorMessage: "insufficient_invoice_amount",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, server.Client())
	_, err := client.CreatePayment(context.Background(), CreateRequest{InvoiceID: "inv-1", Provider: ProviderPayme})
	require.Error(t, err)

	ie, ok := AsInitiationError(err)
	require.True(t, ok)
	assert.Equal(t, InitiationRejected, ie.Kind)
	assert.Equal(t, "insufficient_invoice_amount", ie.Reason)
}

func TestHTTPClient_CreatePayment_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	client := NewHTTPClient(server.URL, nil)
	_, err := client.CreatePayment(context.Background(), CreateRequest{InvoiceID: "inv-1", Provider: ProviderClick})
	require.Error(t, err)

	ie, ok := AsInitiationError(err)
	require.True(t, ok)
	assert.Equal(t, InitiationNetwork, ie.Kind)
}

func TestHTTPClient_CreatePayment_Validation(t *testing.T) {
	client := NewHTTPClient("http://unused", nil)

	t.Run("empty invoice ID", func(t *testing.T) {
		_, err := client.CreatePayment(context.Background(), CreateRequest{Provider: ProviderClick})
		ie, ok := AsInitiationError(err)
		require.True(t, ok)
		assert.Equal(t, InitiationRejected, ie.Kind)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := client.CreatePayment(context.Background(), CreateRequest{InvoiceID: "inv-1", Provider: "paypal"})
		ie, ok := AsInitiationError(err)
		require.True(t, ok)
		assert.Equal(t, InitiationRejected, ie.Kind)
	})
}

func TestHTTPClient_CheckStatus(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusPaid, StatusFailed, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/invoice/inv-7/status", r.URL.Path)
				json.NewEncoder(w).Encode(statusResponse{Status: string(status)})
			}))
			defer server.Close()

			client := NewHTTPClient(server.URL, server.Client())
			got, err := client.CheckStatus(context.Background(), "inv-7")
			require.NoError(t, err, "a legitimate %s status is not an error", status)
			assert.Equal(t, status, got)
		})
	}
}

func TestHTTPClient_CheckStatus_Errors(t *testing.T) {
	t.Run("non-2xx response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL, server.Client())
		_, err := client.CheckStatus(context.Background(), "inv-7")
		_, ok := AsCheckError(err)
		assert.True(t, ok)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL, server.Client())
		_, err := client.CheckStatus(context.Background(), "inv-7")
		_, ok := AsCheckError(err)
		assert.True(t, ok)
	})

	t.Run("unknown status value", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(statusResponse{Status: "refunded"})
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL, server.Client())
		_, err := client.CheckStatus(context.Background(), "inv-7")
		_, ok := AsCheckError(err)
		assert.True(t, ok)
	})
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got)
	assert.True(t, got.Terminal())

	got, err = ParseStatus("pending")
	require.NoError(t, err)
	assert.False(t, got.Terminal())

	_, err = ParseStatus("settled")
	assert.Error(t, err)
}
