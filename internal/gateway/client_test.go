package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: timeout}), srv
}

func TestInitializeSendsCheckoutRequest(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{
			"authorization_url":"https://checkout.example/abc","access_code":"abc","reference":"SUB-1-2025-1-aaaaaa"}}`))
	}, time.Second)

	auth, err := client.Initialize(context.Background(), InitializeRequest{
		Email:       "ada@example.edu",
		AmountMinor: 2500000,
		Reference:   "SUB-1-2025-1-aaaaaa",
		CallbackURL: "https://app.example/callback",
		Metadata:    map[string]string{"student_id": "1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/abc", auth.AuthorizationURL)
	assert.Equal(t, "abc", auth.AccessCode)
	assert.Equal(t, "ada@example.edu", got["email"])
	assert.EqualValues(t, 2500000, got["amount"])
	assert.Equal(t, "https://app.example/callback", got["callback_url"])
	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "1", meta["student_id"])
	assert.Len(t, meta["custom_fields"], 1)
}

func TestInitializeRejectedIsKnownOutcome(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":false,"message":"Invalid email"}`))
	}, time.Second)

	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "x", AmountMinor: 1, Reference: "r"})

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, http.StatusBadRequest, ge.StatusCode)
	assert.Equal(t, "Invalid email", ge.Message)
	assert.False(t, IsOutcomeUnknown(err))
}

func TestServerErrorIsUnknownOutcome(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`upstream down`))
	}, time.Second)

	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "a@b.c", AmountMinor: 1, Reference: "r"})

	require.Error(t, err)
	assert.True(t, IsOutcomeUnknown(err))
}

func TestTimeoutIsUnknownOutcome(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "a@b.c", AmountMinor: 1, Reference: "r"})

	require.Error(t, err)
	assert.True(t, IsOutcomeUnknown(err), "a timed out initialize may still have been processed")
}

func TestConnectionRefusedIsKnownOutcome(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client := NewClient(Options{BaseURL: url, SecretKey: "sk_test", Timeout: time.Second})

	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "a@b.c", AmountMinor: 1, Reference: "r"})

	require.Error(t, err)
	assert.False(t, IsOutcomeUnknown(err))
}

func TestVerifyParsesDetails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/SUB-9-2025-1-bbbbbb", r.URL.Path)
		w.Write([]byte(`{"status":true,"message":"Verification successful","data":{
			"id":4099260516,"status":"success","reference":"SUB-9-2025-1-bbbbbb","amount":2500000,
			"currency":"NGN","channel":"card","gateway_response":"Successful",
			"paid_at":"2025-03-03T10:00:05.000Z","customer":{"id":1,"email":"ada@example.edu"}}}`))
	}, time.Second)

	details, err := client.Verify(context.Background(), "SUB-9-2025-1-bbbbbb")

	require.NoError(t, err)
	assert.True(t, details.Succeeded())
	assert.True(t, details.Settled())
	assert.EqualValues(t, 2500000, details.Amount)
	assert.Equal(t, "card", details.Channel)
	assert.Equal(t, "ada@example.edu", details.Customer.Email)
	require.NotNil(t, details.PaidAt)
	assert.Equal(t, 2025, details.PaidAt.Year())
}

func TestVerifyUnknownReference(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	}, time.Second)

	_, err := client.Verify(context.Background(), "SUB-missing")

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, http.StatusNotFound, ge.StatusCode)
	assert.False(t, ge.OutcomeUnknown)
}

func TestCircuitBreakerOpensAfterRepeatedOutages(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":false,"message":"boom"}`))
	}, time.Second)

	for i := 0; i < 5; i++ {
		_, err := client.Verify(context.Background(), "SUB-x")
		require.Error(t, err)
	}

	_, err := client.Verify(context.Background(), "SUB-x")

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "gateway temporarily unavailable", ge.Message)
	assert.False(t, ge.OutcomeUnknown, "an open circuit never sends the request")
	assert.EqualValues(t, 5, hits.Load())
}

func TestRejectionsDoNotOpenCircuit(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	}, time.Second)

	for i := 0; i < 8; i++ {
		_, err := client.Verify(context.Background(), "SUB-x")
		var ge *Error
		require.True(t, errors.As(err, &ge))
		assert.Equal(t, http.StatusBadRequest, ge.StatusCode)
	}
	assert.EqualValues(t, 8, hits.Load())
}

func TestClientVerifySignatureUsesWebhookSecret(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://unused", SecretKey: "sk_live", WebhookSecret: "whsec"})
	payload := []byte(`{"event":"charge.success"}`)

	assert.True(t, client.VerifySignature(payload, Sign("whsec", payload)))
	assert.False(t, client.VerifySignature(payload, Sign("sk_live", payload)))
}

func TestSettledTreatsAbandonedAsInFlight(t *testing.T) {
	for status, settled := range map[string]bool{
		"success":    true,
		"failed":     true,
		"reversed":   true,
		"abandoned":  false,
		"pending":    false,
		"ongoing":    false,
		"processing": false,
		"queued":     false,
		"":           false,
	} {
		d := &TransactionDetails{Status: status}
		assert.Equal(t, settled, d.Settled(), status)
	}
}
