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

	"github.com/rgeron/SwapDecksMarketplace/internal/config"
)

func TestParseEvent_TopUpCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_123",
		"type": "checkout.completed",
		"data": {"session_id": "cs_456", "client_reference_id": "user-1", "amount_total": 2500}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	topUp, ok := event.(TopUpCompleted)
	require.True(t, ok, "expected TopUpCompleted, got %T", event)
	assert.Equal(t, "evt_123", topUp.EventID())
	assert.Equal(t, "cs_456", topUp.ExternalSessionID)
	assert.Equal(t, "user-1", topUp.UserID)
	assert.Equal(t, int64(2500), topUp.Amount)
}

func TestParseEvent_AccountCapabilitiesChanged(t *testing.T) {
	payload := []byte(`{
		"id": "evt_124",
		"type": "account.updated",
		"data": {"account_id": "acct_789", "payouts_enabled": true}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	changed, ok := event.(AccountCapabilitiesChanged)
	require.True(t, ok, "expected AccountCapabilitiesChanged, got %T", event)
	assert.Equal(t, "acct_789", changed.PayoutAccountID)
	assert.True(t, changed.PayoutsEnabled)
}

func TestParseEvent_UnrecognizedType(t *testing.T) {
	payload := []byte(`{"id": "evt_125", "type": "invoice.finalized", "data": {}}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	unknown, ok := event.(Unrecognized)
	require.True(t, ok, "expected Unrecognized, got %T", event)
	assert.Equal(t, "evt_125", unknown.ID)
	assert.Equal(t, "invoice.finalized", unknown.Type)
}

func TestParseEvent_Malformed(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"type": "checkout.completed", "data": {}}`))
	assert.Error(t, err, "envelope without an id must be rejected")
}

func testClient(baseURL string) *ProcessorClient {
	return NewProcessorClient(&config.Config{
		ProcessorBaseURL: baseURL,
		ProcessorAPIKey:  "sk_test_key",
		Currency:         "eur",
		ProcessorTimeout: 2 * time.Second,
	})
}

func TestProcessorClient_CreateTopUpSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "2500", r.PostForm.Get("amount"))
		assert.Equal(t, "eur", r.PostForm.Get("currency"))
		assert.Equal(t, "user-1", r.PostForm.Get("client_reference_id"))

		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_test_1",
			"url": "https://checkout.example/cs_test_1",
		})
	}))
	defer srv.Close()

	session, err := testClient(srv.URL).CreateTopUpSession(context.Background(), "user-1", 2500)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ExternalSessionID)
	assert.Equal(t, "https://checkout.example/cs_test_1", session.RedirectURL)
}

func TestProcessorClient_CreatePayoutTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transfers", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "acct_1", r.PostForm.Get("destination"))

		json.NewEncoder(w).Encode(map[string]string{"id": "tr_test_1"})
	}))
	defer srv.Close()

	transferID, err := testClient(srv.URL).CreatePayoutTransfer(context.Background(), "acct_1", 900)
	require.NoError(t, err)
	assert.Equal(t, "tr_test_1", transferID)
}

func TestProcessorClient_PayoutUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"code":    "payouts_not_enabled",
				"message": "The destination account cannot receive payouts",
			},
		})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreatePayoutTransfer(context.Background(), "acct_raw", 900)
	assert.ErrorIs(t, err, ErrPayoutUnavailable)
}

func TestProcessorClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateTopUpSession(context.Background(), "user-1", 100)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPayoutUnavailable)
}
