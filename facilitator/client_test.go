package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402labs/x402-go/types"
)

func testSpec() *types.PaymentSpecification {
	return &types.PaymentSpecification{
		X402Version: 1,
		Scheme:      types.SchemeExact,
		Network:     types.NetworkBaseMainnet,
		Price:       types.Price{Amount: "10000000000000000"},
		Recipient:   types.Recipient{Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"},
		Resource:    types.Resource{URI: "/premium"},
	}
}

func testProof() *types.PaymentProof {
	return &types.PaymentProof{
		TxID:      "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789",
		Network:   types.NetworkBaseMainnet,
		Sender:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Recipient: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Amount:    "10000000000000000",
	}
}

func TestVerifyAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req VerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1, req.X402Version)
		assert.Equal(t, testProof().TxID, req.Proof.TxID)
		assert.Equal(t, "10000000000000000", req.Spec.Price.Amount)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VerifyResponse{Accepted: true})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	result, err := c.Verify(context.Background(), testProof(), testSpec())
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, testProof().Sender, result.Payer)
}

func TestVerifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VerifyResponse{Accepted: false, Reason: "invalid_amount_mismatch"})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	result, err := c.Verify(context.Background(), testProof(), testSpec())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, "invalid_amount_mismatch", result.InvalidReason)
}

func TestVerifyRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VerifyResponse{Accepted: true})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RetryCount: 3})
	result, err := c.Verify(context.Background(), testProof(), testSpec())
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, int32(3), calls.Load())
}

func TestVerifyExhaustedRetriesFailClosed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RetryCount: 2})
	_, err := c.Verify(context.Background(), testProof(), testSpec())
	require.Error(t, err)
	assert.Equal(t, types.ErrNetworkError, err.(*types.X402Error).Code)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestVerifyClientErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.Verify(context.Background(), testProof(), testSpec())
	require.Error(t, err)
	assert.Equal(t, types.ErrFacilitatorRejected, err.(*types.X402Error).Code)
}

func TestSettleSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settle", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SettleResponse{Settled: true})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	result, err := c.Settle(context.Background(), testProof(), testSpec())
	require.NoError(t, err)
	assert.True(t, result.Settled)
	assert.Equal(t, testProof().TxID, result.TxID)
	assert.Equal(t, "base-mainnet", result.NetworkID)
}

func TestSettleNeverRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RetryCount: 5})
	_, err := c.Settle(context.Background(), testProof(), testSpec())
	require.Error(t, err)
	assert.Equal(t, types.ErrAmbiguousSettlement, err.(*types.X402Error).Code)
	assert.Equal(t, int32(1), calls.Load(), "settle must be attempted exactly once")
}

func TestSettleTimeoutIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SettleResponse{Settled: true})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Settle(context.Background(), testProof(), testSpec())
	require.Error(t, err)
	assert.Equal(t, types.ErrAmbiguousSettlement, err.(*types.X402Error).Code)
}

func TestSettleClientErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.Settle(context.Background(), testProof(), testSpec())
	require.Error(t, err)
	assert.Equal(t, types.ErrFacilitatorRejected, err.(*types.X402Error).Code)
}

func TestSettleIdempotentRepeat(t *testing.T) {
	// The facilitator treats settling an already-settled proof as a
	// no-op success; the client surfaces both calls identically.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SettleResponse{Settled: true})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	first, err := c.Settle(context.Background(), testProof(), testSpec())
	require.NoError(t, err)
	second, err := c.Settle(context.Background(), testProof(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, first.Settled, second.Settled)
	assert.Equal(t, int32(2), calls.Load())
}
