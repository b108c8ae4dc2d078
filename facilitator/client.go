// Package facilitator wraps the remote facilitator service that performs
// authoritative payment verification and settlement. It is the only
// component in the library that talks to the facilitator over the network.
package facilitator

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/x402labs/x402-go/logger"
	"github.com/x402labs/x402-go/metrics"
	"github.com/x402labs/x402-go/types"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultRetryCount = 3
)

// Options configures the facilitator client.
type Options struct {
	// BaseURL is the facilitator endpoint, e.g. "https://facilitator.example.com".
	BaseURL string

	// Timeout bounds each HTTP round-trip. Defaults to 5s.
	Timeout time.Duration

	// RetryCount is the retry ceiling for verify calls. Settle is never
	// retried. Defaults to 3.
	RetryCount int

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// Client is the facilitator HTTP client.
type Client struct {
	baseURL string
	verify  *resty.Client
	settle  *resty.Client
	logger  logger.Logger
	metrics metrics.Recorder
}

// VerifyRequest is the payload of POST /verify and POST /settle.
type VerifyRequest struct {
	X402Version int                         `json:"x402Version"`
	Proof       *types.PaymentProof         `json:"proof"`
	Spec        *types.PaymentSpecification `json:"spec"`
}

// VerifyResponse is the facilitator's verification result.
type VerifyResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// SettleResponse is the facilitator's settlement result.
type SettleResponse struct {
	Settled bool   `json:"settled"`
	Reason  string `json:"reason,omitempty"`
}

// New creates a facilitator client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := opts.RetryCount
	if retries <= 0 {
		retries = defaultRetryCount
	}

	log := opts.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	// Verify is read-only, so transient transport failures are retried
	// with exponential backoff up to the retry ceiling.
	verify := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	// Settle mutates facilitator state. A blind retry after an ambiguous
	// failure risks duplicate settlement, so it gets no retry machinery.
	settle := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout)

	return &Client{
		baseURL: opts.BaseURL,
		verify:  verify,
		settle:  settle,
		logger:  log,
		metrics: rec,
	}
}

// Verify calls the facilitator's verify endpoint. Transport failures that
// survive the retry budget are returned as NETWORK_ERROR: the caller must
// fail closed, never assume success.
func (c *Client) Verify(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) (*types.VerificationResult, error) {
	started := time.Now()
	labels := map[string]string{"network": spec.Network.String()}

	var out VerifyResponse
	resp, err := c.verify.R().
		SetContext(ctx).
		SetBody(&VerifyRequest{
			X402Version: int(types.X402Version1),
			Proof:       proof,
			Spec:        spec,
		}).
		SetResult(&out).
		Post("/verify")

	c.metrics.ObserveLatency("facilitator_verify", time.Since(started), labels)

	if err != nil {
		c.metrics.IncCounter("facilitator_verify_transport_error", labels)
		return nil, types.NewError(types.ErrNetworkError, "facilitator verify failed after retries: %v", err)
	}
	if resp.IsError() {
		if resp.StatusCode() >= 500 {
			return nil, types.NewError(types.ErrNetworkError, "facilitator verify returned %d", resp.StatusCode())
		}
		return nil, types.NewError(types.ErrFacilitatorRejected, "facilitator verify returned %d", resp.StatusCode())
	}

	if !out.Accepted {
		c.logger.Debug("facilitator rejected payment", map[string]any{
			"network": spec.Network.String(),
			"txId":    proof.TxID,
			"reason":  out.Reason,
		})
	}

	return &types.VerificationResult{
		IsValid:       out.Accepted,
		InvalidReason: out.Reason,
		Payer:         proof.Sender,
	}, nil
}

// Settle calls the facilitator's settle endpoint. Settlement is idempotent
// on the facilitator side: repeating a settle for an already-settled proof
// is a no-op success. The client therefore never retries: a transport
// failure after the request may have been received is surfaced as
// AMBIGUOUS_SETTLEMENT for out-of-band reconciliation.
func (c *Client) Settle(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) (*types.SettlementResult, error) {
	started := time.Now()
	labels := map[string]string{"network": spec.Network.String()}

	var out SettleResponse
	resp, err := c.settle.R().
		SetContext(ctx).
		SetBody(&VerifyRequest{
			X402Version: int(types.X402Version1),
			Proof:       proof,
			Spec:        spec,
		}).
		SetResult(&out).
		Post("/settle")

	c.metrics.ObserveLatency("facilitator_settle", time.Since(started), labels)

	if err != nil {
		c.metrics.IncCounter("facilitator_settle_ambiguous", labels)
		return nil, types.NewError(types.ErrAmbiguousSettlement, "settle outcome unknown for tx %s: %v", proof.TxID, err)
	}
	if resp.IsError() {
		if resp.StatusCode() >= 500 {
			return nil, types.NewError(types.ErrAmbiguousSettlement, "settle outcome unknown for tx %s: facilitator returned %d", proof.TxID, resp.StatusCode())
		}
		return nil, types.NewError(types.ErrFacilitatorRejected, "facilitator settle returned %d", resp.StatusCode())
	}

	return &types.SettlementResult{
		Settled:   out.Settled,
		TxID:      proof.TxID,
		NetworkID: spec.Network.String(),
		Error:     out.Reason,
	}, nil
}
