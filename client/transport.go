// Package client provides the client-side payment interceptor: an
// http.RoundTripper that answers 402 challenges by paying and retrying.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/x402labs/x402-go/chains"
	"github.com/x402labs/x402-go/logger"
	"github.com/x402labs/x402-go/metrics"
	"github.com/x402labs/x402-go/types"
	"github.com/x402labs/x402-go/utils"
	"github.com/x402labs/x402-go/wallet"
)

// Options configures the payment transport.
type Options struct {
	// Transport is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper

	Wallet   wallet.Wallet
	Registry *chains.Registry

	// MaxAmount caps the quoted amount, in the asset's smallest unit,
	// that the transport will pay without refusing. Nil means no cap.
	// The cap is enforced before the wallet is ever consulted.
	MaxAmount *big.Int

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// Transport intercepts 402 responses, executes the quoted payment through
// the configured wallet, and retries the request once with a proof
// attached. Non-402 traffic passes through untouched.
type Transport struct {
	inner     http.RoundTripper
	wallet    wallet.Wallet
	registry  *chains.Registry
	maxAmount *big.Int
	log       logger.Logger
	metrics   metrics.Recorder
}

// NewTransport creates a payment transport.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Wallet == nil {
		return nil, types.NewError(types.ErrInvalidSpec, "wallet is required")
	}
	if opts.Registry == nil {
		return nil, types.NewError(types.ErrInvalidSpec, "adapter registry is required")
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = logger.NoopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}
	return &Transport{
		inner:     opts.Transport,
		wallet:    opts.Wallet,
		registry:  opts.Registry,
		maxAmount: opts.MaxAmount,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// NewHTTPClient returns an http.Client whose transport pays 402
// challenges automatically.
func NewHTTPClient(opts Options) (*http.Client, error) {
	t, err := NewTransport(opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: t, Timeout: 60 * time.Second}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusPaymentRequired {
		return resp, err
	}

	spec, err := t.parseChallenge(resp)
	if err != nil {
		return nil, err
	}

	proof, err := t.pay(req, spec)
	if err != nil {
		return nil, err
	}

	retry, err := replayRequest(req)
	if err != nil {
		return nil, err
	}
	encoded, err := types.EncodeProofHeader(proof)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidSpec, "failed to encode payment proof: %v", err)
	}
	retry.Header.Set(types.HeaderPaymentProof, encoded)
	retry.Header.Set(types.HeaderVersion, types.VersionHeaderValue(types.X402Version1))

	resp, err = t.inner.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		// The payment already went on chain; a second challenge is a
		// rejection, not an invitation to pay again.
		resp.Body.Close()
		return nil, types.NewError(types.ErrFacilitatorRejected,
			"payment %s was rejected by %s", proof.TxID, req.URL.Host)
	}
	return resp, nil
}

// pay enforces the spending cap, builds the chain-native transaction and
// hands it to the wallet. The cap check runs before any wallet or chain
// interaction.
func (t *Transport) pay(req *http.Request, spec *types.PaymentSpecification) (*types.PaymentProof, error) {
	amount, err := types.ParseAmount(spec.Price.Amount)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidSpec, "invalid quoted amount %q", spec.Price.Amount)
	}
	if t.maxAmount != nil && amount.Cmp(t.maxAmount) > 0 {
		t.metrics.IncCounter(metrics.EventLimitExceeded, map[string]string{"network": spec.Network.String()})
		return nil, types.NewError(types.ErrPaymentLimitExceeded,
			"quoted amount %s exceeds configured limit %s", amount, t.maxAmount)
	}

	if t.wallet.Network() != spec.Network {
		return nil, types.NewError(types.ErrUnsupportedNetwork,
			"wallet is on %s but payment requires %s", t.wallet.Network(), spec.Network)
	}
	adapter, err := t.registry.Adapter(spec.Network)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	chainCtx, err := adapter.PrepareContext(ctx)
	if err != nil {
		return nil, err
	}
	if adapter.Family() == types.ChainSolana {
		payer, err := solana.PublicKeyFromBase58(t.wallet.Address())
		if err != nil {
			return nil, types.NewError(types.ErrInvalidSpec, "invalid wallet address %q", t.wallet.Address())
		}
		chainCtx.FeePayer = payer
	}

	unsigned, err := adapter.BuildTransaction(spec, chainCtx)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	submitted, err := t.wallet.SignAndSubmit(ctx, unsigned)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "payment submission failed: %v", err)
	}
	t.metrics.ObserveLatency(metrics.OpSubmit, time.Since(started), map[string]string{"network": spec.Network.String()})
	t.log.Info("payment submitted", map[string]any{
		"txId":    submitted.TxID,
		"network": spec.Network.String(),
		"amount":  spec.Price.Amount,
	})

	sender := submitted.Sender
	if sender == "" {
		sender = t.wallet.Address()
	}
	return &types.PaymentProof{
		TxID:      submitted.TxID,
		Network:   spec.Network,
		Sender:    sender,
		Recipient: spec.Recipient.Address,
		Amount:    spec.Price.Amount,
		Timestamp: time.Now().UTC(),
		EVM:       submitted.EVM,
		Solana:    submitted.Solana,
	}, nil
}

// parseChallenge extracts the quoted specification from a 402 response.
// The JSON body is canonical; the spec header serves as fallback when the
// body is empty or unparseable. When the envelope advertises alternatives,
// one matching the wallet's network is preferred over the primary quote.
func (t *Transport) parseChallenge(resp *http.Response) (*types.PaymentSpecification, error) {
	defer resp.Body.Close()

	var envelope types.PaymentRequiredResponse
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr == nil && json.Unmarshal(body, &envelope) == nil && envelope.Payment != nil {
		spec := envelope.Payment
		if spec.Network != t.wallet.Network() {
			for i := range envelope.Alternatives {
				if envelope.Alternatives[i].Network == t.wallet.Network() {
					spec = &envelope.Alternatives[i]
					break
				}
			}
		}
		if err := utils.ValidatePaymentSpecification(spec); err != nil {
			return nil, err
		}
		return spec, nil
	}

	if header := resp.Header.Get(types.HeaderPaymentSpec); header != "" {
		return utils.ParseSpecHeader(header)
	}

	return nil, types.NewError(types.ErrInvalidSpec, "402 response carried no payment specification")
}

// bufferBody makes the request body replayable so the request can be
// resubmitted with a proof attached.
func bufferBody(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return req, nil
}

// replayRequest clones the original request with a fresh body.
func replayRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to replay request body: %w", err)
		}
		retry.Body = body
	}
	return retry, nil
}
