// Package x402 implements the x402 payment protocol: HTTP 402 payment
// negotiation with chain-native execution on EVM and Solana networks.
package x402

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/x402labs/x402-go/chains"
	"github.com/x402labs/x402-go/logger"
	"github.com/x402labs/x402-go/metrics"
	"github.com/x402labs/x402-go/types"
)

// X402 is the top-level entry point. It owns the chain adapter registry
// and exposes network registration, local verification and the service
// descriptor.
type X402 struct {
	registry *chains.Registry
	logger   logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
}

// New creates an X402 instance.
func New(opts ...Option) *X402 {
	x := &X402{
		registry: chains.NewRegistry(),
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// AddNetwork registers an adapter for a network. An empty rpcURL yields
// an offline adapter: transactions can still be built deterministically
// and proofs compared field by field, but no on-chain lookups happen.
func (x *X402) AddNetwork(network types.Network, rpcURL string) error {
	var (
		adapter chains.Adapter
		err     error
	)
	switch {
	case network.IsEVM():
		adapter, err = chains.NewEVMAdapter(network, rpcURL)
	case network.IsSolana():
		adapter, err = chains.NewSolanaAdapter(network, rpcURL)
	default:
		return types.NewError(types.ErrUnsupportedNetwork, "unsupported network: %s", network)
	}
	if err != nil {
		return err
	}
	if err := x.registry.Register(adapter); err != nil {
		return err
	}
	x.logger.Info("network registered", map[string]any{
		"network": network.String(),
		"family":  string(adapter.Family()),
		"offline": rpcURL == "",
	})
	return nil
}

// Registry exposes the adapter registry for wiring into the server
// handler and client transport.
func (x *X402) Registry() *chains.Registry {
	return x.registry
}

// Verify runs the adapter's checks of a proof against a specification,
// including on-chain receipt checks when the adapter has an RPC endpoint.
func (x *X402) Verify(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) (*types.VerificationResult, error) {
	adapter, err := x.registry.Adapter(spec.Network)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}
	result := adapter.VerifyProof(ctx, proof, spec)
	x.metrics.ObserveLatency(metrics.OpVerify, time.Since(started), map[string]string{"network": spec.Network.String()})
	if !result.IsValid {
		x.logger.Info("proof verification rejected", map[string]any{
			"txId":    proof.TxID,
			"network": spec.Network.String(),
			"reason":  result.InvalidReason,
		})
	}
	return result, nil
}

// QuickVerify performs structural validation and field comparison without
// any chain queries.
func (x *X402) QuickVerify(proof *types.PaymentProof, spec *types.PaymentSpecification) (*types.VerificationResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := proof.Validate(); err != nil {
		return &types.VerificationResult{IsValid: false, InvalidReason: chains.ReasonInvalidProof}, nil
	}
	if proof.Network != spec.Network {
		return &types.VerificationResult{IsValid: false, InvalidReason: chains.ReasonNetworkMismatch}, nil
	}
	if !types.SameAddress(spec.Network, proof.Recipient, spec.Recipient.Address) {
		return &types.VerificationResult{IsValid: false, InvalidReason: chains.ReasonRecipientMismatch}, nil
	}
	paid, _ := types.ParseAmount(proof.Amount)
	quoted, _ := types.ParseAmount(spec.Price.Amount)
	switch spec.Scheme {
	case types.SchemeMax:
		if paid.Sign() <= 0 || paid.Cmp(quoted) > 0 {
			return &types.VerificationResult{IsValid: false, InvalidReason: chains.ReasonAmountMismatch}, nil
		}
	default:
		if paid.Cmp(quoted) != 0 {
			return &types.VerificationResult{IsValid: false, InvalidReason: chains.ReasonAmountMismatch}, nil
		}
	}
	return &types.VerificationResult{IsValid: true, Payer: proof.Sender}, nil
}

// Supported returns the service descriptor of accepted payment kinds.
func (x *X402) Supported() *types.SupportedResponse {
	return x.registry.Supported()
}

// IsNetworkSupported checks if a network has a registered adapter.
func (x *X402) IsNetworkSupported(network types.Network) bool {
	return x.registry.IsSupported(network)
}

// Close closes all adapter connections.
func (x *X402) Close() {
	x.registry.Close()
}

// Version information
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":  Version,
		"protocol_version": ProtocolVersion,
		"supported_networks": []string{
			"base-mainnet", "base-sepolia",
			"polygon", "polygon-amoy",
			"bsc", "sei", "peaq",
			"solana-mainnet", "solana-devnet",
		},
		"supported_schemes": []string{
			"exact", "max",
		},
	}
}

// DecimalFromString helper function
func DecimalFromString(s string) *decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return &d
}
