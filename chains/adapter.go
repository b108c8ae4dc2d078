// Package chains provides the chain adapters that translate between the
// protocol envelope and chain-native transactions for each supported
// blockchain family.
package chains

import (
	"context"

	"github.com/x402labs/x402-go/types"
)

// Adapter translates between a PaymentSpecification and the chain-native
// transaction/proof model of one network. Implementations are selected by
// the specification's network field.
type Adapter interface {
	// Network returns the network this adapter is configured for.
	Network() types.Network

	// Family returns the chain family of the adapter.
	Family() types.ChainFamily

	// PrepareContext fetches the chain context needed to build a
	// transaction (chain id, recent blockhash). The fee payer for
	// Solana is filled in by the caller.
	PrepareContext(ctx context.Context) (*types.ChainContext, error)

	// BuildTransaction derives the unsigned payload a wallet must sign
	// from a specification and chain context. Deterministic: the same
	// inputs always yield the same payload.
	BuildTransaction(spec *types.PaymentSpecification, chainCtx *types.ChainContext) (*types.UnsignedTransaction, error)

	// VerifyProof runs the adapter's local checks of a proof against a
	// specification. Invalid proofs are reported in the result, never as
	// errors; infrastructure failures fail closed.
	VerifyProof(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) *types.VerificationResult

	// Close releases any RPC connections held by the adapter.
	Close()
}

// Registry holds the configured adapters keyed by network.
type Registry struct {
	adapters map[types.Network]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.Network]Adapter)}
}

// Register adds an adapter for its network.
func (r *Registry) Register(a Adapter) error {
	network := a.Network()
	if !network.IsSupported() {
		return types.NewError(types.ErrUnsupportedNetwork, "unsupported network: %s", network)
	}
	r.adapters[network] = a
	return nil
}

// Adapter returns the adapter for a network.
func (r *Registry) Adapter(network types.Network) (Adapter, error) {
	a, ok := r.adapters[network]
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedNetwork, "no adapter configured for network %s", network)
	}
	return a, nil
}

// IsSupported checks if a network has a configured adapter.
func (r *Registry) IsSupported(network types.Network) bool {
	_, ok := r.adapters[network]
	return ok
}

// Supported returns the service descriptor of accepted payment kinds.
func (r *Registry) Supported() *types.SupportedResponse {
	kinds := make([]types.SupportedItem, 0, 2*len(r.adapters))
	for network := range r.adapters {
		for _, scheme := range []types.PaymentScheme{types.SchemeExact, types.SchemeMax} {
			kinds = append(kinds, types.SupportedItem{
				X402Version: int(types.X402Version1),
				Scheme:      string(scheme),
				Network:     network.String(),
			})
		}
	}
	return &types.SupportedResponse{Kinds: kinds}
}

// Close closes all registered adapters.
func (r *Registry) Close() {
	for _, a := range r.adapters {
		a.Close()
	}
}
