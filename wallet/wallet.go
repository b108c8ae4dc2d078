// Package wallet defines the opaque signing capability supplied by the
// caller. The library never accesses private keys: it hands a wallet an
// unsigned transaction and receives back the identifier of the submitted
// transaction.
package wallet

import (
	"context"

	"github.com/x402labs/x402-go/types"
)

// Wallet is a caller-supplied capability that can sign and submit a
// chain-native transaction for one network. Signing may be interactive
// and take arbitrarily long; implementations should honor ctx
// cancellation for the submission step.
type Wallet interface {
	// Address returns the sender address in the network's native format.
	Address() string

	// Network returns the network this wallet signs for.
	Network() types.Network

	// SignAndSubmit signs the unsigned transaction and submits it to the
	// chain, returning the transaction identifier and any chain-specific
	// details available at submission time.
	SignAndSubmit(ctx context.Context, tx *types.UnsignedTransaction) (*types.SubmittedTransaction, error)
}
