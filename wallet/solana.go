package wallet

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402labs/x402-go/types"
)

var _ Wallet = (*SolanaWallet)(nil)

// SolanaWallet signs and submits Solana transactions with a local keypair.
// SignAndSubmit blocks until the transaction is finalized, since only
// finalized transactions are accepted as payment proof.
type SolanaWallet struct {
	network types.Network
	key     solana.PrivateKey
	client  *rpc.Client

	// PollInterval is how often finalization is polled. Defaults to 2s.
	PollInterval time.Duration
}

// NewSolanaWallet creates a wallet from a base58-encoded private key.
func NewSolanaWallet(network types.Network, privateKeyBase58, rpcURL string) (*SolanaWallet, error) {
	if !network.IsSolana() {
		return nil, types.NewError(types.ErrUnsupportedNetwork, "network %s is not a Solana network", network)
	}
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidSpec, "invalid private key: %v", err)
	}
	return &SolanaWallet{
		network:      network,
		key:          key,
		client:       rpc.New(rpcURL),
		PollInterval: 2 * time.Second,
	}, nil
}

func (w *SolanaWallet) Address() string        { return w.key.PublicKey().String() }
func (w *SolanaWallet) Network() types.Network { return w.network }

// SignAndSubmit assembles the message, signs it, broadcasts it and waits
// for finalization.
func (w *SolanaWallet) SignAndSubmit(ctx context.Context, tx *types.UnsignedTransaction) (*types.SubmittedTransaction, error) {
	if tx.Solana == nil {
		return nil, types.NewError(types.ErrInvalidSpec, "wallet for %s received a non-Solana transaction", w.network)
	}
	ins := tx.Solana

	assembled, err := solana.NewTransaction(
		ins.Instructions,
		ins.RecentBlockhash,
		solana.TransactionPayer(ins.FeePayer),
	)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to assemble transaction: %v", err)
	}

	_, err = assembled.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to sign transaction: %v", err)
	}

	sig, err := w.client.SendTransactionWithOpts(ctx, assembled, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to broadcast transaction: %v", err)
	}

	details, err := w.waitForFinalization(ctx, sig)
	if err != nil {
		return nil, err
	}
	return &types.SubmittedTransaction{
		TxID:   sig.String(),
		Sender: w.key.PublicKey().String(),
		Solana: details,
	}, nil
}

func (w *SolanaWallet) waitForFinalization(ctx context.Context, sig solana.Signature) (*types.SolanaProofDetails, error) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		out, err := w.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return nil, types.NewError(types.ErrNetworkError, "transaction %s failed on chain", sig)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return &types.SolanaProofDetails{
					Slot:               status.Slot,
					ConfirmationStatus: types.ConfirmationFinalized,
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, types.NewError(types.ErrNetworkError, "transaction %s not finalized: %v", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}
