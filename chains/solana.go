package chains

import (
	"context"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402labs/x402-go/types"
)

var _ Adapter = (*SolanaAdapter)(nil)

// SolanaAdapter translates payment specifications and proofs for the
// Solana instruction model.
type SolanaAdapter struct {
	network types.Network
	rpcURL  string
	client  *rpc.Client
}

// NewSolanaAdapter creates an adapter for a Solana network. rpcURL may be
// empty, in which case PrepareContext is unavailable and VerifyProof
// performs field comparison and the finality gate only.
func NewSolanaAdapter(network types.Network, rpcURL string) (*SolanaAdapter, error) {
	if !network.IsSolana() {
		return nil, types.NewError(types.ErrUnsupportedNetwork, "network %s is not a Solana network", network)
	}

	a := &SolanaAdapter{network: network, rpcURL: rpcURL}
	if rpcURL != "" {
		a.client = rpc.New(rpcURL)
	}
	return a, nil
}

func (a *SolanaAdapter) Network() types.Network    { return a.network }
func (a *SolanaAdapter) Family() types.ChainFamily { return types.ChainSolana }

// PrepareContext fetches a finalized recent blockhash. The fee payer is
// filled in by the caller from the wallet address.
func (a *SolanaAdapter) PrepareContext(ctx context.Context) (*types.ChainContext, error) {
	if a.client == nil {
		return nil, types.NewError(types.ErrNetworkError, "no RPC endpoint configured for %s", a.network)
	}
	out, err := a.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to fetch recent blockhash: %v", err)
	}
	return &types.ChainContext{RecentBlockhash: out.Value.Blockhash}, nil
}

// BuildTransaction derives the unsigned instruction list for a
// specification. Native SOL becomes a single System-Program transfer;
// an SPL asset becomes a Token-Program transfer between the sender's and
// recipient's associated token accounts, both derived deterministically
// from owner and mint.
func (a *SolanaAdapter) BuildTransaction(spec *types.PaymentSpecification, chainCtx *types.ChainContext) (*types.UnsignedTransaction, error) {
	if spec.Network != a.network {
		return nil, types.NewError(types.ErrUnsupportedNetwork, "specification network %s does not match adapter network %s", spec.Network, a.network)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if chainCtx == nil || chainCtx.FeePayer.IsZero() {
		return nil, types.NewError(types.ErrInvalidSpec, "chain context with fee payer is required")
	}

	amount, err := types.ParseAmount(spec.Price.Amount)
	if err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, types.NewError(types.ErrInvalidSpec, "amount %s exceeds u64", spec.Price.Amount)
	}
	lamports := amount.Uint64()

	recipient, err := solana.PublicKeyFromBase58(spec.Recipient.Address)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidSpec, "invalid recipient address: %v", err)
	}

	var instructions []solana.Instruction
	if types.IsNativeAsset(spec.Network, spec.Price.Asset) {
		instructions = append(instructions,
			system.NewTransferInstruction(lamports, chainCtx.FeePayer, recipient).Build(),
		)
	} else {
		mint, err := solana.PublicKeyFromBase58(spec.Price.Asset)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidSpec, "invalid asset mint: %v", err)
		}

		sourceATA, _, err := solana.FindAssociatedTokenAddress(chainCtx.FeePayer, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive sender token account: %w", err)
		}
		destATA, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive recipient token account: %w", err)
		}

		instructions = append(instructions,
			token.NewTransferInstruction(lamports, sourceATA, destATA, chainCtx.FeePayer, nil).Build(),
		)
	}

	return &types.UnsignedTransaction{
		Network: spec.Network,
		Solana: &types.SolanaInstructionSet{
			RecentBlockhash: chainCtx.RecentBlockhash,
			FeePayer:        chainCtx.FeePayer,
			Instructions:    instructions,
		},
	}, nil
}

// VerifyProof checks a proof against a specification. Solana addresses
// compare exactly, and only a finalized confirmation status is accepted:
// a processed or confirmed transaction can still be reverted by a cluster
// reorganization, so settlement must not act on it.
func (a *SolanaAdapter) VerifyProof(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) *types.VerificationResult {
	if err := proof.Validate(); err != nil {
		return invalid(ReasonInvalidProof)
	}

	if proof.Network != spec.Network || proof.Network != a.network {
		return invalid(ReasonNetworkMismatch)
	}

	if !a.network.ValidTxID(proof.TxID) {
		return invalid(ReasonInvalidTxID)
	}

	if proof.Recipient != spec.Recipient.Address {
		return invalid(ReasonRecipientMismatch)
	}

	if !amountSatisfies(proof.Amount, spec) {
		return invalid(ReasonAmountMismatch)
	}

	if proof.Solana == nil {
		return invalid(ReasonMissingChainDetails)
	}
	if proof.Solana.ConfirmationStatus != types.ConfirmationFinalized {
		return invalid(ReasonNotFinalized)
	}

	if a.client != nil {
		if result := a.verifyOnChain(ctx, proof, spec); result != nil {
			return result
		}
	}

	return &types.VerificationResult{IsValid: true, Payer: proof.Sender}
}

// verifyOnChain cross-checks the reported confirmation status against the
// cluster. RPC failures fail closed.
func (a *SolanaAdapter) verifyOnChain(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) *types.VerificationResult {
	sig, err := solana.SignatureFromBase58(proof.TxID)
	if err != nil {
		return invalid(ReasonInvalidTxID)
	}

	out, err := a.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return invalid(ReasonStatusUnavailable)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return invalid(ReasonSignatureNotFound)
	}
	if out.Value[0].ConfirmationStatus != rpc.ConfirmationStatusFinalized {
		return invalid(ReasonNotFinalized)
	}

	return a.verifyTransfer(ctx, sig, proof, spec)
}

// verifyTransfer fetches the finalized transaction and confirms it
// actually carries a transfer matching the specification, the Solana
// counterpart of the EVM calldata check.
func (a *SolanaAdapter) verifyTransfer(ctx context.Context, sig solana.Signature, proof *types.PaymentProof, spec *types.PaymentSpecification) *types.VerificationResult {
	out, err := a.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil || out == nil || out.Transaction == nil {
		return invalid(ReasonStatusUnavailable)
	}
	if out.Meta != nil && out.Meta.Err != nil {
		return invalid(ReasonExecutionReverted)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(out.Transaction.GetBinary()))
	if err != nil {
		return invalid(ReasonInvalidProof)
	}

	msg := tx.Message
	for _, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(msg.AccountKeys) {
			continue
		}
		program := msg.AccountKeys[ci.ProgramIDIndex]
		switch {
		case program.Equals(solana.SystemProgramID):
			if a.matchesNativeTransfer(ci, msg, proof, spec) {
				return nil
			}
		case program.Equals(solana.TokenProgramID):
			if a.matchesSPLTransfer(ci, msg, proof, spec) {
				return nil
			}
		}
	}
	return invalid(ReasonNoMatchingTransfer)
}

// matchesNativeTransfer decodes a System-Program instruction and checks it
// is a transfer of proof.Amount lamports to the quoted recipient.
func (a *SolanaAdapter) matchesNativeTransfer(ci solana.CompiledInstruction, msg solana.Message, proof *types.PaymentProof, spec *types.PaymentSpecification) bool {
	if !types.IsNativeAsset(spec.Network, spec.Price.Asset) {
		return false
	}
	dec := bin.NewBinDecoder(ci.Data)
	kind, err := dec.ReadUint32(bin.LE)
	if err != nil || kind != uint32(system.Instruction_Transfer) {
		return false
	}
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil || strconv.FormatUint(lamports, 10) != proof.Amount {
		return false
	}
	if len(ci.Accounts) < 2 || int(ci.Accounts[1]) >= len(msg.AccountKeys) {
		return false
	}
	return msg.AccountKeys[ci.Accounts[1]].String() == spec.Recipient.Address
}

// matchesSPLTransfer decodes a Token-Program instruction and checks it
// moves proof.Amount of the quoted mint into the recipient's associated
// token account.
func (a *SolanaAdapter) matchesSPLTransfer(ci solana.CompiledInstruction, msg solana.Message, proof *types.PaymentProof, spec *types.PaymentSpecification) bool {
	if types.IsNativeAsset(spec.Network, spec.Price.Asset) {
		return false
	}
	dec := bin.NewBinDecoder(ci.Data)
	kind, err := dec.ReadUint8()
	if err != nil || kind != uint8(token.Instruction_Transfer) {
		return false
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil || strconv.FormatUint(amount, 10) != proof.Amount {
		return false
	}

	mint, err := solana.PublicKeyFromBase58(spec.Price.Asset)
	if err != nil {
		return false
	}
	recipient, err := solana.PublicKeyFromBase58(spec.Recipient.Address)
	if err != nil {
		return false
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return false
	}

	if len(ci.Accounts) < 2 || int(ci.Accounts[1]) >= len(msg.AccountKeys) {
		return false
	}
	return msg.AccountKeys[ci.Accounts[1]].Equals(destATA)
}

// Close releases the RPC connection.
func (a *SolanaAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}
