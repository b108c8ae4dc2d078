package chains

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/x402labs/x402-go/types"
)

var _ Adapter = (*EVMAdapter)(nil)

// transferSelector is the 4-byte function selector of
// transfer(address,uint256).
var transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// EVMAdapter translates payment specifications and proofs for one
// EVM-compatible network. Networks in the family differ only by chain id
// and RPC endpoint.
type EVMAdapter struct {
	network types.Network
	chainID *big.Int
	rpcURL  string
	client  *ethclient.Client
}

// NewEVMAdapter creates an adapter for an EVM network. rpcURL may be
// empty, in which case VerifyProof performs field comparison only and
// skips the receipt lookup.
func NewEVMAdapter(network types.Network, rpcURL string) (*EVMAdapter, error) {
	chainID, ok := types.EVMChainID[network]
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedNetwork, "network %s is not an EVM network", network)
	}

	a := &EVMAdapter{network: network, chainID: chainID, rpcURL: rpcURL}
	if rpcURL != "" {
		client, err := ethclient.Dial(rpcURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
		}
		a.client = client
	}
	return a, nil
}

func (a *EVMAdapter) Network() types.Network     { return a.network }
func (a *EVMAdapter) Family() types.ChainFamily  { return types.ChainEVM }

// PrepareContext returns the chain context for transaction building.
// The chain id is static per network, so no RPC round-trip is needed.
func (a *EVMAdapter) PrepareContext(ctx context.Context) (*types.ChainContext, error) {
	return &types.ChainContext{ChainID: a.chainID}, nil
}

// BuildTransaction derives the unsigned EVM payload for a specification.
// A native-token price becomes a plain value transfer; a token price
// becomes a transfer(address,uint256) call against the asset contract.
func (a *EVMAdapter) BuildTransaction(spec *types.PaymentSpecification, chainCtx *types.ChainContext) (*types.UnsignedTransaction, error) {
	if spec.Network != a.network {
		return nil, types.NewError(types.ErrUnsupportedNetwork, "specification network %s does not match adapter network %s", spec.Network, a.network)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	amount, err := types.ParseAmount(spec.Price.Amount)
	if err != nil {
		return nil, err
	}

	chainID := a.chainID
	if chainCtx != nil && chainCtx.ChainID != nil {
		chainID = chainCtx.ChainID
	}

	var req *types.EVMTransactionRequest
	if types.IsNativeAsset(spec.Network, spec.Price.Asset) {
		req = &types.EVMTransactionRequest{
			ChainID: chainID,
			To:      spec.Recipient.Address,
			Value:   amount,
		}
	} else {
		req = &types.EVMTransactionRequest{
			ChainID: chainID,
			To:      spec.Price.Asset,
			Value:   big.NewInt(0),
			Data:    packTransfer(spec.Recipient.Address, amount),
		}
	}

	return &types.UnsignedTransaction{Network: spec.Network, EVM: req}, nil
}

// packTransfer builds transfer(address,uint256) calldata: the selector
// followed by the 32-byte-padded recipient and amount.
func packTransfer(recipient string, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, leftPadAddress(recipient)...)
	data = append(data, leftPadBig(amount, 32)...)
	return data
}

func leftPadBig(n *big.Int, size int) []byte {
	b := n.Bytes()
	if len(b) >= size {
		return b
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded
}

func leftPadAddress(addr string) []byte {
	a := common.HexToAddress(addr)
	return append(make([]byte, 12), a.Bytes()...)
}

// VerifyProof checks a proof against a specification. Field comparison is
// local; when an RPC client is configured the transaction receipt is also
// fetched to confirm execution success, block inclusion and, for token
// payments, the target contract. RPC failures fail closed.
func (a *EVMAdapter) VerifyProof(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) *types.VerificationResult {
	if err := proof.Validate(); err != nil {
		return invalid(ReasonInvalidProof)
	}

	if proof.Network != spec.Network || proof.Network != a.network {
		return invalid(ReasonNetworkMismatch)
	}

	if !a.network.ValidTxID(proof.TxID) {
		return invalid(ReasonInvalidTxID)
	}

	// EVM addresses compare case-insensitively.
	if !types.SameAddress(a.network, proof.Recipient, spec.Recipient.Address) {
		return invalid(ReasonRecipientMismatch)
	}

	if !amountSatisfies(proof.Amount, spec) {
		return invalid(ReasonAmountMismatch)
	}

	if a.client != nil {
		if result := a.verifyOnChain(ctx, proof, spec); result != nil {
			return result
		}
	}

	return &types.VerificationResult{IsValid: true, Payer: proof.Sender}
}

// verifyOnChain fetches the receipt and cross-checks it. Returns nil when
// all checks pass, or the failing result. Verification must fail closed:
// an unreachable RPC is a rejection, not an error.
func (a *EVMAdapter) verifyOnChain(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) *types.VerificationResult {
	txHash := common.HexToHash(proof.TxID)

	receipt, err := a.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return invalid(ReasonReceiptUnavailable)
	}
	if receipt.Status != 1 {
		return invalid(ReasonExecutionReverted)
	}
	if receipt.BlockNumber == nil || receipt.BlockNumber.Sign() == 0 {
		return invalid(ReasonNotIncluded)
	}

	if types.IsNativeAsset(spec.Network, spec.Price.Asset) {
		return nil
	}

	tx, _, err := a.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return invalid(ReasonReceiptUnavailable)
	}
	if tx.To() == nil || !bytes.Equal(tx.To().Bytes(), common.HexToAddress(spec.Price.Asset).Bytes()) {
		return invalid(ReasonWrongContract)
	}

	data := tx.Data()
	if len(data) != 4+32+32 || !bytes.Equal(data[:4], transferSelector) {
		return invalid(ReasonWrongCalldata)
	}
	callRecipient := common.BytesToAddress(data[4+12 : 4+32])
	callAmount := new(big.Int).SetBytes(data[4+32:])
	if !types.SameAddress(spec.Network, callRecipient.Hex(), spec.Recipient.Address) {
		return invalid(ReasonWrongCalldata)
	}
	if callAmount.String() != proof.Amount {
		return invalid(ReasonWrongCalldata)
	}

	return nil
}

// Close releases the RPC connection.
func (a *EVMAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

func invalid(reason string) *types.VerificationResult {
	return &types.VerificationResult{IsValid: false, InvalidReason: reason}
}

// amountSatisfies applies the scheme semantics: exact requires equality,
// max accepts any positive amount up to the quoted bound.
func amountSatisfies(paid string, spec *types.PaymentSpecification) bool {
	paidAmt, err := types.ParseAmount(paid)
	if err != nil {
		return false
	}
	quoted, err := types.ParseAmount(spec.Price.Amount)
	if err != nil {
		return false
	}
	switch spec.Scheme {
	case types.SchemeExact:
		return paidAmt.Cmp(quoted) == 0
	case types.SchemeMax:
		return paidAmt.Sign() > 0 && paidAmt.Cmp(quoted) <= 0
	default:
		return false
	}
}
