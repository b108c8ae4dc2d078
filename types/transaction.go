package types

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// ChainContext is the chain-specific state a transaction must be built
// against. The same specification plus the same chain context always
// yields the same unsigned payload.
type ChainContext struct {
	// ChainID is set for EVM networks.
	ChainID *big.Int

	// RecentBlockhash and FeePayer are set for Solana networks.
	RecentBlockhash solana.Hash
	FeePayer        solana.PublicKey
}

// EVMTransactionRequest is the unsigned payload a wallet signs on an
// EVM network.
type EVMTransactionRequest struct {
	ChainID  *big.Int `json:"chainId"`
	To       string   `json:"to"`
	Value    *big.Int `json:"value"`
	Data     []byte   `json:"data,omitempty"`
	GasLimit uint64   `json:"gasLimit,omitempty"`
}

// SolanaInstructionSet is the unsigned payload a wallet signs on a
// Solana network: an ordered instruction list plus the message context.
type SolanaInstructionSet struct {
	RecentBlockhash solana.Hash
	FeePayer        solana.PublicKey
	Instructions    []solana.Instruction
	// ComputeUnitLimit is an optional compute-budget hint; zero means
	// the runtime default.
	ComputeUnitLimit uint32
}

// UnsignedTransaction is the tagged variant handed to a wallet: exactly
// one of the fields is set, selected by the specification's network.
type UnsignedTransaction struct {
	Network Network
	EVM     *EVMTransactionRequest
	Solana  *SolanaInstructionSet
}

// SubmittedTransaction is what a wallet reports back after signing and
// submitting an unsigned transaction.
type SubmittedTransaction struct {
	TxID   string
	Sender string

	EVM    *EVMProofDetails
	Solana *SolanaProofDetails
}
