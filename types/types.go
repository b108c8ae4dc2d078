package types

import (
	"fmt"
	"math/big"
	"time"
)

// X402Version represents the version of the x402 protocol.
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentScheme represents different payment schemes.
type PaymentScheme string

const (
	// SchemeExact requires the paid amount to equal the quoted amount.
	SchemeExact PaymentScheme = "exact"
	// SchemeMax treats the quoted amount as an upper bound.
	SchemeMax PaymentScheme = "max"
)

// Price is the quoted price of a gated resource, denominated in the
// smallest unit of the asset on the quoted network.
type Price struct {
	// Amount is a non-negative integer encoded as a decimal string.
	// Strings are used because Go has no uint256.
	Amount string `json:"amount" validate:"required"`

	// Currency is the display symbol (e.g. "ETH", "USDC", "SOL").
	Currency string `json:"currency,omitempty"`

	// Asset is the token contract address or SPL mint. Empty or the
	// zero address means the native token of the network.
	Asset string `json:"asset,omitempty"`
}

// Recipient is the payment destination.
type Recipient struct {
	Address string `json:"address" validate:"required"`
}

// Resource describes the gated resource being paid for.
type Resource struct {
	URI         string `json:"uri" validate:"required"`
	Description string `json:"description,omitempty"`
}

// PaymentSpecification is the price and destination quoted by a server
// for a gated resource. It is immutable once issued; the server re-derives
// or caches the specification for a resource rather than trusting a
// client-supplied copy.
type PaymentSpecification struct {
	X402Version int                    `json:"x402Version"`
	Scheme      PaymentScheme          `json:"scheme" validate:"required,scheme"`
	Network     Network                `json:"network" validate:"required,network"`
	Price       Price                  `json:"price"`
	Recipient   Recipient              `json:"recipient"`
	Resource    Resource               `json:"resource"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// EVMProofDetails carries the EVM-specific portion of a payment proof.
type EVMProofDetails struct {
	BlockNumber       uint64 `json:"blockNumber,omitempty"`
	GasUsed           uint64 `json:"gasUsed,omitempty"`
	EffectiveGasPrice string `json:"effectiveGasPrice,omitempty"`
}

// SolanaConfirmationStatus is the cluster confirmation level of a
// Solana transaction.
type SolanaConfirmationStatus string

const (
	ConfirmationProcessed SolanaConfirmationStatus = "processed"
	ConfirmationConfirmed SolanaConfirmationStatus = "confirmed"
	ConfirmationFinalized SolanaConfirmationStatus = "finalized"
)

// SolanaProofDetails carries the Solana-specific portion of a payment proof.
type SolanaProofDetails struct {
	Slot               uint64                   `json:"slot,omitempty"`
	ConfirmationStatus SolanaConfirmationStatus `json:"confirmationStatus"`
	Fee                uint64                   `json:"fee,omitempty"`
}

// PaymentProof is chain-agnostic evidence that a transaction occurred.
// A proof is only meaningful relative to the PaymentSpecification it is
// verified against.
type PaymentProof struct {
	// TxID is the transaction hash (EVM) or signature (Solana).
	TxID      string    `json:"txId" validate:"required"`
	Network   Network   `json:"network" validate:"required,network"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient" validate:"required"`
	Amount    string    `json:"amount" validate:"required"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	EVM    *EVMProofDetails    `json:"evm,omitempty"`
	Solana *SolanaProofDetails `json:"solana,omitempty"`
}

// PaymentRequiredResponse is the JSON body of a 402 response.
type PaymentRequiredResponse struct {
	Status       int                    `json:"status"`
	Payment      *PaymentSpecification  `json:"payment"`
	Message      string                 `json:"message"`
	Alternatives []PaymentSpecification `json:"alternatives,omitempty"`
}

// NewPaymentRequired builds the 402 envelope for a specification. Pure.
func NewPaymentRequired(spec *PaymentSpecification, message string, alternatives ...PaymentSpecification) *PaymentRequiredResponse {
	return &PaymentRequiredResponse{
		Status:       402,
		Payment:      spec,
		Message:      message,
		Alternatives: alternatives,
	}
}

// VerificationResult contains the result of payment verification.
type VerificationResult struct {
	IsValid       bool                   `json:"isValid"`
	InvalidReason string                 `json:"invalidReason,omitempty"`
	Payer         string                 `json:"payer,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// SettlementResult contains the result of payment settlement.
type SettlementResult struct {
	Settled   bool                   `json:"settled"`
	TxID      string                 `json:"txId,omitempty"`
	NetworkID string                 `json:"networkId,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// SupportedItem describes one payment kind a server accepts.
type SupportedItem struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is the service descriptor listing accepted payment kinds.
type SupportedResponse struct {
	Kinds []SupportedItem `json:"kinds"`
}

// X402Error is the error type used throughout the library.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *X402Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates an X402Error with a formatted message.
func NewError(code, format string, args ...interface{}) *X402Error {
	return &X402Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Common error codes.
const (
	ErrInvalidSpec          = "INVALID_SPEC"
	ErrUnsupportedNetwork   = "UNSUPPORTED_NETWORK"
	ErrProofMismatch        = "PROOF_MISMATCH"
	ErrNetworkError         = "NETWORK_ERROR"
	ErrFacilitatorRejected  = "FACILITATOR_REJECTED"
	ErrAmbiguousSettlement  = "AMBIGUOUS_SETTLEMENT"
	ErrPaymentLimitExceeded = "PAYMENT_LIMIT_EXCEEDED"
	ErrSettlementFailed     = "SETTLEMENT_FAILED"
)

// Validate checks the specification invariants: amount is a non-negative
// integer string, the network is a member of the supported set, and the
// recipient address matches the address syntax of the network's chain
// family. Failures are reported as INVALID_SPEC.
func (s *PaymentSpecification) Validate() error {
	if s.Scheme != SchemeExact && s.Scheme != SchemeMax {
		return NewError(ErrInvalidSpec, "unsupported scheme: %q", s.Scheme)
	}

	if !s.Network.IsSupported() {
		return NewError(ErrInvalidSpec, "unrecognized network: %q", s.Network)
	}

	if _, err := ParseAmount(s.Price.Amount); err != nil {
		return err
	}

	if !s.Network.ValidAddress(s.Recipient.Address) {
		return NewError(ErrInvalidSpec, "recipient address %q is not valid for network %s", s.Recipient.Address, s.Network)
	}

	if s.Price.Asset != "" && !IsNativeAsset(s.Network, s.Price.Asset) && !s.Network.ValidAddress(s.Price.Asset) {
		return NewError(ErrInvalidSpec, "asset address %q is not valid for network %s", s.Price.Asset, s.Network)
	}

	if s.Resource.URI == "" {
		return NewError(ErrInvalidSpec, "resource URI is required")
	}

	return nil
}

// Validate checks that the proof carries the fields every chain family
// needs before any comparison against a specification is attempted.
func (p *PaymentProof) Validate() error {
	if p.TxID == "" {
		return NewError(ErrProofMismatch, "transaction identifier is required")
	}
	if p.Recipient == "" {
		return NewError(ErrProofMismatch, "recipient is required")
	}
	if _, err := ParseAmount(p.Amount); err != nil {
		return NewError(ErrProofMismatch, "amount: %v", err)
	}
	return nil
}

// ParseAmount parses a non-negative integer amount string into a big.Int.
// Floating-point forms are rejected to avoid precision loss.
func ParseAmount(amount string) (*big.Int, error) {
	if amount == "" {
		return nil, NewError(ErrInvalidSpec, "amount is required")
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, NewError(ErrInvalidSpec, "amount %q is not an integer string", amount)
	}
	if v.Sign() < 0 {
		return nil, NewError(ErrInvalidSpec, "amount %q is negative", amount)
	}
	return v, nil
}
