package chains

// Invalid-reason codes reported in VerificationResult.InvalidReason.
// Diagnostics only: the handler reports every rejection to the client the
// same way.
const (
	// -----------------------------
	// ENVELOPE / DISPATCH
	// -----------------------------
	ReasonInvalidSpec        = "invalid_specification"
	ReasonInvalidProof       = "invalid_proof"
	ReasonNetworkMismatch    = "invalid_network_mismatch"
	ReasonUnsupportedNetwork = "unsupported_network"

	// -----------------------------
	// FIELD COMPARISON
	// -----------------------------
	ReasonRecipientMismatch = "invalid_recipient_mismatch"
	ReasonAmountMismatch    = "invalid_amount_mismatch"
	ReasonInvalidTxID       = "invalid_transaction_id"

	// -----------------------------
	// EVM RECEIPT CHECKS
	// -----------------------------
	ReasonReceiptUnavailable = "receipt_unavailable"
	ReasonExecutionReverted  = "execution_reverted"
	ReasonNotIncluded        = "transaction_not_included"
	ReasonWrongContract      = "invalid_token_contract"
	ReasonWrongCalldata      = "invalid_transfer_calldata"

	// -----------------------------
	// SOLANA FINALITY
	// -----------------------------
	ReasonNotFinalized        = "confirmation_status_not_finalized"
	ReasonSignatureNotFound   = "transaction_signature_not_found"
	ReasonStatusUnavailable   = "signature_status_unavailable"
	ReasonMissingChainDetails = "missing_chain_details"
	ReasonNoMatchingTransfer  = "no_matching_transfer_instruction"
)
