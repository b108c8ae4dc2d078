package chains

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402labs/x402-go/types"
)

const (
	solRecipient = "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"
	solSender    = "9B5XszUGdMaxCZ7uSQhPzdks5ZQSmWxrmzCSvtJ6Ns6g"
	usdcMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	solSignature = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

func solSpec() *types.PaymentSpecification {
	return &types.PaymentSpecification{
		X402Version: 1,
		Scheme:      types.SchemeExact,
		Network:     types.NetworkSolanaMainnet,
		Price:       types.Price{Amount: "1000000000", Currency: "SOL"},
		Recipient:   types.Recipient{Address: solRecipient},
		Resource:    types.Resource{URI: "/premium"},
	}
}

func solProof() *types.PaymentProof {
	return &types.PaymentProof{
		TxID:      solSignature,
		Network:   types.NetworkSolanaMainnet,
		Sender:    solSender,
		Recipient: solRecipient,
		Amount:    "1000000000",
		Solana: &types.SolanaProofDetails{
			Slot:               271828182,
			ConfirmationStatus: types.ConfirmationFinalized,
		},
	}
}

func newSolana(t *testing.T) *SolanaAdapter {
	t.Helper()
	a, err := NewSolanaAdapter(types.NetworkSolanaMainnet, "")
	require.NoError(t, err)
	return a
}

func solChainCtx() *types.ChainContext {
	return &types.ChainContext{
		RecentBlockhash: solana.MustHashFromBase58("GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W"),
		FeePayer:        solana.MustPublicKeyFromBase58(solSender),
	}
}

func TestNewSolanaAdapterRejectsEVMNetwork(t *testing.T) {
	_, err := NewSolanaAdapter(types.NetworkBaseMainnet, "")
	require.Error(t, err)
}

func TestSolanaBuildTransactionNative(t *testing.T) {
	a := newSolana(t)

	tx, err := a.BuildTransaction(solSpec(), solChainCtx())
	require.NoError(t, err)
	require.NotNil(t, tx.Solana)
	assert.Nil(t, tx.EVM)
	require.Len(t, tx.Solana.Instructions, 1)
	assert.Equal(t, solana.SystemProgramID, tx.Solana.Instructions[0].ProgramID())
	assert.Equal(t, solana.MustPublicKeyFromBase58(solSender), tx.Solana.FeePayer)
}

func TestSolanaBuildTransactionSPL(t *testing.T) {
	a := newSolana(t)
	spec := solSpec()
	spec.Price.Asset = usdcMint
	spec.Price.Amount = "5000000"

	tx, err := a.BuildTransaction(spec, solChainCtx())
	require.NoError(t, err)
	require.Len(t, tx.Solana.Instructions, 1)
	ins := tx.Solana.Instructions[0]
	assert.Equal(t, solana.TokenProgramID, ins.ProgramID())

	// Source and destination are the associated token accounts, derived
	// from owner and mint, never the raw owner addresses.
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	sourceATA, _, err := solana.FindAssociatedTokenAddress(solana.MustPublicKeyFromBase58(solSender), mint)
	require.NoError(t, err)
	destATA, _, err := solana.FindAssociatedTokenAddress(solana.MustPublicKeyFromBase58(solRecipient), mint)
	require.NoError(t, err)

	accounts := ins.Accounts()
	require.GreaterOrEqual(t, len(accounts), 3)
	assert.Equal(t, sourceATA, accounts[0].PublicKey)
	assert.Equal(t, destATA, accounts[1].PublicKey)
}

func TestSolanaBuildTransactionDeterministic(t *testing.T) {
	a := newSolana(t)
	chainCtx := solChainCtx()

	first, err := a.BuildTransaction(solSpec(), chainCtx)
	require.NoError(t, err)
	second, err := a.BuildTransaction(solSpec(), chainCtx)
	require.NoError(t, err)

	firstData, err := first.Solana.Instructions[0].Data()
	require.NoError(t, err)
	secondData, err := second.Solana.Instructions[0].Data()
	require.NoError(t, err)
	assert.Equal(t, firstData, secondData)
	assert.Equal(t, first.Solana.RecentBlockhash, second.Solana.RecentBlockhash)
}

func TestSolanaBuildTransactionRequiresFeePayer(t *testing.T) {
	a := newSolana(t)
	_, err := a.BuildTransaction(solSpec(), &types.ChainContext{})
	require.Error(t, err)
}

func TestSolanaBuildTransactionAmountOverflow(t *testing.T) {
	a := newSolana(t)
	spec := solSpec()
	spec.Price.Amount = "18446744073709551616" // 2^64
	_, err := a.BuildTransaction(spec, solChainCtx())
	require.Error(t, err)
}

func TestSolanaVerifyProof(t *testing.T) {
	a := newSolana(t)
	spec := solSpec()

	t.Run("finalized proof accepted", func(t *testing.T) {
		result := a.VerifyProof(context.Background(), solProof(), spec)
		assert.True(t, result.IsValid)
		assert.Equal(t, solSender, result.Payer)
	})

	t.Run("processed confirmation rejected", func(t *testing.T) {
		proof := solProof()
		proof.Solana.ConfirmationStatus = types.ConfirmationProcessed
		result := a.VerifyProof(context.Background(), proof, spec)
		assert.False(t, result.IsValid)
		assert.Equal(t, ReasonNotFinalized, result.InvalidReason)
	})

	t.Run("confirmed confirmation rejected", func(t *testing.T) {
		proof := solProof()
		proof.Solana.ConfirmationStatus = types.ConfirmationConfirmed
		result := a.VerifyProof(context.Background(), proof, spec)
		assert.False(t, result.IsValid)
		assert.Equal(t, ReasonNotFinalized, result.InvalidReason)
	})

	t.Run("missing chain details rejected", func(t *testing.T) {
		proof := solProof()
		proof.Solana = nil
		result := a.VerifyProof(context.Background(), proof, spec)
		assert.False(t, result.IsValid)
		assert.Equal(t, ReasonMissingChainDetails, result.InvalidReason)
	})

	t.Run("recipient compares exactly", func(t *testing.T) {
		proof := solProof()
		proof.Recipient = "7ecDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"
		result := a.VerifyProof(context.Background(), proof, spec)
		assert.False(t, result.IsValid)
		assert.Equal(t, ReasonRecipientMismatch, result.InvalidReason)
	})

	t.Run("evm style hash rejected", func(t *testing.T) {
		proof := solProof()
		proof.TxID = "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
		result := a.VerifyProof(context.Background(), proof, spec)
		assert.False(t, result.IsValid)
		assert.Equal(t, ReasonInvalidTxID, result.InvalidReason)
	})
}

// finalizedTransferTx serializes a signed native transfer so the fake RPC
// can return it from getTransaction.
func finalizedTransferTx(t *testing.T, recipient string) string {
	t.Helper()
	payer := solana.MustPublicKeyFromBase58(solSender)
	to := solana.MustPublicKeyFromBase58(recipient)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000000000, payer, to).Build()},
		solana.MustHashFromBase58("GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W"),
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	tx.Signatures = []solana.Signature{solana.MustSignatureFromBase58(solSignature)}
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func fakeSolanaRPC(t *testing.T, status, txBase64 string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     interface{} `json:"id"`
			Method string      `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result interface{}
		switch req.Method {
		case "getSignatureStatuses":
			result = map[string]interface{}{
				"context": map[string]interface{}{"slot": 271828182},
				"value": []interface{}{
					map[string]interface{}{"slot": 271828182, "confirmationStatus": status},
				},
			}
		case "getTransaction":
			result = map[string]interface{}{
				"slot":        271828182,
				"transaction": []interface{}{txBase64, "base64"},
			}
		default:
			t.Fatalf("unexpected RPC method %s", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}))
	}))
}

func TestSolanaVerifyProofOnChain(t *testing.T) {
	spec := solSpec()

	t.Run("matching transfer accepted", func(t *testing.T) {
		srv := fakeSolanaRPC(t, "finalized", finalizedTransferTx(t, solRecipient))
		defer srv.Close()
		a, err := NewSolanaAdapter(types.NetworkSolanaMainnet, srv.URL)
		require.NoError(t, err)

		result := a.VerifyProof(context.Background(), solProof(), spec)
		assert.True(t, result.IsValid)
		assert.Equal(t, solSender, result.Payer)
	})

	t.Run("cluster reports confirmed only", func(t *testing.T) {
		srv := fakeSolanaRPC(t, "confirmed", finalizedTransferTx(t, solRecipient))
		defer srv.Close()
		a, err := NewSolanaAdapter(types.NetworkSolanaMainnet, srv.URL)
		require.NoError(t, err)

		result := a.VerifyProof(context.Background(), solProof(), spec)
		assert.False(t, result.IsValid)
		assert.Equal(t, ReasonNotFinalized, result.InvalidReason)
	})

	t.Run("transfer to another recipient", func(t *testing.T) {
		srv := fakeSolanaRPC(t, "finalized", finalizedTransferTx(t, solSender))
		defer srv.Close()
		a, err := NewSolanaAdapter(types.NetworkSolanaMainnet, srv.URL)
		require.NoError(t, err)

		result := a.VerifyProof(context.Background(), solProof(), spec)
		assert.False(t, result.IsValid)
		assert.Equal(t, ReasonNoMatchingTransfer, result.InvalidReason)
	})
}
