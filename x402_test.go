package x402

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402labs/x402-go/chains"
	"github.com/x402labs/x402-go/types"
)

const (
	payTo  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	txHash = "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
)

func protocol(t *testing.T) *X402 {
	t.Helper()
	x := New()
	require.NoError(t, x.AddNetwork(types.NetworkBaseMainnet, ""))
	require.NoError(t, x.AddNetwork(types.NetworkSolanaDevnet, ""))
	return x
}

func spec() *types.PaymentSpecification {
	return &types.PaymentSpecification{
		X402Version: 1,
		Scheme:      types.SchemeExact,
		Network:     types.NetworkBaseMainnet,
		Price:       types.Price{Amount: "100"},
		Recipient:   types.Recipient{Address: payTo},
		Resource:    types.Resource{URI: "/premium"},
	}
}

func proof() *types.PaymentProof {
	return &types.PaymentProof{
		TxID:      txHash,
		Network:   types.NetworkBaseMainnet,
		Sender:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Recipient: payTo,
		Amount:    "100",
	}
}

func TestAddNetwork(t *testing.T) {
	x := protocol(t)
	defer x.Close()

	assert.True(t, x.IsNetworkSupported(types.NetworkBaseMainnet))
	assert.True(t, x.IsNetworkSupported(types.NetworkSolanaDevnet))
	assert.False(t, x.IsNetworkSupported(types.NetworkPolygon))

	err := x.AddNetwork("dogecoin", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedNetwork, err.(*types.X402Error).Code)

	assert.Len(t, x.Supported().Kinds, 4)
}

func TestVerifyUsesAdapter(t *testing.T) {
	x := protocol(t)
	defer x.Close()

	result, err := x.Verify(context.Background(), proof(), spec())
	require.NoError(t, err)
	assert.True(t, result.IsValid)

	bad := proof()
	bad.Amount = "99"
	result, err = x.Verify(context.Background(), bad, spec())
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	other := spec()
	other.Network = types.NetworkPolygon
	_, err = x.Verify(context.Background(), proof(), other)
	require.Error(t, err)
}

func TestQuickVerify(t *testing.T) {
	x := protocol(t)
	defer x.Close()

	result, err := x.QuickVerify(proof(), spec())
	require.NoError(t, err)
	assert.True(t, result.IsValid)

	t.Run("recipient mismatch", func(t *testing.T) {
		p := proof()
		p.Recipient = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
		result, err := x.QuickVerify(p, spec())
		require.NoError(t, err)
		assert.False(t, result.IsValid)
		assert.Equal(t, chains.ReasonRecipientMismatch, result.InvalidReason)
	})

	t.Run("network mismatch", func(t *testing.T) {
		p := proof()
		p.Network = types.NetworkPolygon
		result, err := x.QuickVerify(p, spec())
		require.NoError(t, err)
		assert.False(t, result.IsValid)
		assert.Equal(t, chains.ReasonNetworkMismatch, result.InvalidReason)
	})

	t.Run("max scheme bound", func(t *testing.T) {
		s := spec()
		s.Scheme = types.SchemeMax
		p := proof()
		p.Amount = "50"
		result, err := x.QuickVerify(p, s)
		require.NoError(t, err)
		assert.True(t, result.IsValid)

		p.Amount = "101"
		result, err = x.QuickVerify(p, s)
		require.NoError(t, err)
		assert.False(t, result.IsValid)
	})

	t.Run("invalid spec is an error not a rejection", func(t *testing.T) {
		s := spec()
		s.Price.Amount = "1.5"
		_, err := x.QuickVerify(proof(), s)
		require.Error(t, err)
	})
}

// recordingLogger captures log messages so tests can assert on them.
type recordingLogger struct {
	messages []string
}

func (l *recordingLogger) record(msg string) { l.messages = append(l.messages, msg) }

func (l *recordingLogger) Debug(msg string, _ map[string]any) { l.record(msg) }
func (l *recordingLogger) Info(msg string, _ map[string]any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ map[string]any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ map[string]any) { l.record(msg) }

func TestLoggerObservesLifecycle(t *testing.T) {
	log := &recordingLogger{}
	x := New(WithLogger(log))
	defer x.Close()

	require.NoError(t, x.AddNetwork(types.NetworkBaseMainnet, ""))
	assert.Contains(t, log.messages, "network registered")

	bad := proof()
	bad.Amount = "99"
	result, err := x.Verify(context.Background(), bad, spec())
	require.NoError(t, err)
	require.False(t, result.IsValid)
	assert.Contains(t, log.messages, "proof verification rejected")
}

func TestGetVersion(t *testing.T) {
	info := GetVersion()
	assert.Equal(t, Version, info["library_version"])
	assert.Equal(t, ProtocolVersion, info["protocol_version"])
}
