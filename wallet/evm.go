package wallet

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/x402labs/x402-go/types"
)

var _ Wallet = (*EVMWallet)(nil)

// EVMWallet signs and submits EVM transactions with a local private key.
type EVMWallet struct {
	network types.Network
	key     *ecdsa.PrivateKey
	address common.Address
	client  *ethclient.Client

	// WaitForReceipt controls whether SignAndSubmit blocks until the
	// transaction is mined. Waiting fills in the receipt fields of the
	// proof; without them some servers reject the proof.
	WaitForReceipt bool
}

// NewEVMWallet creates a wallet from a hex-encoded private key.
func NewEVMWallet(network types.Network, privateKeyHex, rpcURL string) (*EVMWallet, error) {
	if !network.IsEVM() {
		return nil, types.NewError(types.ErrUnsupportedNetwork, "network %s is not an EVM network", network)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidSpec, "invalid private key: %v", err)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to connect to %s: %v", rpcURL, err)
	}
	return &EVMWallet{
		network:        network,
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		client:         client,
		WaitForReceipt: true,
	}, nil
}

func (w *EVMWallet) Address() string        { return w.address.Hex() }
func (w *EVMWallet) Network() types.Network { return w.network }

// SignAndSubmit fills in nonce and gas, signs the request and broadcasts
// it.
func (w *EVMWallet) SignAndSubmit(ctx context.Context, tx *types.UnsignedTransaction) (*types.SubmittedTransaction, error) {
	if tx.EVM == nil {
		return nil, types.NewError(types.ErrInvalidSpec, "wallet for %s received a non-EVM transaction", w.network)
	}
	req := tx.EVM

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to fetch nonce: %v", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to fetch gas price: %v", err)
	}

	to := common.HexToAddress(req.To)
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = w.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.address,
			To:    &to,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, types.NewError(types.ErrNetworkError, "gas estimation failed: %v", err)
		}
	}

	unsigned := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    req.Value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := gethtypes.SignTx(unsigned, gethtypes.LatestSignerForChainID(req.ChainID), w.key)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to sign transaction: %v", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return nil, types.NewError(types.ErrNetworkError, "failed to broadcast transaction: %v", err)
	}

	submitted := &types.SubmittedTransaction{
		TxID:   signed.Hash().Hex(),
		Sender: w.address.Hex(),
	}
	if !w.WaitForReceipt {
		return submitted, nil
	}

	receipt, err := bind.WaitMined(ctx, w.client, signed)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, "transaction %s not mined: %v", submitted.TxID, err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, types.NewError(types.ErrNetworkError, "transaction %s reverted", submitted.TxID)
	}
	submitted.EVM = &types.EVMProofDetails{
		BlockNumber:       receipt.BlockNumber.Uint64(),
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice.String(),
	}
	return submitted, nil
}

// Close releases the RPC connection.
func (w *EVMWallet) Close() {
	w.client.Close()
}
