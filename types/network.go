package types

import (
	"math/big"
	"regexp"
	"strings"
)

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainEVM    ChainFamily = "evm"
	ChainSolana ChainFamily = "solana"
)

// Network represents supported blockchain networks.
type Network string

const (
	// EVM networks
	NetworkBaseMainnet  Network = "base-mainnet"
	NetworkBaseSepolia  Network = "base-sepolia" // testnet
	NetworkPolygon      Network = "polygon"
	NetworkPolygonAmoy  Network = "polygon-amoy" // testnet
	NetworkBSC          Network = "bsc"
	NetworkSei          Network = "sei"
	NetworkPeaq         Network = "peaq"

	// Solana networks
	NetworkSolanaMainnet Network = "solana-mainnet"
	NetworkSolanaDevnet  Network = "solana-devnet" // testnet
)

// EVMChainID maps an EVM network to its chain id.
var EVMChainID = map[Network]*big.Int{
	NetworkBaseMainnet: big.NewInt(8453),
	NetworkBaseSepolia: big.NewInt(84532),
	NetworkPolygon:     big.NewInt(137),
	NetworkPolygonAmoy: big.NewInt(80002),
	NetworkBSC:         big.NewInt(56),
	NetworkSei:         big.NewInt(1329),
	NetworkPeaq:        big.NewInt(3338),
}

// EVMZeroAddress is the sentinel asset value meaning "native token".
const EVMZeroAddress = "0x0000000000000000000000000000000000000000"

func (n Network) IsEVM() bool {
	_, ok := EVMChainID[n]
	return ok
}

func (n Network) IsSolana() bool {
	return n == NetworkSolanaMainnet || n == NetworkSolanaDevnet
}

func (n Network) IsSupported() bool {
	return n.IsEVM() || n.IsSolana()
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkPolygonAmoy || n == NetworkSolanaDevnet
}

// Family returns the chain family of the network, or "" if unsupported.
func (n Network) Family() ChainFamily {
	switch {
	case n.IsEVM():
		return ChainEVM
	case n.IsSolana():
		return ChainSolana
	default:
		return ""
	}
}

func (n Network) String() string {
	return string(n)
}

var (
	evmAddressRe    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	evmTxHashRe     = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	base58Re        = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// ValidAddress reports whether addr matches the address syntax of the
// network's chain family.
func (n Network) ValidAddress(addr string) bool {
	switch n.Family() {
	case ChainEVM:
		return evmAddressRe.MatchString(addr)
	case ChainSolana:
		return len(addr) >= 32 && len(addr) <= 44 && base58Re.MatchString(addr)
	default:
		return false
	}
}

// ValidTxID reports whether id matches the transaction identifier syntax
// of the network's chain family.
func (n Network) ValidTxID(id string) bool {
	switch n.Family() {
	case ChainEVM:
		return evmTxHashRe.MatchString(id)
	case ChainSolana:
		return len(id) >= 80 && len(id) <= 90 && base58Re.MatchString(id)
	default:
		return false
	}
}

// IsNativeAsset reports whether the asset value denotes the native token
// of the network: absent, the EVM zero address, or the conventional "SOL"
// sentinel on Solana.
func IsNativeAsset(network Network, asset string) bool {
	if asset == "" {
		return true
	}
	switch network.Family() {
	case ChainEVM:
		return strings.EqualFold(asset, EVMZeroAddress)
	case ChainSolana:
		return asset == "SOL"
	default:
		return false
	}
}

// SameAddress compares two addresses under the network's equality rules:
// case-insensitive for EVM, exact for Solana.
func SameAddress(network Network, a, b string) bool {
	if network.IsEVM() {
		return strings.EqualFold(a, b)
	}
	return a == b
}
