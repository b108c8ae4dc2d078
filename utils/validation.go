package utils

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/x402labs/x402-go/types"
)

// ValidateJSON validates that a byte slice is valid JSON
func ValidateJSON(data []byte) error {
	var js json.RawMessage
	return json.Unmarshal(data, &js)
}

// ValidateAmount checks that an amount string is a non-negative decimal
// integer. Fractional forms are rejected; amounts are always expressed in
// the asset's smallest unit.
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	if dec.Exponent() < 0 && !dec.Equal(dec.Truncate(0)) {
		return nil, fmt.Errorf("amount must be an integer in the smallest unit")
	}

	return &dec, nil
}

// ValidateBigInt checks if a string is a valid big integer
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}

	bigInt := new(big.Int)
	_, success := bigInt.SetString(value, 10)
	if !success {
		return nil, fmt.Errorf("invalid big integer format")
	}

	return bigInt, nil
}

// ValidateTransactionHash validates a transaction identifier against the
// network's chain family.
func ValidateTransactionHash(hash string, network types.Network) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !network.IsSupported() {
		return fmt.Errorf("unsupported network: %s", network)
	}
	if !network.ValidTxID(hash) {
		return fmt.Errorf("invalid transaction identifier for %s", network)
	}
	return nil
}

// ValidateAddress validates an address against the network's chain family.
func ValidateAddress(address string, network types.Network) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !network.IsSupported() {
		return fmt.Errorf("unsupported network: %s", network)
	}
	if !network.ValidAddress(address) {
		return fmt.Errorf("invalid address for %s", network)
	}
	return nil
}
