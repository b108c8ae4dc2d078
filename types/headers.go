package types

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
)

// Wire-level header names used by the payment handshake.
const (
	HeaderPaymentSpec  = "X-402-Payment-Spec"
	HeaderPaymentProof = "X-402-Payment-Proof"
	HeaderVersion      = "X-402-Version"
	HeaderNetwork      = "X-402-Network"
)

// EncodeSpecHeader serializes a specification for the X-402-Payment-Spec
// header as base64-encoded JSON.
func EncodeSpecHeader(spec *PaymentSpecification) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSpecHeader parses an X-402-Payment-Spec header value.
func DecodeSpecHeader(value string) (*PaymentSpecification, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, NewError(ErrInvalidSpec, "invalid base64: %v", err)
	}
	var spec PaymentSpecification
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, NewError(ErrInvalidSpec, "invalid payment specification: %v", err)
	}
	return &spec, nil
}

// EncodeProofHeader serializes a proof for the X-402-Payment-Proof header
// as base64-encoded JSON.
func EncodeProofHeader(proof *PaymentProof) (string, error) {
	raw, err := json.Marshal(proof)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeProofHeader parses an X-402-Payment-Proof header value.
func DecodeProofHeader(value string) (*PaymentProof, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, NewError(ErrProofMismatch, "invalid base64: %v", err)
	}
	var proof PaymentProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, NewError(ErrProofMismatch, "invalid payment proof: %v", err)
	}
	return &proof, nil
}

// VersionHeaderValue renders the protocol version for X-402-Version.
func VersionHeaderValue(v X402Version) string {
	return strconv.Itoa(int(v))
}
