package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/x402labs/x402-go/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("network", validateNetworkTag)
	validate.RegisterValidation("scheme", validateSchemeTag)
}

func validateNetworkTag(fl validator.FieldLevel) bool {
	return types.Network(fl.Field().String()).IsSupported()
}

func validateSchemeTag(fl validator.FieldLevel) bool {
	s := types.PaymentScheme(fl.Field().String())
	return s == types.SchemeExact || s == types.SchemeMax
}

// ParsePaymentSpecification parses and validates a PaymentSpecification
// from JSON.
func ParsePaymentSpecification(data []byte) (*types.PaymentSpecification, error) {
	var spec types.PaymentSpecification

	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidSpec,
			Message: fmt.Sprintf("failed to parse payment specification: %v", err),
		}
	}

	if err := ValidatePaymentSpecification(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}

// ValidatePaymentSpecification runs the struct-tag checks and the semantic
// checks on a specification already decoded from the wire.
func ValidatePaymentSpecification(spec *types.PaymentSpecification) error {
	if err := validate.Struct(spec); err != nil {
		return &types.X402Error{
			Code:    types.ErrInvalidSpec,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}
	return spec.Validate()
}

// ParsePaymentProof parses and validates a PaymentProof from JSON.
func ParsePaymentProof(data []byte) (*types.PaymentProof, error) {
	var proof types.PaymentProof

	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrProofMismatch,
			Message: fmt.Sprintf("failed to parse payment proof: %v", err),
		}
	}

	if err := validate.Struct(&proof); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrProofMismatch,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	if err := proof.Validate(); err != nil {
		return nil, err
	}

	return &proof, nil
}

// ParseSpecHeader decodes an X-402-Payment-Spec header value and runs the
// embedded JSON through the full validation pipeline.
func ParseSpecHeader(value string) (*types.PaymentSpecification, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidSpec, "invalid base64: %v", err)
	}
	return ParsePaymentSpecification(raw)
}

// ParseProofHeader decodes an X-402-Payment-Proof header value and runs the
// embedded JSON through the full validation pipeline.
func ParseProofHeader(value string) (*types.PaymentProof, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, types.NewError(types.ErrProofMismatch, "invalid base64: %v", err)
	}
	return ParsePaymentProof(raw)
}

// SerializePaymentSpecification converts a PaymentSpecification to JSON
func SerializePaymentSpecification(spec *types.PaymentSpecification) ([]byte, error) {
	return json.Marshal(spec)
}

// SerializePaymentProof converts a PaymentProof to JSON
func SerializePaymentProof(proof *types.PaymentProof) ([]byte, error) {
	return json.Marshal(proof)
}
