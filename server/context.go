package server

import (
	"context"

	"github.com/x402labs/x402-go/types"
)

type contextKey struct{}

var paymentKey contextKey

// PaymentInfo is the verified payment attached to the request context
// before the protected handler runs.
type PaymentInfo struct {
	Proof *types.PaymentProof
	Spec  *types.PaymentSpecification
	Payer string
}

// PaymentFromContext returns the verified payment for the request, if any.
func PaymentFromContext(ctx context.Context) (*PaymentInfo, bool) {
	info, ok := ctx.Value(paymentKey).(*PaymentInfo)
	return info, ok
}
