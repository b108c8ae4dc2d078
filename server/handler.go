// Package server provides the server-side payment handler: an HTTP
// middleware that demands an x402 payment before the wrapped handler runs.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/x402labs/x402-go/chains"
	"github.com/x402labs/x402-go/logger"
	"github.com/x402labs/x402-go/metrics"
	"github.com/x402labs/x402-go/specstore"
	"github.com/x402labs/x402-go/types"
	"github.com/x402labs/x402-go/utils"
)

// Facilitator is the narrow interface to the remote verify/settle service,
// kept small so tests can substitute a deterministic fake.
type Facilitator interface {
	Verify(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) (*types.VerificationResult, error)
	Settle(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) (*types.SettlementResult, error)
}

// Options configures the payment handler.
type Options struct {
	Registry    *chains.Registry
	Facilitator Facilitator

	// Specs is the per-resource specification cache. Defaults to an
	// in-memory store with a 5 minute negotiation window.
	Specs specstore.Store

	// Quote parameters for protected resources.
	Network     types.Network
	PayTo       string
	Amount      string
	Currency    string
	Asset       string
	Scheme      types.PaymentScheme
	Description string

	// Message is the human-readable text of the 402 envelope.
	Message string

	// Alternatives are additional accepted specifications advertised in
	// the 402 envelope, e.g. the same price on another network.
	Alternatives []types.PaymentSpecification

	// PriceFunc optionally overrides Amount per request.
	PriceFunc func(r *http.Request) (string, error)

	// OnSettlementFailure is invoked when settlement fails after the
	// protected handler already ran. Value was delivered without
	// confirmed payment; this is reported loudly, never swallowed.
	OnSettlementFailure func(r *http.Request, proof *types.PaymentProof, spec *types.PaymentSpecification, err error)

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// Handler is the server-side payment state machine. Per request it runs:
// extract proof, build or fetch the quoted specification, verify via the
// chain adapter and the facilitator, execute the protected handler, then
// settle.
type Handler struct {
	opts Options
}

// New creates a payment handler.
func New(opts Options) (*Handler, error) {
	if opts.Registry == nil {
		return nil, types.NewError(types.ErrInvalidSpec, "adapter registry is required")
	}
	if opts.Facilitator == nil {
		return nil, types.NewError(types.ErrInvalidSpec, "facilitator client is required")
	}
	if opts.PayTo == "" || opts.Amount == "" || opts.Network == "" {
		return nil, types.NewError(types.ErrInvalidSpec, "network, payTo and amount are required")
	}
	if opts.Scheme == "" {
		opts.Scheme = types.SchemeExact
	}
	if opts.Specs == nil {
		opts.Specs = specstore.NewMemory(5 * time.Minute)
	}
	if opts.Message == "" {
		opts.Message = "Payment required to access this resource"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NoopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}

	spec := quoteSpec(opts, opts.Amount, "/")
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return &Handler{opts: opts}, nil
}

// Supported returns the service descriptor of accepted payment kinds.
func (h *Handler) Supported() *types.SupportedResponse {
	return h.opts.Registry.Supported()
}

// Handler wraps next with the payment gate.
func (h *Handler) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spec, err := h.paymentRequirements(r)
		if err != nil {
			h.opts.Logger.Error("failed to build payment requirements", map[string]any{
				"resource": r.URL.Path,
				"error":    err.Error(),
			})
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		proofHeader := r.Header.Get(types.HeaderPaymentProof)
		if proofHeader == "" {
			h.write402(w, spec)
			return
		}

		proof, err := utils.ParseProofHeader(proofHeader)
		if err != nil {
			// Malformed proofs get the same client-visible answer as
			// rejected ones; the distinction is diagnostics only.
			h.opts.Logger.Debug("malformed payment proof", map[string]any{
				"resource": r.URL.Path,
				"error":    err.Error(),
			})
			h.write402(w, spec)
			return
		}

		result := h.verifyPayment(r.Context(), proof, spec)
		if !result.IsValid {
			h.opts.Metrics.IncCounter(metrics.EventRejected, map[string]string{"network": spec.Network.String()})
			h.opts.Logger.Info("payment rejected", map[string]any{
				"resource": r.URL.Path,
				"txId":     proof.TxID,
				"reason":   result.InvalidReason,
			})
			h.write402(w, spec)
			return
		}

		h.opts.Metrics.IncCounter(metrics.EventVerified, map[string]string{"network": spec.Network.String()})

		ctx := context.WithValue(r.Context(), paymentKey, &PaymentInfo{
			Proof: proof,
			Spec:  spec,
			Payer: result.Payer,
		})
		next.ServeHTTP(w, r.WithContext(ctx))

		h.settlePayment(r, proof, spec)
	})
}

// paymentRequirements builds and caches the specification quoted for this
// resource. Repeated calls during the negotiation window return the same
// canonical specification so a later proof matches exactly what was
// quoted.
func (h *Handler) paymentRequirements(r *http.Request) (*types.PaymentSpecification, error) {
	amount := h.opts.Amount
	if h.opts.PriceFunc != nil {
		var err error
		amount, err = h.opts.PriceFunc(r)
		if err != nil {
			return nil, err
		}
	}

	key := r.URL.Path + "|" + amount
	return h.opts.Specs.GetOrCreate(key, func() (*types.PaymentSpecification, error) {
		spec := quoteSpec(h.opts, amount, r.URL.Path)
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		return spec, nil
	})
}

func quoteSpec(opts Options, amount, resource string) *types.PaymentSpecification {
	return &types.PaymentSpecification{
		X402Version: int(types.X402Version1),
		Scheme:      opts.Scheme,
		Network:     opts.Network,
		Price: types.Price{
			Amount:   amount,
			Currency: opts.Currency,
			Asset:    opts.Asset,
		},
		Recipient: types.Recipient{Address: opts.PayTo},
		Resource: types.Resource{
			URI:         resource,
			Description: opts.Description,
		},
	}
}

// write402 emits the 402 envelope. The JSON body is canonical; the spec
// header duplicates it so clients can dispatch without a body parse.
func (h *Handler) write402(w http.ResponseWriter, spec *types.PaymentSpecification) {
	if encoded, err := types.EncodeSpecHeader(spec); err == nil {
		w.Header().Set(types.HeaderPaymentSpec, encoded)
	}
	w.Header().Set(types.HeaderVersion, types.VersionHeaderValue(types.X402Version1))
	w.Header().Set(types.HeaderNetwork, spec.Network.String())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	envelope := types.NewPaymentRequired(spec, h.opts.Message, h.opts.Alternatives...)
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		h.opts.Logger.Error("failed to write 402 envelope", map[string]any{"error": err.Error()})
	}
}

// verifyPayment runs the adapter's local checks, then the facilitator's
// authoritative verification. Both must pass; every failure, including
// facilitator timeouts, yields a rejection. The gated handler never runs
// on unverified payment.
func (h *Handler) verifyPayment(ctx context.Context, proof *types.PaymentProof, spec *types.PaymentSpecification) *types.VerificationResult {
	adapter, err := h.opts.Registry.Adapter(spec.Network)
	if err != nil {
		return &types.VerificationResult{IsValid: false, InvalidReason: chains.ReasonUnsupportedNetwork}
	}

	// Local comparison is the cheap fail-fast; a mismatch never reaches
	// the facilitator.
	local := adapter.VerifyProof(ctx, proof, spec)
	if !local.IsValid {
		return local
	}

	remote, err := h.opts.Facilitator.Verify(ctx, proof, spec)
	if err != nil {
		h.opts.Logger.Warn("facilitator verification failed", map[string]any{
			"txId":  proof.TxID,
			"error": err.Error(),
		})
		return &types.VerificationResult{IsValid: false, InvalidReason: "facilitator_unavailable"}
	}

	return remote
}

// settlePayment runs after the protected handler has executed. A failure
// here means value was delivered without confirmed payment, an accepted
// risk of the execute-then-settle ordering; it is reported as a distinct
// operational condition.
func (h *Handler) settlePayment(r *http.Request, proof *types.PaymentProof, spec *types.PaymentSpecification) {
	result, err := h.opts.Facilitator.Settle(r.Context(), proof, spec)
	if err == nil && result.Settled {
		h.opts.Metrics.IncCounter(metrics.EventSettled, map[string]string{"network": spec.Network.String()})
		return
	}

	if err == nil {
		err = types.NewError(types.ErrSettlementFailed, "facilitator declined settlement: %s", result.Error)
	}

	h.opts.Metrics.IncCounter(metrics.EventSettleFailed, map[string]string{"network": spec.Network.String()})
	h.opts.Logger.Error("settlement failed after protected operation executed", map[string]any{
		"resource": r.URL.Path,
		"txId":     proof.TxID,
		"error":    err.Error(),
	})
	if h.opts.OnSettlementFailure != nil {
		h.opts.OnSettlementFailure(r, proof, spec, err)
	}
}
