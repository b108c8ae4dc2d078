package metrics

import "time"

// Payment lifecycle events recorded through IncCounter. Call sites pass
// these instead of ad hoc strings so dashboards see a stable vocabulary.
const (
	EventVerified      = "payment_verified"
	EventRejected      = "payment_rejected"
	EventSettled       = "payment_settled"
	EventSettleFailed  = "settlement_failure"
	EventLimitExceeded = "payment_limit_exceeded"
)

// Operations timed through ObserveLatency.
const (
	OpVerify = "verify"
	OpSubmit = "payment_submit"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
