package x402

import (
	"time"

	"github.com/x402labs/x402-go/logger"
	"github.com/x402labs/x402-go/metrics"
)

type Option func(*X402)

func WithLogger(l logger.Logger) Option {
	return func(x *X402) {
		x.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(x *X402) {
		x.metrics = r
	}
}

func WithTimeout(t time.Duration) Option {
	return func(x *X402) {
		x.timeout = t
	}
}
