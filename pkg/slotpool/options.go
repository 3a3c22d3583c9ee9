package slotpool

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/metrics"
)

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithSlotSize sets the payload size of each slot in bytes. The default is
// DefaultSlotSize. New rejects non-positive sizes.
func WithSlotSize(n int) Option {
	return func(p *Pool) {
		p.slotSize = n
	}
}

// WithName sets the pool's name, used in errors, log fields, and metric
// labels.
func WithName(name string) Option {
	return func(p *Pool) {
		p.name = name
	}
}

// WithLogger attaches a zap logger. The pool logs construction, close, and
// rejected releases; the successful acquire/release path never logs.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithMetrics attaches a prometheus collector. Without one the pool records
// no metrics; the internal Stats counters are always maintained.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pool) {
		p.collector = c
	}
}
