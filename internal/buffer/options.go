package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"go.uber.org/zap"
)

// DefaultBufferLength is the initial per-key allocation when none is given.
const DefaultBufferLength = 1000

// Option configures a RingBuffer.
type Option func(*options)

type options struct {
	defaultBufferLength int
	device              anyvec.Creator
	logger              *zap.Logger
	registerer          prometheus.Registerer
	name                string
}

// WithDefaultBufferLength sets the initial allocated length of new keys.
// It is capped at the buffer's max steps.
func WithDefaultBufferLength(n int) Option {
	return func(o *options) {
		o.defaultBufferLength = n
	}
}

// WithDevice sets the creator every field store is allocated on.
func WithDevice(c anyvec.Creator) Option {
	return func(o *options) {
		if c != nil {
			o.device = c
		}
	}
}

// WithLogger enables debug logging of growth and absorption.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics registers the buffer's Prometheus collectors on reg, labelled
// with name. Ignored when either is empty.
func WithMetrics(reg prometheus.Registerer, name string) Option {
	return func(o *options) {
		if reg != nil && name != "" {
			o.registerer = reg
			o.name = name
		}
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		defaultBufferLength: DefaultBufferLength,
		device:              anyvec64.DefaultCreator{},
		logger:              zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
