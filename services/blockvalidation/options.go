package blockvalidation

import (
	"github.com/lightningnetwork/lnd/clock"
)

type Options struct {
	clock       clock.Clock
	checkpoints *bool
}

// Option is a function that sets some option on the Options struct
type Option func(*Options)

func NewDefaultOptions() *Options {
	return &Options{}
}

func ProcessOptions(opts ...Option) *Options {
	options := NewDefaultOptions()
	for _, o := range opts {
		o(options)
	}

	return options
}

// WithClock replaces the wall clock used for the future timestamp check
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.clock = c
	}
}

// WithCheckpoints overrides the checkpoints setting
func WithCheckpoints(enabled bool) Option {
	return func(o *Options) {
		o.checkpoints = &enabled
	}
}
