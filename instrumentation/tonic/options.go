package tonic

import "github.com/lightstep/lightstep-autotrace-go/instrumentation"

const DefaultOutputBuffer = 1024

type Option func(*config)

// WithMaxConcurrent bounds the number of calls tracked at once.
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithOutputBuffer sets how many finished records may wait for the consumer.
func WithOutputBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.outputBuffer = n
		}
	}
}

type config struct {
	maxConcurrent int
	outputBuffer  int
}

func defaultConfig() *config {
	return &config{
		maxConcurrent: instrumentation.DefaultMaxConcurrent,
		outputBuffer:  DefaultOutputBuffer,
	}
}
