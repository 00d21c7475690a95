package mqttflow

import (
	"time"

	"golang.org/x/time/rate"
)

// connOptions holds configuration for a Conn.
type connOptions struct {
	version ProtocolVersion

	// Retries and timeouts
	retryInterval  time.Duration
	requestTimeout time.Duration

	// Keep-alive
	keepAlive       uint16
	reschedulePings bool

	// Flow control
	receiveMaximum uint16

	// Publish rate limiting, disabled when publishLimit is zero
	publishLimit rate.Limit
	publishBurst int

	// Handlers
	onMessage MessageHandler
	onEvent   EventHandler

	logger    Logger
	metrics   Metrics
	scheduler Scheduler
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *connOptions {
	return &connOptions{
		version:         ProtocolV5,
		retryInterval:   5 * time.Second,
		requestTimeout:  10 * time.Second,
		keepAlive:       60,
		reschedulePings: true,
		receiveMaximum:  defaultReceiveMaximum,
		logger:          NewNoOpLogger(),
		metrics:         &NoOpMetrics{},
	}
}

// Option configures a Conn.
type Option func(*connOptions)

// WithProtocolVersion sets the protocol version negotiated by the connection.
func WithProtocolVersion(version ProtocolVersion) Option {
	return func(o *connOptions) {
		o.version = version
	}
}

// WithRetryInterval sets how long a QoS 1 or 2 publish waits for an
// acknowledgement before resending. Zero disables retries.
func WithRetryInterval(d time.Duration) Option {
	return func(o *connOptions) {
		o.retryInterval = d
	}
}

// WithRequestTimeout sets how long subscribe, unsubscribe and ping requests wait
// for a response. The packet is resent once before the request fails.
// Zero waits indefinitely.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *connOptions) {
		o.requestTimeout = d
	}
}

// WithKeepAlive sets the keep-alive interval in seconds. Zero disables pinging.
func WithKeepAlive(seconds uint16) Option {
	return func(o *connOptions) {
		o.keepAlive = seconds
	}
}

// WithReschedulePings sets whether outbound traffic postpones the next ping.
func WithReschedulePings(enabled bool) Option {
	return func(o *connOptions) {
		o.reschedulePings = enabled
	}
}

// WithReceiveMaximum sets the maximum number of QoS 1 and 2 publishes
// in flight at once. Further publishes are queued in order.
func WithReceiveMaximum(maxValue uint16) Option {
	return func(o *connOptions) {
		if maxValue == 0 {
			maxValue = defaultReceiveMaximum
		}
		o.receiveMaximum = maxValue
	}
}

// WithPublishRateLimit limits application publishes to r per second with the given burst.
func WithPublishRateLimit(r rate.Limit, burst int) Option {
	return func(o *connOptions) {
		o.publishLimit = r
		o.publishBurst = max(burst, 1)
	}
}

// WithMessageHandler sets the handler for inbound application messages.
// It runs on the connection's event loop and must not block.
func WithMessageHandler(handler MessageHandler) Option {
	return func(o *connOptions) {
		o.onMessage = handler
	}
}

// OnEvent sets the event handler for connection lifecycle events and errors.
func OnEvent(handler EventHandler) Option {
	return func(o *connOptions) {
		o.onEvent = handler
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *connOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics Metrics) Option {
	return func(o *connOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithScheduler replaces the timers of the event loop. Callbacks must still
// be delivered on the connection's event loop.
func WithScheduler(scheduler Scheduler) Option {
	return func(o *connOptions) {
		o.scheduler = scheduler
	}
}

// applyOptions applies all options to the default options.
func applyOptions(opts ...Option) *connOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
