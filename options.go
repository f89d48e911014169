package wslink

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

type options struct {
	clientName    string
	clientVersion string

	handshakeTimeout time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration

	logger     *slog.Logger
	dispatcher Dispatcher
	limiter    *rate.Limiter
	metrics    *Metrics
}

func defaultOptions() options {
	return options{
		clientName:       "wslink",
		clientVersion:    "0.1.0",
		handshakeTimeout: 5 * time.Second,
		readTimeout:      5 * time.Second,
		writeTimeout:     5 * time.Second,
		logger:           slog.Default(),
	}
}

// Option configures a Client.
type Option func(*options)

// WithIdentity sets the client name and version announced in the
// application-level handshake message.
func WithIdentity(name, version string) Option {
	return func(o *options) {
		o.clientName = name
		o.clientVersion = version
	}
}

// WithHandshakeTimeout bounds the TCP connect and upgrade-response wait.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// WithReadTimeout sets the per-iteration deadline of the receive loop. It is
// also the longest Disconnect can leave the loop blocked on a read.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// WithWriteTimeout bounds each serialized frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDispatcher sets the collaborator that executes inbound action
// messages. Without one, action messages carrying an id are answered with
// an error reply and dropped.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithReadRateLimit throttles how fast decoded messages are routed, as a
// guard against a peer flooding the dispatcher.
func WithReadRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
