package wslink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for a Client. Construct one
// with NewMetrics and attach it via WithMetrics; a nil Metrics disables
// instrumentation entirely.
type Metrics struct {
	Connects     prometheus.Counter
	Teardowns    prometheus.Counter
	FramesIn     prometheus.Counter
	FramesOut    prometheus.Counter
	BytesIn      prometheus.Counter
	BytesOut     prometheus.Counter
	Dispatches   prometheus.Counter
	Replies      prometheus.Counter
	Unrecognized prometheus.Counter
}

// NewMetrics registers the client metrics with reg. Pass
// prometheus.DefaultRegisterer unless the host owns its own registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "wslink",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		Connects:     counter("connects_total", "Successful connection establishments."),
		Teardowns:    counter("teardowns_total", "Connection teardowns, voluntary or not."),
		FramesIn:     counter("frames_in_total", "Complete frames decoded from the peer."),
		FramesOut:    counter("frames_out_total", "Frames written to the peer."),
		BytesIn:      counter("bytes_in_total", "Raw bytes read from the transport."),
		BytesOut:     counter("bytes_out_total", "Raw bytes written to the transport."),
		Dispatches:   counter("dispatches_total", "Action messages forwarded to the dispatcher."),
		Replies:      counter("replies_total", "Reply messages matched to a pending request."),
		Unrecognized: counter("unrecognized_total", "Messages dropped as unrecognized."),
	}
}
