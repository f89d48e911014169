package wslink

import (
	"crypto/rand"
	"log/slog"
	"sync"
)

// router maps reply identifiers to pending callbacks and forwards
// unsolicited command messages to the dispatcher.
type router struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	metrics    *Metrics

	// reply is how the router answers action messages it cannot dispatch.
	// Fire-and-forget; wired to the owning client's send path.
	reply func(msg map[string]interface{})

	mu      sync.Mutex
	pending map[string]func(Message)
}

func newRouter(logger *slog.Logger, dispatcher Dispatcher, metrics *Metrics, reply func(map[string]interface{})) *router {
	return &router{
		logger:     logger,
		dispatcher: dispatcher,
		metrics:    metrics,
		reply:      reply,
		pending:    make(map[string]func(Message)),
	}
}

// register records cb under id. Must happen before the frame carrying id is
// transmitted, or a fast reply can race the registration and be lost.
//
// Registering an id that is already pending overwrites the earlier slot:
// only the later callback will ever be invoked. Callers own id uniqueness.
func (r *router) register(id string, cb func(Message)) {
	r.mu.Lock()
	r.pending[id] = cb
	r.mu.Unlock()
}

func (r *router) unregister(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// drop discards every pending callback without invoking it and returns how
// many were discarded. Called on connection teardown.
func (r *router) drop() int {
	r.mu.Lock()
	n := len(r.pending)
	r.pending = make(map[string]func(Message))
	r.mu.Unlock()
	return n
}

// route inspects one decoded message. A message whose id matches a pending
// entry resolves that callback exactly once; a message reusing an already
// consumed id is unrelated and falls through to the action rule rather than
// being replayed into the old callback.
func (r *router) route(m Message) {
	if id := m.ID(); id != "" {
		r.mu.Lock()
		cb, ok := r.pending[id]
		if ok {
			delete(r.pending, id)
		}
		r.mu.Unlock()
		if ok {
			if r.metrics != nil {
				r.metrics.Replies.Inc()
			}
			cb(m)
			return
		}
	}

	if action := m.Action(); action != "" {
		if r.dispatcher == nil {
			r.logger.Warn("no dispatcher registered for action", "action", action)
			if id := m.ID(); id != "" {
				r.reply(map[string]interface{}{
					"id":      id,
					"success": false,
					"error":   "unknown action: " + action,
				})
			}
			return
		}
		// Fire and forget: the router never blocks on command execution.
		if r.metrics != nil {
			r.metrics.Dispatches.Inc()
		}
		go r.dispatcher.Handle(action, m.Params(), m.ID())
		return
	}

	if r.metrics != nil {
		r.metrics.Unrecognized.Inc()
	}
	r.logger.Warn("dropping unrecognized message",
		"object", m.Object != nil, "text", m.Text != "", "bytes", len(m.Binary))
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newID generates a 12-character random alphanumeric correlation token.
func newID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("wslink: failed to read random bytes: " + err.Error())
	}
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b)
}
