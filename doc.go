// Package wslink lets a host application with no networking stack of its own
// exchange bidirectional, correlated JSON command messages with a co-located
// controller over a plain TCP socket, speaking a WebSocket-compatible wire
// format implemented here from scratch: the HTTP upgrade handshake, frame
// masking and variable-length headers, stream reassembly, and request and
// response correlation via message ids.
//
// The implementation is deliberately a subset of RFC 6455 tuned for a
// trusted local peer: no TLS, no compression extensions, no continuation
// frame assembly, no automatic pong replies, and no verification of the
// Sec-WebSocket-Accept hash.
package wslink // import "github.com/lightfast-io/wslink"
