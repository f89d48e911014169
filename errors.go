package wslink

import "fmt"

// TransportError reports a failure of the underlying TCP transport: a
// refused connection, a read or write failure, or a timeout. It fails
// Connect and Send and drives the connection to StateDisconnected. The
// core never retries; backoff policy belongs to the host.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandshakeError reports a malformed or rejected HTTP upgrade response.
// It fails Connect and leaves no partial connection state behind.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return "handshake rejected: " + e.Reason
}

// ProtocolError reports a corrupt or inconsistent frame header. The
// offending frame is never partially consumed and the connection is
// treated as unreliable.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}
