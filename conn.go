package wslink

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/lightfast-io/wslink/internal/errd"
)

// State is the connection lifecycle state. It is owned exclusively by the
// Client; everything else only reads it.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// readChunkSize matches the original transport read granularity.
const readChunkSize = 4096

// closeGraceDelay is how long Disconnect waits after the best-effort close
// frame before tearing the transport down.
const closeGraceDelay = 100 * time.Millisecond

const statusNormalClosure = 1000

// Client exchanges correlated JSON command messages with a remote controller
// over a single TCP connection, speaking a WebSocket-compatible wire format
// it implements itself.
//
// A Client is reusable: after a disconnect, voluntary or not, Connect may be
// called again. All methods may be called from any goroutine; frame writes
// are serialized internally so concurrent senders never interleave partial
// frames on the wire.
type Client struct {
	opts   options
	logger *slog.Logger
	router *router

	writeMu mu // serializes whole-frame writes

	// stateMu guards the fields below. The receive loop goroutine holds
	// copies of conn, br and closed so it never touches them under lock.
	stateMu sync.Mutex
	state   State
	conn    net.Conn
	br      *bufio.Reader
	closed  chan struct{} // closed on teardown of the current connection
	session string
	err     error // first teardown cause, cleared on the next Connect
}

// NewClient creates a disconnected Client.
func NewClient(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		opts:   o,
		logger: o.logger.With("component", "wslink"),
	}
	c.router = newRouter(c.logger, o.dispatcher, o.metrics, c.replyBestEffort)
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Err returns the cause of the most recent teardown, or nil if the client
// is connected or has never connected.
func (c *Client) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.err
}

// Session returns the session token announced in the last application-level
// handshake, or "" if never connected.
func (c *Client) Session() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.session
}

// Connect dials host:port, performs the HTTP upgrade, starts the background
// receive loop and announces the client with an application-level handshake
// message. On any failure the client returns to StateDisconnected and the
// failure kind is reported: *TransportError for connect refusal or timeout,
// *HandshakeError for a rejected upgrade.
func (c *Client) Connect(ctx context.Context, host string, port int) (err error) {
	defer errd.Wrap(&err, "failed to connect to %v:%v", host, port)

	c.stateMu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.stateMu.Unlock()
		return xerrors.Errorf("connect called while %v", state)
	}
	c.state = StateConnecting
	c.stateMu.Unlock()

	conn, br, err := dialUpgrade(ctx, host, port, c.opts.handshakeTimeout)
	if err != nil {
		c.stateMu.Lock()
		c.state = StateDisconnected
		c.stateMu.Unlock()
		return err
	}

	closed := make(chan struct{})
	session := uuid.NewString()

	c.stateMu.Lock()
	if c.state != StateConnecting {
		// Disconnect raced us while dialing.
		state := c.state
		c.stateMu.Unlock()
		conn.Close()
		return xerrors.Errorf("connect aborted while %v", state)
	}
	c.conn = conn
	c.br = br
	c.closed = closed
	c.session = session
	c.err = nil
	c.state = StateOpen
	c.stateMu.Unlock()

	if c.opts.metrics != nil {
		c.opts.metrics.Connects.Inc()
	}
	c.logger.Info("connected", "host", host, "port", port, "session", session)

	go c.readLoop(conn, br, closed)

	// Application-level handshake, distinct from the HTTP upgrade that
	// established the transport.
	_, err = c.Send(ctx, map[string]interface{}{
		"type":    "handshake",
		"client":  c.opts.clientName,
		"version": c.opts.clientVersion,
		"session": session,
	}, nil)
	if err != nil {
		c.teardown(xerrors.Errorf("application handshake failed: %w", err))
		return err
	}

	return nil
}

// Send marshals msg as JSON and transmits it as one masked text frame.
//
// If msg lacks an "id" field, a connection-locally-unique one is generated
// and inserted; the id used is returned. If cb is non-nil it is registered
// under that id before the frame reaches the wire, so even an instant reply
// cannot be lost, and it will be invoked exactly once, on the receive-loop
// goroutine, when a reply carrying the id arrives. Callbacks still pending
// at teardown are discarded without being invoked; callers needing liveness
// guarantees should apply their own timeout around Send.
func (c *Client) Send(ctx context.Context, msg map[string]interface{}, cb func(Message)) (id string, err error) {
	defer errd.Wrap(&err, "failed to send message")

	c.stateMu.Lock()
	state, conn, closed := c.state, c.conn, c.closed
	c.stateMu.Unlock()
	if state != StateOpen {
		return "", xerrors.Errorf("connection is %v", state)
	}

	if v, ok := msg["id"].(string); ok && v != "" {
		id = v
	} else {
		id = newID()
		msg["id"] = id
	}

	// Register before transmit to avoid racing a fast reply.
	if cb != nil {
		c.router.register(id, cb)
	}

	p, err := json.Marshal(msg)
	if err != nil {
		c.router.unregister(id)
		return "", err
	}
	b, err := encodeFrame(opText, p)
	if err != nil {
		c.router.unregister(id)
		return "", err
	}

	err = c.writeFrame(ctx, conn, closed, b)
	if err != nil {
		c.router.unregister(id)
		return "", err
	}
	return id, nil
}

// writeFrame is the single point all socket writes funnel through.
func (c *Client) writeFrame(ctx context.Context, conn net.Conn, closed chan struct{}, b []byte) error {
	err := c.writeMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer c.writeMu.Unlock()

	select {
	case <-closed:
		return xerrors.New("connection is closed")
	default:
	}

	conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	_, err = conn.Write(b)
	if err != nil {
		werr := &TransportError{Op: "write", Err: err}
		c.teardown(werr)
		return werr
	}

	if c.opts.metrics != nil {
		c.opts.metrics.FramesOut.Inc()
		c.opts.metrics.BytesOut.Add(float64(len(b)))
	}
	return nil
}

// Disconnect sends a best-effort close frame, allows a short grace delay
// for it to flush, then unconditionally closes the transport. Pending
// request callbacks are discarded without being invoked. Idempotent.
func (c *Client) Disconnect() error {
	c.stateMu.Lock()
	if c.state == StateDisconnected {
		c.stateMu.Unlock()
		return nil
	}
	conn, closed := c.conn, c.closed
	c.state = StateClosing
	c.stateMu.Unlock()

	if conn != nil {
		p := make([]byte, 2)
		binary.BigEndian.PutUint16(p, statusNormalClosure)
		if b, err := encodeFrame(opClose, p); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.writeTimeout)
			c.writeFrame(ctx, conn, closed, b)
			cancel()
			time.Sleep(closeGraceDelay)
		}
	}

	c.teardown(xerrors.New("disconnect requested"))
	return nil
}

// teardown moves the connection to StateDisconnected exactly once per
// connection: it records the cause, closes the transport to unblock any
// in-flight read, and discards all pending request callbacks uninvoked.
func (c *Client) teardown(cause error) {
	c.stateMu.Lock()
	if c.state == StateDisconnected {
		c.stateMu.Unlock()
		return
	}
	conn, closed := c.conn, c.closed
	c.state = StateDisconnected
	c.conn = nil
	c.br = nil
	// Clear the channel so a teardown that lands before the next connection
	// installs its own (a Disconnect during Connecting) cannot close the
	// previous connection's channel a second time.
	c.closed = nil
	if c.err == nil {
		c.err = cause
	}
	c.stateMu.Unlock()

	if closed != nil {
		close(closed)
	}
	if conn != nil {
		conn.Close()
	}

	dropped := c.router.drop()
	if c.opts.metrics != nil {
		c.opts.metrics.Teardowns.Inc()
	}
	c.logger.Info("disconnected", "cause", cause, "dropped_pending", dropped)
}

// readLoop is the single background task of an open connection. All decode
// and routing work happens here. Each iteration reads with a bounded
// deadline so shutdown never waits on a peer: closing the transport
// unblocks an in-flight read, and the closed channel stops the loop
// between iterations.
func (c *Client) readLoop(conn net.Conn, br *bufio.Reader, closed chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-closed
		cancel()
	}()

	var ra reassembler
	chunk := make([]byte, readChunkSize)
	for {
		select {
		case <-closed:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
		n, err := br.Read(chunk)
		if n > 0 {
			ra.push(chunk[:n])
			if c.opts.metrics != nil {
				c.opts.metrics.BytesIn.Add(float64(n))
			}
		}
		if err != nil {
			var ne net.Error
			if xerrors.As(err, &ne) && ne.Timeout() {
				// No data yet; keep polling.
				continue
			}
			if err == io.EOF {
				c.teardown(xerrors.New("peer closed the connection"))
			} else {
				c.teardown(&TransportError{Op: "read", Err: err})
			}
			return
		}

		for {
			f, ok, err := ra.next()
			if err != nil {
				c.logger.Error("dropping corrupt frame", "err", err)
				c.teardown(err)
				return
			}
			if !ok {
				break
			}
			if c.opts.metrics != nil {
				c.opts.metrics.FramesIn.Inc()
			}

			switch f.opcode {
			case opClose:
				c.teardown(xerrors.New("received close frame"))
				return
			case opPing, opPong:
				// Protocol subset: pings are not answered with pongs.
				c.logger.Debug("ignoring control frame", "opcode", f.opcode)
				continue
			}

			if c.opts.limiter != nil {
				if err := c.opts.limiter.Wait(ctx); err != nil {
					return
				}
			}

			select {
			case <-closed:
				return
			default:
			}
			c.router.route(newMessage(f.opcode, f.payload))
		}
	}
}

// replyBestEffort lets the router answer action messages outside any caller
// context. Failures are logged, never surfaced.
func (c *Client) replyBestEffort(msg map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.writeTimeout)
	defer cancel()
	if _, err := c.Send(ctx, msg, nil); err != nil {
		c.logger.Warn("failed to send reply", "err", err)
	}
}

// mu is a channel based mutex that can fail to lock when a context expires.
type mu struct {
	once sync.Once
	ch   chan struct{}
}

func (m *mu) init() {
	m.once.Do(func() {
		m.ch = make(chan struct{}, 1)
	})
}

func (m *mu) Lock(ctx context.Context) error {
	m.init()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.ch <- struct{}{}:
		return nil
	}
}

func (m *mu) Unlock() {
	<-m.ch
}
