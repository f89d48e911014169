package wslink_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lightfast-io/wslink"
	"github.com/lightfast-io/wslink/internal/test/assert"
	"github.com/lightfast-io/wslink/internal/test/wstest"
	"github.com/lightfast-io/wslink/internal/test/xrand"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, srv *wstest.Server, opts ...wslink.Option) *wslink.Client {
	t.Helper()

	opts = append([]wslink.Option{
		wslink.WithLogger(testLogger()),
		wslink.WithReadTimeout(50 * time.Millisecond),
	}, opts...)
	c := wslink.NewClient(opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Connect(ctx, srv.Host, srv.Port)
	assert.Success(t, err)
	t.Cleanup(func() {
		c.Disconnect()
	})
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", what)
}

func recvObject(t *testing.T, ch <-chan map[string]interface{}) map[string]interface{} {
	t.Helper()

	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func TestClientConnect(t *testing.T) {
	t.Parallel()

	t.Run("sendsHandshake", func(t *testing.T) {
		t.Parallel()

		msgs := make(chan map[string]interface{}, 8)
		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			msgs <- m
		})

		c := testClient(t, srv, wslink.WithIdentity("blender", "4.1.0"))
		assert.Equal(t, "state", wslink.StateOpen, c.State())

		m := recvObject(t, msgs)
		assert.Equal(t, "type", "handshake", m["type"])
		assert.Equal(t, "client", "blender", m["client"])
		assert.Equal(t, "version", "4.1.0", m["version"])
		assert.Equal(t, "session", c.Session(), m["session"])
		if c.Session() == "" {
			t.Fatal("expected a session token")
		}
		if id, _ := m["id"].(string); len(id) != 12 {
			t.Fatalf("expected a 12 character id, got %q", id)
		}
	})

	t.Run("refused", func(t *testing.T) {
		t.Parallel()

		l, err := net.Listen("tcp", "127.0.0.1:0")
		assert.Success(t, err)
		port := l.Addr().(*net.TCPAddr).Port
		l.Close()

		c := wslink.NewClient(wslink.WithLogger(testLogger()))
		err = c.Connect(context.Background(), "127.0.0.1", port)
		var terr *wslink.TransportError
		assert.ErrorAs(t, err, &terr)
		assert.Equal(t, "state", wslink.StateDisconnected, c.State())
	})

	t.Run("whileConnected", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, nil)
		c := testClient(t, srv)

		err := c.Connect(context.Background(), srv.Host, srv.Port)
		assert.Error(t, err)
		assert.Contains(t, err, "open")
	})

	t.Run("reconnectAfterDisconnect", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, nil)
		c := testClient(t, srv)

		assert.Success(t, c.Disconnect())
		assert.Equal(t, "state", wslink.StateDisconnected, c.State())

		first := c.Session()
		assert.Success(t, c.Connect(context.Background(), srv.Host, srv.Port))
		assert.Equal(t, "state", wslink.StateOpen, c.State())
		if c.Session() == first {
			t.Fatal("expected a fresh session token")
		}
	})
}

func TestClientSend(t *testing.T) {
	t.Parallel()

	t.Run("correlatesReply", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			if m["type"] != "query" {
				return
			}
			conn.WriteJSON(map[string]interface{}{
				"id":      m["id"],
				"success": true,
				"output":  "4",
			})
		})
		c := testClient(t, srv)

		replies := make(chan wslink.Message, 2)
		id, err := c.Send(context.Background(), map[string]interface{}{
			"type": "query",
		}, func(m wslink.Message) {
			replies <- m
		})
		assert.Success(t, err)

		var reply wslink.Message
		select {
		case reply = <-replies:
		case <-time.After(5 * time.Second):
			t.Fatal("reply never arrived")
		}
		assert.Equal(t, "id", id, reply.ID())
		assert.Equal(t, "success", true, reply.Object["success"])
		assert.Equal(t, "output", "4", reply.Object["output"])

		// Exactly once.
		select {
		case m := <-replies:
			t.Fatalf("callback invoked again with %v", m.Object)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("callerID", func(t *testing.T) {
		t.Parallel()

		msgs := make(chan map[string]interface{}, 8)
		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			msgs <- m
		})
		c := testClient(t, srv)

		mine := xrand.Alnum(12)
		id, err := c.Send(context.Background(), map[string]interface{}{
			"type": "query",
			"id":   mine,
		}, nil)
		assert.Success(t, err)
		assert.Equal(t, "id", mine, id)

		recvObject(t, msgs) // handshake
		m := recvObject(t, msgs)
		assert.Equal(t, "wire id", mine, m["id"])
	})

	t.Run("uniqueGeneratedIDs", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, nil)
		c := testClient(t, srv)

		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			id, err := c.Send(context.Background(), map[string]interface{}{
				"type": "query",
			}, nil)
			assert.Success(t, err)
			assert.Equal(t, "length", 12, len(id))
			if seen[id] {
				t.Fatalf("duplicate id %q", id)
			}
			seen[id] = true
		}
	})

	t.Run("whileDisconnected", func(t *testing.T) {
		t.Parallel()

		c := wslink.NewClient(wslink.WithLogger(testLogger()))
		_, err := c.Send(context.Background(), map[string]interface{}{
			"type": "query",
		}, nil)
		assert.Error(t, err)
		assert.Contains(t, err, "disconnected")
	})
}

func TestClientDispatch(t *testing.T) {
	t.Parallel()

	t.Run("actionRoundTrip", func(t *testing.T) {
		t.Parallel()

		serverReplies := make(chan map[string]interface{}, 2)
		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			switch {
			case m["type"] == "handshake":
				conn.WriteJSON(map[string]interface{}{
					"action": "execute_code",
					"params": map[string]interface{}{"code": "2+2"},
					"id":     "srv-req-1",
				})
			case m["id"] == "srv-req-1":
				serverReplies <- m
			}
		})

		handled := make(chan map[string]interface{}, 1)
		var c *wslink.Client
		d := wslink.DispatcherFunc(func(action string, params map[string]interface{}, id string) {
			handled <- map[string]interface{}{"action": action, "params": params}
			c.Send(context.Background(), map[string]interface{}{
				"id":      id,
				"success": true,
				"output":  "4",
			}, nil)
		})
		c = testClient(t, srv, wslink.WithDispatcher(d))

		got := recvObject(t, handled)
		assert.Equal(t, "action", "execute_code", got["action"])
		assert.Equal(t, "params", map[string]interface{}{"code": "2+2"}, got["params"])

		reply := recvObject(t, serverReplies)
		assert.Equal(t, "success", true, reply["success"])
		assert.Equal(t, "output", "4", reply["output"])
	})

	t.Run("noDispatcherErrorReply", func(t *testing.T) {
		t.Parallel()

		serverReplies := make(chan map[string]interface{}, 2)
		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			switch {
			case m["type"] == "handshake":
				conn.WriteJSON(map[string]interface{}{
					"action": "no_such_action",
					"id":     "srv-req-2",
				})
			case m["id"] == "srv-req-2":
				serverReplies <- m
			}
		})
		testClient(t, srv)

		reply := recvObject(t, serverReplies)
		assert.Equal(t, "success", false, reply["success"])
		assert.Contains(t, reply["error"], "unknown action")
	})
}

func TestClientTeardown(t *testing.T) {
	t.Parallel()

	t.Run("peerCloseFrame", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			if m["type"] != "die" {
				return
			}
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		})
		c := testClient(t, srv)

		pending := make(chan wslink.Message, 1)
		_, err := c.Send(context.Background(), map[string]interface{}{
			"type": "die",
		}, func(m wslink.Message) {
			pending <- m
		})
		assert.Success(t, err)

		waitFor(t, "disconnect", func() bool {
			return c.State() == wslink.StateDisconnected
		})
		assert.Contains(t, c.Err(), "close frame")

		// Pending callbacks are discarded at teardown, never invoked.
		select {
		case m := <-pending:
			t.Fatalf("pending callback invoked with %v", m.Object)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("peerDrops", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			if m["type"] == "die" {
				conn.Close()
			}
		})
		c := testClient(t, srv)

		_, err := c.Send(context.Background(), map[string]interface{}{
			"type": "die",
		}, nil)
		assert.Success(t, err)

		waitFor(t, "disconnect", func() bool {
			return c.State() == wslink.StateDisconnected
		})
		assert.Error(t, c.Err())
	})

	t.Run("disconnectUnblocksPromptly", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, nil)
		c := testClient(t, srv)

		start := time.Now()
		assert.Success(t, c.Disconnect())
		if d := time.Since(start); d > 2*time.Second {
			t.Fatalf("disconnect took %v", d)
		}
		assert.Equal(t, "state", wslink.StateDisconnected, c.State())
		assert.Contains(t, c.Err(), "disconnect requested")

		// Idempotent.
		assert.Success(t, c.Disconnect())
	})

	t.Run("disconnectWhileConnecting", func(t *testing.T) {
		t.Parallel()

		// A full connect/disconnect cycle first, so this reconnect is
		// the second connection the client has ever dialed.
		srv := wstest.NewServer(t, nil)
		c := testClient(t, srv, wslink.WithHandshakeTimeout(time.Second))
		assert.Success(t, c.Disconnect())

		// A peer that accepts the TCP connection but never answers the
		// upgrade, pinning the client in StateConnecting.
		l, err := net.Listen("tcp", "127.0.0.1:0")
		assert.Success(t, err)
		t.Cleanup(func() {
			l.Close()
		})
		go func() {
			for {
				conn, err := l.Accept()
				if err != nil {
					return
				}
				defer conn.Close()
			}
		}()

		errs := make(chan error, 1)
		go func() {
			errs <- c.Connect(context.Background(),
				"127.0.0.1", l.Addr().(*net.TCPAddr).Port)
		}()
		waitFor(t, "connecting", func() bool {
			return c.State() == wslink.StateConnecting
		})

		assert.Success(t, c.Disconnect())
		assert.Equal(t, "state", wslink.StateDisconnected, c.State())

		select {
		case err := <-errs:
			assert.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("connect never returned")
		}
		assert.Equal(t, "state", wslink.StateDisconnected, c.State())
	})

	t.Run("pingsIgnored", func(t *testing.T) {
		t.Parallel()

		srv := wstest.NewServer(t, func(conn *websocket.Conn, m map[string]interface{}) {
			switch m["type"] {
			case "handshake":
				// Empty payload ping, interleaved before any reply.
				conn.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(time.Second))
			case "query":
				conn.WriteJSON(map[string]interface{}{
					"id":      m["id"],
					"success": true,
				})
			}
		})
		c := testClient(t, srv)

		replies := make(chan wslink.Message, 1)
		_, err := c.Send(context.Background(), map[string]interface{}{
			"type": "query",
		}, func(m wslink.Message) {
			replies <- m
		})
		assert.Success(t, err)

		// The receive loop must survive the ping and still deliver the
		// reply that follows it on the same connection.
		var reply wslink.Message
		select {
		case reply = <-replies:
		case <-time.After(5 * time.Second):
			t.Fatal("reply never arrived")
		}
		assert.Equal(t, "success", true, reply.Object["success"])
		assert.Equal(t, "state", wslink.StateOpen, c.State())
	})
}
