// Package wstest provides a real WebSocket peer, backed by a conforming
// third party implementation, for exercising the hand-rolled client against.
package wstest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/websocket"
)

// Handler is invoked for every JSON object the client under test sends.
// The gorilla connection is exposed so handlers can push frames back.
type Handler func(conn *websocket.Conn, msg map[string]interface{})

// Server is an httptest server speaking WebSocket on "/".
type Server struct {
	Host string
	Port int

	hs *httptest.Server
}

// NewServer starts a WebSocket server that feeds every decoded JSON object
// to handle. It is shut down via t.Cleanup.
func NewServer(t testing.TB, handle Handler) *Server {
	t.Helper()

	up := websocket.Upgrader{}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var m map[string]interface{}
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			if handle != nil {
				handle(conn, m)
			}
		}
	}))
	t.Cleanup(hs.Close)

	host, portStr, err := net.SplitHostPort(hs.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	return &Server{
		Host: host,
		Port: port,
		hs:   hs,
	}
}
