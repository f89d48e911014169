package wslink

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// dialUpgrade opens a TCP connection to host:port and performs the one-time
// HTTP upgrade exchange on it. The returned bufio.Reader must be used for
// all subsequent reads: it may already hold frame bytes the peer sent
// immediately after the upgrade response.
func dialUpgrade(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, *bufio.Reader, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, nil, &TransportError{Op: "connect", Err: err}
	}

	br, err := upgrade(conn, host, port, timeout)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, br, nil
}

// upgrade sends the HTTP/1.1 upgrade request and verifies the response.
//
// The response is accepted if the status line contains "101" and some header
// line contains "Upgrade: websocket", compared case-insensitively. The
// Sec-WebSocket-Accept hash is deliberately not verified: the peer is a
// co-located, pre-authenticated process.
func upgrade(conn net.Conn, host string, port int, timeout time.Duration) (*bufio.Reader, error) {
	key, err := secWebSocketKey()
	if err != nil {
		return nil, xerrors.Errorf("failed to generate Sec-WebSocket-Key: %w", err)
	}

	req := fmt.Sprintf("GET / HTTP/1.1\r\n"+
		"Host: %v:%v\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %v\r\n"+
		"Sec-WebSocket-Version: 13\r\n"+
		"\r\n", host, port, key)

	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	_, err = io.WriteString(conn, req)
	if err != nil {
		return nil, &TransportError{Op: "handshake write", Err: err}
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return nil, &TransportError{Op: "handshake read", Err: err}
	}
	if !strings.Contains(status, "101") {
		return nil, &HandshakeError{
			Reason: fmt.Sprintf("expected status 101, got %q", strings.TrimSpace(status)),
		}
	}

	upgraded := false
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, &TransportError{Op: "handshake read", Err: err}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.Contains(strings.ToLower(line), "upgrade: websocket") {
			upgraded = true
		}
	}
	if !upgraded {
		return nil, &HandshakeError{Reason: `missing "Upgrade: websocket" header`}
	}

	return br, nil
}

// The key is random per RFC 6455 even though its value does not matter to a
// trusted peer that never echoes the accept hash back for verification.
func secWebSocketKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
