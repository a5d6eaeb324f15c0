package edgemq

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"nhooyr.io/websocket"
)

// DialFunc is a helper to convert a function to the ContextDialer interface.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext calls f(ctx, network, addr).
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// WebSocketDialer reaches a broker through its WebSocket listener using the
// "mqtt" subprotocol and binary frames.
//
// The host:port given by the client is combined with Path to form the URL.
//
// Example:
//
//	client, _ := edgemq.New(edgemq.Settings{Host: "broker.local", Port: 9001},
//	    edgemq.WithDialer(&edgemq.WebSocketDialer{Path: "/mqtt"}))
type WebSocketDialer struct {
	// Secure selects wss instead of ws.
	Secure bool

	// Path of the WebSocket endpoint (default: "/")
	Path string
}

// URL returns the WebSocket URL for addr.
func (d *WebSocketDialer) URL(addr string) string {
	scheme := "ws"
	if d.Secure {
		scheme = "wss"
	}
	path := d.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: path}
	return u.String()
}

// DialContext opens the WebSocket and adapts it to net.Conn.
func (d *WebSocketDialer) DialContext(ctx context.Context, _, addr string) (net.Conn, error) {
	ws, _, err := websocket.Dial(ctx, d.URL(addr), &websocket.DialOptions{
		Subprotocols: []string{"mqtt"},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	// The connection outlives ctx, which only bounds the handshake.
	return websocket.NetConn(context.Background(), ws, websocket.MessageBinary), nil
}
