package edgemq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gonzalop/edgemq/internal/packets"
)

// ContextDialer is an interface for custom network dialing logic.
// It matches the signature of net.Dialer.DialContext.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Keep alive bounds applied to Settings.KeepAlive.
const (
	DefaultKeepAlive = 60 * time.Second
	MinKeepAlive     = 10 * time.Second
	maxKeepAlive     = 65535 * time.Second

	// DefaultPort is the IANA port for unencrypted MQTT.
	DefaultPort = 1883

	// DefaultConnectTimeout bounds the dial performed in OPEN.
	DefaultConnectTimeout = 30 * time.Second
)

// Settings is the broker and credential record the client connects with.
//
// It is read when the client is created; later changes to the caller's copy
// have no effect.
type Settings struct {
	// Broker host name or address
	Host string

	// Broker port (default: 1883)
	Port int

	// Credentials. An empty Username omits both from CONNECT; an empty
	// Password omits only the password.
	Username string
	Password string

	// Keep alive interval (default: 60s, minimum: 10s)
	KeepAlive time.Duration

	// Client identifier
	ClientID string

	// Last will (optional)
	Will *Will
}

// Will is the Last Will and Testament message the broker publishes when
// the connection drops without DISCONNECT.
type Will struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// Address returns host:port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// normalize applies defaults and clamps, then validates the record.
func (s Settings) normalize() (Settings, error) {
	if s.Host == "" {
		return s, fmt.Errorf("settings: host is required")
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Port < 0 || s.Port > 65535 {
		return s, fmt.Errorf("settings: port %d out of range", s.Port)
	}

	switch {
	case s.KeepAlive == 0:
		s.KeepAlive = DefaultKeepAlive
	case s.KeepAlive < MinKeepAlive:
		s.KeepAlive = MinKeepAlive
	case s.KeepAlive > maxKeepAlive:
		s.KeepAlive = maxKeepAlive
	}
	// CONNECT carries whole seconds
	s.KeepAlive = s.KeepAlive.Truncate(time.Second)

	for name, n := range map[string]int{
		"client id": len(s.ClientID),
		"username":  len(s.Username),
		"password":  len(s.Password),
	} {
		if n > packets.MaxFieldLength {
			return s, fmt.Errorf("settings: %s of %d bytes exceeds %d", name, n, packets.MaxFieldLength)
		}
	}

	if s.Will != nil {
		if err := validatePublishTopic(s.Will.Topic); err != nil {
			return s, fmt.Errorf("settings: will: %w", err)
		}
		if !s.Will.QoS.valid() {
			return s, fmt.Errorf("settings: will: %w: %d", ErrInvalidQoS, s.Will.QoS)
		}
		if len(s.Will.Payload) > packets.MaxFieldLength {
			return s, fmt.Errorf("settings: will payload of %d bytes exceeds %d", len(s.Will.Payload), packets.MaxFieldLength)
		}
	}

	return s, nil
}

// clientOptions holds configuration for the MQTT client.
type clientOptions struct {
	// Logger for client events (optional, defaults to discarding logs)
	Logger *slog.Logger

	// Custom dialer (optional)
	// If set, this is used to establish the connection instead of net.Dialer.
	Dialer ContextDialer

	// Connection timeout
	ConnectTimeout time.Duration

	// Maximum incoming packet size (0 = protocol maximum)
	MaxIncomingPacket int

	// Lifecycle hooks (optional)
	OnConnect        func(*Client)
	OnConnectionLost func(*Client, error)

	// Default publish handler (optional)
	// Called when a PUBLISH packet doesn't match any registered subscription.
	DefaultPublishHandler MessageHandler

	// Match subscriptions with MQTT wildcards instead of exact topic equality
	WildcardDispatch bool

	// Middleware
	HandlerInterceptors []HandlerInterceptor
	PublishInterceptors []PublishInterceptor
}

// Option is a functional option for configuring the client.
type Option func(*clientOptions)

// WithLogger sets the logger for client events.
//
// By default, the client discards all logs. Use this option to enable logging
// for debugging or monitoring connection state, reconnections, and protocol
// errors.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	client, _ := edgemq.New(settings, edgemq.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.Logger = logger
	}
}

// WithDialer sets a custom dialer for the transport.
//
// The dialer receives network "tcp" and the broker's host:port. Use
// WebSocketDialer to reach a broker behind a WebSocket listener.
func WithDialer(dialer ContextDialer) Option {
	return func(o *clientOptions) {
		o.Dialer = dialer
	}
}

// WithConnectTimeout sets the dial timeout used in OPEN (default: 30s).
func WithConnectTimeout(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.ConnectTimeout = duration
	}
}

// WithMaxIncomingPacket limits the remaining length of packets accepted
// from the server. Larger packets are treated as a protocol error and the
// connection is closed.
func WithMaxIncomingPacket(size int) Option {
	return func(o *clientOptions) {
		o.MaxIncomingPacket = size
	}
}

// WithOnConnect sets the handler to be called each time a connection
// reaches the established state.
//
// The handler runs in its own goroutine, so it may publish and subscribe.
func WithOnConnect(onConnect func(*Client)) Option {
	return func(o *clientOptions) {
		o.OnConnect = onConnect
	}
}

// WithOnConnectionLost sets the handler to be called when an established
// connection is lost. The error describes the cause.
func WithOnConnectionLost(onConnectionLost func(*Client, error)) Option {
	return func(o *clientOptions) {
		o.OnConnectionLost = onConnectionLost
	}
}

// WithDefaultPublishHandler sets a handler for PUBLISH packets that match
// no registered subscription.
func WithDefaultPublishHandler(handler MessageHandler) Option {
	return func(o *clientOptions) {
		o.DefaultPublishHandler = handler
	}
}

// WithWildcardDispatch enables MQTT '+' and '#' matching when routing
// inbound messages to subscriptions. By default a message is delivered only
// to the subscription whose topic string equals the message topic.
func WithWildcardDispatch(enable bool) Option {
	return func(o *clientOptions) {
		o.WildcardDispatch = enable
	}
}

// WithHandlerInterceptor adds an interceptor around every message handler.
// Interceptors run in the order they are added.
func WithHandlerInterceptor(interceptor HandlerInterceptor) Option {
	return func(o *clientOptions) {
		o.HandlerInterceptors = append(o.HandlerInterceptors, interceptor)
	}
}

// WithPublishInterceptor adds an interceptor around Client.Publish.
// Interceptors run in the order they are added.
func WithPublishInterceptor(interceptor PublishInterceptor) Option {
	return func(o *clientOptions) {
		o.PublishInterceptors = append(o.PublishInterceptors, interceptor)
	}
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ConnectTimeout: DefaultConnectTimeout,
	}
}
