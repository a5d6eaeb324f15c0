package edgemq

import (
	"errors"
	"fmt"

	"github.com/gonzalop/edgemq/internal/packets"
)

// Standard errors returned by the client
var (
	// ErrConnectionRefused is returned when the server rejects the connection.
	// You can unwrap this error to find the specific reason if available.
	ErrConnectionRefused = errors.New("connection refused")

	// Specific connection refusal reasons (v3.1.1)
	ErrUnacceptableProtocolVersion = errors.New("unacceptable protocol version")
	ErrIdentifierRejected          = errors.New("identifier rejected")
	ErrServerUnavailable           = errors.New("server unavailable")
	ErrBadUsernameOrPassword       = errors.New("bad username or password")
	ErrNotAuthorized               = errors.New("not authorized")

	// ErrInvalidQoS is returned for a QoS outside 0..2.
	ErrInvalidQoS = errors.New("invalid QoS")

	// ErrInvalidTopic is returned when a topic name or filter breaks the
	// MQTT topic rules.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNotConnected is returned when a write is attempted without an
	// open connection.
	ErrNotConnected = errors.New("not connected")

	// ErrProtocolViolation is returned when the server sends a packet that
	// is not legal in the current state.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrAlreadyRunning is returned by Run when the client is already running.
	ErrAlreadyRunning = errors.New("client already running")

	// ErrNotifierSuppressed is returned by Notifier.Notify while repeated
	// failures keep its circuit open.
	ErrNotifierSuppressed = errors.New("notifier suppressed after repeated failures")

	// ErrNotifierRateLimited is returned by Notifier.Notify when the
	// configured notification rate is exceeded.
	ErrNotifierRateLimited = errors.New("notifier rate limited")
)

// connackError maps a non-zero CONNACK return code to an error wrapping
// ErrConnectionRefused and the specific reason.
func connackError(code uint8) error {
	var reason error
	switch code {
	case packets.ConnRefusedUnacceptableProtocol:
		reason = ErrUnacceptableProtocolVersion
	case packets.ConnRefusedIdentifierRejected:
		reason = ErrIdentifierRejected
	case packets.ConnRefusedServerUnavailable:
		reason = ErrServerUnavailable
	case packets.ConnRefusedBadUsernameOrPassword:
		reason = ErrBadUsernameOrPassword
	case packets.ConnRefusedNotAuthorized:
		reason = ErrNotAuthorized
	default:
		return fmt.Errorf("%w: return code %d", ErrConnectionRefused, code)
	}
	return fmt.Errorf("%w: %w", ErrConnectionRefused, reason)
}
