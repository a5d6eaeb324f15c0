package edgemq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// NotifierConfig tunes the rate limiter and circuit breaker in front of
// Notify.
type NotifierConfig struct {
	// Consecutive failures that open the circuit (default: 3)
	FailureThreshold uint32

	// How long the circuit stays open before one trial call (default: 60s)
	ResetTimeout time.Duration

	// QoS of notifications (default: 0)
	QoS QoS

	// Notifications per second; 0 means unlimited
	Rate float64

	// Notifications allowed at once above Rate (default: 1)
	Burst int
}

// Notifier lets other subsystems emit telemetry through the client.
//
// Notifications are published to "<client id>/<topic>" and only while the
// client is established; otherwise Notify fails. After FailureThreshold
// consecutive failures Notify returns ErrNotifierSuppressed without trying
// until ResetTimeout has passed, so a caller looping on errors does not
// flood its own log. With a Rate set, notifications beyond it fail with
// ErrNotifierRateLimited and do not count as failures.
type Notifier struct {
	client  *Client
	qos     QoS
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewNotifier creates a Notifier that publishes through c.
func NewNotifier(c *Client, cfg NotifierConfig) *Notifier {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(cfg.Burst, 1))
	}

	logger := c.opts.Logger
	return &Notifier{
		client:  c,
		qos:     cfg.QoS,
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notifier",
			MaxRequests: 1,
			Interval:    0,
			Timeout:     cfg.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("notifier circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())
			},
		}),
	}
}

// Topic returns the full topic a notification on topic is published to.
func (n *Notifier) Topic(topic string) string {
	return n.client.ClientID() + "/" + topic
}

// Notify publishes payload under the client's topic prefix.
func (n *Notifier) Notify(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.limiter != nil && !n.limiter.Allow() {
		return ErrNotifierRateLimited
	}

	_, err := n.breaker.Execute(func() (interface{}, error) {
		if !n.client.IsConnected() {
			return nil, ErrNotConnected
		}
		return nil, n.client.Publish(n.Topic(topic), payload, n.qos, false)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrNotifierSuppressed
	}
	if err != nil {
		return fmt.Errorf("notify %s: %w", topic, err)
	}
	return nil
}
