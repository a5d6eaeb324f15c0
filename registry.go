package edgemq

import (
	"slices"
	"sync"
)

// subscription is one registered topic with its requested QoS and handler.
type subscription struct {
	topic   string
	qos     QoS
	handler MessageHandler
}

// registry holds the subscriptions that are restored on every connection.
// Entries keep their registration order so the SUBSCRIBE sent after a
// reconnect lists topics the way the application added them.
type registry struct {
	mu      sync.Mutex
	entries []subscription
}

// put adds sub, replacing any entry with the same topic in place.
func (r *registry) put(sub subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].topic == sub.topic {
			r.entries[i] = sub
			return
		}
	}
	r.entries = append(r.entries, sub)
}

// remove deletes the entry for topic and reports whether one existed.
func (r *registry) remove(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].topic == topic {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns a copy of the entries in registration order.
func (r *registry) snapshot() []subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]subscription, len(r.entries))
	copy(out, r.entries)
	return out
}

// missing returns the entries that sent does not hold with the same QoS,
// in registration order.
func (r *registry) missing(sent []subscription) []subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []subscription
	for _, sub := range r.entries {
		if !slices.ContainsFunc(sent, func(s subscription) bool {
			return s.topic == sub.topic && s.qos == sub.qos
		}) {
			out = append(out, sub)
		}
	}
	return out
}

// handlers returns the handlers that should receive a message on topic.
// With wildcards disabled only the entry equal to topic matches.
func (r *registry) handlers(topic string, wildcards bool) []MessageHandler {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []MessageHandler
	for _, sub := range r.entries {
		if sub.handler == nil {
			continue
		}
		if sub.topic == topic || (wildcards && MatchTopic(sub.topic, topic)) {
			out = append(out, sub.handler)
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
