package edgemq

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MatchTopic reports whether topic matches filter. A '+' level matches any
// single level and a trailing '#' matches the parent level and everything
// below it.
//
// Filters starting with a wildcard never match topics starting with '$'
// (MQTT-4.7.2-1), so "#" does not receive "$SYS" traffic.
func MatchTopic(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	for {
		fLevel, fRest, fMore := strings.Cut(filter, "/")
		if fLevel == "#" {
			return true
		}

		tLevel, tRest, tMore := strings.Cut(topic, "/")
		if fLevel != "+" && fLevel != tLevel {
			return false
		}

		switch {
		case !fMore:
			return !tMore
		case !tMore:
			// "a/#" matches "a"
			return fRest == "#"
		}
		filter, topic = fRest, tRest
	}
}

// maxTopicLength is the largest topic a 2-byte length prefix can carry.
const maxTopicLength = 65535

// validatePublishTopic validates a topic for publishing.
// Publish topics must not contain wildcards and must follow MQTT rules.
func validatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}

	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic length %d exceeds maximum %d", ErrInvalidTopic, len(topic), maxTopicLength)
	}

	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards are not allowed in PUBLISH topic %q", ErrInvalidTopic, topic)
	}

	return validateTopicText(topic)
}

// validateSubscribeTopic validates a topic filter for subscribing.
// Subscribe topics may contain wildcards but must follow MQTT rules.
func validateSubscribeTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic filter cannot be empty", ErrInvalidTopic)
	}

	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic filter length %d exceeds maximum %d", ErrInvalidTopic, len(topic), maxTopicLength)
	}

	if err := validateTopicText(topic); err != nil {
		return err
	}

	// Validate wildcard usage
	parts := strings.Split(topic, "/")
	for i, part := range parts {
		// Single-level wildcard must be alone in the level
		if strings.Contains(part, "+") && part != "+" {
			return fmt.Errorf("%w: single-level wildcard '+' must occupy entire topic level", ErrInvalidTopic)
		}

		// Multi-level wildcard must be last and alone
		if strings.Contains(part, "#") {
			if part != "#" {
				return fmt.Errorf("%w: multi-level wildcard '#' must occupy entire topic level", ErrInvalidTopic)
			}
			if i != len(parts)-1 {
				return fmt.Errorf("%w: multi-level wildcard '#' must be the last character", ErrInvalidTopic)
			}
		}
	}

	return nil
}

func validateTopicText(topic string) error {
	if strings.Contains(topic, "\x00") {
		return fmt.Errorf("%w: topic contains null byte which is not allowed", ErrInvalidTopic)
	}
	if !utf8.ValidString(topic) {
		return fmt.Errorf("%w: topic is not valid UTF-8", ErrInvalidTopic)
	}
	return nil
}
