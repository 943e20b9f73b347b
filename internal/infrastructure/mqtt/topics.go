package mqtt

import (
	"fmt"
	"strings"
)

const (
	// maxTopicLength is the MQTT limit on an encoded topic string.
	maxTopicLength = 65535

	levelSeparator = "/"
	singleLevel    = "+"
	multiLevel     = "#"
)

// ValidateFilter checks a subscription filter against the MQTT wildcard
// rules: "+" must occupy a whole level and "#" must occupy the last level.
func ValidateFilter(filter string) error {
	if err := checkTopicString(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, levelSeparator)
	for i, level := range levels {
		if strings.Contains(level, multiLevel) {
			if level != multiLevel {
				return fmt.Errorf("%w: %q: '#' must occupy a whole level", ErrInvalidFilter, filter)
			}
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q: '#' must be the last level", ErrInvalidFilter, filter)
			}
		}
		if strings.Contains(level, singleLevel) && level != singleLevel {
			return fmt.Errorf("%w: %q: '+' must occupy a whole level", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// ValidateTopic checks a topic name used for publishing. Topic names may
// not contain wildcards.
func ValidateTopic(topic string) error {
	if err := checkTopicString(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, singleLevel+multiLevel) {
		return fmt.Errorf("%w: %q: wildcards are not allowed in topic names", ErrInvalidTopic, topic)
	}
	return nil
}

func checkTopicString(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if len(s) > maxTopicLength {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalidTopic, len(s), maxTopicLength)
	}
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: contains NUL", ErrInvalidTopic)
	}
	return nil
}

// MatchFilter reports whether topic matches filter.
//
// "sport/#" matches "sport" and everything below it. Topics starting with
// "$" are not matched by a leading wildcard.
func MatchFilter(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, singleLevel) || strings.HasPrefix(filter, multiLevel)) {
		return false
	}

	f := strings.Split(filter, levelSeparator)
	t := strings.Split(topic, levelSeparator)

	for i, level := range f {
		if level == multiLevel {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != singleLevel && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
