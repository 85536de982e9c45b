package validate

import (
	"fmt"
	"strings"
)

const maxTopicLength = 65535

// Topic checks a concrete publish topic: non-empty, no wildcards, no NUL.
func Topic(topic string) error {
	if err := topicBasics(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains wildcards", ErrInvalidTopic, topic)
	}
	return nil
}

// TopicFilter checks a subscription filter. "+" must occupy a whole level
// and "#" must be the whole final level.
func TopicFilter(filter string) error {
	if err := topicBasics(filter); err != nil {
		return err
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q misplaces '#'", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q misplaces '+'", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func topicBasics(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic too long", ErrInvalidTopic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}
