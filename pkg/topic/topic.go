// Package topic validates MQTT topic names and topic filters
// according to MQTT 3.1.1 Section 4.7.
package topic

const (
	// Separator is the topic level separator.
	Separator = '/'

	// MultiWildcard matches any number of levels (must be last).
	MultiWildcard = '#'

	// SingleWildcard matches exactly one level.
	SingleWildcard = '+'

	// MaxLength is the longest topic a 2-byte length prefix can carry.
	MaxLength = 65535
)

// ValidateName validates a topic name as carried by PUBLISH and the CONNECT will.
// Names must be non-empty and must not contain wildcards or U+0000.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrEmptyTopic
	}
	if len(name) > MaxLength {
		return ErrTopicTooLong
	}

	for i := 0; i < len(name); i++ {
		switch name[i] {
		case MultiWildcard, SingleWildcard:
			return ErrWildcardInName
		case 0:
			return ErrNullCharacter
		}
	}
	return nil
}

// ValidateFilter validates a topic filter as carried by SUBSCRIBE and UNSUBSCRIBE.
// '#' must occupy a whole level and be the last one; '+' must occupy a whole level.
func ValidateFilter(filter string) error {
	if len(filter) == 0 {
		return ErrEmptyTopic
	}
	if len(filter) > MaxLength {
		return ErrTopicTooLong
	}

	start := 0 // first byte of the current level
	for i := 0; i < len(filter); i++ {
		c := filter[i]
		switch c {
		case 0:
			return ErrNullCharacter
		case Separator:
			start = i + 1
		case MultiWildcard:
			if i != start || i != len(filter)-1 {
				return ErrInvalidMultiWildcard
			}
		case SingleWildcard:
			if i != start || (i+1 < len(filter) && filter[i+1] != Separator) {
				return ErrInvalidSingleWildcard
			}
		}
	}
	return nil
}

// HasWildcard reports whether the filter contains a wildcard character.
func HasWildcard(filter string) bool {
	for i := 0; i < len(filter); i++ {
		if filter[i] == MultiWildcard || filter[i] == SingleWildcard {
			return true
		}
	}
	return false
}
