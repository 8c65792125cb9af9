package topic

import "errors"

// Topic validation errors.
var (
	// ErrEmptyTopic indicates the topic name or filter is empty.
	ErrEmptyTopic = errors.New("topic must not be empty")

	// ErrTopicTooLong indicates the topic exceeds 65535 bytes.
	ErrTopicTooLong = errors.New("topic exceeds maximum length")

	// ErrNullCharacter indicates the topic contains a null character.
	ErrNullCharacter = errors.New("topic must not contain null character")

	// ErrWildcardInName indicates wildcards in a topic name.
	ErrWildcardInName = errors.New("topic name must not contain wildcards")

	// ErrInvalidMultiWildcard indicates the # wildcard is not alone in the last level.
	ErrInvalidMultiWildcard = errors.New("multi-level wildcard must occupy entire level and be last")

	// ErrInvalidSingleWildcard indicates the + wildcard does not occupy a whole level.
	ErrInvalidSingleWildcard = errors.New("single-level wildcard must occupy entire level")
)
