package session

import "errors"

var (
	// ErrSessionNotFound is returned when a session id does not exist or
	// belongs to another user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoMatch is returned by UpdateMessageFeedback when no assistant
	// message with the given content exists in the session.
	ErrNoMatch = errors.New("no matching message")
)
