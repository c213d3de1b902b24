package storage

import "errors"

// Typed failure reasons crossing the storage boundary. Callers branch with
// errors.Is; none of these should ever escalate into a crash.
var (
	// ErrNotFound means the operation referenced a key with no record.
	ErrNotFound = errors.New("storage: record not found")

	// ErrConflict means a conditional update's precondition no longer held,
	// which implies another path already handled the transition.
	ErrConflict = errors.New("storage: conditional update conflict")

	// ErrAlreadyPending means a non-terminal captcha record already exists
	// for the key.
	ErrAlreadyPending = errors.New("storage: captcha already pending")

	// ErrAlreadyTerminal means the captcha record is verified or expired and
	// can never change again.
	ErrAlreadyTerminal = errors.New("storage: captcha already terminal")

	// ErrTooEarly means expire was invoked before the deadline.
	ErrTooEarly = errors.New("storage: deadline not reached")
)
