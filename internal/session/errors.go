package session

import (
	"errors"
	"fmt"
)

// ErrAlreadyFinished signals that the attempt has reached its terminal state.
// It is a control signal, not a failure: callers redirect to the results view
// instead of re-entering the exam.
var ErrAlreadyFinished = errors.New("attempt already finished")

// CorruptSessionError marks stored attempt state that cannot be interpreted
// (e.g. missing startedAt). Fatal for the affected view; not repairable here.
type CorruptSessionError struct {
	Key    string
	Reason string
}

func (e *CorruptSessionError) Error() string {
	return fmt.Sprintf("corrupt attempt session %s: %s", e.Key, e.Reason)
}

// ValidationError rejects bad input before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
