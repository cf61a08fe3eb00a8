package player

import "errors"

// ErrEndOfQueue signals that no further playable track exists under the
// current repeat policy. It is expected control flow, not a failure:
// callers stop playback and optionally notify.
var ErrEndOfQueue = errors.New("end of queue")

// ErrNotResolved is returned when resolved-only track metadata is accessed
// before a successful resolution.
var ErrNotResolved = errors.New("track not resolved")

// QueueError reports an invalid operation argument (out-of-range offsets
// and the like). Its message is safe to show to users as-is.
type QueueError struct {
	msg string
}

func (e *QueueError) Error() string {
	return e.msg
}

func newQueueError(msg string) *QueueError {
	return &QueueError{msg: msg}
}
