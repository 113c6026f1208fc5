package sandbox

import "errors"

var (
	// ErrInterpreterExited is returned when an interpreter process dies or
	// breaks the harness protocol.
	ErrInterpreterExited = errors.New("interpreter exited unexpectedly")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("interpreter pool closed")

	// ErrImageNotAllowed is returned when the configured image is not on the
	// policy allowlist.
	ErrImageNotAllowed = errors.New("image not in allowlist")
)

// Fault is an uncaught error raised by the evaluated snippet.
type Fault struct {
	Message string
}

func (f *Fault) Error() string {
	return f.Message
}
