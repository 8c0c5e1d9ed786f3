package lifecycle

import "errors"

var (
	// ErrPanic wraps a recovered panic reported through Recover
	ErrPanic = errors.New("lifecycle: recovered panic")
	// ErrShutdownTimeout is reported by Err when handlers outran the timeout
	ErrShutdownTimeout = errors.New("lifecycle: shutdown timed out")
	// ErrAbnormalExit is reported by Err for a non-zero code with no recorded cause
	ErrAbnormalExit = errors.New("lifecycle: abnormal exit")
)
