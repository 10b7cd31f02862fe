package queue

import "errors"

var (
	// ErrGlobalQueueFull is returned by Enqueue when the scheduler-wide pending cap is reached.
	ErrGlobalQueueFull = errors.New("task queue full")
	// ErrChatQueueFull is returned by Enqueue when the chat's pending cap is reached.
	ErrChatQueueFull = errors.New("chat task queue full")
	// ErrClosed is returned by Enqueue after Shutdown.
	ErrClosed = errors.New("task scheduler closed")

	ErrInvalidConfig = errors.New("invalid task scheduler config")
	ErrInvalidJob    = errors.New("invalid job")

	// ErrJobPanicked wraps a panic recovered from Job.Run.
	ErrJobPanicked = errors.New("job panicked")

	errPoolClosed = errors.New("worker pool closed")
)

// IsAdmissionError reports whether err is a capacity rejection from Enqueue.
// Callers usually ask the user to retry later.
func IsAdmissionError(err error) bool {
	return errors.Is(err, ErrGlobalQueueFull) || errors.Is(err, ErrChatQueueFull)
}
