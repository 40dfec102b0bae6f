package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack and the name of
// the task that blew up. Meant for defer statements guarding background
// work such as the token sweeper or a route file watcher, where one
// failed run must not take the process down. The panic is swallowed.
func RecoverPanic(logger *Logger, task string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("task", task).
			Error("panic recovered")
	}
}

// RecoverPanicWithCallback is RecoverPanic plus a cleanup hook, run
// after logging. Use it when the dying goroutine holds something a
// peer waits on, typically a channel to close or a flag to set.
func RecoverPanicWithCallback(logger *Logger, task string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("task", task).
			Error("panic recovered")
		if callback != nil {
			callback()
		}
	}
}

// MustRecover turns a recovered value into an error, nil when there was
// no panic. Assign the result to a named error return from a deferred
// closure. The stack is not kept; log with RecoverPanic when it
// matters.
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
