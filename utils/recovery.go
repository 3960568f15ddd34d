package utils

import (
	"fmt"
	"runtime/debug"
)

// RecoverFromPanic recovers from panics and logs them
func RecoverFromPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered in %s: %v\nStack trace:\n%s", context, r, string(debug.Stack()))
	}
}

// CatchPanic runs fn and converts a panic into an error
func CatchPanic(logger *Logger, context string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in %s: %v\nStack trace:\n%s", context, r, string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", context, r)
		}
	}()
	return fn()
}

// SafeGo runs a goroutine with panic recovery
func SafeGo(logger *Logger, context string, fn func()) {
	go func() {
		defer RecoverFromPanic(logger, context)
		fn()
	}()
}
