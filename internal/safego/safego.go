// Package safego launches background goroutines that cannot take the process
// down. Fire-and-forget work such as audit shipping runs through Go so a
// panic surfaces as an error record with its stack trace instead of crashing
// the server mid-request.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn on a new goroutine. A panic inside fn is recovered and logged
// with the panicking goroutine's stack; the goroutine ends but the process
// keeps serving.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background goroutine panicked",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
