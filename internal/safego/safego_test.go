package safego

import (
	"testing"
	"time"
)

func waitOrFail(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestGo_RunsInBackground(t *testing.T) {
	ran := make(chan struct{})

	Go(func() { close(ran) })

	waitOrFail(t, ran, "goroutine did not run within timeout")
}

func TestGo_SurvivesPanic(t *testing.T) {
	first := make(chan struct{})

	// The panic must be recovered inside the launched goroutine; reaching the
	// next launch at all proves the process survived it.
	Go(func() {
		defer close(first)
		panic("sealed key shipper blew up")
	})
	waitOrFail(t, first, "panicking goroutine did not finish within timeout")

	second := make(chan struct{})
	Go(func() { close(second) })
	waitOrFail(t, second, "launcher stopped working after a recovered panic")
}
