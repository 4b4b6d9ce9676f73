// Package affinity pins benchmark goroutines to CPUs.
package affinity

import (
	"runtime"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned where thread affinity cannot be set.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

// Pin locks the calling goroutine to its OS thread and binds that thread to
// cpu. A negative cpu leaves scheduling alone. Every successful Pin must be
// paired with Unpin from the same goroutine.
func Pin(cpu int) error {
	if cpu < 0 {
		return nil
	}
	runtime.LockOSThread()
	if err := setAffinity(cpu); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

// Unpin releases the OS thread locked by Pin. The thread keeps its CPU mask,
// so the runtime is free to retire it.
func Unpin(cpu int) {
	if cpu < 0 {
		return
	}
	runtime.UnlockOSThread()
}

// PinAt returns pins[i], or -1 when i is out of range.
func PinAt(pins []int, i int) int {
	if i < 0 || i >= len(pins) {
		return -1
	}
	return pins[i]
}
