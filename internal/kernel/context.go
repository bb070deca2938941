package kernel

import "runtime"

// execContext is the save point / resume point of one thread. The thread's
// goroutine is parked on wake whenever the thread is not running; exactly
// one thread's goroutine is unparked at any time.
type execContext struct {
	wake chan struct{}
	halt <-chan struct{}

	// adopted contexts belong to a goroutine the kernel did not start (the
	// idle thread) and must return to their owner on halt.
	adopted bool
}

func newExecContext(halt <-chan struct{}, adopted bool) *execContext {
	return &execContext{
		wake:    make(chan struct{}, 1),
		halt:    halt,
		adopted: adopted,
	}
}

// resume lets the parked goroutine of the context continue.
func (c *execContext) resume() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// park blocks the calling goroutine until the context is resumed. On halt a
// kernel-started goroutine terminates, running its deferred calls, while an
// adopted one returns false.
func (c *execContext) park() bool {
	select {
	case <-c.wake:
		return true
	case <-c.halt:
		if !c.adopted {
			runtime.Goexit()
		}

		return false
	}
}

// switchContext resumes to and parks from. Nothing may touch scheduler
// state between the two steps.
func switchContext(from, to *execContext) bool {
	if from == to {
		return true
	}

	to.resume()

	return from.park()
}
