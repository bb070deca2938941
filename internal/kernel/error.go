package kernel

import "errors"

var (
	// ErrAlreadyStarted occurs when a thread is created or the scheduler is
	// started after [Scheduler.Start] has already run.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrInvalidStackSize occurs when a thread is requested with a negative
	// or zero working space.
	ErrInvalidStackSize = errors.New("invalid stack size")

	// ErrNilEntry occurs when a thread is requested without an entry
	// function.
	ErrNilEntry = errors.New("nil thread entry")

	// ErrNoTickSource occurs when the scheduler is started without a
	// [TickSource].
	ErrNoTickSource = errors.New("no tick source")

	// ErrStackExhausted occurs when a new thread's stack region does not fit
	// into the remaining [StackBudget].
	ErrStackExhausted = errors.New("stack budget exhausted")

	// ErrTooManyThreads occurs when more than [MaxThreads] threads
	// (including the idle thread) are requested.
	ErrTooManyThreads = errors.New("thread capacity exhausted")
)
