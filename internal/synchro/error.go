package synchro

import "errors"

var (
	// ErrIdleBlocked occurs when the idle thread would have to block on a
	// primitive. The idle thread is the scheduling fallback and must always
	// stay schedulable, so the call is refused without any state change.
	ErrIdleBlocked = errors.New("idle thread cannot block")

	// ErrNotOwner occurs when a [Mutex] is unlocked by a thread other than
	// its owner.
	ErrNotOwner = errors.New("mutex not owned by caller")

	// ErrQueueFull occurs when a wait queue has no room for another thread.
	ErrQueueFull = errors.New("wait queue full")
)
