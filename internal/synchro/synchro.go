// Package synchro implements the blocking primitives shared between kernel
// threads: a mutex and a counting semaphore, both with FIFO wait queues.
//
// All state is mutated with the scheduling tick masked. Woken threads are
// marked ready and run on a later scheduling decision, except for
// [Semaphore.SignalAndHandOff].
package synchro

import "github.com/desertwitch/wavos/internal/kernel"

// kernelProvider is the part of [kernel.Scheduler] the primitives need.
type kernelProvider interface {
	DisableTick() bool
	RestoreTick(prev bool)
	CurrentID() int
	Yield()
	Ready(id int)
	HandOff(id int)
}

const noOwner = -1

// Mutex is a non-counting mutex for kernel threads.
//
// Locking a mutex the caller already owns is a no-op and is not counted:
// a single [Mutex.Unlock] releases it regardless of how often it was locked.
type Mutex struct {
	kernel kernelProvider
	owner  int
	queue  waitQueue
}

// NewMutex returns a pointer to a new, unowned [Mutex].
func NewMutex(k kernelProvider) *Mutex {
	return &Mutex{
		kernel: k,
		owner:  noOwner,
	}
}

// Lock acquires the mutex, blocking the calling thread until ownership is
// transferred to it.
func (m *Mutex) Lock() error {
	prev := m.kernel.DisableTick()
	defer m.kernel.RestoreTick(prev)

	id := m.kernel.CurrentID()

	switch m.owner {
	case noOwner:
		m.owner = id

		return nil
	case id:
		return nil
	}

	if id == kernel.IdleThread {
		return ErrIdleBlocked
	}

	if err := m.queue.push(id); err != nil {
		return err
	}

	// Ownership is handed over by Unlock before we are made ready.
	m.kernel.Yield()

	return nil
}

// Unlock releases the mutex. If threads are waiting, ownership passes to
// the longest waiting one, which runs on a later scheduling decision.
func (m *Mutex) Unlock() error {
	prev := m.kernel.DisableTick()
	defer m.kernel.RestoreTick(prev)

	if id := m.kernel.CurrentID(); m.owner != id {
		return ErrNotOwner
	}

	next, ok := m.queue.pop()
	if !ok {
		m.owner = noOwner

		return nil
	}

	m.owner = next
	m.kernel.Ready(next)

	return nil
}

// Owner returns the owning thread, if any. It must only be called from a
// kernel thread.
func (m *Mutex) Owner() (int, bool) {
	prev := m.kernel.DisableTick()
	defer m.kernel.RestoreTick(prev)

	return m.owner, m.owner != noOwner
}

// Waiting returns the number of blocked threads. It must only be called
// from a kernel thread.
func (m *Mutex) Waiting() int {
	prev := m.kernel.DisableTick()
	defer m.kernel.RestoreTick(prev)

	return m.queue.len()
}

// Semaphore is a counting semaphore for kernel threads. A negative value
// is the number of blocked threads.
type Semaphore struct {
	kernel kernelProvider
	value  int
	queue  waitQueue
}

// NewSemaphore returns a pointer to a new [Semaphore] with the given value.
func NewSemaphore(k kernelProvider, value int) *Semaphore {
	return &Semaphore{
		kernel: k,
		value:  value,
	}
}

// Wait decrements the semaphore and blocks the calling thread if the value
// became negative.
func (s *Semaphore) Wait() error {
	prev := s.kernel.DisableTick()
	defer s.kernel.RestoreTick(prev)

	if s.value > 0 {
		s.value--

		return nil
	}

	id := s.kernel.CurrentID()
	if id == kernel.IdleThread {
		return ErrIdleBlocked
	}

	if err := s.queue.push(id); err != nil {
		return err
	}
	s.value--

	s.kernel.Yield()

	return nil
}

// Signal increments the semaphore and marks the longest waiting thread as
// ready, if any.
func (s *Semaphore) Signal() {
	prev := s.kernel.DisableTick()
	defer s.kernel.RestoreTick(prev)

	if next, ok := s.release(); ok {
		s.kernel.Ready(next)
	}
}

// SignalAndHandOff is [Semaphore.Signal], but switches into the woken
// thread immediately instead of waiting for the next scheduling decision.
func (s *Semaphore) SignalAndHandOff() {
	prev := s.kernel.DisableTick()
	defer s.kernel.RestoreTick(prev)

	if next, ok := s.release(); ok {
		s.kernel.HandOff(next)
	}
}

func (s *Semaphore) release() (int, bool) {
	s.value++
	if s.value > 0 {
		return 0, false
	}

	return s.queue.pop()
}

// Value returns the current value. It must only be called from a kernel
// thread.
func (s *Semaphore) Value() int {
	prev := s.kernel.DisableTick()
	defer s.kernel.RestoreTick(prev)

	return s.value
}

// Waiting returns the number of blocked threads. It must only be called
// from a kernel thread.
func (s *Semaphore) Waiting() int {
	prev := s.kernel.DisableTick()
	defer s.kernel.RestoreTick(prev)

	return s.queue.len()
}
