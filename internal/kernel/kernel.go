// Package kernel implements a small preemptive scheduler with cooperative
// extensions: a fixed set of threads, a periodic scheduling tick, timed
// sleep and the voluntary switching used by the synchronization primitives.
//
// Every thread runs on its own goroutine, but only the thread marked
// [StateRunning] is ever unparked. Ticks raised by a [TickSource] are latched
// and serviced by the running thread at its next safepoint: whenever the
// tick is re-enabled ([Scheduler.RestoreTick]) or at an explicit
// [Scheduler.Poll].
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

const (
	// MaxThreads is the thread capacity, including the idle thread.
	MaxThreads = 4

	// StackBudget is the total number of bytes available for the stack
	// regions of all created threads.
	StackBudget = 2048

	// IdleThread is the id of the idle (main) thread. It is the scheduling
	// fallback whenever no other thread is ready.
	IdleThread = 0
)

// Snapshot is a point-in-time copy of the scheduler state.
type Snapshot struct {
	Uptime              uint32
	Interrupts          uint32
	InterruptsPerSecond uint32
	NumThreads          int
	Current             int
	Threads             []ThreadInfo
}

// Scheduler is the process-wide kernel state. The zero value is not usable,
// use [NewScheduler].
type Scheduler struct {
	mu sync.Mutex

	threads    [MaxThreads]TCB
	numThreads int
	curID      int
	stackUsed  int
	masked     bool
	started    bool

	uptime  uint32
	numIntr uint32

	pending atomic.Uint32
	notify  chan struct{}

	halt     chan struct{}
	haltOnce sync.Once
	exited   sync.WaitGroup
}

// NewScheduler returns a pointer to a new [Scheduler] holding only the idle
// thread.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		numThreads: 1,
		curID:      IdleThread,
		notify:     make(chan struct{}, 1),
		halt:       make(chan struct{}),
	}

	s.threads[IdleThread] = TCB{
		ID:    IdleThread,
		State: StateReady,
		ctx:   newExecContext(s.halt, true),
	}

	return s
}

// Create reserves a thread control block and a stack region for a new
// thread running entry(arg). The thread becomes ready immediately and runs
// once selected by the scheduler, with the tick enabled.
func (s *Scheduler) Create(entry EntryFunc, arg any, stackSize int) (int, error) {
	if entry == nil {
		return -1, ErrNilEntry
	}
	if stackSize <= 0 {
		return -1, fmt.Errorf("%w: %d", ErrInvalidStackSize, stackSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return -1, ErrAlreadyStarted
	}
	if s.numThreads >= MaxThreads {
		return -1, fmt.Errorf("%w: capacity is %d", ErrTooManyThreads, MaxThreads)
	}

	total := stackSizeFor(stackSize)
	if s.stackUsed+total > StackBudget {
		return -1, fmt.Errorf("%w: need %d bytes, %d left", ErrStackExhausted, total, StackBudget-s.stackUsed)
	}

	id := s.numThreads
	s.numThreads++
	s.stackUsed += total

	tcb := &s.threads[id]
	*tcb = TCB{
		ID:      id,
		State:   StateReady,
		EntryPC: reflect.ValueOf(entry).Pointer(),
		stack:   make([]byte, total),
		ctx:     newExecContext(s.halt, false),
	}

	s.exited.Add(1)
	go s.trampoline(tcb.ctx, entry, arg)

	slog.Debug("Thread created:",
		"id", id,
		"stack", total,
	)

	return id, nil
}

// trampoline is the first code a new thread runs once resumed: it enables
// the tick, calls the entry and parks the thread for good if it returns.
func (s *Scheduler) trampoline(ctx *execContext, entry EntryFunc, arg any) {
	defer s.exited.Done()

	ctx.park()
	s.RestoreTick(false)

	entry(arg)

	s.DisableTick()
	for {
		s.mu.Lock()
		old := s.curID
		s.threads[old].State = StateWaiting
		from, to := s.rescheduleLocked(old, true)
		s.mu.Unlock()

		switchContext(from, to)
	}
}

// Start arms the tick source and adopts the calling goroutine as the idle
// thread, which is running when Start returns. The caller is expected to
// continue in [Scheduler.Idle]. When the context is done, the kernel halts.
func (s *Scheduler) Start(ctx context.Context, src TickSource) error {
	if src == nil {
		return ErrNoTickSource
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()

		return ErrAlreadyStarted
	}
	s.started = true
	s.curID = IdleThread
	s.masked = false
	s.threads[IdleThread].State = StateRunning
	s.threads[IdleThread].EntryPC = callerPC(1)
	numThreads := s.numThreads
	s.mu.Unlock()

	src.Arm(ctx, s.tick, s.second)

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.halt:
		}
	}()

	slog.Debug("Scheduler started:",
		"threads", numThreads,
	)

	return nil
}

// Idle is the idle thread's loop: it waits for ticks and services them
// until the context is done or the kernel halts. It must only be called by
// the goroutine that called [Scheduler.Start].
func (s *Scheduler) Idle(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("(kernel-idle) %w", ctx.Err())
		case <-s.halt:
			return nil
		case <-s.notify:
		}

		s.Poll()
	}
}

// Shutdown halts the kernel. Parked threads terminate, the idle thread is
// released from [Scheduler.Idle].
func (s *Scheduler) Shutdown() {
	s.haltOnce.Do(func() {
		close(s.halt)
	})
}

// Wait blocks until the goroutines of all created threads have terminated,
// which they do at their next switch after [Scheduler.Shutdown].
func (s *Scheduler) Wait() {
	s.exited.Wait()
}

// tick is the scheduling interrupt. It only latches the tick; the running
// thread services it at its next safepoint.
func (s *Scheduler) tick() {
	s.pending.Add(1)

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// second is the uptime interrupt.
func (s *Scheduler) second() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uptime++
}

// Poll is a preemption safepoint: if a tick is pending and the tick is not
// masked, the calling thread is preempted.
func (s *Scheduler) Poll() {
	if s.pending.Load() == 0 {
		return
	}

	s.mu.Lock()
	if s.masked || !s.started {
		s.mu.Unlock()

		return
	}

	s.preemptLocked(callerPC(1))
}

// DisableTick masks the scheduling tick and returns the previous mask, to
// be handed to [Scheduler.RestoreTick].
func (s *Scheduler) DisableTick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.masked
	s.masked = true

	return prev
}

// RestoreTick restores the tick mask. Unmasking services a pending tick.
func (s *Scheduler) RestoreTick(prev bool) {
	s.mu.Lock()
	s.masked = prev

	if prev || !s.started || s.pending.Load() == 0 {
		s.mu.Unlock()

		return
	}

	s.preemptLocked(callerPC(1))
}

// preemptLocked is the tick handler, run on behalf of the interrupted
// thread. It must be called with s.mu held and returns with it released,
// after the interrupted thread has been scheduled again.
func (s *Scheduler) preemptLocked(pc uintptr) {
	n := s.pending.Swap(0)
	if n == 0 {
		s.mu.Unlock()

		return
	}

	s.masked = true
	s.numIntr += n

	old := s.curID
	s.threads[old].ResumePC = pc

	for i := range s.numThreads {
		t := &s.threads[i]
		if t.State != StateSleeping {
			continue
		}

		if uint32(t.Sleep) <= n {
			t.Sleep = 0
			t.State = StateReady
		} else {
			t.Sleep -= uint16(n)
		}
	}

	s.threads[old].State = StateReady
	from, to := s.rescheduleLocked(old, true)
	s.mu.Unlock()

	switchContext(from, to)

	s.mu.Lock()
	s.masked = false
	s.mu.Unlock()
}

// nextReadyLocked returns the lowest non-idle ready thread, falling back to
// the idle thread.
func (s *Scheduler) nextReadyLocked() int {
	for id := IdleThread + 1; id < s.numThreads; id++ {
		if s.threads[id].State == StateReady {
			return id
		}
	}

	return IdleThread
}

// rescheduleLocked promotes the next ready thread to running and returns
// the contexts to switch between. A running thread has no sleep left.
func (s *Scheduler) rescheduleLocked(old int, count bool) (*execContext, *execContext) {
	next := s.nextReadyLocked()

	t := &s.threads[next]
	t.State = StateRunning
	t.Sleep = 0
	if count {
		t.SchedCount++
	}
	s.curID = next

	return s.threads[old].ctx, t.ctx
}

// Sleep suspends the calling thread for at least ticks scheduling ticks.
// Sleep(0) gives up the CPU while staying ready. The idle thread is the
// fallback of every scheduling decision, so it is resumed as soon as no
// other thread is ready, possibly before its ticks have passed.
func (s *Scheduler) Sleep(ticks uint16) {
	prev := s.DisableTick()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.RestoreTick(prev)

		return
	}

	old := s.curID
	t := &s.threads[old]
	t.ResumePC = callerPC(1)
	if ticks == 0 {
		t.State = StateReady
	} else {
		t.State = StateSleeping
		t.Sleep = ticks
	}

	from, to := s.rescheduleLocked(old, false)
	s.mu.Unlock()

	switchContext(from, to)

	s.RestoreTick(prev)
}

// Yield marks the calling thread as waiting and switches to the next ready
// thread. The caller stays off the CPU until another thread hands it to
// [Scheduler.Ready] or [Scheduler.HandOff].
func (s *Scheduler) Yield() {
	prev := s.DisableTick()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.RestoreTick(prev)

		return
	}

	old := s.curID
	s.threads[old].ResumePC = callerPC(1)
	s.threads[old].State = StateWaiting

	from, to := s.rescheduleLocked(old, true)
	s.mu.Unlock()

	switchContext(from, to)

	s.RestoreTick(prev)
}

// Ready marks a thread as ready. It competes in the next scheduling
// decision and does not run immediately.
func (s *Scheduler) Ready(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 || id >= s.numThreads || id == s.curID {
		return
	}

	s.threads[id].State = StateReady
}

// HandOff marks the calling thread as ready and switches into thread id
// immediately, without waiting for the next tick.
func (s *Scheduler) HandOff(id int) {
	prev := s.DisableTick()

	s.mu.Lock()
	old := s.curID
	if !s.started || id < 0 || id >= s.numThreads || id == old {
		s.mu.Unlock()
		s.RestoreTick(prev)

		return
	}

	s.threads[old].ResumePC = callerPC(1)
	s.threads[old].State = StateReady

	t := &s.threads[id]
	t.State = StateRunning
	t.SchedCount++
	s.curID = id

	from, to := s.threads[old].ctx, t.ctx
	s.mu.Unlock()

	switchContext(from, to)

	s.RestoreTick(prev)
}

// CurrentID returns the id of the running thread.
func (s *Scheduler) CurrentID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.curID
}

// Uptime returns the number of uptime interrupts since start.
func (s *Scheduler) Uptime() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uptime
}

// InterruptsPerSecond returns the average tick rate since start, or zero
// before the first uptime interrupt.
func (s *Scheduler) InterruptsPerSecond() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.interruptsPerSecondLocked()
}

func (s *Scheduler) interruptsPerSecondLocked() uint32 {
	if s.uptime == 0 {
		return 0
	}

	return s.numIntr / s.uptime
}

// Snapshot returns a copy of the scheduler state. It is safe to call from
// goroutines that are not kernel threads.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Uptime:     s.uptime,
		Interrupts: s.numIntr,
		NumThreads: s.numThreads,
		Current:    s.curID,
		Threads:    make([]ThreadInfo, 0, s.numThreads),
	}

	snap.InterruptsPerSecond = s.interruptsPerSecondLocked()

	for i := range s.numThreads {
		snap.Threads = append(snap.Threads, s.threads[i].info())
	}

	return snap
}

// Thread returns a copy of the thread control block for id.
func (s *Scheduler) Thread(id int) (TCB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 || id >= s.numThreads {
		return TCB{}, false
	}

	return s.threads[id], true
}
