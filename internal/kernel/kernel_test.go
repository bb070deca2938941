package kernel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the order in which threads ran.
type recorder struct {
	sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.Lock()
	defer r.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) get() []string {
	r.Lock()
	defer r.Unlock()

	return append([]string(nil), r.events...)
}

// startManual starts the scheduler on a [ManualClock], adopting the test
// goroutine as the idle thread.
func startManual(t *testing.T, s *Scheduler) *ManualClock {
	t.Helper()

	clock := &ManualClock{}
	require.NoError(t, s.Start(t.Context(), clock))
	t.Cleanup(s.Shutdown)

	return clock
}

// step raises one tick and services it from the idle thread, returning once
// the idle thread runs again.
func step(clock *ManualClock, s *Scheduler) {
	clock.Tick(1)
	s.Poll()
}

// TestCreate_Success tests the thread table and stack accounting of Create.
func TestCreate_Success(t *testing.T) {
	t.Parallel()

	s := NewScheduler()

	for i := 1; i < MaxThreads; i++ {
		id, err := s.Create(func(any) {}, nil, 100)
		require.NoError(t, err)
		assert.Equal(t, i, id)

		tcb, ok := s.Thread(id)
		require.True(t, ok)
		assert.Equal(t, StateReady, tcb.State)
		assert.Equal(t, 100+contextFrameSize+interruptFrameSize+stackSlack, tcb.StackSize())
		assert.Len(t, tcb.Workspace(), 100)
	}

	assert.Equal(t, MaxThreads, s.Snapshot().NumThreads)
}

// TestCreate_Fail tests the rejected thread creations.
func TestCreate_Fail(t *testing.T) {
	t.Parallel()

	t.Run("nil entry", func(t *testing.T) {
		t.Parallel()

		_, err := NewScheduler().Create(nil, nil, 10)
		require.ErrorIs(t, err, ErrNilEntry)
	})

	t.Run("invalid stack size", func(t *testing.T) {
		t.Parallel()

		_, err := NewScheduler().Create(func(any) {}, nil, 0)
		require.ErrorIs(t, err, ErrInvalidStackSize)
	})

	t.Run("too many threads", func(t *testing.T) {
		t.Parallel()

		s := NewScheduler()
		for range MaxThreads - 1 {
			_, err := s.Create(func(any) {}, nil, 10)
			require.NoError(t, err)
		}

		_, err := s.Create(func(any) {}, nil, 10)
		require.ErrorIs(t, err, ErrTooManyThreads)
	})

	t.Run("stack exhausted", func(t *testing.T) {
		t.Parallel()

		s := NewScheduler()
		_, err := s.Create(func(any) {}, nil, 1000)
		require.NoError(t, err)

		_, err = s.Create(func(any) {}, nil, 1000)
		require.ErrorIs(t, err, ErrStackExhausted)
		assert.Equal(t, 2, s.Snapshot().NumThreads)
	})

	t.Run("after start", func(t *testing.T) {
		t.Parallel()

		s := NewScheduler()
		startManual(t, s)

		_, err := s.Create(func(any) {}, nil, 10)
		require.ErrorIs(t, err, ErrAlreadyStarted)
		require.ErrorIs(t, s.Start(t.Context(), &ManualClock{}), ErrAlreadyStarted)
	})

	t.Run("no tick source", func(t *testing.T) {
		t.Parallel()

		require.ErrorIs(t, NewScheduler().Start(t.Context(), nil), ErrNoTickSource)
	})
}

// TestScheduler_SleepRoundRobin tests that sleeping threads are woken by
// ticks and selected in ascending id order.
func TestScheduler_SleepRoundRobin(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}

	worker := func(name string) EntryFunc {
		return func(any) {
			for {
				rec.add(name)
				s.Sleep(2)
			}
		}
	}

	_, err := s.Create(worker("A"), nil, 64)
	require.NoError(t, err)
	_, err = s.Create(worker("B"), nil, 64)
	require.NoError(t, err)

	clock := startManual(t, s)
	assert.Equal(t, IdleThread, s.CurrentID())

	step(clock, s)
	assert.Equal(t, []string{"A", "B"}, rec.get())

	snap := s.Snapshot()
	assert.Equal(t, IdleThread, snap.Current)
	assert.Equal(t, StateRunning, snap.Threads[0].State)
	assert.Equal(t, StateSleeping, snap.Threads[1].State)
	assert.Equal(t, uint16(2), snap.Threads[1].Sleep)
	assert.Equal(t, StateSleeping, snap.Threads[2].State)

	step(clock, s)
	assert.Equal(t, []string{"A", "B"}, rec.get(), "no thread may wake before its sleep is over")

	step(clock, s)
	assert.Equal(t, []string{"A", "B", "A", "B"}, rec.get())

	snap = s.Snapshot()
	assert.Equal(t, uint32(3), snap.Interrupts)
	assert.Equal(t, uint32(2), snap.Threads[1].SchedCount)
	assert.Equal(t, uint32(0), snap.Threads[2].SchedCount, "sleep hand-over is not counted")
}

// TestScheduler_SleepCatchUp tests that coalesced ticks are all accounted.
func TestScheduler_SleepCatchUp(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}

	_, err := s.Create(func(any) {
		for {
			rec.add("A")
			s.Sleep(5)
		}
	}, nil, 64)
	require.NoError(t, err)

	clock := startManual(t, s)

	step(clock, s)
	assert.Equal(t, []string{"A"}, rec.get())

	clock.Tick(5)
	s.Poll()
	assert.Equal(t, []string{"A", "A"}, rec.get())
	assert.Equal(t, uint32(6), s.Snapshot().Interrupts)
}

// TestScheduler_YieldReady tests that a yielded thread only runs again once
// it is made ready by another thread.
func TestScheduler_YieldReady(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}

	_, err := s.Create(func(any) {
		rec.add("A1")
		s.Yield()
		rec.add("A2")
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	_, err = s.Create(func(any) {
		rec.add("B")
		s.Ready(1)
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	clock := startManual(t, s)
	step(clock, s)

	assert.Equal(t, []string{"A1", "B", "A2"}, rec.get())

	snap := s.Snapshot()
	assert.Equal(t, uint32(1), snap.Threads[2].SchedCount, "yield counts the promotion")
}

// TestScheduler_HandOff tests the immediate switch into another thread.
func TestScheduler_HandOff(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}

	_, err := s.Create(func(any) {
		rec.add("A1")
		s.Yield()
		rec.add("A2")
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	_, err = s.Create(func(any) {
		rec.add("B1")
		s.HandOff(1)
		rec.add("B2")
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	clock := startManual(t, s)
	step(clock, s)

	assert.Equal(t, []string{"A1", "B1", "A2", "B2"}, rec.get())
}

// TestScheduler_Preemption tests that a tick takes the CPU away from a busy
// thread once a lower thread becomes ready.
func TestScheduler_Preemption(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}
	clock := &ManualClock{}

	_, err := s.Create(func(any) {
		rec.add("A")
		s.Sleep(2)
		rec.add("A")
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	_, err = s.Create(func(any) {
		for range 3 {
			rec.add("B")
			clock.Tick(1)
			s.Poll()
		}
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context(), clock))
	t.Cleanup(s.Shutdown)

	step(clock, s)

	assert.Equal(t, []string{"A", "B", "B", "A", "B"}, rec.get())
}

// TestScheduler_MaskedTick tests that a masked tick is deferred until the
// tick is restored.
func TestScheduler_MaskedTick(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}
	clock := &ManualClock{}

	_, err := s.Create(func(any) {
		rec.add("A")
		s.Sleep(1)
		rec.add("A")
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	_, err = s.Create(func(any) {
		prev := s.DisableTick()
		rec.add("B1")
		clock.Tick(2)
		s.Poll()
		rec.add("B2")
		s.RestoreTick(prev)
		rec.add("B3")
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context(), clock))
	t.Cleanup(s.Shutdown)

	step(clock, s)

	assert.Equal(t, []string{"A", "B1", "B2", "A", "B3"}, rec.get())
}

// TestScheduler_IdleSleep tests that a sleeping idle thread is resumed
// through the fallback once no other thread is ready, without a stale sleep
// counter.
func TestScheduler_IdleSleep(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}

	_, err := s.Create(func(any) {
		rec.add("A")
		s.Sleep(1000)
	}, nil, 64)
	require.NoError(t, err)

	startManual(t, s)

	s.Sleep(5)

	assert.Equal(t, []string{"A"}, rec.get())
	assert.Equal(t, IdleThread, s.CurrentID())

	idle, ok := s.Thread(IdleThread)
	require.True(t, ok)
	assert.Equal(t, StateRunning, idle.State)
	assert.Zero(t, idle.Sleep)
}

// TestScheduler_EntryReturns tests that a returning thread is parked for
// good.
func TestScheduler_EntryReturns(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	rec := &recorder{}

	_, err := s.Create(func(any) {
		rec.add("A")
	}, nil, 64)
	require.NoError(t, err)

	clock := startManual(t, s)
	step(clock, s)
	step(clock, s)

	assert.Equal(t, []string{"A"}, rec.get())

	tcb, ok := s.Thread(1)
	require.True(t, ok)
	assert.Equal(t, StateWaiting, tcb.State)
}

// TestScheduler_Uptime tests the uptime counter and the interrupt rate.
func TestScheduler_Uptime(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	clock := startManual(t, s)
	assert.Zero(t, s.InterruptsPerSecond())

	for range 10 {
		step(clock, s)
	}
	clock.Second()
	clock.Second()

	snap := s.Snapshot()
	assert.Equal(t, uint32(2), snap.Uptime)
	assert.Equal(t, uint32(10), snap.Interrupts)
	assert.Equal(t, uint32(5), snap.InterruptsPerSecond)
	assert.Equal(t, uint32(2), s.Uptime())
	assert.Equal(t, uint32(5), s.InterruptsPerSecond())
}

// TestScheduler_WallClock is an integration test running threads on the
// wall clock until the context ends.
func TestScheduler_WallClock(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64

	s := NewScheduler()
	_, err := s.Create(func(any) {
		for {
			runs.Add(1)
			s.Sleep(1)
		}
	}, nil, 64)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Start(ctx, NewWallClock(time.Millisecond, 10*time.Millisecond)))
	_ = s.Idle(ctx)

	assert.Positive(t, runs.Load())
	assert.Positive(t, s.Snapshot().Interrupts)
}

// TestScheduler_ShutdownWait tests that all thread goroutines terminate
// after a shutdown, including threads that never ran.
func TestScheduler_ShutdownWait(t *testing.T) {
	t.Parallel()

	s := NewScheduler()

	_, err := s.Create(func(any) {
		for {
			s.Sleep(1)
		}
	}, nil, 64)
	require.NoError(t, err)

	_, err = s.Create(func(any) {
		s.Yield()
	}, nil, 64)
	require.NoError(t, err)

	clock := startManual(t, s)
	step(clock, s)

	s.Shutdown()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("threads did not terminate after shutdown")
	}
}
