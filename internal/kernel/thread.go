package kernel

import (
	"runtime"
)

const (
	// contextFrameSize is the bookkeeping a context switch leaves on a
	// thread's stack (callee-saved registers, return address, padding).
	contextFrameSize = 21

	// interruptFrameSize is the bookkeeping one tick interrupt leaves on a
	// thread's stack (caller-saved registers, status, return address).
	interruptFrameSize = 18

	// stackSlack is the fixed headroom added to every thread stack.
	stackSlack = 32
)

// State is the scheduling state of a thread.
type State uint8

const (
	StateRunning State = iota
	StateReady
	StateSleeping
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateSleeping:
		return "sleeping"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// EntryFunc is the function a thread runs once it is first scheduled.
type EntryFunc func(arg any)

// TCB is a thread control block.
type TCB struct {
	ID         int
	State      State
	Sleep      uint16
	SchedCount uint32
	EntryPC    uintptr
	ResumePC   uintptr

	stack []byte
	ctx   *execContext
}

// StackSize returns the total size of the thread's stack region.
func (t *TCB) StackSize() int {
	return len(t.stack)
}

// Workspace returns the user portion of the thread's stack region, i.e.
// without the context and interrupt frame bookkeeping.
func (t *TCB) Workspace() []byte {
	n := len(t.stack) - contextFrameSize - interruptFrameSize - stackSlack
	if n <= 0 {
		return nil
	}

	return t.stack[:n]
}

// stackSizeFor returns the total stack region needed for a working space of
// userSize bytes.
func stackSizeFor(userSize int) int {
	return userSize + contextFrameSize + interruptFrameSize + stackSlack
}

// ThreadInfo is a point-in-time copy of a [TCB] for display purposes.
type ThreadInfo struct {
	ID         int
	State      State
	Sleep      uint16
	SchedCount uint32
	StackSize  int
	Entry      string
	ResumedAt  string
}

func (t *TCB) info() ThreadInfo {
	return ThreadInfo{
		ID:         t.ID,
		State:      t.State,
		Sleep:      t.Sleep,
		SchedCount: t.SchedCount,
		StackSize:  len(t.stack),
		Entry:      funcName(t.EntryPC),
		ResumedAt:  funcName(t.ResumePC),
	}
}

// callerPC returns the program counter of the code that entered the kernel,
// skipping skip frames above callerPC itself.
func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 { //nolint:mnd
		return 0
	}

	return pcs[0]
}

func funcName(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}

	return fn.Name()
}
