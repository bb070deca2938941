package synchro

import "github.com/desertwitch/wavos/internal/kernel"

// waitQueue is a bounded FIFO of blocked thread ids, sized to the thread
// capacity of the kernel.
type waitQueue struct {
	ids   [kernel.MaxThreads]int
	head  int
	count int
}

func (q *waitQueue) push(id int) error {
	if q.count == len(q.ids) {
		return ErrQueueFull
	}

	q.ids[(q.head+q.count)%len(q.ids)] = id
	q.count++

	return nil
}

func (q *waitQueue) pop() (int, bool) {
	if q.count == 0 {
		return 0, false
	}

	id := q.ids[q.head]
	q.head = (q.head + 1) % len(q.ids)
	q.count--

	return id, true
}

func (q *waitQueue) len() int {
	return q.count
}
