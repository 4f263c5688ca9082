package sync

import "xv6trap/kernel"

var errSleepWithoutLock = &kernel.Error{Module: "sync", Message: "sleep called without holding the queue lock"}

// WaitQueue lets tasks sleep until some condition guarded by a Spinlock
// changes. All WaitQueue methods must be called while holding the lock passed
// to NewWaitQueue.
//
// A woken task is not told why it was woken; callers must always recheck
// their condition in a loop.
type WaitQueue struct {
	lock *Spinlock

	// wake is closed by Wakeup to release every task sleeping on the
	// current generation and then replaced.
	wake chan struct{}

	sleepers int
}

// NewWaitQueue returns a WaitQueue whose sleepers are guarded by lock.
func NewWaitQueue(lock *Spinlock) *WaitQueue {
	return &WaitQueue{
		lock: lock,
		wake: make(chan struct{}),
	}
}

// Sleep atomically releases the queue lock and blocks the caller until the
// next call to Wakeup. The lock is re-acquired before Sleep returns.
func (q *WaitQueue) Sleep() {
	if !q.lock.Holding() {
		panic(errSleepWithoutLock)
	}

	ch := q.wake
	q.sleepers++
	q.lock.Release()

	<-ch

	q.lock.Acquire()
}

// Wakeup releases all tasks currently sleeping on the queue.
func (q *WaitQueue) Wakeup() {
	close(q.wake)
	q.wake = make(chan struct{})
	q.sleepers = 0
}

// Sleepers returns the number of tasks that went to sleep since the last
// Wakeup.
func (q *WaitQueue) Sleepers() int {
	return q.sleepers
}
