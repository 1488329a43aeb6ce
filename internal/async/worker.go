package async

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWorkerClosed is the failure for work submitted after, or pending at, Close.
var ErrWorkerClosed = errors.New("worker closed")

type task struct {
	run    func()
	cancel func()
}

// Worker owns one goroutine and runs submitted work on it in order.
// Host modules that touch thread-affine OS resources route every call through one.
type Worker struct {
	work     chan task
	closed   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	mu       sync.RWMutex // held shared by senders, exclusively by Close
	shutdown bool
}

// NewWorker starts the worker goroutine.
func NewWorker() *Worker {
	w := &Worker{
		work:   make(chan task, 64),
		closed: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closed:
			w.drain()
			return
		case t := <-w.work:
			t.run()
		}
	}
}

// drain fails everything still queued so no waiter hangs.
func (w *Worker) drain() {
	for {
		select {
		case t := <-w.work:
			if t.cancel != nil {
				t.cancel()
			}
		default:
			return
		}
	}
}

// Submit queues fn on a worker and returns its eventual result.
func Submit[T any](w *Worker, fn func() (T, error)) *AsyncResult[T] {
	a, complete := NewPending[T]()
	var zero T
	t := task{
		run: func() {
			defer func() {
				if r := recover(); r != nil {
					complete(zero, fmt.Errorf("worker task panicked: %v", r))
				}
			}()
			complete(fn())
		},
		cancel: func() { complete(zero, ErrWorkerClosed) },
	}
	if !w.send(t) {
		t.cancel()
	}
	return a
}

// Post queues fn without a result.
func (w *Worker) Post(fn func()) {
	w.send(task{run: fn})
}

// send queues t unless Close has started. Every successful send completes
// before closed is closed, so drain sees it.
func (w *Worker) send(t task) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.shutdown {
		return false
	}
	w.work <- t
	return true
}

// Close stops the worker after the task in progress and fails queued tasks.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.shutdown = true
		close(w.closed)
		w.mu.Unlock()
	})
	w.wg.Wait()
}
