// CRC: crc-MessageQueue.md
package protocol

import (
	"sync"
	"time"
)

// Queue accumulates messages for a consumer that polls. A queued frame is
// replaced by a newer one instead of piling up behind a slow consumer.
type Queue struct {
	mu      sync.Mutex
	queue   []*Message
	frame   int // index of the queued frame, or -1
	waiters []chan struct{}
	closed  bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{frame: -1}
}

// Emit adds a message and wakes any waiting Poll.
func (q *Queue) Emit(msg *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if msg.Type == MsgFrame && q.frame >= 0 {
		q.queue[q.frame] = msg
	} else {
		if msg.Type == MsgFrame {
			q.frame = len(q.queue)
		} else if msg.Type == MsgClear {
			q.frame = -1
		}
		q.queue = append(q.queue, msg)
	}
	for _, ch := range q.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Drain returns all pending messages and clears the queue.
func (q *Queue) Drain() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil
	}
	messages := q.queue
	q.queue = nil
	q.frame = -1
	return messages
}

// Poll returns pending messages, waiting up to wait for the first one.
func (q *Queue) Poll(wait time.Duration) []*Message {
	messages := q.Drain()
	if len(messages) > 0 || wait == 0 {
		return messages
	}

	ch := make(chan struct{}, 1)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	timer := time.NewTimer(wait)
	select {
	case <-ch:
	case <-timer.C:
	}
	timer.Stop()

	q.mu.Lock()
	for i, w := range q.waiters {
		if w == ch {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	return q.Drain()
}

// Close wakes every waiter and drops later messages.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, ch := range q.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
