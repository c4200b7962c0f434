/*
 * MIT License
 *
 * Copyright (c) 2024 WebServer contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package queue implements a bounded, blocking, closeable double-ended
// queue used as the hand-off between log producers and the logger's sink
// goroutine.
package queue

import (
	"sync"
	"time"
)

// Deque is a generic bounded blocking deque with close semantics: once
// closed, all pending and future Pop calls fail instead of blocking
// forever, and any blocked Push/Pop unblocks immediately.
type Deque[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []T
	capacity int
	closed   bool
}

// New returns a Deque bounded to the given capacity. A capacity of 0 means
// unbounded (Push never blocks on fullness).
func New[T any](capacity int) *Deque[T] {
	d := &Deque[T]{capacity: capacity}
	d.notEmpty = sync.NewCond(&d.mu)
	d.notFull = sync.NewCond(&d.mu)
	return d
}

func (d *Deque[T]) isFull() bool {
	return d.capacity > 0 && len(d.items) >= d.capacity
}

// PushBack appends v to the tail, blocking while the queue is full. It
// returns false if the queue was or became closed before the push
// completed.
func (d *Deque[T]) PushBack(v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.isFull() && !d.closed {
		d.notFull.Wait()
	}
	if d.closed {
		return false
	}

	d.items = append(d.items, v)
	d.notEmpty.Signal()
	return true
}

// TryPushBack appends v without blocking, returning false if the queue is
// full or closed.
func (d *Deque[T]) TryPushBack(v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.isFull() {
		return false
	}

	d.items = append(d.items, v)
	d.notEmpty.Signal()
	return true
}

// PushFront prepends v to the head, blocking while the queue is full.
func (d *Deque[T]) PushFront(v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.isFull() && !d.closed {
		d.notFull.Wait()
	}
	if d.closed {
		return false
	}

	d.items = append([]T{v}, d.items...)
	d.notEmpty.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed, whichever
// comes first. ok is false if the queue was closed with nothing left to
// deliver. PopTimeout is the variant with a deadline.
func (d *Deque[T]) Pop() (v T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.items) == 0 && !d.closed {
		d.notEmpty.Wait()
	}

	if len(d.items) == 0 {
		return v, false
	}

	v = d.items[0]
	d.items = d.items[1:]
	d.notFull.Signal()
	return v, true
}

// PopTimeout behaves like Pop but gives up and returns ok=false once
// timeout elapses with nothing delivered. A non-positive timeout is
// equivalent to Pop.
func (d *Deque[T]) PopTimeout(timeout time.Duration) (v T, ok bool) {
	if timeout <= 0 {
		return d.Pop()
	}

	deadline := time.Now().Add(timeout)

	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.items) == 0 && !d.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return v, false
		}

		timer := time.AfterFunc(remaining, func() {
			d.mu.Lock()
			d.notEmpty.Broadcast()
			d.mu.Unlock()
		})
		d.notEmpty.Wait()
		timer.Stop()

		if time.Now().After(deadline) && len(d.items) == 0 {
			return v, false
		}
	}

	if len(d.items) == 0 {
		return v, false
	}

	v = d.items[0]
	d.items = d.items[1:]
	d.notFull.Signal()
	return v, true
}

// Front returns the head item without removing it.
func (d *Deque[T]) Front() (v T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.items) == 0 {
		return v, false
	}
	return d.items[0], true
}

// Back returns the tail item without removing it.
func (d *Deque[T]) Back() (v T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.items) == 0 {
		return v, false
	}
	return d.items[len(d.items)-1], true
}

// Close marks the queue closed, discards any pending items, and wakes
// every blocked producer and consumer. It is idempotent.
func (d *Deque[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.closed = true
	d.items = nil
	d.notEmpty.Broadcast()
	d.notFull.Broadcast()
}

// Flush drains and discards all pending items without closing the queue.
func (d *Deque[T]) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.items = nil
	d.notFull.Broadcast()
}

// Size returns the current number of queued items.
func (d *Deque[T]) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Capacity returns the configured bound (0 meaning unbounded).
func (d *Deque[T]) Capacity() int {
	return d.capacity
}

// Empty reports whether the queue currently holds no items.
func (d *Deque[T]) Empty() bool {
	return d.Size() == 0
}

// Full reports whether the queue is at its bound.
func (d *Deque[T]) Full() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isFull()
}

// Closed reports whether Close has been called.
func (d *Deque[T]) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
