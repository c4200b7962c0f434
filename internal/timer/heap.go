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

// Package timer implements a min-heap of expiring callbacks keyed by
// connection file descriptor, used by the dispatch goroutine to close idle
// connections. It is not safe for concurrent use: the dispatch goroutine is
// its sole owner.
package timer

import "time"

// Callback is invoked once a node's deadline has passed. It receives the
// connection id that was registered, never a captured reference, so the
// timer heap stays a plain value-comparable structure and callbacks remain
// valid even if the connection was already closed by other means.
type Callback func(id int)

type node struct {
	id      int
	expires time.Time
	cb      Callback
}

// Heap is a binary min-heap ordered by expiry, paired with an id->index map
// so Add/Adjust/Del all run in O(log n).
type Heap struct {
	nodes []node
	index map[int]int
}

// New returns an empty timer heap.
func New() *Heap {
	return &Heap{index: make(map[int]int)}
}

// Len returns the number of registered timers.
func (h *Heap) Len() int {
	return len(h.nodes)
}

// Add registers or reschedules the timer for id to fire after timeout from
// now, invoking cb on expiry. If id is already registered, its deadline and
// callback are replaced.
func (h *Heap) Add(id int, timeout time.Duration, cb Callback) {
	expires := time.Now().Add(timeout)

	if i, ok := h.index[id]; ok {
		h.nodes[i].expires = expires
		h.nodes[i].cb = cb
		h.fix(i)
		return
	}

	h.nodes = append(h.nodes, node{id: id, expires: expires, cb: cb})
	i := len(h.nodes) - 1
	h.index[id] = i
	h.siftUp(i)
}

// Adjust extends id's deadline to now+timeout without changing its
// callback. It is the only operation the server loop uses on activity,
// since activity only ever pushes expiry further into the future.
func (h *Heap) Adjust(id int, timeout time.Duration) {
	i, ok := h.index[id]
	if !ok {
		return
	}

	h.nodes[i].expires = time.Now().Add(timeout)
	h.siftDown(i)
}

// Del removes id from the heap, if present.
func (h *Heap) Del(id int) {
	i, ok := h.index[id]
	if !ok {
		return
	}
	h.removeAt(i)
}

func (h *Heap) removeAt(i int) {
	last := len(h.nodes) - 1
	h.swap(i, last)
	delete(h.index, h.nodes[last].id)
	h.nodes = h.nodes[:last]

	if i < len(h.nodes) {
		h.fix(i)
	}
}

// fix restores heap order at i after its key may have changed in either
// direction.
func (h *Heap) fix(i int) {
	if !h.siftDown(i) {
		h.siftUp(i)
	}
}

// Tick invokes and removes every node whose deadline has passed.
func (h *Heap) Tick() {
	now := time.Now()
	for len(h.nodes) > 0 && !h.nodes[0].expires.After(now) {
		top := h.nodes[0]
		h.removeAt(0)
		if top.cb != nil {
			top.cb(top.id)
		}
	}
}

// NextTick runs Tick and returns the duration until the next deadline, or
// ok=false if the heap is empty (meaning "wait indefinitely").
func (h *Heap) NextTick() (d time.Duration, ok bool) {
	h.Tick()

	if len(h.nodes) == 0 {
		return 0, false
	}

	remaining := time.Until(h.nodes[0].expires)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func (h *Heap) less(i, j int) bool {
	return h.nodes[i].expires.Before(h.nodes[j].expires)
}

func (h *Heap) swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.index[h.nodes[i].id] = i
	h.index[h.nodes[j].id] = j
}

// siftUp restores order upward; returns whether any swap happened.
func (h *Heap) siftUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

// siftDown restores order downward; returns whether any swap happened.
func (h *Heap) siftDown(i int) bool {
	moved := false
	n := len(h.nodes)
	for {
		left := 2*i + 1
		right := 2*i + 2
		smallest := i

		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			break
		}

		h.swap(i, smallest)
		i = smallest
		moved = true
	}
	return moved
}
