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

// Package workerpool implements a fixed-size pool of goroutines draining a
// FIFO task queue, the goroutine-based equivalent of a fixed-OS-thread pool.
package workerpool

import (
	"sync"
)

// Task is a unit of work submitted to the pool.
type Task func()

// Pool is a fixed-size set of worker goroutines consuming tasks in FIFO
// order from a single shared queue.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    []Task
	shutdown bool
	wg       sync.WaitGroup
}

// New starts n worker goroutines immediately and returns the pool handle.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}

	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.loop()
	}

	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.shutdown {
			p.cond.Wait()
		}

		if len(p.tasks) == 0 && p.shutdown {
			p.mu.Unlock()
			return
		}

		t := p.tasks[0]
		p.tasks = p.tasks[1:]
		p.mu.Unlock()

		t()
	}
}

// Submit enqueues a task for execution by the next free worker. It is safe
// to call from any goroutine, including from within a running task.
// Submitting after Shutdown is a no-op.
func (p *Pool) Submit(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return
	}

	p.tasks = append(p.tasks, t)
	p.cond.Signal()
}

// Shutdown stops accepting new tasks, lets already-queued tasks drain, and
// blocks until every worker goroutine has exited.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}
