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

// Package poller wraps the Linux epoll readiness interface, offering
// register/modify/unregister/wait primitives with configurable
// edge/level-triggered modes, in the spirit of the async-IO watcher
// pattern used by proactor-style Go network libraries.
package poller

// TriggerMode selects the edge/level-triggered combination for the listen
// socket and connection sockets, matching the four combinations the
// original server exposed through its `trig_mode` configuration knob.
type TriggerMode uint8

const (
	// ModeListenLTConnLT: both listen and connection sockets level-triggered.
	ModeListenLTConnLT TriggerMode = iota
	// ModeListenLTConnET: listen level-triggered, connections edge-triggered.
	ModeListenLTConnET
	// ModeListenETConnLT: listen edge-triggered, connections level-triggered.
	ModeListenETConnLT
	// ModeListenETConnET: both listen and connection sockets edge-triggered.
	ModeListenETConnET
)

// ListenET reports whether the listen socket should be armed edge-triggered.
func (m TriggerMode) ListenET() bool {
	return m == ModeListenETConnLT || m == ModeListenETConnET
}

// ConnET reports whether connection sockets should be armed edge-triggered.
func (m TriggerMode) ConnET() bool {
	return m == ModeListenLTConnET || m == ModeListenETConnET
}

// Event reports a single fd's readiness after a Wait call.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Closed is set on hang-up, peer-close, or error conditions; the
	// server loop closes the connection on it only when neither Readable
	// nor Writable is also set.
	Closed bool
}

// Poller is the minimal readiness-demultiplexer contract the server loop
// depends on. The Linux implementation wraps epoll_create1/epoll_ctl/
// epoll_wait via golang.org/x/sys/unix.
type Poller interface {
	// Add registers fd for readability and peer-close; when et is true it
	// also arms edge-triggered mode. Write interest is added later via Mod.
	Add(fd int, et bool) error
	// Mod rearms fd's interest set (e.g. switching from read-interest to
	// write-interest once a response is ready to flush).
	Mod(fd int, et bool, writable bool) error
	// Del unregisters fd. It is a no-op if fd was already removed.
	Del(fd int) error
	// Wait blocks up to timeoutMS (a negative value waits indefinitely)
	// and returns the ready events, reusing its internal buffer across
	// calls — callers must finish using the returned slice before calling
	// Wait again.
	Wait(timeoutMS int) ([]Event, error)
	// Close releases the underlying poll fd.
	Close() error
}
