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

// Package buffer implements a growable byte buffer with separate read and
// write cursors, tuned for the read-drain-parse-write cycle of a single
// connection. It is not safe for concurrent use: a connection's buffers are
// owned exclusively by whichever worker is currently processing it.
package buffer

import (
	"errors"
	"syscall"
)

const (
	initialSize  = 1024
	overflowSize = 65536
)

// ErrWouldBlock is returned by ReadFromFD when the underlying fd has no
// more data and is non-blocking (EAGAIN/EWOULDBLOCK).
var ErrWouldBlock = errors.New("buffer: read would block")

// Buffer is a growable byte sequence. Invariant: 0 <= read <= write <= len(buf).
// The readable region is buf[read:write]; the writable region is
// buf[write:]; the prependable region is buf[:read].
type Buffer struct {
	buf   []byte
	read  int
	write int
}

// New returns an empty Buffer with a small initial capacity.
func New() *Buffer {
	return &Buffer{buf: make([]byte, initialSize)}
}

// ReadableBytes returns the number of bytes available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int {
	return b.write - b.read
}

// WritableBytes returns the number of bytes available past the write cursor.
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.write
}

// PrependableBytes returns the number of bytes before the read cursor.
func (b *Buffer) PrependableBytes() int {
	return b.read
}

// Peek returns a slice over the readable region without consuming it.
// The slice aliases the buffer: callers must not retain it past the next
// mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.read:b.write]
}

// BeginWrite returns a slice over the writable region for direct fills
// (e.g. syscall.Read). Callers must follow with HasWritten(n).
func (b *Buffer) BeginWrite() []byte {
	return b.buf[b.write:]
}

// HasWritten advances the write cursor after data was copied directly into
// the slice returned by BeginWrite.
func (b *Buffer) HasWritten(n int) {
	b.write += n
}

// Retrieve consumes n bytes from the readable region, resetting the cursors
// to the origin if the buffer drains completely (cheap compaction).
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n >= b.ReadableBytes() {
		b.RetrieveAll()
		return
	}
	b.read += n
}

// RetrieveUntil consumes bytes up to (but not including) the given index
// within the readable region, expressed as an offset into Peek().
func (b *Buffer) RetrieveUntil(end int) {
	b.Retrieve(end)
}

// RetrieveAll discards all readable bytes and resets both cursors to the
// origin, maximizing the writable region for the next fill.
func (b *Buffer) RetrieveAll() {
	b.read = 0
	b.write = 0
}

// RetrieveAllToString consumes and returns the entire readable region as a
// string.
func (b *Buffer) RetrieveAllToString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies data into the writable region, growing or compacting the
// buffer first if necessary.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	n := copy(b.buf[b.write:], data)
	b.HasWritten(n)
}

// EnsureWritable guarantees at least n bytes of writable space, compacting
// the readable region to offset 0 when prependable+writable already
// suffices, or growing the backing array otherwise.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}

	if b.PrependableBytes()+b.WritableBytes() >= n {
		b.compact()
		return
	}

	b.grow(b.write + n)
}

func (b *Buffer) compact() {
	readable := b.ReadableBytes()
	copy(b.buf, b.buf[b.read:b.write])
	b.read = 0
	b.write = readable
}

func (b *Buffer) grow(minCap int) {
	newCap := len(b.buf)
	if newCap == 0 {
		newCap = initialSize
	}
	for newCap < minCap {
		newCap *= 2
	}

	nb := make([]byte, newCap)
	readable := b.ReadableBytes()
	copy(nb, b.buf[b.read:b.write])
	b.buf = nb
	b.read = 0
	b.write = readable
}

// ReadFromFD drains a readable fd into the buffer's tail, spilling into a
// stack-sized overflow area when the tail alone is not enough, so a single
// edge-triggered readiness event can be fully drained with one syscall
// regardless of how large the buffer currently is.
func (b *Buffer) ReadFromFD(fd int) (int, error) {
	var overflow [overflowSize]byte

	tail := b.BeginWrite()
	n, err := readv(fd, tail, overflow[:])
	if n > 0 {
		if n <= len(tail) {
			b.HasWritten(n)
		} else {
			b.HasWritten(len(tail))
			b.Append(overflow[:n-len(tail)])
		}
	}

	if err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			if n > 0 {
				return n, nil
			}
			return n, ErrWouldBlock
		}
		return n, err
	}

	return n, nil
}

// WriteToFD performs a single scatter/gather write of the two iovecs,
// returning the number of bytes written. Partial writes are the caller's
// responsibility to track (see conn.Conn.Write).
func (b *Buffer) WriteToFD(fd int, extra []byte) (int, error) {
	iovs := make([][]byte, 0, 2)
	if r := b.Peek(); len(r) > 0 {
		iovs = append(iovs, r)
	}
	if len(extra) > 0 {
		iovs = append(iovs, extra)
	}
	if len(iovs) == 0 {
		return 0, nil
	}

	n, err := writev(fd, iovs)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func writev(fd int, iovs [][]byte) (int, error) {
	return unixWritev(fd, iovs)
}

func readv(fd int, bufs ...[]byte) (int, error) {
	return unixReadv(fd, bufs)
}

// Writev exposes the scatter/gather write syscall directly so callers that
// must track per-iovec offsets across partial writes (the connection's
// header + memory-mapped file response) are not forced through a Buffer.
func Writev(fd int, iovs [][]byte) (int, error) {
	return unixWritev(fd, iovs)
}

// IsWouldBlock reports whether err denotes a transient non-blocking I/O
// condition (EAGAIN/EWOULDBLOCK) that should be retried once the fd is
// rearmed by the readiness demultiplexer.
func IsWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}
