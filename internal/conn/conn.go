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

// Package conn owns a single client socket, its buffers, its in-flight
// request/response, and the read/process/write state machine the server
// loop drives through the worker pool.
package conn

import (
	"context"
	"io"
	"net"
	"sync/atomic"

	lbuuid "github.com/hashicorp/go-uuid"
	"golang.org/x/sys/unix"

	"github.com/666WXY666/WebServer/internal/apperr"
	"github.com/666WXY666/WebServer/internal/buffer"
	"github.com/666WXY666/WebServer/internal/httpproto"
)

// userCount is the process-wide count of open connections, incremented on
// Init and decremented on Close.
var userCount int64

// UserCount reports the current number of open connections.
func UserCount() int64 {
	return atomic.LoadInt64(&userCount)
}

// Conn is one accepted client connection.
type Conn struct {
	Fd        int
	Addr      net.Addr
	ET        bool
	closeFlag bool

	// ID correlates this connection's log lines across its lifetime; it
	// is regenerated on every Init, not just on first use.
	ID string

	ReadBuf *buffer.Buffer

	srcDir    string
	uploadDir string
	verifier  httpproto.UserVerifier

	req  *httpproto.Request
	resp *httpproto.Response

	iovHeader []byte
	iovBody   []byte

	// FatalErr is set when Process encounters a non-recoverable error
	// (e.g. the SQL pool failed outright rather than denying a login);
	// the server loop closes the connection instead of rescheduling it.
	FatalErr error
}

// New builds an unbound Conn; Init binds it to an accepted fd/addr.
func New(srcDir, uploadDir string, verifier httpproto.UserVerifier, et bool) *Conn {
	return &Conn{
		srcDir:    srcDir,
		uploadDir: uploadDir,
		verifier:  verifier,
		ET:        et,
		ReadBuf:   buffer.New(),
		req:       httpproto.NewRequest(),
		resp:      &httpproto.Response{},
	}
}

// Init (re)binds this Conn to a freshly accepted fd/addr, resetting all
// per-connection state and counting the connection as open.
func (c *Conn) Init(fd int, addr net.Addr) {
	c.Fd = fd
	c.Addr = addr
	c.closeFlag = false
	c.ReadBuf.RetrieveAll()
	c.req.Reset()
	c.resp.Reset()
	c.iovHeader = nil
	c.iovBody = nil
	c.FatalErr = nil

	if id, err := lbuuid.GenerateUUID(); err == nil {
		c.ID = id
	}

	atomic.AddInt64(&userCount, 1)
}

// Read drains the socket into ReadBuf. In edge-triggered mode it loops
// until EAGAIN; in level-triggered mode a single successful read is
// enough to satisfy one wakeup. It returns the total bytes read and an
// error that is nil, buffer.ErrWouldBlock (transient, not fatal), or a
// fatal I/O error (EOF/ECONNRESET/...).
func (c *Conn) Read() (int, error) {
	total := 0
	for {
		n, err := c.ReadBuf.ReadFromFD(c.Fd)
		total += n

		if err != nil {
			if buffer.IsWouldBlock(err) {
				return total, buffer.ErrWouldBlock
			}
			return total, err
		}
		if n == 0 {
			if total == 0 {
				return 0, io.EOF
			}
			return total, nil
		}
		if !c.ET {
			return total, nil
		}
	}
}

// Process parses as much of ReadBuf as forms a complete request and, on a
// terminal parse result, builds the corresponding response. It returns
// true when a response is ready to write, false when the caller should
// keep waiting for more input (or, if FatalErr is set, close).
func (c *Conn) Process(ctx context.Context) bool {
	if c.req.State == httpproto.StateFinish {
		c.req.Reset()
	}
	if c.ReadBuf.ReadableBytes() == 0 {
		return false
	}

	switch c.req.Parse(ctx, c.ReadBuf, c.uploadDir, c.verifier) {
	case httpproto.GetRequest:
		c.buildResponse(200)
		return true
	case httpproto.BadRequest:
		c.buildResponse(400)
		return true
	case httpproto.InternalError:
		c.FatalErr = apperr.New(apperr.CodeInternal, nil)
		return false
	default:
		return false
	}
}

func (c *Conn) buildResponse(code int) {
	path := c.req.Path
	keepAlive := c.req.KeepAlive()
	if code == 400 {
		path = "/400.html"
		// A malformed request forfeits keep-alive regardless of any
		// Connection header parsed before the malformed line.
		keepAlive = false
	}

	_ = c.resp.Build(c.srcDir, path, code, keepAlive)
	c.iovHeader = c.resp.Header
	c.iovBody = c.resp.Body()
}

// KeepAlive reports whether the response just built should keep the
// connection open once fully written.
func (c *Conn) KeepAlive() bool {
	return c.resp.KeepAlive
}

// Write drains the pending response via a scatter-gather writev loop,
// header first then the memory-mapped body. It returns true once both
// are fully flushed.
func (c *Conn) Write() (bool, error) {
	for {
		iovs := make([][]byte, 0, 2)
		if len(c.iovHeader) > 0 {
			iovs = append(iovs, c.iovHeader)
		}
		if len(c.iovBody) > 0 {
			iovs = append(iovs, c.iovBody)
		}
		if len(iovs) == 0 {
			return true, nil
		}

		n, err := buffer.Writev(c.Fd, iovs)
		if err != nil {
			if buffer.IsWouldBlock(err) {
				return false, nil
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}

		c.advance(n)

		if !c.ET {
			if len(c.iovHeader) == 0 && len(c.iovBody) == 0 {
				return true, nil
			}
			return false, nil
		}
	}
}

func (c *Conn) advance(n int) {
	if n >= len(c.iovHeader) {
		n -= len(c.iovHeader)
		c.iovHeader = nil
		if n >= len(c.iovBody) {
			c.iovBody = nil
			return
		}
		c.iovBody = c.iovBody[n:]
		return
	}
	c.iovHeader = c.iovHeader[n:]
}

// Close releases the connection's resources. Idempotent: a second call is
// a no-op, guarded by closeFlag.
func (c *Conn) Close() error {
	if c.closeFlag {
		return nil
	}
	c.closeFlag = true

	_ = c.resp.Close()
	atomic.AddInt64(&userCount, -1)

	return unix.Close(c.Fd)
}

// Closed reports whether Close has already run for this connection.
func (c *Conn) Closed() bool {
	return c.closeFlag
}
