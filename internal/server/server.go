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

// Package server wires the readiness poller, the connection timeout heap
// and the worker pool into the event loop that drives accepted
// connections through read, process and write.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/666WXY666/WebServer/internal/applog"
	"github.com/666WXY666/WebServer/internal/buffer"
	"github.com/666WXY666/WebServer/internal/conn"
	"github.com/666WXY666/WebServer/internal/httpproto"
	"github.com/666WXY666/WebServer/internal/poller"
	"github.com/666WXY666/WebServer/internal/timer"
	"github.com/666WXY666/WebServer/internal/workerpool"
)

// maxFD bounds the number of simultaneously open connections; beyond it,
// newly accepted sockets are refused and closed immediately.
const maxFD = 65536

// Config collects the knobs the event loop needs that do not belong to
// any one sub-package.
type Config struct {
	Port          int
	Trigger       poller.TriggerMode
	IdleTimeout   time.Duration
	SOLinger      int
	SrcDir        string
	UploadDir     string
	WorkerThreads int
	Verifier      httpproto.UserVerifier
}

// Server is the accept/read/write event loop for the HTTP listener.
type Server struct {
	cfg Config
	log *applog.Logger

	listenFD int
	p        poller.Poller
	timers   *timer.Heap
	pool     *workerpool.Pool

	mu    sync.Mutex
	conns map[int]*conn.Conn

	closed chan struct{}
	ready  chan struct{}
}

// New builds a Server bound to cfg. It does not start listening; call Run.
func New(cfg Config, log *applog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		log:    log,
		timers: timer.New(),
		pool:   workerpool.New(cfg.WorkerThreads),
		conns:  make(map[int]*conn.Conn),
		closed: make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

// Addr blocks until the listen socket is bound and returns its address.
// Mainly useful in tests that bind to port 0 and need the chosen port.
func (s *Server) Addr() (*net.TCPAddr, error) {
	<-s.ready

	sa, err := unix.Getsockname(s.listenFD)
	if err != nil {
		return nil, err
	}
	v, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return nil, nil
	}
	return &net.TCPAddr{IP: net.IPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3]), Port: v.Port}, nil
}

// Run binds the listen socket and drives the event loop until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}

	ep, err := poller.New()
	if err != nil {
		_ = unix.Close(s.listenFD)
		return err
	}
	s.p = ep

	if err := s.p.Add(s.listenFD, s.cfg.Trigger.ListenET()); err != nil {
		_ = ep.Close()
		_ = unix.Close(s.listenFD)
		return err
	}

	close(s.ready)

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	s.loop()
	return nil
}

func (s *Server) listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return err
	}

	// SOLinger mirrors the original server's opt_linger flag: 0 leaves the
	// kernel default (background close), nonzero requests a bounded
	// blocking close with a 1 second grace period.
	if s.cfg.SOLinger != 0 {
		linger := unix.Linger{Onoff: 1, Linger: 1}
		_ = unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &linger)
	}

	addr := unix.SockaddrInet4{Port: s.cfg.Port}
	if err := unix.Bind(fd, &addr); err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := unix.Listen(fd, 6); err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return err
	}

	s.listenFD = fd
	return nil
}

func (s *Server) loop() {
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		timeoutMS := -1
		if d, ok := s.timers.NextTick(); ok {
			timeoutMS = int(d.Milliseconds())
		}

		events, err := s.p.Wait(timeoutMS)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			if err == unix.EINTR {
				continue
			}
			s.log.Errorf("poller wait: %v", err)
			continue
		}

		s.timers.Tick()

		for _, ev := range events {
			if ev.Fd == s.listenFD {
				s.acceptLoop()
				continue
			}

			c := s.lookup(ev.Fd)
			if c == nil {
				continue
			}

			switch {
			case ev.Readable:
				s.dealRead(c)
			case ev.Writable:
				s.dealWrite(c)
			case ev.Closed:
				s.closeConn(c)
			}
		}

		select {
		case <-s.closed:
			return
		default:
		}
	}
}

func (s *Server) acceptLoop() {
	for {
		fd, sa, err := unix.Accept(s.listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			s.log.Warnf("accept: %v", err)
			return
		}
		s.addClient(fd, sockaddrToAddr(sa))

		if !s.cfg.Trigger.ListenET() {
			return
		}
	}
}

func (s *Server) addClient(fd int, addr net.Addr) {
	if conn.UserCount() >= maxFD {
		_ = unix.Close(fd)
		s.log.Warnf("refused connection from %v: too many open connections", addr)
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return
	}

	c := conn.New(s.cfg.SrcDir, s.cfg.UploadDir, s.cfg.Verifier, s.cfg.Trigger.ConnET())
	c.Init(fd, addr)

	s.mu.Lock()
	s.conns[fd] = c
	s.mu.Unlock()

	if err := s.p.Add(fd, s.cfg.Trigger.ConnET()); err != nil {
		s.closeConn(c)
		return
	}

	s.timers.Add(fd, s.cfg.IdleTimeout, func(id int) {
		if cc := s.lookup(id); cc != nil {
			s.closeConn(cc)
		}
	})
}

func (s *Server) lookup(fd int) *conn.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[fd]
}

func (s *Server) dealRead(c *conn.Conn) {
	s.timers.Adjust(c.Fd, s.cfg.IdleTimeout)
	s.pool.Submit(func() { s.onRead(c) })
}

func (s *Server) dealWrite(c *conn.Conn) {
	s.timers.Adjust(c.Fd, s.cfg.IdleTimeout)
	s.pool.Submit(func() { s.onWrite(c) })
}

func (s *Server) onRead(c *conn.Conn) {
	_, err := c.Read()
	if err != nil && err != buffer.ErrWouldBlock {
		s.closeConn(c)
		return
	}
	s.onProcess(c)
}

func (s *Server) onProcess(c *conn.Conn) {
	ready := c.Process(context.Background())

	if c.FatalErr != nil {
		s.log.Errorf("closing connection %s (fd %d) after %v", c.ID, c.Fd, c.FatalErr)
		s.closeConn(c)
		return
	}
	if !ready {
		return
	}

	if err := s.p.Mod(c.Fd, s.cfg.Trigger.ConnET(), true); err != nil {
		s.closeConn(c)
	}
}

func (s *Server) onWrite(c *conn.Conn) {
	done, err := c.Write()
	if err != nil {
		s.closeConn(c)
		return
	}
	if !done {
		return
	}

	if c.KeepAlive() {
		if err := s.p.Mod(c.Fd, s.cfg.Trigger.ConnET(), false); err != nil {
			s.closeConn(c)
		}
		return
	}

	s.closeConn(c)
}

func (s *Server) closeConn(c *conn.Conn) {
	if c.Closed() {
		return
	}

	s.mu.Lock()
	delete(s.conns, c.Fd)
	s.mu.Unlock()

	s.timers.Del(c.Fd)
	_ = s.p.Del(c.Fd)
	_ = c.Close()
}

func (s *Server) shutdown() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}

	s.mu.Lock()
	conns := make([]*conn.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.closeConn(c)
	}

	s.pool.Shutdown()
	if s.p != nil {
		_ = s.p.Close()
	}
	_ = unix.Close(s.listenFD)
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	default:
		return nil
	}
}
