package conn_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/666WXY666/WebServer/internal/conn"
)

// socketPair dials a loopback TCP connection and hands back both ends as
// raw, non-blocking file descriptors suitable for Conn.
func socketPair(t *testing.T) (serverFd int, serverFile *os.File, client net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	serverConn := <-accepted
	tcpConn, ok := serverConn.(*net.TCPConn)
	if !ok {
		t.Fatalf("expected *net.TCPConn")
	}

	serverFile, err = tcpConn.File()
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	// File() duplicates the fd in blocking mode; Conn expects a
	// non-blocking socket, matching how the server loop arms accepted fds.
	if err := unix.SetNonblock(int(serverFile.Fd()), true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}

	return int(serverFile.Fd()), serverFile, client
}

func TestInitIncrementsAndCloseDecrementsUserCount(t *testing.T) {
	before := conn.UserCount()

	fd, f, client := socketPair(t)
	defer f.Close()
	defer client.Close()

	c := conn.New("", "", nil, false)
	c.Init(fd, nil)

	if got := conn.UserCount(); got != before+1 {
		t.Fatalf("expected user count %d, got %d", before+1, got)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := conn.UserCount(); got != before {
		t.Fatalf("expected user count back to %d, got %d", before, got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fd, f, client := socketPair(t)
	defer f.Close()
	defer client.Close()

	c := conn.New("", "", nil, false)
	c.Init(fd, nil)

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if !c.Closed() {
		t.Fatalf("expected Closed() to report true")
	}
}

func TestReadAndProcessServesStaticFile(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "welcome.html"), []byte("hi there"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	fd, f, client := socketPair(t)
	defer f.Close()
	defer client.Close()

	c := conn.New(srcDir, "", nil, false)
	c.Init(fd, nil)
	defer c.Close()

	if _, err := client.Write([]byte("GET /welcome.html HTTP/1.1\r\nConnection: keep-alive\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, err := c.Read(); err != nil && n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		break
	}

	if !c.Process(context.Background()) {
		t.Fatalf("expected Process to report a response ready")
	}
	if !c.KeepAlive() {
		t.Fatalf("expected keep-alive response")
	}

	done, err := c.Write()
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !done {
		t.Fatalf("expected response fully flushed in one pass")
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}

	got := string(buf[:n])
	if !strings.Contains(got, "200 OK") || !strings.Contains(got, "hi there") {
		t.Fatalf("expected 200 response containing body, got %q", got)
	}
}

func TestBadRequestResponseForfeitsKeepAlive(t *testing.T) {
	srcDir := t.TempDir()

	fd, f, client := socketPair(t)
	defer f.Close()
	defer client.Close()

	c := conn.New(srcDir, "", nil, false)
	c.Init(fd, nil)
	defer c.Close()

	// A well-formed keep-alive header precedes a body the parser can't
	// make sense of (unsupported Content-Type); the 400 response must
	// still close the connection rather than honor the parsed header.
	req := "POST /register.html HTTP/1.1\r\n" +
		"Connection: keep-alive\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 0\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("client write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, err := c.Read(); err != nil && n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		break
	}

	if !c.Process(context.Background()) {
		t.Fatalf("expected Process to report a response ready")
	}
	if c.KeepAlive() {
		t.Fatalf("expected a 400 response to forfeit keep-alive")
	}
}
