//go:build linux

package buffer

import "golang.org/x/sys/unix"

func unixReadv(fd int, bufs [][]byte) (int, error) {
	return unix.Readv(fd, bufs)
}

func unixWritev(fd int, bufs [][]byte) (int, error) {
	return unix.Writev(fd, bufs)
}
