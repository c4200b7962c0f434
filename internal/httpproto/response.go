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

package httpproto

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/666WXY666/WebServer/internal/apperr"
	"github.com/666WXY666/WebServer/internal/mime"
)

var reasonPhrase = map[int]string{
	200:                     "OK",
	400:                     "Bad Request",
	403:                     "Forbidden",
	404:                     "Not Found",
	int(apperr.CodeInternal): "Internal Server Error",
}

var errorPage = map[int]string{
	400: "/400.html",
	403: "/403.html",
	404: "/404.html",
}

// Response is the response-builder state for one request: a header block
// plus, for file-backed bodies, a memory mapping released on Reset/Close.
type Response struct {
	Code      int
	KeepAlive bool
	Path      string
	SrcDir    string

	Header []byte
	mapped *mapping
}

// Reset releases any previous mapping and prepares the response for reuse.
func (resp *Response) Reset() {
	resp.releaseMapping()
	resp.Code = 0
	resp.Path = ""
	resp.Header = nil
}

func (resp *Response) releaseMapping() {
	if resp.mapped != nil {
		_ = resp.mapped.Close()
		resp.mapped = nil
	}
}

// Body returns the memory-mapped file body, or nil if this response has no
// file payload (e.g. an inline error page).
func (resp *Response) Body() []byte {
	if resp.mapped == nil {
		return nil
	}
	return resp.mapped.data
}

// Build resolves path under srcDir, memory-maps the file on success, and
// renders the header block. On a missing or inaccessible file it rewrites
// the response to the corresponding canonical error page; if even that
// page is unavailable, it falls back to a zero-length body (the caller
// may fill it from ErrorContent).
func (resp *Response) Build(srcDir, path string, code int, keepAlive bool) error {
	resp.releaseMapping()
	resp.SrcDir = srcDir
	resp.KeepAlive = keepAlive
	resp.Code = code
	resp.Path = path

	full := resolve(srcDir, path)
	info, err := os.Stat(full)

	switch {
	case err != nil:
		resp.Code = 404
		resp.Path = errorPage[404]
		full = resolve(srcDir, resp.Path)
		info, err = os.Stat(full)
	case info.IsDir():
		resp.Code = 403
		resp.Path = errorPage[403]
		full = resolve(srcDir, resp.Path)
		info, err = os.Stat(full)
	}

	if err != nil || info.IsDir() {
		resp.Header = resp.renderHeader(0)
		return nil
	}

	m, mapErr := mapFile(full)
	if mapErr != nil {
		resp.Header = resp.renderHeader(0)
		return nil
	}
	resp.mapped = m
	resp.Header = resp.renderHeader(len(m.data))

	return nil
}

func resolve(srcDir, path string) string {
	return filepath.Join(srcDir, filepath.Clean("/"+path))
}

func (resp *Response) renderHeader(contentLength int) []byte {
	reason, ok := reasonPhrase[resp.Code]
	if !ok {
		reason = "Error"
	}

	h := fmt.Sprintf("HTTP/1.1 %d %s\r\n", resp.Code, reason)
	if resp.KeepAlive {
		h += "Connection: keep-alive\r\n"
		h += "keep-alive: max=6, timeout=120\r\n"
	} else {
		h += "Connection: close\r\n"
	}
	h += fmt.Sprintf("Content-Type: %s\r\n", mime.ForPath(resp.Path))
	h += fmt.Sprintf("Content-Length: %d\r\n\r\n", contentLength)

	return []byte(h)
}

// ErrorContent renders an inline HTML body for use when no error page file
// is available on disk.
func ErrorContent(code int, msg string) []byte {
	reason := reasonPhrase[code]
	return []byte(fmt.Sprintf("<html><head><title>%d %s</title></head><body><h1>%d %s</h1><p>%s</p></body></html>",
		code, reason, code, reason, msg))
}

// Close releases the response's mapping; safe to call more than once.
func (resp *Response) Close() error {
	resp.releaseMapping()
	return nil
}
