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

// Package httpproto implements the incremental HTTP/1.1 request parser and
// the response builder the connection layer drives off a per-connection
// byte buffer.
package httpproto

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/666WXY666/WebServer/internal/buffer"
)

// State is the request parser's current stage.
type State int

const (
	StateRequestLine State = iota
	StateHeader
	StateBody
	StateFinish
)

// Result is the outcome of a parse attempt.
type Result int

const (
	NoRequest Result = iota
	GetRequest
	BadRequest
	InternalError
)

// maxUploadBytes is the oversize guard on multipart/form-data uploads.
const maxUploadBytes = 30 * 1024 * 1024

var requestLineRE = regexp.MustCompile(`^([A-Z]+) (\S+) HTTP/(\d\.\d)$`)

// defaultPages is the set of "bare" target names that get a ".html" suffix
// appended during REQUEST_LINE parsing.
var defaultPages = map[string]bool{
	"/index": true, "/register": true, "/login": true, "/welcome": true,
	"/video": true, "/picture": true, "/upload": true, "/success": true,
}

// UserVerifier is the persisted-state collaborator the BODY stage calls
// for login/register form posts.
type UserVerifier interface {
	VerifyUser(ctx context.Context, username, password string, isLogin bool) (bool, error)
}

// Request is a single HTTP request's parse state, reused across requests
// on a keep-alive connection via Reset.
type Request struct {
	State   State
	Method  string
	Path    string
	Version string
	Headers map[string]string

	body        []byte
	form        map[string]string
	UploadError bool

	boundary      string
	uploadFile    *os.File
	uploadName    string
	bodyLineCount int
	uploadBytes   int64
}

// NewRequest returns a Request ready to parse a first request.
func NewRequest() *Request {
	r := &Request{}
	r.Reset()
	return r
}

// Reset reinitializes the request for the next one on the same connection.
func (r *Request) Reset() {
	r.State = StateRequestLine
	r.Method = ""
	r.Path = ""
	r.Version = ""
	r.Headers = make(map[string]string)
	r.body = r.body[:0]
	r.form = nil
	r.UploadError = false
	r.boundary = ""
	r.uploadFile = nil
	r.uploadName = ""
	r.bodyLineCount = 0
	r.uploadBytes = 0
}

// Form returns the decoded x-www-form-urlencoded fields, if any.
func (r *Request) Form() map[string]string {
	return r.form
}

// popLine pulls one CRLF-delimited line out of buf without consuming a
// trailing partial line.
func popLine(buf *buffer.Buffer) ([]byte, bool) {
	data := buf.Peek()
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, data[:idx])
	buf.Retrieve(idx + 2)
	return line, true
}

// Parse is the incremental entry point: it pops as many complete lines (or
// body bytes) from buf as the current state permits, returning as soon as
// it would need more data, a terminal state is reached, or an error is hit.
func (r *Request) Parse(ctx context.Context, buf *buffer.Buffer, uploadDir string, verifier UserVerifier) Result {
	for {
		switch r.State {
		case StateRequestLine:
			line, ok := popLine(buf)
			if !ok {
				return NoRequest
			}
			if res := r.parseRequestLine(line); res != GetRequest {
				return res
			}
			r.State = StateHeader

		case StateHeader:
			line, ok := popLine(buf)
			if !ok {
				return NoRequest
			}
			// A blank line ends the header block normally; a line with no
			// colon is not a well-formed header either, and falls through
			// to the same transition rather than failing the request.
			if len(line) == 0 || bytes.IndexByte(line, ':') < 0 {
				if r.Method == "GET" {
					r.State = StateFinish
					return GetRequest
				}
				r.State = StateBody
				continue
			}
			if res := r.parseHeaderLine(line); res != GetRequest {
				return res
			}

		case StateBody:
			ct := r.Headers["Content-Type"]
			switch {
			case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
				return r.parseURLEncodedBody(ctx, buf, verifier)
			case strings.HasPrefix(ct, "multipart/form-data"):
				return r.parseMultipartBody(buf, uploadDir)
			default:
				return BadRequest
			}

		case StateFinish:
			return GetRequest
		}
	}
}

func (r *Request) parseRequestLine(line []byte) Result {
	m := requestLineRE.FindSubmatch(line)
	if m == nil {
		return BadRequest
	}

	r.Method = string(m[1])
	target := string(m[2])
	r.Version = string(m[3])

	if target == "/" {
		target = "/index.html"
	} else if dot := strings.LastIndexByte(target, '.'); dot < 0 && defaultPages[target] {
		target += ".html"
	}
	r.Path = target

	return GetRequest
}

func (r *Request) parseHeaderLine(line []byte) Result {
	idx := bytes.IndexByte(line, ':')
	name := string(line[:idx])
	value := strings.TrimLeft(string(line[idx+1:]), " \t")
	r.Headers[name] = value
	return GetRequest
}

// KeepAlive reports whether the just-parsed request asked to keep the
// connection open; only meaningful for HTTP/1.1 requests.
func (r *Request) KeepAlive() bool {
	return r.Version == "1.1" && strings.EqualFold(r.Headers["Connection"], "keep-alive")
}

func (r *Request) parseURLEncodedBody(ctx context.Context, buf *buffer.Buffer, verifier UserVerifier) Result {
	length, err := strconv.Atoi(r.Headers["Content-Length"])
	if err != nil {
		return BadRequest
	}

	r.body = append(r.body, buf.RetrieveAllToString()...)
	if len(r.body) < length {
		return NoRequest
	}

	r.form = decodeURLEncoded(r.body[:length])

	switch r.Path {
	case "/register.html":
		username, password := r.form["username"], r.form["password"]
		ok, verr := verifier.VerifyUser(ctx, username, password, false)
		if verr != nil {
			return InternalError
		}
		if ok {
			r.Path = "/welcome.html"
		} else {
			r.Path = "/register_error.html"
		}
	case "/login.html":
		username, password := r.form["username"], r.form["password"]
		ok, verr := verifier.VerifyUser(ctx, username, password, true)
		if verr != nil {
			return InternalError
		}
		if ok {
			r.Path = "/welcome.html"
		} else {
			r.Path = "/login_error.html"
		}
	}

	r.State = StateFinish
	return GetRequest
}

// decodeURLEncoded parses "key=value&key2=value2" with '+' as space and
// "%HH" hex escapes, matching the form the original parser hand-rolled.
func decodeURLEncoded(body []byte) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		key := unescapeForm(kv[0])
		val := ""
		if len(kv) == 2 {
			val = unescapeForm(kv[1])
		}
		out[key] = val
	}
	return out
}

func unescapeForm(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			b.WriteByte('%')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func (r *Request) parseMultipartBody(buf *buffer.Buffer, uploadDir string) Result {
	if r.boundary == "" {
		ct := r.Headers["Content-Type"]
		idx := strings.Index(ct, "boundary=")
		if idx < 0 {
			return BadRequest
		}
		r.boundary = "--" + strings.TrimSpace(ct[idx+len("boundary="):])

		if length, err := strconv.ParseInt(r.Headers["Content-Length"], 10, 64); err == nil && length > maxUploadBytes {
			r.UploadError = true
		}
	}

	for {
		line, ok := popLine(buf)
		if !ok {
			return NoRequest
		}
		r.bodyLineCount++
		lineStr := string(line)

		switch {
		case r.bodyLineCount == 2:
			name, fileErr := parseDispositionFilename(lineStr)
			if fileErr != nil || filepath.Ext(name) != ".txt" {
				r.UploadError = true
				continue
			}
			r.uploadName = name
			if !r.UploadError {
				f, err := os.Create(filepath.Join(uploadDir, name))
				if err != nil {
					r.UploadError = true
					continue
				}
				r.uploadFile = f
			}

		case lineStr == r.boundary+"--":
			if r.uploadFile != nil {
				_ = r.uploadFile.Close()
				r.uploadFile = nil
			}
			if r.UploadError {
				r.Path = "/upload_error.html"
			} else {
				r.Path = "/success.html"
			}
			r.State = StateFinish
			return GetRequest

		case r.bodyLineCount >= 5 && lineStr != r.boundary:
			if r.uploadFile != nil && !r.UploadError {
				r.uploadBytes += int64(len(line))
				if r.uploadBytes > maxUploadBytes {
					r.UploadError = true
					_ = r.uploadFile.Close()
					r.uploadFile = nil
					continue
				}
				if _, err := r.uploadFile.Write(line); err != nil {
					r.UploadError = true
				}
			}
		}
	}
}

var dispositionRE = regexp.MustCompile(`filename="([^"]*)"`)

func parseDispositionFilename(line string) (string, error) {
	m := dispositionRE.FindStringSubmatch(line)
	if m == nil {
		return "", fmt.Errorf("httpproto: missing filename in disposition line %q", line)
	}
	return m[1], nil
}
