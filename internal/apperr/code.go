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

// Package apperr provides HTTP-status-like error codes with stack capture,
// used throughout the server so a log line and a response code always
// trace back to the same source of truth.
package apperr

import (
	"fmt"
	"runtime"
)

// Code is a numeric error classification, similar in spirit to an HTTP
// status code, but also used for purely internal failures that never reach
// a socket (timer, queue, pool).
type Code uint16

const (
	// CodeNone is the zero value: no specific classification.
	CodeNone Code = 0

	CodeBadRequest    Code = 400
	CodeForbidden     Code = 403
	CodeNotFound      Code = 404
	CodeUpload        Code = 422
	CodeInternal      Code = 500
	CodePoolExhausted Code = 503

	// CodeTimer and CodeQueueClosed never reach a client; they classify
	// internal subsystem failures for logging purposes only.
	CodeTimer       Code = 600
	CodeQueueClosed Code = 601
)

func (c Code) String() string {
	switch c {
	case CodeBadRequest:
		return "bad request"
	case CodeForbidden:
		return "forbidden"
	case CodeNotFound:
		return "not found"
	case CodeUpload:
		return "upload rejected"
	case CodeInternal:
		return "internal error"
	case CodePoolExhausted:
		return "pool exhausted"
	case CodeTimer:
		return "timer error"
	case CodeQueueClosed:
		return "queue closed"
	default:
		return "unknown error"
	}
}

// Error is the error type carried across component boundaries. It wraps an
// optional parent error and records the call site that raised it.
type Error struct {
	code   Code
	msg    string
	parent error
	frame  runtime.Frame
}

// New creates an Error with the given code and optional parent. Passing a
// nil parent is valid; Error() then falls back to the code's description.
func New(code Code, parent error) *Error {
	e := &Error{code: code, parent: parent}
	e.captureFrame()
	return e
}

// Newf is New with a formatted message attached in place of the code's
// default description.
func Newf(code Code, parent error, format string, args ...interface{}) *Error {
	e := &Error{code: code, parent: parent, msg: fmt.Sprintf(format, args...)}
	e.captureFrame()
	return e
}

func (e *Error) captureFrame() {
	pc := make([]uintptr, 1)
	if n := runtime.Callers(3, pc); n > 0 {
		frames := runtime.CallersFrames(pc[:n])
		f, _ := frames.Next()
		e.frame = f
	}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeNone
	}
	return e.code
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.msg
	if msg == "" {
		msg = e.code.String()
	}

	if e.parent != nil {
		return fmt.Sprintf("%s: %v", msg, e.parent)
	}

	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.parent
}

// Is reports whether err carries the given code, supporting errors.Is.
func (e *Error) Is(target error) bool {
	if o, ok := target.(*Error); ok {
		return e.code == o.code
	}
	return false
}

// Location returns "file:line" of the call site that raised the error, for
// log correlation.
func (e *Error) Location() string {
	if e == nil || e.frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", e.frame.File, e.frame.Line)
}
