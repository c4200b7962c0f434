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

package applog

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// hclogBridge adapts *Logger to the hclog.Logger interface so components
// that expect hclog (notably gorm's logger plug point) can be pointed at
// the server's own rotating log file instead of stdout.
type hclogBridge struct {
	mu   sync.Mutex
	l    *Logger
	name string
	args []interface{}
}

// NewHCLog wraps l as an hclog.Logger.
func NewHCLog(l *Logger) hclog.Logger {
	return &hclogBridge{l: l}
}

func (h *hclogBridge) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Off, hclog.NoLevel:
		return
	case hclog.Trace, hclog.Debug:
		h.Debug(msg, args...)
	case hclog.Info:
		h.Info(msg, args...)
	case hclog.Warn:
		h.Warn(msg, args...)
	case hclog.Error:
		h.Error(msg, args...)
	}
}

func (h *hclogBridge) format(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	pairs := make([]interface{}, 0, len(args)+1)
	pairs = append(pairs, msg)
	pairs = append(pairs, args...)
	return fmtPairs(pairs)
}

func (h *hclogBridge) Trace(msg string, args ...interface{}) { h.Debug(msg, args...) }

func (h *hclogBridge) Debug(msg string, args ...interface{}) {
	h.l.Debugf("%s", h.format(msg, args))
}

func (h *hclogBridge) Info(msg string, args ...interface{}) {
	h.l.Infof("%s", h.format(msg, args))
}

func (h *hclogBridge) Warn(msg string, args ...interface{}) {
	h.l.Warnf("%s", h.format(msg, args))
}

func (h *hclogBridge) Error(msg string, args ...interface{}) {
	h.l.Errorf("%s", h.format(msg, args))
}

func (h *hclogBridge) IsTrace() bool { return h.l.Level() == DebugLevel }
func (h *hclogBridge) IsDebug() bool { return h.l.Level() <= DebugLevel }
func (h *hclogBridge) IsInfo() bool  { return h.l.Level() <= InfoLevel }
func (h *hclogBridge) IsWarn() bool  { return h.l.Level() <= WarnLevel }
func (h *hclogBridge) IsError() bool { return h.l.Level() <= ErrorLevel }

func (h *hclogBridge) ImpliedArgs() []interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]interface{}(nil), h.args...)
}

func (h *hclogBridge) With(args ...interface{}) hclog.Logger {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &hclogBridge{l: h.l, name: h.name, args: append(append([]interface{}(nil), h.args...), args...)}
}

func (h *hclogBridge) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

func (h *hclogBridge) Named(name string) hclog.Logger {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &hclogBridge{l: h.l, name: name, args: h.args}
}

func (h *hclogBridge) ResetNamed(name string) hclog.Logger {
	return h.Named(name)
}

func (h *hclogBridge) SetLevel(level hclog.Level) {
	switch level {
	case hclog.Off, hclog.NoLevel, hclog.Trace, hclog.Debug:
		h.l.SetLevel(DebugLevel)
	case hclog.Info:
		h.l.SetLevel(InfoLevel)
	case hclog.Warn:
		h.l.SetLevel(WarnLevel)
	case hclog.Error:
		h.l.SetLevel(ErrorLevel)
	}
}

func (h *hclogBridge) GetLevel() hclog.Level {
	switch h.l.Level() {
	case DebugLevel:
		return hclog.Debug
	case InfoLevel:
		return hclog.Info
	case WarnLevel:
		return hclog.Warn
	case ErrorLevel:
		return hclog.Error
	default:
		return hclog.Info
	}
}

func (h *hclogBridge) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(io.Discard, "", 0)
}

func (h *hclogBridge) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return io.Discard
}

func fmtPairs(pairs []interface{}) string {
	if len(pairs) == 0 {
		return ""
	}
	out := pairs[0]
	msg, _ := out.(string)
	for i := 1; i+1 < len(pairs); i += 2 {
		msg += " " + toString(pairs[i]) + "=" + toString(pairs[i+1])
	}
	return msg
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
