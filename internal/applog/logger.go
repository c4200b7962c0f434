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
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/666WXY666/WebServer/internal/queue"
)

// tsFormatter renders entries as "YYYY-MM-DD HH:MM:SS.uuuuuu [LEVEL]: msg\n",
// the fixed line shape the server has always written to its log files.
type tsFormatter struct{}

func (tsFormatter) Format(e *logrus.Entry) ([]byte, error) {
	ts := e.Time.Format("2006-01-02 15:04:05.000000")
	level := strings.ToUpper(e.Level.String())
	line := fmt.Sprintf("%s [%s]: %s\n", ts, level, e.Message)
	return []byte(line), nil
}

// fileHook persists every logrus entry to a rotatingFile, either directly
// or via a bounded queue when async mode is enabled.
type fileHook struct {
	rf    *rotatingFile
	queue *queue.Deque[[]byte]
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	b, err := entry.Bytes()
	if err != nil {
		return err
	}

	if h.queue != nil {
		line := append([]byte(nil), b...)
		if h.queue.TryPushBack(line) {
			return nil
		}
		// Queue saturated: degrade to a synchronous write rather than
		// drop the record or block the caller indefinitely.
	}

	return h.rf.WriteLine(entry.Time, b)
}

// Logger is the process-wide leveled, rotating logger. The zero value is
// not usable; obtain one via Init.
type Logger struct {
	mu      sync.Mutex
	base    *logrus.Logger
	rf      *rotatingFile
	queue   *queue.Deque[[]byte]
	wg      sync.WaitGroup
	level   Level
	enabled bool
}

var (
	singletonMu sync.Mutex
	singleton   *Logger
)

// Init creates (or reopens, singleton-style) the process-wide logger.
// queueCap > 0 enables async mode: records are queued to a dedicated sink
// goroutine instead of written inline. dir/suffix feed the rotation naming
// scheme "dir/YYYY_MM_DD[-k]<suffix>".
func Init(level Level, dir, suffix string, queueCap int) (*Logger, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetFormatter(tsFormatter{})
	base.SetLevel(level.Logrus())

	l := &Logger{
		base:    base,
		rf:      newRotatingFile(dir, suffix),
		level:   level,
		enabled: true,
	}

	hook := &fileHook{rf: l.rf}
	if queueCap > 0 {
		l.queue = queue.New[[]byte](queueCap)
		hook.queue = l.queue
		l.wg.Add(1)
		go l.sink()
	}
	base.AddHook(hook)

	singleton = l
	return l, nil
}

// Get returns the process-wide logger, or nil if Init has not been called.
func Get() *Logger {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	return singleton
}

func (l *Logger) sink() {
	defer l.wg.Done()
	for {
		line, ok := l.queue.Pop()
		if !ok {
			return
		}
		_ = l.rf.WriteLine(time.Now(), line)
	}
}

// SetEnabled toggles the -l CLI flag's log on/off behavior at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	l.enabled = on
	l.mu.Unlock()
}

func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
	l.base.SetLevel(level.Logrus())
}

func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.Enabled() {
		l.base.Debugf(format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.Enabled() {
		l.base.Infof(format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.Enabled() {
		l.base.Warnf(format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.Enabled() {
		l.base.Errorf(format, args...)
	}
}

// Close drains any queued records, joins the sink goroutine, and closes
// the underlying file. Safe to call on a nil Logger.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	if l.queue != nil {
		// Deque.Close discards pending items, so let the sink empty the
		// queue first.
		for !l.queue.Empty() {
			time.Sleep(time.Millisecond)
		}
		l.queue.Close()
		l.wg.Wait()
	}
	return l.rf.Close()
}
