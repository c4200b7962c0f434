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
	"os"
	"path/filepath"
	"sync"
	"time"
)

// linesPerFile is the rotation threshold: a file rolls over either at
// midnight or after this many lines, whichever comes first.
const linesPerFile = 50_000

// rotatingFile is a mutex-guarded, rotation-aware sink. It owns the
// currently open file handle and rotates it on date change or line-count
// overflow, writing "dir/YYYY_MM_DD[-k]<suffix>" where k is the file's
// sequence number for that date.
type rotatingFile struct {
	mu sync.Mutex

	dir    string
	suffix string

	handle    *os.File
	day       string
	seq       int
	lineCount int
}

func newRotatingFile(dir, suffix string) *rotatingFile {
	return &rotatingFile{dir: dir, suffix: suffix}
}

// fileName builds the rotation-aware filename for the given day/sequence.
// seq == 0 carries no "-k" tag, matching the filesystem contract's base
// name for a date's first file.
func (r *rotatingFile) fileName(day string, seq int) string {
	if seq == 0 {
		return filepath.Join(r.dir, day+r.suffix)
	}
	return filepath.Join(r.dir, fmt.Sprintf("%s-%d%s", day, seq, r.suffix))
}

func (r *rotatingFile) openCreate(day string, seq int) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(r.fileName(day, seq), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if r.handle != nil {
		_ = r.handle.Sync()
		_ = r.handle.Close()
	}

	r.handle = f
	r.day = day
	r.seq = seq
	r.lineCount = 0
	return nil
}

// WriteLine appends a single pre-formatted line (caller supplies the
// trailing newline), rotating first if the date changed or the previous
// file reached its line budget.
func (r *rotatingFile) WriteLine(now time.Time, line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := now.Format("2006_01_02")

	switch {
	case r.handle == nil:
		if err := r.openCreate(day, 0); err != nil {
			return err
		}
	case day != r.day:
		if err := r.openCreate(day, 0); err != nil {
			return err
		}
	case r.lineCount > 0 && r.lineCount%linesPerFile == 0:
		if err := r.openCreate(day, r.seq+1); err != nil {
			return err
		}
	}

	if _, err := r.handle.Write(line); err != nil {
		return err
	}
	r.lineCount++
	return r.handle.Sync()
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return nil
	}
	err := r.handle.Sync()
	if cerr := r.handle.Close(); err == nil {
		err = cerr
	}
	r.handle = nil
	return err
}
