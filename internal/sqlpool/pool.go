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

// Package sqlpool is a bounded pool of *gorm.DB handles with scoped-borrow
// semantics: a connection acquired via Borrow is always returned to the
// pool, on both the success and error exit paths.
package sqlpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config names the physical MySQL connection and the pool's fixed size.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Size     int
}

func (c Config) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Pool holds Size physical connections, bounded by a weighted semaphore so
// that Acquire blocks rather than over-commits when all are in use.
type Pool struct {
	sem   *semaphore.Weighted
	mu    sync.Mutex
	conns []*gorm.DB
}

// Open dials Size physical connections against cfg's MySQL target.
func Open(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("sqlpool: size must be at least 1, got %d", cfg.Size)
	}

	conns := make([]*gorm.DB, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		db, err := gorm.Open(mysql.Open(cfg.dsn()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			closeAll(conns)
			return nil, fmt.Errorf("sqlpool: open connection %d/%d: %w", i+1, cfg.Size, err)
		}
		conns = append(conns, db)
	}

	return &Pool{
		sem:   semaphore.NewWeighted(int64(cfg.Size)),
		conns: conns,
	}, nil
}

// OpenWithDialector builds a pool of Size gorm handles sharing the given
// dialector constructor, used by tests to stand the pool up against an
// in-memory database instead of a live MySQL server.
func OpenWithDialector(size int, newDialector func() gorm.Dialector) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("sqlpool: size must be at least 1, got %d", size)
	}

	conns := make([]*gorm.DB, 0, size)
	for i := 0; i < size; i++ {
		db, err := gorm.Open(newDialector(), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			closeAll(conns)
			return nil, fmt.Errorf("sqlpool: open connection %d/%d: %w", i+1, size, err)
		}
		conns = append(conns, db)
	}

	return &Pool{
		sem:   semaphore.NewWeighted(int64(size)),
		conns: conns,
	}, nil
}

func closeAll(conns []*gorm.DB) {
	for _, c := range conns {
		if sqlDB, err := c.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Conn is a borrowed connection; Release must be called exactly once to
// return it to the pool.
type Conn struct {
	DB *gorm.DB

	pool     *Pool
	released bool
}

// Release returns the connection to the pool. Safe to call more than once;
// only the first call has effect.
func (c *Conn) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true

	c.pool.mu.Lock()
	c.pool.conns = append(c.pool.conns, c.DB)
	c.pool.mu.Unlock()

	c.pool.sem.Release(1)
}

// Acquire blocks until a connection is available or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	n := len(p.conns)
	db := p.conns[n-1]
	p.conns = p.conns[:n-1]
	p.mu.Unlock()

	return &Conn{DB: db, pool: p}, nil
}

// Borrow is the scoped-borrow entry point: it acquires a connection, runs
// fn, and releases the connection on every exit path (fn returning, fn
// panicking, or ctx expiring before a connection became available).
func (p *Pool) Borrow(ctx context.Context, fn func(db *gorm.DB) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Release()

	return fn(c.DB)
}

// Close closes every physical connection. Callers must ensure no borrows
// are in flight.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, c := range p.conns {
		if sqlDB, err := c.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
