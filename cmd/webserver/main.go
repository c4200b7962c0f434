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

// Command webserver starts the HTTP listener: it loads configuration,
// stands up logging and the SQL pool, and runs the event loop until an
// interrupt or terminate signal requests a graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/666WXY666/WebServer/internal/applog"
	"github.com/666WXY666/WebServer/internal/config"
	"github.com/666WXY666/WebServer/internal/poller"
	"github.com/666WXY666/WebServer/internal/server"
	"github.com/666WXY666/WebServer/internal/sqlpool"
)

func main() {
	root := &cobra.Command{
		Use:   "webserver",
		Short: "A small epoll-driven HTTP/1.1 server",
		RunE:  run,
	}
	config.RegisterFlags(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	queueCap := 0
	if cfg.LogEnabled {
		queueCap = cfg.LogQueueCapacity
	}
	log, err := applog.Init(applog.FromInt(cfg.LogLevel), cfg.LogDir, cfg.LogSuffix, queueCap)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.SetEnabled(cfg.LogEnabled)
	defer log.Close()

	pool, err := sqlpool.Open(sqlpool.Config{
		Host:     cfg.SQLHost,
		Port:     cfg.SQLPort,
		User:     cfg.SQLUser,
		Password: cfg.SQLPassword,
		Database: cfg.SQLDatabase,
		Size:     cfg.SQLPoolSize,
	})
	if err != nil {
		return fmt.Errorf("open sql pool: %w", err)
	}
	defer pool.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate sql schema: %w", err)
	}

	srv := server.New(server.Config{
		Port:          cfg.Port,
		Trigger:       poller.TriggerMode(cfg.TriggerMode),
		IdleTimeout:   time.Duration(cfg.IdleTimeoutMS) * time.Millisecond,
		SOLinger:      cfg.SOLinger,
		SrcDir:        cfg.SrcDir,
		UploadDir:     cfg.UploadDir,
		WorkerThreads: cfg.WorkerThreads,
		Verifier:      pool,
	}, log)

	log.Infof("listening on port %d (dispatch=%v, trigger=%d, workers=%d)",
		cfg.Port, cfg.Dispatch, cfg.TriggerMode, cfg.WorkerThreads)

	return srv.Run(ctx)
}
