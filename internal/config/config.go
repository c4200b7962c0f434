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

// Package config loads the server's configuration record from CLI flags,
// environment variables, and an optional YAML file, in that precedence
// order (flag > env > file > default).
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DispatchMode selects between the reactor (handler performs I/O when
// woken by readiness) and proactor (I/O is already complete when the
// handler runs) dispatch styles. Only DispatchReactor is implemented;
// DispatchProactor is accepted and validated but rejected at startup.
type DispatchMode int

const (
	DispatchReactor DispatchMode = 0
	DispatchProactor DispatchMode = 1
)

// Config is the full configuration record: the CLI-exposed fields
// plus the non-CLI fields (trigger mode, SQL credentials, log queue
// capacity) that only the config file or environment can set.
type Config struct {
	Port         int  `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	LogEnabled   bool `mapstructure:"log_enabled" yaml:"log_enabled"`
	IdleTimeoutMS int `mapstructure:"idle_timeout_ms" yaml:"idle_timeout_ms" validate:"min=0"`
	SOLinger     int  `mapstructure:"so_linger" yaml:"so_linger"`
	SQLPoolSize  int  `mapstructure:"sql_pool_size" yaml:"sql_pool_size" validate:"min=1"`
	WorkerThreads int `mapstructure:"worker_threads" yaml:"worker_threads" validate:"min=1"`
	LogLevel     int  `mapstructure:"log_level" yaml:"log_level" validate:"min=0,max=3"`
	Dispatch     DispatchMode `mapstructure:"dispatch" yaml:"dispatch" validate:"min=0,max=1"`
	Daemonize    bool `mapstructure:"daemonize" yaml:"daemonize"`

	TriggerMode int `mapstructure:"trigger_mode" yaml:"trigger_mode" validate:"min=0,max=3"`

	SQLHost     string `mapstructure:"sql_host" yaml:"sql_host" validate:"required"`
	SQLPort     int    `mapstructure:"sql_port" yaml:"sql_port" validate:"min=1,max=65535"`
	SQLUser     string `mapstructure:"sql_user" yaml:"sql_user" validate:"required"`
	SQLPassword string `mapstructure:"sql_password" yaml:"sql_password"`
	SQLDatabase string `mapstructure:"sql_database" yaml:"sql_database" validate:"required"`

	LogQueueCapacity int `mapstructure:"log_queue_capacity" yaml:"log_queue_capacity" validate:"min=0"`

	LogDir    string `mapstructure:"log_dir" yaml:"log_dir" validate:"required"`
	LogSuffix string `mapstructure:"log_suffix" yaml:"log_suffix" validate:"required"`
	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir" validate:"required"`
	SrcDir    string `mapstructure:"src_dir" yaml:"src_dir" validate:"required"`
}

// Default returns the server's out-of-the-box configuration record.
func Default() Config {
	return Config{
		Port:             9006,
		LogEnabled:       true,
		IdleTimeoutMS:    60000,
		SOLinger:         0,
		SQLPoolSize:      12,
		WorkerThreads:    6,
		LogLevel:         1,
		Dispatch:         DispatchReactor,
		Daemonize:        false,
		TriggerMode:      3,
		SQLHost:          "127.0.0.1",
		SQLPort:          3306,
		SQLUser:          "root",
		SQLPassword:      "",
		SQLDatabase:      "webserver",
		LogQueueCapacity: 1024,
		LogDir:           "./log",
		LogSuffix:        ".log",
		UploadDir:        "./resources/upload",
		SrcDir:           "./resources",
	}
}

// Validate checks field-level constraints and the one cross-field rule
// the distilled command surface still enforces: proactor dispatch is
// accepted syntactically but not implemented.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return err
		}
		fieldErrs := err.(validator.ValidationErrors)
		out := fmt.Errorf("invalid configuration")
		for _, fe := range fieldErrs {
			out = fmt.Errorf("%w; field %q fails constraint %q", out, fe.Field(), fe.ActualTag())
		}
		return out
	}

	if c.Dispatch == DispatchProactor {
		return fmt.Errorf("proactor dispatch mode is not implemented")
	}

	return nil
}
