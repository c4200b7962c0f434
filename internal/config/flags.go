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

package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RegisterFlags attaches the server's CLI surface to cmd: one persistent
// flag per tunable, plus the path-oriented flags (--config, --log-dir,
// --log-suffix, --upload-dir, --src-dir) needed to locate logs, uploads,
// and static assets on disk.
func RegisterFlags(cmd *cobra.Command) {
	def := Default()

	cmd.PersistentFlags().IntP("port", "p", def.Port, "listen port")
	cmd.PersistentFlags().BoolP("log", "l", def.LogEnabled, "enable logging")
	cmd.PersistentFlags().IntP("idle-timeout", "m", def.IdleTimeoutMS, "idle connection timeout, in milliseconds")
	cmd.PersistentFlags().IntP("so-linger", "o", def.SOLinger, "SO_LINGER value for accepted sockets")
	cmd.PersistentFlags().IntP("sql-pool-size", "s", def.SQLPoolSize, "SQL connection pool size")
	cmd.PersistentFlags().IntP("worker-threads", "t", def.WorkerThreads, "worker pool thread count")
	cmd.PersistentFlags().IntP("log-level", "e", def.LogLevel, "log level, 0=debug 1=info 2=warn 3=error")
	cmd.PersistentFlags().IntP("dispatch", "a", int(def.Dispatch), "dispatch mode, 0=reactor 1=proactor")
	cmd.PersistentFlags().BoolP("daemonize", "d", def.Daemonize, "run detached from the controlling terminal")

	cmd.PersistentFlags().String("config", "", "path to an optional YAML configuration file")
	cmd.PersistentFlags().String("log-dir", def.LogDir, "directory log files are written to")
	cmd.PersistentFlags().String("log-suffix", def.LogSuffix, "suffix appended to rotated log filenames")
	cmd.PersistentFlags().String("upload-dir", def.UploadDir, "directory uploaded files are written to")
	cmd.PersistentFlags().String("src-dir", def.SrcDir, "directory static assets are served from")
}

// Load resolves a Config from cmd's bound flags, environment variables
// prefixed WEBSERVER_, and (if --config was given) a YAML file, in that
// precedence order, then validates the result.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("port", cmd.PersistentFlags().Lookup("port")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log_enabled", cmd.PersistentFlags().Lookup("log")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("idle_timeout_ms", cmd.PersistentFlags().Lookup("idle-timeout")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("so_linger", cmd.PersistentFlags().Lookup("so-linger")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("sql_pool_size", cmd.PersistentFlags().Lookup("sql-pool-size")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("worker_threads", cmd.PersistentFlags().Lookup("worker-threads")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("dispatch", cmd.PersistentFlags().Lookup("dispatch")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("daemonize", cmd.PersistentFlags().Lookup("daemonize")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log_dir", cmd.PersistentFlags().Lookup("log-dir")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log_suffix", cmd.PersistentFlags().Lookup("log-suffix")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("upload_dir", cmd.PersistentFlags().Lookup("upload-dir")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("src_dir", cmd.PersistentFlags().Lookup("src-dir")); err != nil {
		return nil, err
	}

	cfg := Default()
	v.SetDefault("trigger_mode", cfg.TriggerMode)
	v.SetDefault("sql_host", cfg.SQLHost)
	v.SetDefault("sql_port", cfg.SQLPort)
	v.SetDefault("sql_user", cfg.SQLUser)
	v.SetDefault("sql_password", cfg.SQLPassword)
	v.SetDefault("sql_database", cfg.SQLDatabase)
	v.SetDefault("log_queue_capacity", cfg.LogQueueCapacity)

	if path, _ := cmd.PersistentFlags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
