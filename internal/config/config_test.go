package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/666WXY666/WebServer/internal/config"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "webserver"}
	config.RegisterFlags(cmd)
	return cmd
}

func TestLoadAppliesDefaultsWithNoOverrides(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := config.Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := config.Default()
	if *cfg != want {
		t.Fatalf("expected defaults %+v, got %+v", want, *cfg)
	}
}

func TestLoadHonorsFlagOverrides(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.ParseFlags([]string{"-p", "8080", "-t", "4"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := config.Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.WorkerThreads != 4 {
		t.Fatalf("expected 4 worker threads, got %d", cfg.WorkerThreads)
	}
}

func TestLoadReadsYAMLFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webserver.yaml")
	yaml := "sql_host: db.internal\nsql_user: svc\nsql_database: prod\nport: 9100\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := newTestCommand()
	if err := cmd.ParseFlags([]string{"--config", path}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := config.Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SQLHost != "db.internal" || cfg.SQLUser != "svc" || cfg.SQLDatabase != "prod" {
		t.Fatalf("expected file overlay applied, got %+v", cfg)
	}
	if cfg.Port != 9100 {
		t.Fatalf("expected file-provided port 9100, got %d", cfg.Port)
	}
}

func TestFlagOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webserver.yaml")
	yaml := "sql_host: db.internal\nsql_user: svc\nsql_database: prod\nport: 9100\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := newTestCommand()
	if err := cmd.ParseFlags([]string{"--config", path, "-p", "9500"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := config.Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9500 {
		t.Fatalf("expected flag override 9500 to win over file's 9100, got %d", cfg.Port)
	}
}

func TestValidateRejectsProactorDispatch(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch = config.DispatchProactor

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected proactor dispatch to be rejected")
	}
}

func TestValidateRejectsOutOfRangeLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = 9

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected out-of-range log level to be rejected")
	}
}

func TestValidateRequiresSQLCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.SQLUser = ""

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing sql user to be rejected")
	}
}
