package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/router-for-me/marketplace-core/internal/config"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Setenv(config.EnvDatabaseURL, "file:"+filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv(config.EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))
	err := run(context.Background(), []string{"rebuild"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunMigrate(t *testing.T) {
	t.Setenv(config.EnvDatabaseURL, "file:"+filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv(config.EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))
	if err := run(context.Background(), []string{"migrate"}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func TestRunRejectsBadPort(t *testing.T) {
	t.Setenv(config.EnvDatabaseURL, "file:"+filepath.Join(t.TempDir(), "cli.db"))
	if err := run(context.Background(), []string{"-port", "70000", "migrate"}); err == nil {
		t.Fatalf("expected invalid port error")
	}
}
