package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/silkyclouds/Autokong/internal/config"
)

// TestConfigPath tests the config path command
func TestConfigPath(t *testing.T) {
	cmd := newConfigPathCmd()
	if cmd == nil {
		t.Fatal("newConfigPathCmd() returned nil")
	}

	if cmd.Use != "path" {
		t.Errorf("Expected Use='path', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description is empty")
	}
}

// TestConfigShow tests the config show command
func TestConfigShow(t *testing.T) {
	cmd := newConfigShowCmd()
	if cmd == nil {
		t.Fatal("newConfigShowCmd() returned nil")
	}

	if cmd.Use != "show" {
		t.Errorf("Expected Use='show', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description is empty")
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
}

// TestConfigSet tests the config set command structure
func TestConfigSet(t *testing.T) {
	cmd := newConfigSetCmd()
	if cmd == nil {
		t.Fatal("newConfigSetCmd() returned nil")
	}

	if !strings.HasPrefix(cmd.Use, "set") {
		t.Errorf("Expected Use to start with 'set', got '%s'", cmd.Use)
	}

	if cmd.Args == nil {
		t.Error("Args validator is nil")
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
}

// TestConfigCommandGroup tests that the config group wires every subcommand
func TestConfigCommandGroup(t *testing.T) {
	cmd := newConfigCmd()

	want := map[string]bool{"show": false, "set": false, "path": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("config subcommand %q not registered", name)
		}
	}
}

func TestConfigSetAndShow(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "console.ini")

	out, _, err := execute(t, "--config", path, "config", "set", "autokong.base_url", "http://nas.local:5000/")
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(out, "autokong.base_url updated") {
		t.Errorf("unexpected output: %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "http://nas.local:5000" {
		t.Errorf("expected saved base URL, got %q", cfg.BaseURL)
	}

	if _, _, err := execute(t, "--config", path, "config", "set", "autokong.api_token", "s3cret"); err != nil {
		t.Fatalf("config set token failed: %v", err)
	}

	out, _, err = execute(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"[autokong]", "http://nas.local:5000", "[monitor]", "[cache]", path} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "s3cret") {
		t.Errorf("config show leaked the API token:\n%s", out)
	}
}

func TestConfigSet_RejectsUnknownKey(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "console.ini")

	_, _, err := execute(t, "--config", path, "config", "set", "autokong.nope", "1")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("config file should not be written on error")
	}
}

func TestConfigSet_RejectsInvalidValue(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "console.ini")

	if _, _, err := execute(t, "--config", path, "config", "set", "monitor.run_poll_interval_ms", "5"); err == nil {
		t.Fatal("expected error for an interval below the minimum")
	}
}

func TestConfigPath_FromFlag(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "console.ini")

	out, _, err := execute(t, "--config", path, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if !strings.Contains(out, "(from --config flag)") || !strings.Contains(out, path) {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "File does not exist") {
		t.Errorf("expected missing-file status:\n%s", out)
	}
}
