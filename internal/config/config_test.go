package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Identity.Alias = "ana"
	cfg.Outbox.MaxRetries = 5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Identity.Alias != "ana" {
		t.Errorf("Identity.Alias = %q, want ana", loaded.Identity.Alias)
	}
	if loaded.Outbox.MaxRetries != 5 {
		t.Errorf("Outbox.MaxRetries = %d, want 5", loaded.Outbox.MaxRetries)
	}
	if loaded.Connection.MaxDelay != 30*time.Second {
		t.Errorf("Connection.MaxDelay = %v, want 30s", loaded.Connection.MaxDelay)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Connection.MaxRetries != 10 {
		t.Errorf("MaxRetries = %d, want default 10", cfg.Connection.MaxRetries)
	}
}

// TestPartialFileKeepsDefaults verifies that keys absent from the file keep
// their default values and that durations parse from strings.
func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[connection]
base_delay = "500ms"

[typing]
timeout = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Connection.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", cfg.Connection.BaseDelay)
	}
	if cfg.Connection.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want default 30s", cfg.Connection.MaxDelay)
	}
	if cfg.Typing.Timeout != 5*time.Second {
		t.Errorf("Typing.Timeout = %v, want 5s", cfg.Typing.Timeout)
	}
	if cfg.Outbox.DrainGap != 100*time.Millisecond {
		t.Errorf("DrainGap = %v, want default 100ms", cfg.Outbox.DrainGap)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
