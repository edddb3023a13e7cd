package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv("DRIFTCHAT_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".driftchat", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("DRIFTCHAT_HOME", tmp)
	if got := BaseDir(); got != tmp {
		t.Errorf("BaseDir() = %q, want %q", got, tmp)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestAppDBPath(t *testing.T) {
	got := AppDBPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "driftchat.db")) {
		t.Errorf("AppDBPath(test) = %q, want suffix sessions/test/driftchat.db", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("DRIFTCHAT_HOME", t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	for _, d := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv("DRIFTCHAT_HOME", t.TempDir())
	t.Setenv(SessionEnv, "")

	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve() = %q, want %q", got, DefaultSessionName)
	}

	t.Setenv(SessionEnv, "work")
	if got := Resolve(""); got != "work" {
		t.Errorf("Resolve() with %s = %q, want work", SessionEnv, got)
	}
	if got := Resolve("laptop"); got != "laptop" {
		t.Errorf("Resolve(laptop) = %q, flag should win", got)
	}
}
