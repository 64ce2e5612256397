package proclock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file still present after release")
	}
}

func TestAcquireHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()

	// The lock file names this test process, which is very much alive.
	if _, err := Acquire(path); !errors.Is(err, ErrHeld) {
		t.Fatalf("second acquire: got %v, want ErrHeld", err)
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	// No process has pid 0; the file is stale by construction.
	if err := os.WriteFile(path, []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire over stale lock: %v", err)
	}
	lock.Release()
}

func TestTakeStaleLeavesFreshLockAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	// A lock naming a live process stands in for one re-created by a new
	// holder after the staleness check. Takeover must refuse and leave the
	// file in place.
	content := []byte(fmt.Sprintf("%d\n", os.Getpid()))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := takeStale(path); !errors.Is(err, ErrHeld) {
		t.Fatalf("takeStale: got %v, want ErrHeld", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("lock file gone after refused takeover: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("lock file content changed: %q", got)
	}
}

func TestAcquireTakesOverGarbageLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire over garbage lock: %v", err)
	}
	lock.Release()
}
