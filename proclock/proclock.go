// Package proclock provides a pid-file lock so only one lookup or update
// run touches the browser profile and install tree at a time.
package proclock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld means another live process holds the lock.
var ErrHeld = errors.New("proclock: already locked by a running process")

// Lock is a held pid-file lock.
type Lock struct {
	path string
}

// Acquire takes the lock at path. A lock file naming a dead process is
// stale and taken over; one naming a live process fails with ErrHeld.
func Acquire(path string) (*Lock, error) {
	for i := 0; i < 2; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("proclock: writing %s: %w", path, werr)
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("proclock: creating %s: %w", path, err)
		}
		pid, rerr := readPid(path)
		if rerr == nil && pidAlive(pid) {
			return nil, fmt.Errorf("%w: pid %d", ErrHeld, pid)
		}
		// Stale or unreadable lock file: take it over and retry once.
		if err := takeStale(path); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrHeld, path)
}

// takeStale removes a lock file believed stale. The file is first moved
// aside atomically and its pid re-checked after the move: a holder may
// have released and a new process re-created the file between our read
// and now, and that fresh lock must survive, not be deleted.
func takeStale(path string) error {
	aside := fmt.Sprintf("%s.stale.%d", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("proclock: moving stale %s aside: %w", path, err)
	}
	if pid, err := readPid(aside); err == nil && pidAlive(pid) {
		// We grabbed a live lock. Put it back where its holder expects it.
		if rerr := os.Rename(aside, path); rerr != nil {
			os.Remove(aside)
			return fmt.Errorf("proclock: restoring %s: %w", path, rerr)
		}
		return fmt.Errorf("%w: pid %d", ErrHeld, pid)
	}
	if err := os.Remove(aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("proclock: removing stale %s: %w", aside, err)
	}
	return nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("proclock: releasing %s: %w", l.path, err)
	}
	return nil
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// pidAlive probes the process with signal 0. An EPERM answer still means
// the process exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
