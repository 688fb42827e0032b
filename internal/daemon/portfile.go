package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// lockDirName holds only the daemon's OS-level single-instance lock file.
// It is process-management bookkeeping, not part of the git-tracked
// event-store layout, so it lives at the worktree root rather than
// inside the data directory (contrast last_port.data below).
const lockDirName = ".sparkle-daemon"

// ErrAlreadyRunning is returned by AcquireSingleInstanceLock when another
// daemon already holds the lock for this worktree.
type ErrAlreadyRunning struct {
	Port int
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("sparkle daemon already running on port %d", e.Port)
}

// AcquireSingleInstanceLock takes an exclusive, non-blocking lock on the
// worktree's daemon lock file. On success it returns the lock (the
// caller must keep it alive and Unlock on shutdown) and the listener
// should proceed to Serve. On failure it reads the existing daemon's
// port from dataDir's handoff file and returns *ErrAlreadyRunning.
// dataDir is the event-store data directory (§6.1: sibling of
// .aggregates/), the same path passed to WritePortFile/ReadPortFile.
func AcquireSingleInstanceLock(worktreePath, dataDir string) (*flock.Flock, error) {
	dir := filepath.Join(worktreePath, lockDirName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("daemon: creating state directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "daemon.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("daemon: acquiring lock: %w", err)
	}
	if !locked {
		port, readErr := ReadPortFile(dataDir)
		if readErr != nil {
			return nil, fmt.Errorf("daemon: another instance is running but its port could not be read: %w", readErr)
		}
		return nil, &ErrAlreadyRunning{Port: port}
	}
	return lock, nil
}

// WritePortFile persists the bound port inside the event-store data
// directory (§6.1: `last_port.data`, a sibling of `.aggregates/`) so a
// subsequent process (the CLI, or a daemon instance that lost the
// startup race) can find the running daemon.
func WritePortFile(dataDir string, port int) error {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, "last_port.data"), []byte(strconv.Itoa(port)), 0640)
}

// ReadPortFile reads back the port written by WritePortFile.
func ReadPortFile(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "last_port.data"))
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("daemon: malformed port file: %w", err)
	}
	return port, nil
}

// listen binds listenAddr, preferring preferredPort (the configured fixed
// port; 0 means none) when it's still free, and falling back to an
// OS-assigned ephemeral port otherwise.
func listen(listenAddr string, preferredPort int) (net.Listener, int, error) {
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host = listenAddr
	}

	if preferredPort != 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, preferredPort))
		if err == nil {
			return ln, preferredPort, nil
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:0", host))
	if err != nil {
		return nil, 0, fmt.Errorf("daemon: binding listener: %w", err)
	}
	return ln, ln.Addr().(*net.TCPAddr).Port, nil
}
