package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/restoredrill/internal/domain"
)

const (
	// LockFileName is the name of the lock file inside the workspace
	LockFileName = ".restoredrill.lock"
	// DefaultStaleTimeout is how long a lock from another host stays valid
	DefaultStaleTimeout = 24 * time.Hour
)

// LockInfo contains metadata about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	RunID     string    `json:"run_id,omitempty"`
}

// FileLock guarantees a single active run per workspace. Runs are long and
// sequential, so the lock is held for the whole generate/verify cycle.
type FileLock struct {
	lockPath     string
	staleTimeout time.Duration
	info         *LockInfo
}

// NewFileLock creates a lock stored in dir
func NewFileLock(dir string) (*FileLock, error) {
	if dir == "" {
		return nil, fmt.Errorf("lock directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		lockPath:     filepath.Join(dir, LockFileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// SetStaleTimeout sets the duration after which a foreign-host lock is stale
func (l *FileLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.lockPath
}

// Acquire takes the lock for runID.
// Returns a *LockError wrapping domain.ErrRunInProgress if another run holds it.
func (l *FileLock) Acquire(runID string) error {
	if l.info != nil {
		return fmt.Errorf("lock already held by this instance (run %s)", l.info.RunID)
	}

	if existing, err := l.readLockInfo(); err == nil {
		if !l.isStale(existing) {
			return &LockError{Holder: existing, Reason: "workspace is used by another run"}
		}
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		RunID:     runID,
	}

	// O_EXCL makes creation atomic against a concurrent Acquire
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			holder, _ := l.readLockInfo()
			return &LockError{Holder: holder, Reason: "lock acquired by another run during acquisition"}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// Release releases the lock if this instance holds it
func (l *FileLock) Release() error {
	if l.info == nil {
		return nil
	}
	defer func() { l.info = nil }()

	existing, err := l.readLockInfo()
	if err != nil {
		return nil // already gone
	}
	if !l.heldByThisInstance(existing) {
		return fmt.Errorf("lock was taken over by run %s", existing.RunID)
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked checks if a live lock exists
func (l *FileLock) IsLocked() bool {
	info, err := l.readLockInfo()
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// GetHolder returns information about the current lock holder
func (l *FileLock) GetHolder() (*LockInfo, error) {
	info, err := l.readLockInfo()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, fmt.Errorf("lock is stale")
	}
	return info, nil
}

// ForceRelease removes the lock file regardless of holder.
// Only for recovering from a crashed run.
func (l *FileLock) ForceRelease() error {
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.info = nil
	return nil
}

func (l *FileLock) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &info, nil
}

// isStale reports a lock whose process is gone (same host) or whose
// age exceeds the stale timeout (other host)
func (l *FileLock) isStale(info *LockInfo) bool {
	hostname, _ := os.Hostname()
	if info.Hostname == hostname {
		return !processExists(info.PID)
	}
	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *FileLock) heldByThisInstance(info *LockInfo) bool {
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() &&
		info.Hostname == hostname &&
		l.info.StartTime.Equal(info.StartTime) &&
		l.info.RunID == info.RunID
}

// LockError represents an error when lock cannot be acquired
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("cannot acquire lock: %s (held by PID %d on %s since %s, run: %s)",
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.RunID,
		)
	}
	return fmt.Sprintf("cannot acquire lock: %s", e.Reason)
}

// Unwrap lets errors.Is match domain.ErrRunInProgress
func (e *LockError) Unwrap() error {
	return domain.ErrRunInProgress
}

// IsLockError checks if an error is a LockError
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
