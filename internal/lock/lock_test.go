package lock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/testutil"
)

func writeInfo(t *testing.T, l *FileLock, info *LockInfo) {
	t.Helper()
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal lock info: %v", err)
	}
	if err := os.WriteFile(l.lockPath, data, 0o644); err != nil {
		t.Fatalf("write lock info: %v", err)
	}
}

func TestNewFileLock(t *testing.T) {
	dir := testutil.TempDir(t)

	lock, err := NewFileLock(dir)
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %s", lock.Path())
	}
	if lock.staleTimeout != DefaultStaleTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultStaleTimeout, lock.staleTimeout)
	}
}

func TestNewFileLock_EmptyDir(t *testing.T) {
	if _, err := NewFileLock(""); err == nil {
		t.Error("expected error for empty lock directory")
	}
}

func TestAcquireRelease(t *testing.T) {
	lock, err := NewFileLock(testutil.TempDir(t))
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	if err := lock.Acquire("run-1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !lock.IsLocked() {
		t.Error("lock should be held")
	}

	holder, err := lock.GetHolder()
	if err != nil {
		t.Fatalf("GetHolder failed: %v", err)
	}
	if holder.RunID != "run-1" || holder.PID != os.Getpid() {
		t.Errorf("unexpected holder: %+v", holder)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Error("lock file still exists after release")
	}
	if lock.IsLocked() {
		t.Error("lock should not be held after release")
	}
}

func TestAcquire_TwiceOnSameInstance(t *testing.T) {
	lock, err := NewFileLock(testutil.TempDir(t))
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	if err := lock.Acquire("run-1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if err := lock.Acquire("run-2"); err == nil {
		t.Error("second Acquire on the same instance should fail")
	}
}

func TestAcquire_HeldByOtherInstance(t *testing.T) {
	dir := testutil.TempDir(t)

	first, _ := NewFileLock(dir)
	if err := first.Acquire("run-1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer first.Release()

	second, _ := NewFileLock(dir)
	err := second.Acquire("run-2")
	if !IsLockError(err) {
		t.Fatalf("expected LockError, got %v", err)
	}
	if !errors.Is(err, domain.ErrRunInProgress) {
		t.Errorf("LockError should unwrap to ErrRunInProgress")
	}
}

func TestConcurrentAcquire(t *testing.T) {
	dir := testutil.TempDir(t)

	const goroutines = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	lockErrors := 0
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := NewFileLock(dir)
			if err != nil {
				return
			}
			<-start
			err = l.Acquire("concurrent")

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				acquired++
			} else if IsLockError(err) {
				lockErrors++
			}
		}()
	}
	close(start)
	wg.Wait()

	// Nobody releases, so exactly one winner regardless of scheduling
	if acquired != 1 {
		t.Errorf("expected exactly 1 acquire, got %d", acquired)
	}
	if lockErrors != goroutines-1 {
		t.Errorf("expected %d lock errors, got %d", goroutines-1, lockErrors)
	}
}

func TestStaleDetection_ProcessDead(t *testing.T) {
	lock, _ := NewFileLock(testutil.TempDir(t))

	hostname, _ := os.Hostname()
	writeInfo(t, lock, &LockInfo{
		PID:       999999, // unlikely to exist
		Hostname:  hostname,
		StartTime: time.Now().Add(-time.Hour),
		RunID:     "crashed",
	})

	if err := lock.Acquire("new-run"); err != nil {
		t.Fatalf("should take over stale lock: %v", err)
	}
	defer lock.Release()

	holder, err := lock.GetHolder()
	if err != nil {
		t.Fatalf("GetHolder failed: %v", err)
	}
	if holder.RunID != "new-run" {
		t.Errorf("expected new-run to hold the lock, got %s", holder.RunID)
	}
}

func TestStaleDetection_LiveProcessIgnoresTimeout(t *testing.T) {
	dir := testutil.TempDir(t)
	lock, _ := NewFileLock(dir)
	lock.SetStaleTimeout(time.Millisecond)

	if err := lock.Acquire("long-run"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()
	time.Sleep(5 * time.Millisecond)

	if !lock.IsLocked() {
		t.Error("lock held by a live process must not be stale")
	}
}

func TestStaleDetection_DifferentHost(t *testing.T) {
	lock, _ := NewFileLock(testutil.TempDir(t))
	lock.SetStaleTimeout(100 * time.Millisecond)

	writeInfo(t, lock, &LockInfo{
		PID:       12345,
		Hostname:  "foreign-host-" + testutil.RandomString(8),
		StartTime: time.Now().Add(-time.Hour),
		RunID:     "foreign",
	})

	if err := lock.Acquire("local"); err != nil {
		t.Fatalf("should take over expired foreign lock: %v", err)
	}
	defer lock.Release()
}

func TestForceRelease(t *testing.T) {
	dir := testutil.TempDir(t)
	holder, _ := NewFileLock(dir)
	if err := holder.Acquire("stuck"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	other, _ := NewFileLock(dir)
	if err := other.ForceRelease(); err != nil {
		t.Fatalf("ForceRelease failed: %v", err)
	}
	if other.IsLocked() {
		t.Error("lock should be gone after ForceRelease")
	}

	// The original holder notices the file vanished and releases cleanly
	if err := holder.Release(); err != nil {
		t.Errorf("Release after force release: %v", err)
	}
}

func TestLockError_Message(t *testing.T) {
	err := &LockError{
		Holder: &LockInfo{PID: 42, Hostname: "box", StartTime: time.Unix(0, 0).UTC(), RunID: "r1"},
		Reason: "busy",
	}
	want := "cannot acquire lock: busy (held by PID 42 on box since 1970-01-01T00:00:00Z, run: r1)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	bare := &LockError{Reason: "busy"}
	if bare.Error() != "cannot acquire lock: busy" {
		t.Errorf("unexpected message %q", bare.Error())
	}
}
