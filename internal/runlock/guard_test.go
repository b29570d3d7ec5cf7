package runlock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	fc.now = fc.now.Add(d)
	fc.mu.Unlock()
}

func newTestGuard(t *testing.T) (*Guard, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	g := New(filepath.Join(t.TempDir(), "run.lock"), time.Hour, zap.NewNop())
	g.nowFunc = clock.Now
	return g, clock
}

func TestAcquireRelease(t *testing.T) {
	g, _ := newTestGuard(t)

	h, err := g.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(g.path); err != nil {
		t.Fatalf("marker missing after acquire: %v", err)
	}

	h.Release()

	if _, err := os.Stat(g.path); !os.IsNotExist(err) {
		t.Fatalf("marker still present after release: %v", err)
	}
}

func TestSecondAcquireBlocked(t *testing.T) {
	g, _ := newTestGuard(t)

	h, err := g.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer h.Release()

	if _, err := g.Acquire(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStaleMarkerStolen(t *testing.T) {
	g, clock := newTestGuard(t)

	if _, err := g.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(61 * time.Minute)

	h, err := g.Acquire()
	if err != nil {
		t.Fatalf("expected stale marker to be stolen, got %v", err)
	}
	h.Release()
}

func TestFreshMarkerNotStolen(t *testing.T) {
	g, clock := newTestGuard(t)

	if _, err := g.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(59 * time.Minute)

	if _, err := g.Acquire(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning within staleness window, got %v", err)
	}
}

func TestFreshCorruptMarkerBlocks(t *testing.T) {
	g, _ := newTestGuard(t)

	if err := os.WriteFile(g.path, []byte("not-json"), 0o644); err != nil {
		t.Fatalf("write corrupt marker: %v", err)
	}

	if _, err := g.Acquire(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning for fresh corrupt marker, got %v", err)
	}
}

func TestStaleCorruptMarkerStolen(t *testing.T) {
	g, clock := newTestGuard(t)

	// A marker truncated mid-write by a killed owner must still expire;
	// staleness falls back to the file's mtime when the JSON is unreadable.
	if err := os.WriteFile(g.path, []byte(`{"pid": 12`), 0o644); err != nil {
		t.Fatalf("write corrupt marker: %v", err)
	}

	clock.Advance(61 * time.Minute)

	h, err := g.Acquire()
	if err != nil {
		t.Fatalf("expected stale corrupt marker to be stolen, got %v", err)
	}
	h.Release()
}

func TestReleaseTwiceIsSafe(t *testing.T) {
	g, _ := newTestGuard(t)

	h, err := g.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h.Release()
	h.Release() // second release must not panic or error out loudly
}
