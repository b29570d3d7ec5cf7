// Package runlock enforces at most one pipeline run at a time across process
// restarts. The lock is an advisory marker file with a staleness window: an
// abandoned run is recovered by expiry, not by probing the owner.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyRunning signals that a live marker exists. It is a normal skip,
// not a failure: the caller must skip this run entirely rather than retry.
var ErrAlreadyRunning = errors.New("another run is already in progress")

// DefaultStaleAfter is how old a marker may be before it is presumed
// abandoned and stolen.
const DefaultStaleAfter = time.Hour

// Guard acquires and releases the persisted run marker.
type Guard struct {
	path       string
	staleAfter time.Duration
	logger     *zap.Logger
	nowFunc    func() time.Time // injectable clock for testing
}

// Handle represents a held lock. Release it on every exit path; a leaked
// marker blocks all runs until the staleness window elapses.
type Handle struct {
	guard *Guard
}

type marker struct {
	PID        int   `json:"pid"`
	AcquiredAt int64 `json:"acquired_at"`
}

// New creates a Guard over the marker at path. A zero staleAfter selects
// DefaultStaleAfter.
func New(path string, staleAfter time.Duration, logger *zap.Logger) *Guard {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Guard{
		path:       path,
		staleAfter: staleAfter,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// Acquire claims the marker. A live marker yields ErrAlreadyRunning; a stale
// one (older than the staleness window) is discarded and overwritten. An
// unreadable marker (truncated mid-write by a killed owner) falls back to the
// file's modification time for the staleness check, so it still expires.
func (g *Guard) Acquire() (*Handle, error) {
	data, err := os.ReadFile(g.path)
	switch {
	case err == nil:
		acquiredAt, pid, parseErr := parseMarker(data, g.path)
		if parseErr != nil {
			return nil, parseErr
		}

		age := g.nowFunc().Sub(acquiredAt)
		if age <= g.staleAfter {
			return nil, fmt.Errorf("%w (pid %d, held %s)", ErrAlreadyRunning, pid, age.Round(time.Second))
		}

		g.logger.Warn("discarding stale lock marker",
			zap.Int("owner_pid", pid),
			zap.Duration("age", age))
		if rmErr := os.Remove(g.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("remove stale lock marker: %w", rmErr)
		}

	case !os.IsNotExist(err):
		return nil, fmt.Errorf("check lock marker: %w", err)
	}

	m := marker{PID: os.Getpid(), AcquiredAt: g.nowFunc().Unix()}
	data, err = json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode lock marker: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write lock marker: %w", err)
	}

	g.logger.Info("run lock acquired", zap.String("path", g.path))
	return &Handle{guard: g}, nil
}

// parseMarker extracts the acquisition time and owner pid. An unparseable
// marker reports the file's mtime instead, with pid 0.
func parseMarker(data []byte, path string) (time.Time, int, error) {
	var m marker
	if err := json.Unmarshal(data, &m); err == nil {
		return time.Unix(m.AcquiredAt, 0), m.PID, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("check unreadable lock marker: %w", err)
	}
	return info.ModTime(), 0, nil
}

// Release removes the marker unconditionally. Safe to call once per Handle;
// a missing marker is not an error.
func (h *Handle) Release() {
	if err := os.Remove(h.guard.path); err != nil && !os.IsNotExist(err) {
		h.guard.logger.Error("failed to remove lock marker",
			zap.String("path", h.guard.path), zap.Error(err))
		return
	}
	h.guard.logger.Info("run lock released", zap.String("path", h.guard.path))
}
