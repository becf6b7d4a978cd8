// Package session keeps the capture count and current day of the
// capture loop as an explicit value that can be checkpointed.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is a snapshot of the capture session.
type State struct {
	Day          string    `json:"day"`   // YYYY-MM-DD of the current capture directory
	Count        int       `json:"count"` // Captures since the last dispatch
	Dispatches   int       `json:"dispatches"`
	LastCapture  time.Time `json:"last_capture,omitempty"`
	LastDispatch time.Time `json:"last_dispatch,omitempty"`
}

// Checkpointer persists session state between process restarts.
type Checkpointer interface {
	// LoadState returns the last saved state, or nil if none was saved.
	LoadState(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, state State) error
}

// Tracker counts captures and decides when a dispatch is due.
type Tracker struct {
	mu    sync.RWMutex
	every int
	state State
}

// NewTracker creates a tracker that signals a dispatch every k captures
func NewTracker(every int) (*Tracker, error) {
	if every <= 0 {
		return nil, fmt.Errorf("dispatch interval must be positive, got %d", every)
	}
	return &Tracker{every: every}, nil
}

// Every returns the number of captures between dispatches.
func (t *Tracker) Every() int {
	return t.every
}

// Restore adopts a checkpointed state. A negative count is clamped to zero.
func (t *Tracker) Restore(state State) {
	if state.Count < 0 {
		state.Count = 0
	}
	if state.Dispatches < 0 {
		state.Dispatches = 0
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// SetDay records the day of the directory currently captured into. The count
// is not touched: a batch started before midnight carries over.
func (t *Tracker) SetDay(day string) {
	t.mu.Lock()
	t.state.Day = day
	t.mu.Unlock()
}

// RecordCapture counts one successful capture and returns the new count.
func (t *Tracker) RecordCapture(at time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Count++
	t.state.LastCapture = at
	return t.state.Count
}

// DispatchDue reports whether the count has reached a multiple of k.
func (t *Tracker) DispatchDue() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.state.Count > 0 && t.state.Count%t.every == 0
}

// ResetAfterDispatch zeroes the count once a dispatch has been triggered.
func (t *Tracker) ResetAfterDispatch(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Count = 0
	t.state.Dispatches++
	t.state.LastDispatch = at
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.state
}
