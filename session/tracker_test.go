package session

import (
	"sync"
	"testing"
	"time"
)

func TestNewTracker_RejectsNonPositive(t *testing.T) {
	for _, k := range []int{0, -1} {
		if _, err := NewTracker(k); err == nil {
			t.Errorf("NewTracker(%d) should fail", k)
		}
	}
}

func TestTracker_DispatchEveryK(t *testing.T) {
	tracker, err := NewTracker(3)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.Local)

	if tracker.DispatchDue() {
		t.Fatal("dispatch should not be due on a fresh tracker")
	}

	dispatches := 0
	for i := 1; i <= 9; i++ {
		tracker.RecordCapture(now)
		if tracker.DispatchDue() {
			dispatches++
			tracker.ResetAfterDispatch(now)
			if got := tracker.Snapshot().Count; got != 0 {
				t.Fatalf("count after dispatch = %d, want 0", got)
			}
		}
	}

	if dispatches != 3 {
		t.Errorf("dispatches = %d, want 3", dispatches)
	}
	if got := tracker.Snapshot().Dispatches; got != 3 {
		t.Errorf("state dispatches = %d, want 3", got)
	}
}

func TestTracker_SetDayKeepsCount(t *testing.T) {
	tracker, _ := NewTracker(100)
	tracker.SetDay("2025-05-01")
	tracker.RecordCapture(time.Now())
	tracker.RecordCapture(time.Now())

	tracker.SetDay("2025-05-02")

	state := tracker.Snapshot()
	if state.Day != "2025-05-02" || state.Count != 2 {
		t.Errorf("unexpected state after day change: %+v", state)
	}
}

func TestTracker_RestoreClampsNegative(t *testing.T) {
	tracker, _ := NewTracker(10)
	tracker.Restore(State{Day: "2025-05-01", Count: -4, Dispatches: 2})

	state := tracker.Snapshot()
	if state.Count != 0 || state.Dispatches != 2 || state.Day != "2025-05-01" {
		t.Errorf("unexpected restored state: %+v", state)
	}
}

func TestTracker_ConcurrentSnapshots(t *testing.T) {
	tracker, _ := NewTracker(5)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if tracker.Snapshot().Count < 0 {
					t.Error("count went negative")
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		tracker.RecordCapture(time.Now())
		if tracker.DispatchDue() {
			tracker.ResetAfterDispatch(time.Now())
		}
	}
	wg.Wait()

	if got := tracker.Snapshot().Dispatches; got != 20 {
		t.Errorf("dispatches = %d, want 20", got)
	}
}
