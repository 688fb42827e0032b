package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeCommitter struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeCommitter) CommitAndPush(_ context.Context, filenames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]string(nil), filenames...)
	f.calls = append(f.calls, cp)
	return nil
}

func (f *fakeCommitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestForcePushNow_CommitsImmediately(t *testing.T) {
	committer := &fakeCommitter{}
	s := New(committer, nil)
	defer s.Stop(context.Background())

	s.NotifyFileCreated("a.json")
	s.NotifyFileCreated("b.json")

	if err := s.ForcePushNow(context.Background()); err != nil {
		t.Fatalf("ForcePushNow: %v", err)
	}
	if committer.callCount() != 1 {
		t.Fatalf("expected exactly one commit, got %d", committer.callCount())
	}
}

func TestForcePushNow_NoOpWhenNothingPending(t *testing.T) {
	committer := &fakeCommitter{}
	s := New(committer, nil)
	defer s.Stop(context.Background())

	if err := s.ForcePushNow(context.Background()); err != nil {
		t.Fatalf("ForcePushNow: %v", err)
	}
	if committer.callCount() != 0 {
		t.Fatalf("expected no commit when nothing pending, got %d", committer.callCount())
	}
}

func TestIsScheduled_ReflectsPendingTimer(t *testing.T) {
	committer := &fakeCommitter{}
	s := New(committer, nil)
	defer s.Stop(context.Background())

	if s.IsScheduled() {
		t.Fatal("should not be scheduled before any notification")
	}
	s.NotifyFileCreated("a.json")
	time.Sleep(20 * time.Millisecond)
	if !s.IsScheduled() {
		t.Fatal("should be scheduled once a file is notified")
	}
}

func TestSustainedWrites_CommitAfterFirstDebounceNotIndefinitely(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the real Debounce timer; skipped in -short runs")
	}
	committer := &fakeCommitter{}
	s := New(committer, nil)
	defer s.Stop(context.Background())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				i++
				s.NotifyFileCreated(string(rune('a' + i%26)))
			}
		}
	}()

	// Writes keep arriving every 200ms, well under Debounce (5s). If the
	// timer were restarted on every notification the commit would never
	// fire; §4.7 instead leaves an already-running timer alone, so the
	// first commit still lands ~Debounce after the first write.
	deadline := time.After(Debounce + 2*time.Second)
	for {
		if committer.callCount() >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected a commit within Debounce+2s despite sustained sub-Debounce writes")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestStop_FlushesPendingCommit(t *testing.T) {
	committer := &fakeCommitter{}
	s := New(committer, nil)

	s.NotifyFileCreated("a.json")
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if committer.callCount() != 1 {
		t.Fatalf("expected Stop to flush one commit, got %d", committer.callCount())
	}
}
