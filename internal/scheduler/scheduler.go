// Package scheduler debounces event-file writes into periodic git
// commits, per §4.5's final write-path step and Design Note §9's
// instruction to give the scheduler its own dedicated goroutine fed by a
// channel of filenames rather than a shared-state flag polled from
// elsewhere. It is grounded on the teacher's cmd/bd/sync_git.go retry
// loop, generalized from "sync on every command" to "debounce, then
// sync".
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Debounce is the wait period after the last notified write before a
// commit is attempted (§4.5: "roughly five seconds").
const Debounce = 5 * time.Second

// Committer performs the actual commit-and-push cycle. Implemented by
// gitops.Worktree in production and a fake in tests.
type Committer interface {
	CommitAndPush(ctx context.Context, filenames []string) error
}

// Scheduler coalesces bursts of file-created notifications into a single
// debounced commit. Exactly one commit attempt is in flight at a time;
// notifications arriving during a commit are captured for the next round
// rather than dropped.
type Scheduler struct {
	log       *zap.Logger
	committer Committer

	notify chan string
	force  chan chan error
	stop   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	scheduled bool
}

// New starts the scheduler's background goroutine. Call Stop to shut it
// down cleanly (flushing any pending commit first).
func New(committer Committer, log *zap.Logger) *Scheduler {
	s := &Scheduler{
		committer: committer,
		log:       log,
		notify:    make(chan string, 256),
		force:     make(chan chan error),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// NotifyFileCreated arms the debounce timer; safe to call from any
// goroutine, never blocks the caller (sparkleapi.API.write calls this
// synchronously after every event write).
func (s *Scheduler) NotifyFileCreated(filename string) {
	select {
	case s.notify <- filename:
	default:
		// Channel is full (256 writes queued without a commit landing);
		// the pending set already contains enough to trigger a commit,
		// so dropping this notification doesn't lose the file itself,
		// only the redundant wakeup.
	}
}

// ForcePushNow short-circuits the debounce and commits immediately,
// blocking until the attempt completes. Used by graceful shutdown.
func (s *Scheduler) ForcePushNow(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.force <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsScheduled reports whether a commit is currently debounced (pending
// files exist but the timer hasn't fired yet).
func (s *Scheduler) IsScheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}

// Stop flushes any pending commit and terminates the background
// goroutine.
func (s *Scheduler) Stop(ctx context.Context) error {
	err := s.ForcePushNow(ctx)
	close(s.stop)
	<-s.done
	return err
}

func (s *Scheduler) run() {
	defer close(s.done)

	pending := map[string]bool{}
	var timer *time.Timer
	var timerC <-chan time.Time

	armTimer := func() {
		if timer != nil {
			// Already running: §4.7 leaves it alone so sustained writes
			// spaced under Debounce apart still commit ~Debounce after the
			// first one, instead of being postponed indefinitely.
			return
		}
		s.mu.Lock()
		s.scheduled = true
		s.mu.Unlock()
		timer = time.NewTimer(Debounce)
		timerC = timer.C
	}

	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	commit := func() error {
		if len(pending) == 0 {
			return nil
		}
		files := make([]string, 0, len(pending))
		for f := range pending {
			files = append(files, f)
		}
		pending = map[string]bool{}
		s.mu.Lock()
		s.scheduled = false
		s.mu.Unlock()

		err := s.committer.CommitAndPush(context.Background(), files)
		if err != nil && s.log != nil {
			s.log.Warn("commit and push failed", zap.Error(err), zap.Int("files", len(files)))
		}
		return err
	}

	for {
		select {
		case name := <-s.notify:
			pending[name] = true
			armTimer()

		case <-timerC:
			disarm()
			commit()

		case reply := <-s.force:
			disarm()
			// Take in notifications already queued so files written before
			// the force request are part of this commit.
			for drained := false; !drained; {
				select {
				case name := <-s.notify:
					pending[name] = true
				default:
					drained = true
				}
			}
			reply <- commit()

		case <-s.stop:
			return
		}
	}
}
