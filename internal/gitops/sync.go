package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MergeConflictError is returned when a fetch+merge leaves unmerged
// paths. Sparkle never attempts to resolve these: two branches adding
// distinct event files never conflict, so a real conflict here means a
// rename, a branch history rewrite, or a non-Sparkle edit, and is
// reported to the operator rather than guessed at (Design Note §9).
type MergeConflictError struct {
	Paths []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("gitops: merge conflict in %d path(s): %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// unmergedStatusCodes are the git status --porcelain prefixes that
// indicate an unresolved merge, per the teacher's hasJSONLConflict /
// gitHasUnmergedPaths checks.
var unmergedStatusCodes = map[string]bool{
	"DD": true, "AU": true, "UD": true, "UA": true, "DU": true, "AA": true, "UU": true,
}

const (
	maxPushRetries = 5
	retryBaseDelay = 500 * time.Millisecond
)

// CommitAndPush stages and commits the given event filenames (relative to
// EventsPath), then pushes, retrying on non-fast-forward rejection by
// fetching and rebasing before trying again. It implements
// scheduler.Committer.
func (w *Worktree) CommitAndPush(ctx context.Context, filenames []string) error {
	if len(filenames) == 0 {
		return nil
	}

	if err := w.stage(ctx, filenames); err != nil {
		return err
	}
	if err := w.commit(ctx, fmt.Sprintf("sparkle sync: %d event(s)", len(filenames))); err != nil {
		return err
	}

	if !w.hasRemote(ctx) {
		return nil // local-only mode: commit lands, nothing to push
	}

	var lastErr error
	for attempt := 0; attempt < maxPushRetries; attempt++ {
		err := w.push(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if mergeErr := w.fetchAndRebase(ctx); mergeErr != nil {
			return mergeErr // surfaces MergeConflictError untouched
		}

		delay := retryBaseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("gitops: push failed after %d attempts: %w", maxPushRetries, lastErr)
}

func (w *Worktree) stage(ctx context.Context, filenames []string) error {
	args := append([]string{"-C", w.worktreePath, "add", "--"}, prefixed(filenames)...)
	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: staging event files: %w\noutput: %s", err, out)
	}
	return nil
}

func prefixed(filenames []string) []string {
	out := make([]string, len(filenames))
	for i, f := range filenames {
		out[i] = EventsDir + "/" + f
	}
	return out
}

func (w *Worktree) commit(ctx context.Context, message string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "commit", "-m", message)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "nothing to commit") {
			return nil
		}
		return fmt.Errorf("gitops: committing: %w\noutput: %s", err, out)
	}
	return nil
}

func (w *Worktree) hasRemote(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "remote")
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) != ""
}

func (w *Worktree) push(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "push", w.remote, w.branch)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: push: %w\noutput: %s", err, out)
	}
	return nil
}

// FetchAndMerge fetches w.remote and merges it into the worktree's
// branch, returning the set of event filenames that became newly visible
// (for aggregate invalidation, §4.8) and the before/after commit SHAs.
func (w *Worktree) FetchAndMerge(ctx context.Context) (changedFiles []string, beforeSHA, afterSHA string, err error) {
	beforeSHA, err = w.headSHA(ctx)
	if err != nil {
		return nil, "", "", err
	}

	fetchCmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "fetch", w.remote, w.branch)
	if out, ferr := fetchCmd.CombinedOutput(); ferr != nil {
		return nil, "", "", fmt.Errorf("gitops: fetch: %w\noutput: %s", ferr, out)
	}

	mergeCmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "merge", "--no-edit", w.remote+"/"+w.branch)
	out, merr := mergeCmd.CombinedOutput()
	if merr != nil {
		if conflicted, paths := w.conflictedPaths(ctx); conflicted {
			return nil, "", "", &MergeConflictError{Paths: paths}
		}
		return nil, "", "", fmt.Errorf("gitops: merge: %w\noutput: %s", merr, out)
	}

	afterSHA, err = w.headSHA(ctx)
	if err != nil {
		return nil, "", "", err
	}
	if afterSHA == beforeSHA {
		return nil, beforeSHA, afterSHA, nil
	}

	files, err := w.diffNameOnlyGoGit(beforeSHA, afterSHA)
	if err != nil {
		return nil, beforeSHA, afterSHA, err
	}
	return files, beforeSHA, afterSHA, nil
}

// fetchAndRebase is used by CommitAndPush's retry loop: fetch the remote
// and rebase the local commit on top, so the retried push is a fast
// forward. Conflicts here are reported the same way as FetchAndMerge's.
func (w *Worktree) fetchAndRebase(ctx context.Context) error {
	fetchCmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "fetch", w.remote, w.branch)
	if out, err := fetchCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: fetch: %w\noutput: %s", err, out)
	}
	rebaseCmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "rebase", w.remote+"/"+w.branch)
	out, err := rebaseCmd.CombinedOutput()
	if err != nil {
		if conflicted, paths := w.conflictedPaths(ctx); conflicted {
			abortCmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "rebase", "--abort")
			_ = abortCmd.Run()
			return &MergeConflictError{Paths: paths}
		}
		return fmt.Errorf("gitops: rebase: %w\noutput: %s", err, out)
	}
	return nil
}

func (w *Worktree) conflictedPaths(ctx context.Context) (bool, []string) {
	cmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "status", "--porcelain")
	out, err := cmd.Output()
	if err != nil {
		return false, nil
	}
	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 3 {
			continue
		}
		if unmergedStatusCodes[line[:2]] {
			paths = append(paths, strings.TrimSpace(line[3:]))
		}
	}
	return len(paths) > 0, paths
}

func (w *Worktree) headSHA(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", w.worktreePath, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("gitops: resolving HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// AvailabilityReason explains why the last availability observation
// changed (§4.8 availability observer).
type AvailabilityReason string

const (
	ReasonPushSuccess  AvailabilityReason = "push-success"
	ReasonFetchSuccess AvailabilityReason = "fetch-success"
	ReasonPushFailed   AvailabilityReason = "push-failed"
	ReasonFetchFailed  AvailabilityReason = "fetch-failed"
	ReasonNetworkError AvailabilityReason = "network-error"
	ReasonAuthError    AvailabilityReason = "auth-error"
	ReasonMergeConflict AvailabilityReason = "merge-conflict"
	ReasonPushTimeout  AvailabilityReason = "push-timeout"
	ReasonUnknown      AvailabilityReason = "unknown"
)

// ClassifyError maps an error from a fetch/push/merge attempt to an
// AvailabilityReason for the SSE availability observer.
func ClassifyError(err error) AvailabilityReason {
	if err == nil {
		return ReasonPushSuccess
	}
	if _, ok := err.(*MergeConflictError); ok {
		return ReasonMergeConflict
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"):
		return ReasonPushTimeout
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "authentication"), strings.Contains(msg, "403"):
		return ReasonAuthError
	case strings.Contains(msg, "could not resolve host"), strings.Contains(msg, "network"), strings.Contains(msg, "connection"):
		return ReasonNetworkError
	case strings.Contains(msg, "push"):
		return ReasonPushFailed
	case strings.Contains(msg, "fetch"):
		return ReasonFetchFailed
	default:
		return ReasonUnknown
	}
}

// StartAvailabilityObserver polls FetchAndMerge every interval, calling
// onStart right before each attempt and onChange with the resulting
// reason and any event filenames that became newly visible. It runs
// until ctx is cancelled. onStart may be nil.
func (w *Worktree) StartAvailabilityObserver(ctx context.Context, interval time.Duration, onStart func(), onChange func(reason AvailabilityReason, newFiles []string), log *zap.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if onStart != nil {
					onStart()
				}
				files, _, _, err := w.FetchAndMerge(ctx)
				reason := ClassifyError(err)
				if err != nil && reason != ReasonMergeConflict && log != nil {
					log.Warn("periodic fetch failed", zap.String("reason", string(reason)), zap.Error(err))
				}
				onChange(reason, files)
			}
		}
	}()
}
