// Package gitops owns every interaction with git: bootstrapping the
// sparse worktree that holds the event files, the debounced commit/push
// cycle, and the periodic fetch+merge that pulls in teammates' events
// (§4.8). It is grounded on the teacher's internal/git/worktree.go
// (worktree bootstrap, sparse checkout, health check) and
// cmd/bd/sync_git.go (commit/push retry, fetch/merge, conflict
// detection), generalized from a JSONL file with a custom 3-way merge
// driver to an append-only event directory that relies on git's own
// merge machinery: two branches adding different files never conflict,
// so no merge driver is needed, and any conflict that does occur is
// surfaced as MergeConflict rather than resolved automatically (Design
// Note §9).
package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// EventsDir is the path, relative to the worktree root, that sparse
// checkout restricts itself to (§3.4: the event directory lives at
// .sparkle/ within the synced branch).
const EventsDir = ".sparkle"

// Worktree manages the lifecycle of the dedicated git worktree backing
// one project's event store.
type Worktree struct {
	repoPath     string
	worktreePath string
	branch       string
	remote       string
	log          *zap.Logger
}

// New returns a Worktree manager for repoPath's branch, checked out at
// worktreePath.
func New(repoPath, worktreePath, branch, remote string, log *zap.Logger) *Worktree {
	if remote == "" {
		remote = "origin"
	}
	return &Worktree{repoPath: repoPath, worktreePath: worktreePath, branch: branch, remote: remote, log: log}
}

// Path returns the worktree's filesystem root.
func (w *Worktree) Path() string { return w.worktreePath }

// EventsPath returns the absolute path to the sparse-checked-out event
// directory inside the worktree.
func (w *Worktree) EventsPath() string { return filepath.Join(w.worktreePath, EventsDir) }

// Ensure bootstraps the worktree if it doesn't exist, or repairs it if a
// health check fails, mirroring the teacher's CreateBeadsWorktree
// "create, else verify health, else repair" shape.
func (w *Worktree) Ensure() error {
	pruneCmd := exec.Command("git", "worktree", "prune")
	pruneCmd.Dir = w.repoPath
	_ = pruneCmd.Run()

	if _, err := os.Stat(w.worktreePath); err == nil {
		if valid, _ := w.isValidWorktree(); valid {
			if err := w.CheckHealth(); err == nil {
				return nil
			}
			if err := w.Remove(); err != nil {
				_ = os.RemoveAll(w.worktreePath)
			}
		} else {
			if err := os.RemoveAll(w.worktreePath); err != nil {
				return fmt.Errorf("gitops: removing invalid worktree path: %w", err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(w.worktreePath), 0750); err != nil {
		return fmt.Errorf("gitops: creating worktree parent directory: %w", err)
	}

	branchExists := w.branchExists()

	var cmd *exec.Cmd
	if branchExists {
		cmd = exec.Command("git", "worktree", "add", "-f", "--no-checkout", w.worktreePath, w.branch)
	} else {
		cmd = exec.Command("git", "worktree", "add", "-f", "--no-checkout", "-b", w.branch, w.worktreePath)
	}
	cmd.Dir = w.repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: creating worktree: %w\noutput: %s", err, out)
	}

	if err := w.configureSparseCheckout(); err != nil {
		_ = w.Remove()
		return fmt.Errorf("gitops: configuring sparse checkout: %w", err)
	}

	checkoutCmd := exec.Command("git", "checkout", w.branch)
	checkoutCmd.Dir = w.worktreePath
	if out, err := checkoutCmd.CombinedOutput(); err != nil {
		_ = w.Remove()
		return fmt.Errorf("gitops: checking out %s in worktree: %w\noutput: %s", w.branch, err, out)
	}

	disableSparseCmd := exec.Command("git", "config", "core.sparseCheckout", "false")
	disableSparseCmd.Dir = w.repoPath
	_ = disableSparseCmd.Run()

	return nil
}

// Remove tears down the worktree.
func (w *Worktree) Remove() error {
	cmd := exec.Command("git", "worktree", "remove", w.worktreePath, "--force")
	cmd.Dir = w.repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		if removeErr := os.RemoveAll(w.worktreePath); removeErr != nil {
			return fmt.Errorf("gitops: removing worktree directory: %w (git error: %v, output: %s)", removeErr, err, out)
		}
		pruneCmd := exec.Command("git", "worktree", "prune")
		pruneCmd.Dir = w.repoPath
		_ = pruneCmd.Run()
	}
	return nil
}

// CheckHealth verifies the worktree exists, is registered with git, and
// has the expected sparse checkout, repairing the sparse checkout
// configuration in place if it has drifted.
func (w *Worktree) CheckHealth() error {
	if _, err := os.Stat(w.worktreePath); os.IsNotExist(err) {
		return fmt.Errorf("gitops: worktree path does not exist: %s", w.worktreePath)
	}
	valid, err := w.isValidWorktree()
	if err != nil {
		return fmt.Errorf("gitops: checking worktree validity: %w", err)
	}
	if !valid {
		return fmt.Errorf("gitops: path exists but is not a registered git worktree: %s", w.worktreePath)
	}
	if _, err := os.Stat(filepath.Join(w.worktreePath, ".git")); err != nil {
		return fmt.Errorf("gitops: worktree .git file missing: %w", err)
	}
	if err := w.verifySparseCheckout(); err != nil {
		if fixErr := w.configureSparseCheckout(); fixErr != nil {
			return fmt.Errorf("gitops: sparse checkout invalid and could not be repaired: %w (original: %v)", fixErr, err)
		}
	}
	return nil
}

func (w *Worktree) isValidWorktree() (bool, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = w.repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("gitops: listing worktrees: %w", err)
	}

	absWorktreePath, err := filepath.EvalSymlinks(w.worktreePath)
	if err != nil {
		absWorktreePath, err = filepath.Abs(w.worktreePath)
		if err != nil {
			return false, err
		}
	}

	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, "worktree ") {
			continue
		}
		path := strings.TrimSpace(strings.TrimPrefix(line, "worktree "))
		absPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			absPath, err = filepath.Abs(path)
			if err != nil {
				continue
			}
		}
		if absPath == absWorktreePath {
			return true, nil
		}
	}
	return false, nil
}

func (w *Worktree) branchExists() bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+w.branch)
	cmd.Dir = w.repoPath
	if err := cmd.Run(); err == nil {
		return true
	}
	cmd = exec.Command("git", "show-ref", "--verify", "--quiet", "refs/remotes/"+w.remote+"/"+w.branch)
	cmd.Dir = w.repoPath
	return cmd.Run() == nil
}

// configureSparseCheckout restricts the worktree to EventsDir using
// non-cone mode, scoped via extensions.worktreeConfig so it never leaks
// into the main repository's checkout (the teacher's GH#886 fix).
func (w *Worktree) configureSparseCheckout() error {
	initCmd := exec.Command("git", "sparse-checkout", "init", "--no-cone")
	initCmd.Dir = w.worktreePath
	if out, err := initCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: initializing sparse checkout: %w\noutput: %s", err, out)
	}
	setCmd := exec.Command("git", "sparse-checkout", "set", "/"+EventsDir+"/")
	setCmd.Dir = w.worktreePath
	if out, err := setCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: setting sparse checkout pattern: %w\noutput: %s", err, out)
	}
	return nil
}

func (w *Worktree) verifySparseCheckout() error {
	cmd := exec.Command("git", "sparse-checkout", "list")
	cmd.Dir = w.worktreePath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gitops: listing sparse checkout patterns: %w\noutput: %s", err, output)
	}
	if !strings.Contains(string(output), EventsDir) {
		return fmt.Errorf("gitops: sparse-checkout does not include %s", EventsDir)
	}
	return nil
}
