package gitops

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// diffNameOnlyGoGit lists files under EventsDir that changed between two
// commits using an in-process git diff, avoiding a shell-out for the one
// git operation that runs on every periodic fetch (§4.8 change-file
// discovery). Grounded on the go-git tree-diff idiom used for
// config-drift detection in the pack's GitOps-style reconciler.
func (w *Worktree) diffNameOnlyGoGit(before, after string) ([]string, error) {
	repo, err := git.PlainOpen(w.worktreePath)
	if err != nil {
		return nil, fmt.Errorf("gitops: opening worktree for diff: %w", err)
	}

	beforeCommit, err := repo.CommitObject(plumbing.NewHash(before))
	if err != nil {
		return nil, fmt.Errorf("gitops: resolving %s: %w", before, err)
	}
	afterCommit, err := repo.CommitObject(plumbing.NewHash(after))
	if err != nil {
		return nil, fmt.Errorf("gitops: resolving %s: %w", after, err)
	}

	beforeTree, err := beforeCommit.Tree()
	if err != nil {
		return nil, err
	}
	afterTree, err := afterCommit.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(beforeTree, afterTree)
	if err != nil {
		return nil, fmt.Errorf("gitops: diffing trees: %w", err)
	}

	prefix := EventsDir + "/"
	var files []string
	for _, change := range changes {
		path := change.To.Name
		if path == "" {
			path = change.From.Name // deletions carry the path in From
		}
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		files = append(files, strings.TrimPrefix(path, prefix))
	}
	return files, nil
}
