// Package identity resolves the local developer's name/email from git
// configuration and derives the stable per-person hash used in monitor and
// taken event filenames (§3.1).
package identity

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Local reads user.name and user.email from git config, preferring the
// repository-local value over the global one (git's own precedence).
func Local(repoDir string) (name, email string, err error) {
	name, err = gitConfig(repoDir, "user.name")
	if err != nil {
		return "", "", fmt.Errorf("reading user.name: %w", err)
	}
	email, err = gitConfig(repoDir, "user.email")
	if err != nil {
		return "", "", fmt.Errorf("reading user.email: %w", err)
	}
	if name == "" || email == "" {
		return "", "", fmt.Errorf("git user.name/user.email not configured")
	}
	return name, email, nil
}

func gitConfig(repoDir, key string) (string, error) {
	cmd := exec.Command("git", "config", "--get", key)
	if repoDir != "" {
		cmd.Dir = repoDir
	}
	out, err := cmd.Output()
	if err != nil {
		// Not configured is not an error at this layer; callers decide.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Hash returns the stable per-person hash for (name, email), used as the
// <personHash> filename component for monitor/taken events (§3.1). The
// hash is a 16-character lowercase hex xxhash64 digest: short enough to
// keep filenames readable, long enough that collisions between distinct
// people are not a practical concern for one repository.
func Hash(name, email string) string {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(email)
	return fmt.Sprintf("%016x", h.Sum64())
}
