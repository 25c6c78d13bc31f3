package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitHistory replicates a vault through a shared git remote. Each
// reconciliation pass becomes one commit; divergence surfaces as a
// rejected push and is resolved by merge, never by force.
type GitHistory struct {
	dir    string
	remote string
	branch string
}

// NewGitHistory opens the git-backed history for the replica rooted at
// dir. Empty remote and branch default to origin and main.
func NewGitHistory(dir, remote, branch string) *GitHistory {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}
	return &GitHistory{dir: dir, remote: remote, branch: branch}
}

// run executes one git command in the replica directory.
func (h *GitHistory) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = h.dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s",
			args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// Commit stages and records every local change. Returns false when the
// working tree is clean.
func (h *GitHistory) Commit(ctx context.Context, message string) (bool, error) {
	if _, err := h.run(ctx, "add", "-A"); err != nil {
		return false, err
	}
	status, err := h.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status) == "" {
		return false, nil
	}
	if _, err := h.run(ctx, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Publish pushes local commits to the shared remote. A non-fast-forward
// rejection maps to ErrDiverged; the remote is never force-updated.
func (h *GitHistory) Publish(ctx context.Context) error {
	out, err := h.run(ctx, "push", h.remote, h.branch)
	if err == nil {
		return nil
	}
	lower := strings.ToLower(out)
	if strings.Contains(lower, "non-fast-forward") ||
		strings.Contains(lower, "fetch first") ||
		strings.Contains(lower, "[rejected]") {
		return ErrDiverged
	}
	return err
}

// Ahead reports whether local commits are missing from the remote
// tracking ref. An unknown tracking ref means the remote was never
// seeded, so everything local counts as ahead.
func (h *GitHistory) Ahead(ctx context.Context) (bool, error) {
	out, err := h.run(ctx, "rev-list", "--count", h.remote+"/"+h.branch+"..HEAD")
	if err != nil {
		if strings.Contains(strings.ToLower(out), "unknown revision") {
			return true, nil
		}
		return false, err
	}
	return strings.TrimSpace(out) != "0", nil
}

// Integrate fetches the remote branch and merges it: fast-forward when
// local has no new commits, three-way merge otherwise. A merge that
// cannot complete is aborted so the replica stays usable.
func (h *GitHistory) Integrate(ctx context.Context) error {
	if _, err := h.run(ctx, "fetch", h.remote, h.branch); err != nil {
		return err
	}
	upstream := h.remote + "/" + h.branch
	if _, err := h.run(ctx, "merge", "--ff-only", upstream); err == nil {
		return nil
	}
	if _, err := h.run(ctx, "merge", "--no-edit", upstream); err != nil {
		// Leave no half-merged state behind.
		h.run(ctx, "merge", "--abort") //nolint:errcheck
		return err
	}
	return nil
}

// Head returns the current commit hash.
func (h *GitHistory) Head(ctx context.Context) (string, error) {
	out, err := h.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Modified reports whether path carries uncommitted changes.
func (h *GitHistory) Modified(ctx context.Context, path string) (bool, error) {
	out, err := h.run(ctx, "status", "--porcelain", "--", path)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Restore discards uncommitted changes to path.
func (h *GitHistory) Restore(ctx context.Context, path string) error {
	_, err := h.run(ctx, "checkout", "--", path)
	return err
}
