// Package worktree manages the implementor's isolated git worktrees
// under <repo>/.worktrees (§4.H step 1, §4.L).
package worktree

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager creates, tears down, and reconciles worktrees rooted at repo.
type Manager struct {
	repoRoot      string
	defaultBranch string
	logger        *slog.Logger
}

// New returns a Manager for repoRoot, resetting new worktrees from
// defaultBranch.
func New(repoRoot, defaultBranch string, logger *slog.Logger) *Manager {
	return &Manager{repoRoot: repoRoot, defaultBranch: defaultBranch, logger: logger}
}

func (m *Manager) dir(branchName string) string {
	return filepath.Join(m.repoRoot, ".worktrees", branchName)
}

// Create force-removes any stale worktree at the target path, then
// creates a fresh one on branchName, force-reset from the default
// branch.
func (m *Manager) Create(ctx context.Context, branchName string) (string, error) {
	dir := m.dir(branchName)

	if err := m.removeWorktreeAt(ctx, dir); err != nil {
		return "", fmt.Errorf("clean stale worktree: %w", err)
	}
	if err := m.deleteBranch(ctx, branchName); err != nil {
		m.logger.Warn("delete stale branch failed, continuing", "branch", branchName, "error", err)
	}

	if _, err := m.runGit(ctx, m.repoRoot, "fetch", "origin", m.defaultBranch); err != nil {
		m.logger.Warn("fetch default branch failed, using local ref", "error", err)
	}

	if _, err := m.runGit(ctx, m.repoRoot, "worktree", "add", "-B", branchName, dir,
		"origin/"+m.defaultBranch); err != nil {
		if _, err2 := m.runGit(ctx, m.repoRoot, "worktree", "add", "-B", branchName, dir,
			m.defaultBranch); err2 != nil {
			return "", fmt.Errorf("create worktree: %w", err2)
		}
	}

	return dir, nil
}

// Remove deletes the worktree and its branch, best-effort (§4.H step 8,
// §4.L). Called on every implementor session end regardless of outcome.
func (m *Manager) Remove(ctx context.Context, branchName string) {
	dir := m.dir(branchName)
	if err := m.removeWorktreeAt(ctx, dir); err != nil {
		m.logger.Warn("remove worktree failed", "branch", branchName, "error", err)
	}
	if err := m.deleteBranch(ctx, branchName); err != nil {
		m.logger.Warn("delete branch failed", "branch", branchName, "error", err)
	}
}

func (m *Manager) removeWorktreeAt(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		if _, err := m.runGit(ctx, m.repoRoot, "worktree", "remove", "--force", dir); err != nil {
			m.logger.Warn("git worktree remove failed, falling back to rm", "dir", dir, "error", err)
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
		}
	}
	_, err := m.runGit(ctx, m.repoRoot, "worktree", "prune")
	return err
}

func (m *Manager) deleteBranch(ctx context.Context, branchName string) error {
	_, err := m.runGit(ctx, m.repoRoot, "branch", "-D", branchName)
	return err
}

// ReconcileOrphans enumerates worktrees under <repo>/.worktrees and
// force-removes any not in keepBranches, best-effort deleting their
// branches (§4.L, run at startup).
func (m *Manager) ReconcileOrphans(ctx context.Context, keepBranches map[string]bool) {
	root := filepath.Join(m.repoRoot, ".worktrees")
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("read worktrees dir failed", "error", err)
		}
		return
	}
	for _, e := range entries {
		if !e.IsDir() || keepBranches[e.Name()] {
			continue
		}
		m.logger.Info("removing orphaned worktree", "branch", e.Name())
		m.Remove(ctx, e.Name())
	}
}

func (m *Manager) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
