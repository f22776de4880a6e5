package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Mode selects which changes are diffed.
type Mode string

const (
	ModeUnstaged Mode = "unstaged"
	ModeStaged   Mode = "staged"
	ModeCommit   Mode = "commit"
	ModeRange    Mode = "range"
)

// ParseMode validates a mode name. An empty name selects ModeUnstaged.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeUnstaged:
		return ModeUnstaged, nil
	case ModeStaged, ModeCommit, ModeRange:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown diff mode %q (want unstaged, staged, commit or range)", s)
	}
}

// Request describes the diff to collect.
type Request struct {
	// Dir is the working directory git runs in. Empty means the process
	// working directory.
	Dir  string
	Mode Mode
	// Rev is the commit for ModeCommit and the revision range for ModeRange.
	Rev string
	// MergeBase turns "a..b" into "a...b" so a range diffs against the
	// merge base.
	MergeBase bool
	// Paths limits the diff to the given pathspecs.
	Paths []string
}

// Result holds the collected diff and metadata.
type Result struct {
	Diff string
	Mode Mode
	Rev  string
	Repo RepoMeta
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// ErrNotRepository is returned when Dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// GetRepoMeta collects repository metadata from git.
func GetRepoMeta(ctx context.Context, dir string) (RepoMeta, error) {
	root, err := gitOutput(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	// both fail in a repository without commits
	head, _ := gitOutput(ctx, dir, "rev-parse", "HEAD")
	branch, _ := gitOutput(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// Diff collects the diff described by req.
func Diff(ctx context.Context, req Request) (Result, error) {
	meta, err := GetRepoMeta(ctx, req.Dir)
	if err != nil {
		return Result{}, err
	}

	var out string
	switch req.Mode {
	case "", ModeUnstaged:
		req.Mode = ModeUnstaged
		out, err = gitOutput(ctx, req.Dir, diffArgs(nil, req.Paths)...)
	case ModeStaged:
		out, err = gitOutput(ctx, req.Dir, diffArgs([]string{"--cached"}, req.Paths)...)
	case ModeCommit:
		out, err = commitDiff(ctx, req)
	case ModeRange:
		if req.Rev == "" {
			return Result{}, errors.New("range mode needs a revision range")
		}
		out, err = gitOutput(ctx, req.Dir, diffArgs([]string{rangeSpec(req.Rev, req.MergeBase)}, req.Paths)...)
	default:
		return Result{}, fmt.Errorf("unknown diff mode %q", req.Mode)
	}
	if err != nil {
		return Result{}, fmt.Errorf("git diff (%s): %w", req.Mode, err)
	}
	return Result{Diff: out, Mode: req.Mode, Rev: req.Rev, Repo: meta}, nil
}

func commitDiff(ctx context.Context, req Request) (string, error) {
	sha := req.Rev
	if sha == "" {
		sha = "HEAD"
	}
	out, err := gitOutput(ctx, req.Dir, diffArgs([]string{sha + "~1", sha}, req.Paths)...)
	if err == nil {
		return out, nil
	}
	// root commit has no parent
	args := append([]string{"show", "--format=", "--no-color", "--no-ext-diff", sha, "--"}, req.Paths...)
	return gitOutput(ctx, req.Dir, args...)
}

func diffArgs(revs, paths []string) []string {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	args = append(args, revs...)
	args = append(args, "--")
	return append(args, paths...)
}

func rangeSpec(rev string, mergeBase bool) string {
	if mergeBase && strings.Contains(rev, "..") && !strings.Contains(rev, "...") {
		return strings.Replace(rev, "..", "...", 1)
	}
	return rev
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return string(out), nil
}
