// Package gitexec is the thin safe-exec layer over a local git binary
// (spec.md §4.1, C1). Every call shells out explicitly with CWD and
// environment set per invocation; nothing here ever touches a git wire
// protocol directly. Grounded on the teacher's pkg/harness/git package,
// generalized from "workspace branch management" to the read-only tree
// operations asp's resolver, closure builder, and snapshot store need.
package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"asp/internal/asperr"
)

// Result is the outcome of a git subcommand invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Adapter executes git subcommands against one working directory (a bare
// or non-bare clone of the registry).
type Adapter struct {
	Dir            string
	CloneTimeout   time.Duration
	DefaultTimeout time.Duration
}

// NewAdapter returns an Adapter rooted at dir with the spec's default
// timeouts (5 min clone, 2 min otherwise).
func NewAdapter(dir string) *Adapter {
	return &Adapter{
		Dir:            dir,
		CloneTimeout:   5 * time.Minute,
		DefaultTimeout: 2 * time.Minute,
	}
}

// run executes `git <args...>` with the adapter's working directory and
// environment, honoring timeout. ignoreFailure, when true, returns the
// Result even on non-zero exit instead of a GitError.
func (a *Adapter) run(ctx context.Context, timeout time.Duration, ignoreFailure bool, args ...string) (*Result, error) {
	if timeout <= 0 {
		timeout = a.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = a.Dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("git %s timed out after %s", strings.Join(args, " "), timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to run git %s: %w", strings.Join(args, " "), err)
		}
	}

	result := &Result{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}
	if exitCode != 0 && !ignoreFailure {
		return result, asperr.GitError(strings.Join(args, " "), exitCode, strings.TrimSpace(stderr.String()))
	}
	return result, nil
}

// Show returns the bytes of <commit>:<path>, or (nil, false, nil) if the
// path does not exist at that commit.
func (a *Adapter) Show(ctx context.Context, commit, path string) ([]byte, bool, error) {
	result, err := a.run(ctx, 0, true, "show", fmt.Sprintf("%s:%s", commit, path))
	if err != nil {
		return nil, false, err
	}
	if result.ExitCode != 0 {
		if strings.Contains(result.Stderr, "does not exist") || strings.Contains(result.Stderr, "exists on disk, but not in") {
			return nil, false, nil
		}
		return nil, false, asperr.GitError("show", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return []byte(result.Stdout), true, nil
}

// TreeEntry is one row of `git ls-tree`.
type TreeEntry struct {
	Mode string
	Type string // blob, tree, commit
	OID  string
	Path string
}

// LsTree lists entries at commit[:path], recursively when recursive is
// true. Path parsing is tab-delimited per spec.md §4.1 so paths containing
// spaces survive.
func (a *Adapter) LsTree(ctx context.Context, commit, path string, recursive bool) ([]TreeEntry, error) {
	ref := commit
	if path != "" {
		ref = commit + ":" + path
	}
	args := []string{"ls-tree"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, ref)

	result, err := a.run(ctx, 0, false, args...)
	if err != nil {
		return nil, err
	}

	var entries []TreeEntry
	for _, line := range strings.Split(result.Stdout, "\n") {
		if line == "" {
			continue
		}
		// "<mode> <type> <oid>\t<path>"
		tabIdx := strings.IndexByte(line, '\t')
		if tabIdx < 0 {
			continue
		}
		meta := strings.Fields(line[:tabIdx])
		if len(meta) != 3 {
			continue
		}
		entries = append(entries, TreeEntry{
			Mode: meta[0],
			Type: meta[1],
			OID:  meta[2],
			Path: line[tabIdx+1:],
		})
	}
	return entries, nil
}

// Archive extracts commit[:path] into destDir via `git archive | tar -x`,
// stripping path's depth worth of leading components so the subtree lands
// directly in destDir. Both subprocess stderrs are included on failure.
func (a *Adapter) Archive(ctx context.Context, commit, path, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction dir %s: %w", destDir, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.DefaultTimeout)
	defer cancel()

	ref := commit
	archiveArgs := []string{"archive", "--format=tar", ref}
	if path != "" {
		archiveArgs = append(archiveArgs, path)
	}

	archiveCmd := exec.CommandContext(ctx, "git", archiveArgs...)
	archiveCmd.Dir = a.Dir

	stripComponents := pathDepth(path)
	tarArgs := []string{"-x", "-C", destDir}
	if stripComponents > 0 {
		tarArgs = append(tarArgs, fmt.Sprintf("--strip-components=%d", stripComponents))
	}
	tarCmd := exec.CommandContext(ctx, "tar", tarArgs...)

	pipe, err := archiveCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to pipe git archive: %w", err)
	}
	tarCmd.Stdin = pipe

	var archiveStderr, tarStderr bytes.Buffer
	archiveCmd.Stderr = &archiveStderr
	tarCmd.Stderr = &tarStderr

	if err := tarCmd.Start(); err != nil {
		return fmt.Errorf("failed to start tar: %w", err)
	}
	if err := archiveCmd.Run(); err != nil {
		_ = tarCmd.Wait()
		return fmt.Errorf("git archive failed: %s (tar: %s): %w", strings.TrimSpace(archiveStderr.String()), strings.TrimSpace(tarStderr.String()), err)
	}
	if err := tarCmd.Wait(); err != nil {
		return fmt.Errorf("tar extraction failed: %s (archive: %s): %w", strings.TrimSpace(tarStderr.String()), strings.TrimSpace(archiveStderr.String()), err)
	}
	return nil
}

func pathDepth(path string) int {
	path = strings.Trim(path, "/")
	if path == "" {
		return 0
	}
	return len(strings.Split(path, "/"))
}

// TagsMatching lists the names of all tags matching pattern. It does not
// dereference them; DerefTag resolves a tag to its commit via "<tag>^{}".
func (a *Adapter) TagsMatching(ctx context.Context, pattern string) ([]string, error) {
	result, err := a.run(ctx, 0, false, "tag", "-l", pattern, "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			tags = append(tags, line)
		}
	}
	return tags, nil
}

// DerefTag resolves a tag name (lightweight or annotated) to the commit it
// ultimately points at.
func (a *Adapter) DerefTag(ctx context.Context, tag string) (string, error) {
	result, err := a.run(ctx, 0, false, "rev-parse", tag+"^{}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// RevParse resolves any git revision expression to a commit SHA.
func (a *Adapter) RevParse(ctx context.Context, rev string) (string, error) {
	result, err := a.run(ctx, 0, false, "rev-parse", rev)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// SymbolicRef resolves a symbolic ref, e.g. "HEAD", to the ref it points at.
func (a *Adapter) SymbolicRef(ctx context.Context, ref string) (string, error) {
	result, err := a.run(ctx, 0, false, "symbolic-ref", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// StatusPorcelain runs `git status --porcelain -b`.
func (a *Adapter) StatusPorcelain(ctx context.Context) (string, error) {
	result, err := a.run(ctx, 0, false, "status", "--porcelain", "-b")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// RemoteVerbose runs `git remote -v`.
func (a *Adapter) RemoteVerbose(ctx context.Context) (string, error) {
	result, err := a.run(ctx, 0, false, "remote", "-v")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// Init creates a new git repository at the adapter's Dir.
func (a *Adapter) Init(ctx context.Context) error {
	_, err := a.run(ctx, 0, false, "init")
	return err
}

// Add stages the given pathspecs (or "." for everything).
func (a *Adapter) Add(ctx context.Context, pathspecs ...string) error {
	args := append([]string{"add"}, pathspecs...)
	_, err := a.run(ctx, 0, false, args...)
	return err
}

// Commit creates a commit with the given message and returns its SHA.
func (a *Adapter) Commit(ctx context.Context, message string) (string, error) {
	if _, err := a.run(ctx, 0, false, "commit", "-m", message); err != nil {
		return "", err
	}
	return a.RevParse(ctx, "HEAD")
}

// TagCreate creates a tag (lightweight, or annotated when message != "")
// pointing at commit.
func (a *Adapter) TagCreate(ctx context.Context, tag, commit, message string) error {
	args := []string{"tag"}
	if message != "" {
		args = append(args, "-a", tag, commit, "-m", message)
	} else {
		args = append(args, tag, commit)
	}
	_, err := a.run(ctx, 0, false, args...)
	return err
}

// TagPush pushes a tag to the named remote.
func (a *Adapter) TagPush(ctx context.Context, remote, tag string) error {
	_, err := a.run(ctx, 0, false, "push", remote, tag)
	return err
}

// TagDelete removes a local tag.
func (a *Adapter) TagDelete(ctx context.Context, tag string) error {
	_, err := a.run(ctx, 0, false, "tag", "-d", tag)
	return err
}

// CloneOptions configures Clone.
type CloneOptions struct {
	Branch string
	Depth  int
}

// Clone clones url into destDir.
func (a *Adapter) Clone(ctx context.Context, url, destDir string, opts CloneOptions) error {
	if err := os.MkdirAll(destDir, 0o755); err == nil {
		// ok, exec handles existing empty dirs fine
	}
	args := []string{"clone"}
	if opts.Depth > 0 {
		args = append(args, "--depth", fmt.Sprintf("%d", opts.Depth))
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, url, destDir)

	ctx, cancel := context.WithTimeout(ctx, a.CloneTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = os.Environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return asperr.GitError("clone", exitCodeOf(err), strings.TrimSpace(stderr.String()))
	}
	return nil
}

func exitCodeOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
