package git

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/verifybuild/internal/config"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
	"git.home.luguber.info/inful/verifybuild/internal/retry"
)

// Checkout is a cloned repository positioned at a commit.
type Checkout struct {
	Path   string
	Commit string
}

// Client clones repositories into a workspace directory.
type Client struct {
	workspaceDir string
	progress     io.Writer
	policy       retry.Policy
	recorder     metrics.Recorder
	auth         func(url string) (transport.AuthMethod, error)
	plainClone   func(ctx context.Context, path string, isBare bool, o *git.CloneOptions) (*git.Repository, error)
}

// NewClient creates a client cloning into workspaceDir. Transient failures
// are retried a few times.
func NewClient(workspaceDir string) *Client {
	return &Client{
		workspaceDir: workspaceDir,
		policy:       retry.NewPolicy(config.RetryBackoffExponential, time.Second, 10*time.Second, 2),
		recorder:     metrics.NoopRecorder{},
		auth:         AuthFromEnv,
		plainClone:   git.PlainCloneContext,
	}
}

// WithProgress streams go-git progress output to w.
func (c *Client) WithProgress(w io.Writer) *Client { c.progress = w; return c }

// WithPolicy replaces the retry policy for transient failures.
func (c *Client) WithPolicy(p retry.Policy) *Client { c.policy = p; return c }

// WithRecorder sets the metrics recorder.
func (c *Client) WithRecorder(r metrics.Recorder) *Client {
	if r != nil {
		c.recorder = r
	}
	return c
}

// RepoName returns the directory name a clone of url gets: the last path
// element without a .git suffix.
func RepoName(url string) string {
	u := strings.TrimRight(url, "/")
	if i := strings.LastIndex(u, ":"); i >= 0 && !strings.Contains(u, "://") {
		u = u[i+1:]
	}
	name := strings.TrimSuffix(path.Base(u), ".git")
	if name == "" || name == "." || name == "/" {
		return "repo"
	}
	return name
}

// Clone clones url into the workspace and checks out commit, or stays on the
// default branch when commit is empty.
func (c *Client) Clone(ctx context.Context, url, commit string) (co *Checkout, err error) {
	start := time.Now()
	defer func() { c.recorder.ObserveCloneDuration(time.Since(start), err == nil) }()

	repoPath := filepath.Join(c.workspaceDir, RepoName(url))
	auth, err := c.auth(url)
	if err != nil {
		return nil, GitError("failed to setup authentication").WithCause(err).UserAction().Build()
	}
	var repo *git.Repository
	var lastErr error
	err = c.policy.Do(ctx, func(attempt int) (bool, error) {
		if attempt > 0 {
			slog.WarnContext(ctx, "Retrying clone", logfields.URL(url), slog.Int("attempt", attempt), logfields.Error(lastErr))
		}
		r, cerr := c.cloneOnce(ctx, url, repoPath, auth)
		if cerr == nil {
			repo = r
			return true, nil
		}
		if isPermanentGitError(cerr) || ctx.Err() != nil {
			return false, cerr
		}
		lastErr = cerr
		return false, nil
	})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return nil, ClassifyGitError(err, "clone", url)
	}

	head, err := CheckoutCommit(repo, commit)
	if err != nil {
		return nil, ClassifyGitError(err, "checkout", url)
	}
	slog.InfoContext(ctx, "Repository cloned", logfields.URL(url), logfields.Commit(head), logfields.Path(repoPath))
	return &Checkout{Path: repoPath, Commit: head}, nil
}

func (c *Client) cloneOnce(ctx context.Context, url, repoPath string, auth transport.AuthMethod) (*git.Repository, error) {
	if err := os.RemoveAll(repoPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing directory: %w", err)
	}
	slog.DebugContext(ctx, "Cloning repository", logfields.URL(url), logfields.Path(repoPath))
	return c.plainClone(ctx, repoPath, false, &git.CloneOptions{URL: url, Progress: c.progress, Auth: auth})
}

// CheckoutCommit moves the worktree of repo to commit, which may be a full or
// abbreviated hash, tag or branch. It returns the resulting HEAD hash.
func CheckoutCommit(repo *git.Repository, commit string) (string, error) {
	if commit != "" {
		hash, err := repo.ResolveRevision(plumbing.Revision(commit))
		if err != nil {
			return "", fmt.Errorf("resolve commit %s: %w", commit, err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return "", fmt.Errorf("worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
			return "", fmt.Errorf("checkout %s: %w", commit, err)
		}
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// HeadCommit returns the HEAD hash of the repository containing dir.
func HeadCommit(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}
