// Package gitrepo wraps the git CLI with the operations the trackers
// need: windowed fetches, commit listing, add/remove diff extraction,
// and scoped checkouts.
package gitrepo

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"patchmon/internal/errors"
	"patchmon/internal/logging"
)

// DefaultQueryTimeout bounds local plumbing commands. Network
// operations (fetch, ls-remote) run without a deadline; their duration
// is owned by the remote.
const DefaultQueryTimeout = 30 * time.Second

// Runner executes a git command in a directory and returns its stdout
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs git via os/exec
type ExecRunner struct{}

// Run implements Runner
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.New(errors.Timeout, "git command timed out", err).
				WithDetails(map[string]interface{}{"args": args})
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", errors.New(errors.InternalError, "git command failed", err).
				WithDetails(map[string]interface{}{
					"args":   args,
					"stderr": string(exitErr.Stderr),
				})
		}
		return "", errors.New(errors.InternalError, "failed to execute git", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// Repo is a handle to a local git working copy
type Repo struct {
	dir          string
	runner       Runner
	logger       *logging.Logger
	queryTimeout time.Duration

	// The working tree is process-wide mutable state: only one ref can
	// be checked out at a time, so working-tree-dependent operations
	// serialize on this.
	checkoutMu sync.Mutex
}

// Option configures a Repo
type Option func(*Repo)

// WithRunner replaces the command runner (used in tests)
func WithRunner(r Runner) Option {
	return func(repo *Repo) { repo.runner = r }
}

// WithQueryTimeout overrides the plumbing command timeout
func WithQueryTimeout(d time.Duration) Option {
	return func(repo *Repo) { repo.queryTimeout = d }
}

// Open returns a handle to the git repository at dir
func Open(dir string, logger *logging.Logger, opts ...Option) (*Repo, error) {
	repo := &Repo{
		dir:          dir,
		runner:       ExecRunner{},
		logger:       logger,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(repo)
	}

	if !IsRepository(dir) {
		return nil, errors.New(errors.NotFound, "not a git repository", nil).
			WithDetails(map[string]interface{}{"dir": dir})
	}

	return repo, nil
}

// Clone clones url into dir and returns a handle. A shallowSince
// expression bounds the initial history when given.
func Clone(ctx context.Context, url, dir, shallowSince string, logger *logging.Logger, opts ...Option) (*Repo, error) {
	repo := &Repo{
		dir:          dir,
		runner:       ExecRunner{},
		logger:       logger,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(repo)
	}

	args := []string{"clone"}
	if shallowSince != "" {
		args = append(args, "--shallow-since="+shallowSince)
	}
	args = append(args, url, dir)

	logger.Info("Cloning repository", map[string]interface{}{
		"url": url,
		"dir": dir,
	})

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, err
	}
	if _, err := repo.runner.Run(ctx, parent, args...); err != nil {
		return nil, errors.New(errors.FetchFailed, "clone failed", err).
			WithDetails(map[string]interface{}{"url": url})
	}

	return repo, nil
}

// IsRepository reports whether dir is inside a git work tree
func IsRepository(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	return false
}

// Dir returns the working copy root
func (r *Repo) Dir() string {
	return r.dir
}

// run executes a local plumbing command with the query timeout
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	r.logger.Debug("Executing git command", map[string]interface{}{
		"args": args,
	})
	return r.runner.Run(ctx, r.dir, args...)
}

// runNetwork executes a command that talks to a remote, without a deadline
func (r *Repo) runNetwork(ctx context.Context, args ...string) (string, error) {
	r.logger.Debug("Executing git network command", map[string]interface{}{
		"args": args,
	})
	return r.runner.Run(ctx, r.dir, args...)
}

// runLines executes a command and splits its output into non-empty lines
func (r *Repo) runLines(ctx context.Context, args ...string) ([]string, error) {
	output, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if output == "" {
		return []string{}, nil
	}

	lines := strings.Split(output, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result, nil
}

// stderrOf digs the captured stderr out of a command error
func stderrOf(err error) string {
	var te *errors.TrackError
	if !stderrors.As(err, &te) || te.Details == nil {
		return ""
	}
	if s, ok := te.Details["stderr"].(string); ok {
		return s
	}
	return ""
}
