package gitrepo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"patchmon/internal/errors"
)

// FetchOptions controls how much history a fetch retrieves
type FetchOptions struct {
	// Depth limits the fetch to the last N commits when > 0
	Depth int
	// ShallowSince bounds the fetch by a git approxidate expression
	ShallowSince string
	// Refspec maps the remote ref into a local one, e.g.
	// "+refs/tags/v1:refs/heads/Ubuntu22.04/v1"
	Refspec string
}

// Fetch updates remote-tracking state for the named remote.
//
// A rejected --shallow-since is reported as UNSUPPORTED_CAPABILITY so
// the caller can fall back to an unbounded fetch. A shallow repo that
// needs repacking is repacked and retried once, matching the behavior
// git itself recommends.
func (r *Repo) Fetch(ctx context.Context, remote string, opts FetchOptions) error {
	return r.fetch(ctx, remote, opts, true)
}

func (r *Repo) fetch(ctx context.Context, remote string, opts FetchOptions, retryAfterRepack bool) error {
	args := []string{"fetch"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.ShallowSince != "" {
		args = append(args, "--shallow-since="+opts.ShallowSince)
	}
	args = append(args, remote)
	if opts.Refspec != "" {
		args = append(args, opts.Refspec)
	}

	if _, err := r.runNetwork(ctx, args...); err != nil {
		stderr := stderrOf(err)

		if opts.ShallowSince != "" && strings.Contains(stderr, "does not support") {
			return errors.New(errors.UnsupportedCapability,
				"remote does not support shallow-since fetches", err).
				WithDetails(map[string]interface{}{"remote": remote})
		}

		if retryAfterRepack && strings.Contains(stderr, "error in object: unshallow") {
			r.logger.Warn("Shallow state needs repacking before fetch, retrying", map[string]interface{}{
				"remote": remote,
			})
			if _, repackErr := r.run(ctx, "repack", "-d"); repackErr != nil {
				return errors.New(errors.FetchFailed, "repack before fetch retry failed", repackErr)
			}
			return r.fetch(ctx, remote, opts, false)
		}

		return errors.New(errors.FetchFailed, "fetch failed", err).
			WithDetails(map[string]interface{}{"remote": remote})
	}

	return nil
}

// EnsureRemote adds the named remote if it is not configured yet
func (r *Repo) EnsureRemote(ctx context.Context, name, url string) error {
	remotes, err := r.Remotes(ctx)
	if err != nil {
		return err
	}
	for _, existing := range remotes {
		if existing == name {
			return nil
		}
	}

	r.logger.Debug("Adding remote", map[string]interface{}{
		"name": name,
		"url":  url,
	})
	_, err = r.run(ctx, "remote", "add", name, url)
	return err
}

// Remotes lists configured remote names
func (r *Repo) Remotes(ctx context.Context) ([]string, error) {
	return r.runLines(ctx, "remote")
}

// RemoteTags lists tag names advertised by a remote
func (r *Repo) RemoteTags(ctx context.Context, remote string) ([]string, error) {
	lines, err := r.runNetworkLines(ctx, "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, errors.New(errors.FetchFailed, "listing remote tags failed", err).
			WithDetails(map[string]interface{}{"remote": remote})
	}

	tags := make([]string, 0, len(lines))
	for _, line := range lines {
		// "<sha>\trefs/tags/<name>"
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		tags = append(tags, strings.TrimPrefix(fields[1], "refs/tags/"))
	}
	return tags, nil
}

func (r *Repo) runNetworkLines(ctx context.Context, args ...string) ([]string, error) {
	output, err := r.runNetwork(ctx, args...)
	if err != nil {
		return nil, err
	}
	if output == "" {
		return []string{}, nil
	}
	var result []string
	for _, line := range strings.Split(output, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result, nil
}

// CommitTime returns the committer time of a ref
func (r *Repo) CommitTime(ctx context.Context, ref string) (time.Time, error) {
	output, err := r.run(ctx, "log", "-1", "--format=%ct", ref)
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(output, 10, 64)
	if err != nil {
		return time.Time{}, errors.New(errors.InternalError, "failed to parse commit time", err).
			WithDetails(map[string]interface{}{"ref": ref, "output": output})
	}
	return time.Unix(unix, 0).UTC(), nil
}
