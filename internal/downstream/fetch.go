package downstream

import (
	"context"
	"time"

	"patchmon/internal/errors"
	"patchmon/internal/gitrepo"
	"patchmon/internal/logging"
)

// EnsureRevision fetches one downstream revision into the shared
// worktree and pins it under a local ref named <distro>/<revision>.
//
// The fetch is widened in stages to avoid pulling decades of kernel
// history: a depth-1 probe first, then a shallow-since fetch only when
// the revision's head actually falls inside the monitoring window, and
// a full fetch as the last resort against servers that reject
// shallow-since.
func EnsureRevision(ctx context.Context, repo *gitrepo.Repo, distroID, revision string, windowStart time.Time, since string, logger *logging.Logger) (string, error) {
	localRef := distroID + "/" + revision
	refspec := "+refs/tags/" + revision + ":refs/heads/" + localRef

	if err := repo.Fetch(ctx, distroID, gitrepo.FetchOptions{Depth: 1, Refspec: refspec}); err != nil {
		return "", err
	}

	head, err := repo.CommitTime(ctx, localRef)
	if err != nil {
		return "", err
	}
	if head.Before(windowStart) {
		// The revision predates the window; the single probe commit
		// is all the history comparisons will ever reach.
		return localRef, nil
	}

	err = repo.Fetch(ctx, distroID, gitrepo.FetchOptions{ShallowSince: since, Refspec: refspec})
	if errors.HasCode(err, errors.UnsupportedCapability) {
		logger.Warn("Remote rejects shallow-since, falling back to a full fetch", map[string]interface{}{
			"distro":   distroID,
			"revision": revision,
		})
		err = repo.Fetch(ctx, distroID, gitrepo.FetchOptions{Refspec: refspec})
	}
	if err != nil {
		return "", err
	}

	return localRef, nil
}
