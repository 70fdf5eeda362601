package downstream

import (
	"context"

	"patchmon/internal/gitrepo"
)

// MissingCandidates returns upstream commit IDs within the window that
// git's patch-id comparison does not find in the downstream revision.
//
// Two walks intersect: the tracked-path window on the upstream side,
// and a symmetric-difference walk whose --cherry-pick omits commits
// with a patch-equivalent twin downstream. The second walk is not
// path-restricted, so a backport that moved a file still cancels its
// upstream commit. What survives both walks goes on to the confidence
// matcher, which is the slower and fuzzier test.
func MissingCandidates(ctx context.Context, repo *gitrepo.Repo, upstreamRef, localRef, since string, paths []string) ([]string, error) {
	tracked, err := repo.CommitIDs(ctx, gitrepo.LogOptions{
		Revision: upstreamRef,
		Since:    since,
		Paths:    paths,
		NoMerges: true,
	})
	if err != nil {
		return nil, err
	}

	unmatched, err := repo.CommitIDs(ctx, gitrepo.LogOptions{
		Revision:   localRef + "..." + upstreamRef,
		Since:      since,
		NoMerges:   true,
		CherryPick: true,
		RightOnly:  true,
	})
	if err != nil {
		return nil, err
	}

	unmatchedSet := make(map[string]struct{}, len(unmatched))
	for _, id := range unmatched {
		unmatchedSet[id] = struct{}{}
	}

	var candidates []string
	for _, id := range tracked {
		if _, ok := unmatchedSet[id]; ok {
			candidates = append(candidates, id)
		}
	}
	return candidates, nil
}
