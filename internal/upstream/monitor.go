// Package upstream discovers commits on the tracked upstream history
// and parses them into persisted patch records.
package upstream

import (
	"context"

	"patchmon/internal/config"
	"patchmon/internal/gitrepo"
	"patchmon/internal/logging"
	"patchmon/internal/storage"
)

// Monitor scans upstream history within the lookback window
type Monitor struct {
	repo    *gitrepo.Repo
	patches *storage.PatchRepository
	cfg     *config.Config
	logger  *logging.Logger

	trackedPaths []string
}

// NewMonitor creates an upstream monitor
func NewMonitor(repo *gitrepo.Repo, patches *storage.PatchRepository, cfg *config.Config, logger *logging.Logger) *Monitor {
	return &Monitor{
		repo:    repo,
		patches: patches,
		cfg:     cfg,
		logger:  logger,
	}
}

// TrackedPaths returns the MAINTAINERS-derived path set, computed once
// per monitor
func (m *Monitor) TrackedPaths(ctx context.Context) ([]string, error) {
	if m.trackedPaths != nil {
		return m.trackedPaths, nil
	}

	m.logger.Debug("Parsing MAINTAINERS sections for tracked paths", map[string]interface{}{
		"sections": m.cfg.Upstream.Sections,
	})
	paths, err := TrackedPaths(ctx, m.repo, m.cfg.Upstream.Reference, m.cfg.Upstream.Sections)
	if err != nil {
		return nil, err
	}
	m.trackedPaths = paths
	return paths, nil
}

// Run fetches the upstream window and records every new patch on
// tracked paths
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.repo.Fetch(ctx, "origin", gitrepo.FetchOptions{
		ShallowSince: m.cfg.Window.Since,
	}); err != nil {
		return err
	}

	added, err := m.ProcessWindow(ctx)
	if err != nil {
		return err
	}

	m.logger.Info("Upstream monitoring complete", map[string]interface{}{
		"patches_added": added,
	})
	return nil
}

// ProcessWindow walks the upstream window on tracked paths and inserts
// a Patch record for each commit not yet recorded. Returns how many
// were added.
func (m *Monitor) ProcessWindow(ctx context.Context) (int, error) {
	paths, err := m.TrackedPaths(ctx)
	if err != nil {
		return 0, err
	}

	commits, err := m.repo.Commits(ctx, gitrepo.LogOptions{
		Revision: m.cfg.Upstream.Reference,
		Since:    m.cfg.Window.Since,
		Paths:    paths,
		// Skip both merges and graft commits
		NoMerges:        true,
		FirstParentOnly: true,
	})
	if err != nil {
		return 0, err
	}

	m.logger.Info("Starting commit processing", map[string]interface{}{
		"commits": len(commits),
	})

	added := 0
	for num, commit := range commits {
		patch, err := m.parseCommit(ctx, commit, paths)
		if err != nil {
			return added, err
		}

		inserted, err := m.patches.InsertIfAbsent(patch)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}

		if (num+1)%250 == 0 {
			m.logger.Debug("Commits processed", map[string]interface{}{
				"count": num + 1,
			})
		}
	}

	return added, nil
}

// EnsureCandidates records patch rows for any of the given commit IDs
// not stored yet. Downstream detection can surface commits the
// windowed scan never processed, e.g. right after the window was
// widened; without a row they could not be reported missing.
func (m *Monitor) EnsureCandidates(ctx context.Context, ids []string) (int, error) {
	var unknown []string
	for _, id := range ids {
		patch, err := m.patches.GetByCommitID(id)
		if err != nil {
			return 0, err
		}
		if patch == nil {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		return 0, nil
	}

	paths, err := m.TrackedPaths(ctx)
	if err != nil {
		return 0, err
	}
	commits, err := m.repo.CommitsByID(ctx, unknown)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, commit := range commits {
		patch, err := m.parseCommit(ctx, commit, paths)
		if err != nil {
			return added, err
		}
		inserted, err := m.patches.InsertIfAbsent(patch)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

// ParseWindow parses the commits reachable from revision within the
// since window into patches without persisting them. The downstream
// matcher uses this to inspect a cherry-picked branch, whose commits
// are distinct objects from their upstream counterparts.
func (m *Monitor) ParseWindow(ctx context.Context, revision, since string) ([]storage.Patch, error) {
	paths, err := m.TrackedPaths(ctx)
	if err != nil {
		return nil, err
	}

	commits, err := m.repo.Commits(ctx, gitrepo.LogOptions{
		Revision:        revision,
		Since:           since,
		Paths:           paths,
		NoMerges:        true,
		FirstParentOnly: true,
	})
	if err != nil {
		return nil, err
	}

	patches := make([]storage.Patch, 0, len(commits))
	for _, commit := range commits {
		patch, err := m.parseCommit(ctx, commit, paths)
		if err != nil {
			return nil, err
		}
		patches = append(patches, *patch)
	}
	return patches, nil
}

func (m *Monitor) parseCommit(ctx context.Context, commit gitrepo.Commit, paths []string) (*storage.Patch, error) {
	filenames, err := m.repo.ChangedFiles(ctx, commit.ID)
	if err != nil {
		return nil, err
	}

	// Diffs are restricted to tracked paths. Comparisons only ever
	// happen inside the tracked set, and the full diff of a treewide
	// commit would drown the containment signal.
	diff, err := m.repo.AddRemoveDiff(ctx, commit.ID, paths)
	if err != nil {
		return nil, err
	}

	return ParsePatch(commit, filenames, diff), nil
}
