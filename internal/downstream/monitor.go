package downstream

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"patchmon/internal/config"
	"patchmon/internal/errors"
	"patchmon/internal/gitrepo"
	"patchmon/internal/logging"
	"patchmon/internal/matcher"
	"patchmon/internal/storage"
	"patchmon/internal/upstream"
)

// Monitor reconciles the missing-patch state of every tracked
// downstream revision against the upstream window
type Monitor struct {
	repo     *gitrepo.Repo
	db       *storage.DB
	distros  *storage.DistroRepository
	subjects *storage.SubjectRepository
	patches  *storage.PatchRepository
	missing  *storage.MissingPatchRepository
	upstream *upstream.Monitor
	cfg      *config.Config
	logger   *logging.Logger
}

func NewMonitor(repo *gitrepo.Repo, db *storage.DB, up *upstream.Monitor, cfg *config.Config, logger *logging.Logger) *Monitor {
	return &Monitor{
		repo:     repo,
		db:       db,
		distros:  storage.NewDistroRepository(db),
		subjects: storage.NewSubjectRepository(db),
		patches:  storage.NewPatchRepository(db),
		missing:  storage.NewMissingPatchRepository(db),
		upstream: up,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run refreshes monitoring subjects for every configured distro and
// reconciles each subject's missing-patch set. A failing distro
// refresh or subject is logged and skipped so one unreachable mirror
// cannot stall the run; the error of the last failure is returned
// once everything had its chance.
func (m *Monitor) Run(ctx context.Context) error {
	logger := m.logger.WithFields(map[string]interface{}{
		"run_id": uuid.NewString(),
	})

	windowStart, err := config.ResolveSince(m.cfg.Window.Since)
	if err != nil {
		return err
	}

	lastErr := m.refreshSubjects(ctx, logger)

	subjects, err := m.subjects.List()
	if err != nil {
		return err
	}

	failed := 0
	for _, subject := range subjects {
		subjectLogger := logger.WithFields(map[string]interface{}{
			"distro":   subject.DistroID,
			"revision": subject.Revision,
		})
		if err := m.monitorSubject(ctx, subject, windowStart, subjectLogger); err != nil {
			subjectLogger.Error("Monitoring subject failed, continuing with the next", map[string]interface{}{
				"error": err.Error(),
			})
			failed++
			lastErr = err
		}
	}

	logger.Info("Downstream run finished", map[string]interface{}{
		"subjects": len(subjects),
		"failed":   failed,
	})
	return lastErr
}

// refreshSubjects aligns the monitoring_subjects table with what each
// distro's remote currently advertises. A distro whose remote cannot
// be reached is logged and skipped; its persisted subjects stay as
// they were and the remaining distros still get refreshed. The last
// failure is returned once every distro had its chance.
func (m *Monitor) refreshSubjects(ctx context.Context, logger *logging.Logger) error {
	var lastErr error
	for _, distro := range m.cfg.Distros {
		if err := m.refreshDistro(ctx, distro, logger); err != nil {
			logger.Error("Refreshing distro failed, continuing with the next", map[string]interface{}{
				"distro": distro.Name,
				"error":  err.Error(),
			})
			lastErr = err
		}
	}
	return lastErr
}

// refreshDistro registers one distro and reconciles its subject rows
// with the revisions its remote advertises. Deletions and insertions
// run in separate transactions; a crash between them leaves a valid
// subset that the next run completes.
func (m *Monitor) refreshDistro(ctx context.Context, distro config.DistroConfig, logger *logging.Logger) error {
	if err := m.distros.Upsert(&storage.Distro{
		ID:            distro.Name,
		RepoLink:      distro.Repo,
		KernelVersion: distro.KernelVersion,
	}); err != nil {
		return err
	}
	if err := m.repo.EnsureRemote(ctx, distro.Name, distro.Repo); err != nil {
		return err
	}

	if strings.HasPrefix(distro.Name, "debian") {
		// Debian tracking needs version mapping from the changelog
		// rather than tags. Until that lands, the distro row exists
		// but gets no subjects.
		logger.Info("Skipping subject refresh for Debian distro", map[string]interface{}{
			"distro": distro.Name,
		})
		return nil
	}

	tags, err := m.repo.RemoteTags(ctx, distro.Name)
	if err != nil {
		return err
	}
	revisions := SelectRevisions(Flavor(distro.Name), tags)
	logger.Info("Selected revisions to track", map[string]interface{}{
		"distro":    distro.Name,
		"revisions": revisions,
	})

	err = m.db.WithTx(func(tx *sql.Tx) error {
		dropped, err := m.subjects.DeleteWhereRevisionNotIn(tx, distro.Name, revisions)
		if err != nil {
			return err
		}
		if len(dropped) > 0 {
			logger.Info("Retired monitoring subjects", map[string]interface{}{
				"distro":    distro.Name,
				"revisions": dropped,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	return m.db.WithTx(func(tx *sql.Tx) error {
		for _, revision := range revisions {
			exists, err := m.subjects.Exists(tx, distro.Name, revision)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := m.subjects.Create(tx, distro.Name, revision); err != nil {
				return err
			}
		}
		return nil
	})
}

// monitorSubject recomputes which upstream patches one subject is
// missing and reconciles the stored set to match
func (m *Monitor) monitorSubject(ctx context.Context, subject storage.MonitoringSubject, windowStart time.Time, logger *logging.Logger) error {
	localRef, err := EnsureRevision(ctx, m.repo, subject.DistroID, subject.Revision, windowStart, m.cfg.Window.Since, logger)
	if err != nil {
		return errors.New(errors.FetchFailed, "fetching downstream revision failed", err).
			WithDetails(map[string]interface{}{"revision": subject.Revision})
	}

	paths, err := m.upstream.TrackedPaths(ctx)
	if err != nil {
		return err
	}

	candidates, err := MissingCandidates(ctx, m.repo, m.cfg.Upstream.Reference, localRef, m.cfg.Window.Since, paths)
	if err != nil {
		return err
	}

	missingIDs, err := m.confirmMissing(ctx, candidates, subject, localRef, logger)
	if err != nil {
		return err
	}

	return m.reconcile(subject, missingIDs, logger)
}

// confirmMissing narrows cherry-pick candidates down to patches with
// no confident downstream match
func (m *Monitor) confirmMissing(ctx context.Context, candidates []string, subject storage.MonitoringSubject, localRef string, logger *logging.Logger) ([]int64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	if _, err := m.upstream.EnsureCandidates(ctx, candidates); err != nil {
		return nil, err
	}
	upstreamPatches, err := m.patches.ListByCommitIDs(candidates)
	if err != nil {
		return nil, err
	}
	if len(upstreamPatches) == 0 {
		return nil, nil
	}

	// Parse the downstream side only as far back as the oldest
	// candidate; anything older cannot be its backport.
	downSince := gitTimestamp(upstreamPatches[0].CommitTime)
	downstreamPatches, err := m.upstream.ParseWindow(ctx, localRef, downSince)
	if err != nil {
		return nil, err
	}

	match := matcher.New(m.cfg, subject.DistroID, logger)
	var missingIDs []int64
	for i := range upstreamPatches {
		if match.Match(&upstreamPatches[i], downstreamPatches) == nil {
			missingIDs = append(missingIDs, upstreamPatches[i].ID)
		}
	}

	logger.Info("Confirmed missing patches", map[string]interface{}{
		"candidates": len(upstreamPatches),
		"missing":    len(missingIDs),
	})
	return missingIDs, nil
}

// gitTimestamp renders a point in time for git's --since with an
// explicit zone offset. git parses a bare timestamp in the host's
// local zone, which would shift the window by the UTC offset.
func gitTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 -0700")
}

// reconcile replaces the stored missing set with the freshly computed
// one. Stale rows go first, then absent rows are added, each phase in
// its own transaction: re-running after a crash at any point converges
// on the same set, and a patch never appears missing twice.
func (m *Monitor) reconcile(subject storage.MonitoringSubject, missingIDs []int64, logger *logging.Logger) error {
	var removed int64
	err := m.db.WithTx(func(tx *sql.Tx) error {
		var err error
		removed, err = m.missing.DeleteNotIn(tx, subject.ID, missingIDs)
		return err
	})
	if err != nil {
		return err
	}

	added := 0
	err = m.db.WithTx(func(tx *sql.Tx) error {
		for _, patchID := range missingIDs {
			exists, err := m.missing.Exists(tx, subject.ID, patchID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := m.missing.Insert(tx, subject.ID, patchID); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Reconciled missing patches", map[string]interface{}{
		"added":   added,
		"removed": removed,
		"total":   len(missingIDs),
	})
	return nil
}
