package symbols

import (
	"context"
	"sort"
	"strings"

	"patchmon/internal/config"
	"patchmon/internal/gitrepo"
	"patchmon/internal/logging"
	"patchmon/internal/storage"
)

// Tracker records, for every stored patch, which function symbols the
// commit introduced
type Tracker struct {
	repo      *gitrepo.Repo
	patches   *storage.PatchRepository
	extractor Extractor
	cfg       *config.Config
	logger    *logging.Logger
}

func NewTracker(repo *gitrepo.Repo, patches *storage.PatchRepository, extractor Extractor, cfg *config.Config, logger *logging.Logger) *Tracker {
	return &Tracker{
		repo:      repo,
		patches:   patches,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run fills in the symbol delta of every patch that does not have one
// yet, oldest first. Each commit's delta is persisted before the next
// one starts, so an interrupted run resumes where it stopped.
func (t *Tracker) Run(ctx context.Context, paths []string) (int, error) {
	ids, err := t.patches.ListCommitIDsWithoutSymbols()
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range ids {
		delta, err := t.introducedSymbols(ctx, id, paths)
		if err != nil {
			return processed, err
		}
		if err := t.patches.UpdateSymbols(id, strings.Join(delta, " ")); err != nil {
			return processed, err
		}
		processed++

		if len(delta) > 0 {
			t.logger.Debug("Recorded introduced symbols", map[string]interface{}{
				"commit":  id,
				"symbols": delta,
			})
		}
	}

	t.logger.Info("Symbol tracking pass finished", map[string]interface{}{
		"processed": processed,
	})
	return processed, nil
}

// introducedSymbols diffs the function surface of a commit against its
// parent. Only additions count: a removed or renamed symbol shows up
// as an addition on whichever commit brought the new name in.
func (t *Tracker) introducedSymbols(ctx context.Context, commitID string, paths []string) ([]string, error) {
	var delta []string
	err := t.repo.WithCheckout(ctx, commitID+"^", func(w *gitrepo.Worktree) error {
		before, err := t.extractor.Extract(ctx, w.Dir(), paths)
		if err != nil {
			return err
		}
		if err := w.Checkout(ctx, commitID); err != nil {
			return err
		}
		after, err := t.extractor.Extract(ctx, w.Dir(), paths)
		if err != nil {
			return err
		}
		for symbol := range after {
			if _, ok := before[symbol]; !ok {
				delta = append(delta, symbol)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(delta)
	return delta, nil
}

func (t *Tracker) extractAt(ctx context.Context, ref string, paths []string) (map[string]struct{}, error) {
	var symbols map[string]struct{}
	err := t.repo.WithCheckout(ctx, ref, func(w *gitrepo.Worktree) error {
		var err error
		symbols, err = t.extractor.Extract(ctx, w.Dir(), paths)
		return err
	})
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

// BaselineSymbols extracts the full function surface at the configured
// baseline revision
func (t *Tracker) BaselineSymbols(ctx context.Context, paths []string) ([]string, error) {
	set, err := t.extractAt(ctx, t.cfg.Symbols.Baseline, paths)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// FindMissing returns the commits, ordered by commit time, that
// introduced at least one symbol absent from the caller's reference
// list. A consumer whose tree lacks those symbols lacks those commits.
func (t *Tracker) FindMissing(reference []string) ([]string, error) {
	have := make(map[string]struct{}, len(reference))
	for _, symbol := range reference {
		have[symbol] = struct{}{}
	}

	patches, err := t.patches.ListWithSymbols()
	if err != nil {
		return nil, err
	}

	var missing []string
	for i := range patches {
		for symbol := range patches[i].SymbolSet() {
			if _, ok := have[symbol]; !ok {
				missing = append(missing, patches[i].CommitID)
				break
			}
		}
	}
	return missing, nil
}
