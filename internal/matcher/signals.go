package matcher

import (
	"path"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"patchmon/internal/storage"
)

// ComputeSignals measures the similarity of a downstream patch against
// an upstream one. Signal definitions are calibration choices; these
// reproduce the ratios the weight vectors were tuned against.
func ComputeSignals(upstream, downstream *storage.Patch) Signals {
	return Signals{
		Author:      authorSignal(upstream, downstream),
		Content:     contentSignal(upstream, downstream),
		Description: descriptionSignal(upstream, downstream),
		Filenames:   filenamesSignal(upstream.Filenames(), downstream.Filenames()),
		Time:        timeSignal(upstream, downstream),
	}
}

func authorSignal(upstream, downstream *storage.Patch) float64 {
	return float64(fuzzy.TokenSetRatio(upstream.Author, downstream.Author)) / 100.0
}

// contentSignal measures the patch content itself: the stronger of
// subject-line similarity and diff-line containment. Diff containment
// is what survives a rebase that rewrites commit messages, which is
// why content-only families can rely on this signal alone.
func contentSignal(upstream, downstream *storage.Patch) float64 {
	subject := float64(fuzzy.PartialRatio(upstream.Subject, downstream.Subject)) / 100.0

	diff := 0.0
	if upstream.CommitDiffs != "" && downstream.CommitDiffs != "" {
		diff = NewPatchDiff(upstream.CommitDiffs).
			PercentPresentIn(NewPatchDiff(downstream.CommitDiffs))
	}

	if diff > subject {
		return diff
	}
	return subject
}

// descriptionSignal is exact containment of the filtered upstream
// description, falling back to overlap of bug/fixes reference tokens
// when containment fails
func descriptionSignal(upstream, downstream *storage.Patch) float64 {
	if upstream.Description != "" && strings.Contains(downstream.Description, upstream.Description) {
		return 1.0
	}

	upstreamRefs := referenceTokens(upstream)
	if len(upstreamRefs) == 0 {
		return 0.0
	}
	downstreamRefs := make(map[string]struct{})
	for _, token := range referenceTokens(downstream) {
		downstreamRefs[token] = struct{}{}
	}

	shared := 0
	for _, token := range upstreamRefs {
		if _, ok := downstreamRefs[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(upstreamRefs))
}

func referenceTokens(patch *storage.Patch) []string {
	tokens := strings.Fields(patch.FixedPatches)
	if patch.BugLink != "" {
		tokens = append(tokens, patch.BugLink)
	}
	return tokens
}

// filenamesSignal is roughly the fraction of upstream filepaths
// present downstream. A matching basename scores 0.5, with the
// remaining 0.5 scaled by fuzzy similarity of the directories.
func filenamesSignal(upstreamFiles, downstreamFiles []string) float64 {
	if len(upstreamFiles) == 0 && len(downstreamFiles) == 0 {
		return 1.0
	}
	if len(upstreamFiles) == 0 || len(downstreamFiles) == 0 {
		return 0.0
	}

	total := 0.0
	for _, upstreamPath := range upstreamFiles {
		upstreamDir, upstreamName := path.Split(upstreamPath)

		best := 0.0
		for _, downstreamPath := range downstreamFiles {
			downstreamDir, downstreamName := path.Split(downstreamPath)
			if upstreamName != downstreamName {
				continue
			}
			match := 0.5 + float64(fuzzy.PartialRatio(upstreamDir, downstreamDir))/200.0
			if match > best {
				best = match
			}
		}
		total += best
	}

	return total / float64(len(upstreamFiles))
}

// timeSignal scores author and commit time equality. Equal timestamps
// break ties between patches whose other fields are identical.
func timeSignal(upstream, downstream *storage.Patch) float64 {
	score := 0.0
	if upstream.AuthorTime.Equal(downstream.AuthorTime) {
		score += 0.5
	}
	if upstream.CommitTime.Equal(downstream.CommitTime) {
		score += 0.5
	}
	return score
}
