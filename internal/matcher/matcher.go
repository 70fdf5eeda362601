package matcher

import (
	"patchmon/internal/config"
	"patchmon/internal/logging"
	"patchmon/internal/storage"
)

// Matcher scores upstream patches against downstream candidates using
// the confidence family configured for the downstream revision.
type Matcher struct {
	weights   Weights
	threshold float64
	logger    *logging.Logger
}

// New builds a matcher for one downstream distro. The confidence
// family is selected by distro name prefix, so different kernel
// flavors can carry their own tuned weights.
func New(cfg *config.Config, distroName string, logger *logging.Logger) *Matcher {
	family := cfg.WeightsFor(distroName)
	return &Matcher{
		weights:   WeightsFromConfig(family),
		threshold: family.Threshold,
		logger:    logger,
	}
}

// Match returns the downstream patch that most confidently contains
// the upstream change, or nil when no candidate reaches the
// confidence threshold. A nil result means the upstream patch is
// still missing downstream.
func (m *Matcher) Match(upstream *storage.Patch, downstream []storage.Patch) *storage.Patch {
	var best *storage.Patch
	bestScore := 0.0

	for i := range downstream {
		score := m.weights.Score(ComputeSignals(upstream, &downstream[i]))
		if score > bestScore {
			best = &downstream[i]
			bestScore = score
		}
	}

	if best == nil || bestScore < m.threshold {
		return nil
	}

	m.logger.Debug("matched upstream patch downstream", map[string]interface{}{
		"upstream":   upstream.CommitID,
		"downstream": best.CommitID,
		"confidence": bestScore,
	})
	return best
}
