// Package symbols tracks which exported functions each recorded patch
// introduced, so consumers pinned to an older symbol surface can be
// pointed at the exact commits they lack.
package symbols

import (
	"context"

	"patchmon/internal/config"
	"patchmon/internal/errors"
	"patchmon/internal/logging"
)

// Extractor lists the function symbols defined under the given paths
// of a checked-out source tree
type Extractor interface {
	// Extract returns the set of function names. Paths are relative to
	// dir; an empty list scans the whole tree.
	Extract(ctx context.Context, dir string, paths []string) (map[string]struct{}, error)
}

// NewExtractor builds the extractor named in the configuration
func NewExtractor(cfg *config.Config, logger *logging.Logger) (Extractor, error) {
	switch cfg.Symbols.Extractor {
	case "", "ctags":
		return NewCtagsExtractor(logger), nil
	case "treesitter":
		return newTreeSitterExtractor(logger)
	default:
		return nil, errors.New(errors.ConfigInvalid, "unknown symbol extractor", nil).
			WithDetails(map[string]interface{}{"extractor": cfg.Symbols.Extractor})
	}
}
