//go:build !cgo

package symbols

import (
	"patchmon/internal/errors"
	"patchmon/internal/logging"
)

func newTreeSitterExtractor(_ *logging.Logger) (Extractor, error) {
	return nil, errors.New(errors.ConfigInvalid,
		"tree-sitter extractor requires a cgo-enabled build, use ctags instead", nil)
}
