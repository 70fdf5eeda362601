//go:build cgo

package symbols

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"patchmon/internal/errors"
	"patchmon/internal/logging"
)

// treeSitterExtractor parses C sources in-process instead of shelling
// out, for hosts without a ctags binary
type treeSitterExtractor struct {
	logger *logging.Logger
}

func newTreeSitterExtractor(logger *logging.Logger) (Extractor, error) {
	return &treeSitterExtractor{logger: logger}, nil
}

func (e *treeSitterExtractor) Extract(ctx context.Context, dir string, paths []string) (map[string]struct{}, error) {
	roots := paths
	if len(roots) == 0 {
		roots = []string{"."}
	}

	symbols := make(map[string]struct{})
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	for _, root := range roots {
		err := filepath.WalkDir(filepath.Join(dir, root), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Tracked paths can name files a given revision does
				// not have yet.
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(path, ".c") {
				return nil
			}
			return e.parseFile(ctx, parser, path, symbols)
		})
		if err != nil {
			return nil, err
		}
	}
	return symbols, nil
}

func (e *treeSitterExtractor) parseFile(ctx context.Context, parser *sitter.Parser, path string, symbols map[string]struct{}) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.ToolFailed, "reading source file failed", err).
			WithDetails(map[string]interface{}{"path": path})
	}

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return errors.New(errors.ToolFailed, "parsing source file failed", err).
			WithDetails(map[string]interface{}{"path": path})
	}
	defer tree.Close()

	collectFunctions(tree.RootNode(), source, symbols)
	return nil
}

// collectFunctions walks the syntax tree for function_definition nodes
// and records their declarator identifiers
func collectFunctions(node *sitter.Node, source []byte, symbols map[string]struct{}) {
	if node.Type() == "function_definition" {
		if name := functionName(node, source); name != "" {
			symbols[name] = struct{}{}
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectFunctions(node.Child(i), source, symbols)
	}
}

// functionName unwraps pointer and parenthesized declarators down to
// the function_declarator's identifier
func functionName(definition *sitter.Node, source []byte) string {
	node := definition.ChildByFieldName("declarator")
	for node != nil {
		switch node.Type() {
		case "function_declarator":
			inner := node.ChildByFieldName("declarator")
			if inner != nil && inner.Type() == "identifier" {
				return inner.Content(source)
			}
			node = inner
		case "pointer_declarator", "parenthesized_declarator":
			node = node.ChildByFieldName("declarator")
		default:
			return ""
		}
	}
	return ""
}
