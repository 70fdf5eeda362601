package symbols

import (
	"context"
	"os/exec"
	"strings"

	"patchmon/internal/errors"
	"patchmon/internal/logging"
)

// commandRunner executes an external tool in a directory. Tests swap
// in a fake.
type commandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

type execCommandRunner struct{}

func (execCommandRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return "", errors.New(errors.ToolFailed, name+" failed", err).
			WithDetails(map[string]interface{}{
				"args":   args,
				"stderr": stderr.String(),
			})
	}
	return string(output), nil
}

// CtagsExtractor shells out to universal-ctags for function symbols
type CtagsExtractor struct {
	runner commandRunner
	logger *logging.Logger
}

func NewCtagsExtractor(logger *logging.Logger) *CtagsExtractor {
	return &CtagsExtractor{runner: execCommandRunner{}, logger: logger}
}

// Extract runs ctags in cross-reference mode restricted to C function
// definitions and collects the symbol names
func (e *CtagsExtractor) Extract(ctx context.Context, dir string, paths []string) (map[string]struct{}, error) {
	args := []string{"-R", "-x", "--c-kinds=f", "--languages=C"}
	if len(paths) > 0 {
		args = append(args, paths...)
	} else {
		args = append(args, ".")
	}

	output, err := e.runner.Run(ctx, dir, "ctags", args...)
	if err != nil {
		return nil, err
	}

	symbols := make(map[string]struct{})
	for _, line := range strings.Split(output, "\n") {
		// "<name> function <line> <file> <signature>"
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[1] != "function" {
			continue
		}
		symbols[fields[0]] = struct{}{}
	}
	return symbols, nil
}
