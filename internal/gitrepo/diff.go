package gitrepo

import (
	"context"
	"strings"
)

// AddRemoveDiff returns the changes a commit introduces against its
// first parent, restricted to paths, as alternating blocks of
// "<filename>" followed by the added/removed lines of that file.
//
// Only +/- content lines are kept. Hunk headers, context lines and the
// +++/--- file headers are dropped, so two cherry-picked commits with
// different surrounding context still produce comparable output.
func (r *Repo) AddRemoveDiff(ctx context.Context, commit string, paths []string) (string, error) {
	args := []string{"diff", "--no-color", commit + "^", commit}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	output, err := r.run(ctx, args...)
	if err != nil {
		return "", err
	}

	var blocks []string
	var current []string
	flush := func() {
		// A file that only moved lines around still contributes its
		// name so containment comparisons see it
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			if name := parseDiffHeaderPath(line); name != "" {
				current = []string{name}
			}
		case strings.HasPrefix(line, "+++ "), strings.HasPrefix(line, "--- "):
			// file headers, not content
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"):
			if len(current) > 0 {
				current = append(current, line)
			}
		}
	}
	flush()

	return strings.Join(blocks, "\n"), nil
}

// parseDiffHeaderPath extracts the post-image path from a
// "diff --git a/<path> b/<path>" header
func parseDiffHeaderPath(line string) string {
	idx := strings.Index(line, " b/")
	if idx < 0 {
		return ""
	}
	return line[idx+len(" b/"):]
}

// ChangedFiles lists every path a commit touches relative to its first
// parent. Renames report both sides, matching what history comparisons
// need.
func (r *Repo) ChangedFiles(ctx context.Context, commit string) ([]string, error) {
	lines, err := r.runLines(ctx, "diff", "--name-only", commit+"^", commit)
	if err != nil {
		return nil, err
	}
	return lines, nil
}
