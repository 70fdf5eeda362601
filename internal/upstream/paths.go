package upstream

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"patchmon/internal/gitrepo"
)

// releaseTagPattern matches mainline release tags worth consulting for
// MAINTAINERS content (v4.0 and later; -rc and stable point tags are
// redundant for section paths)
var releaseTagPattern = regexp.MustCompile(`^v([4-9]|[1-9][0-9]+)\.[0-9]+$`)

// ExtractPaths collects the F: entries of the given MAINTAINERS
// sections. Sections look like:
//
//	Hyper-V CORE AND DRIVERS
//	M:	"K. Y. Srinivasan" <kys@microsoft.com>
//	...
//	F:	drivers/hv/
//	F:	tools/hv/
//
// and end with a blank line. Documentation paths are skipped.
func ExtractPaths(sections []string, content string) map[string]struct{} {
	remaining := make(map[string]struct{}, len(sections))
	for _, section := range sections {
		remaining[section] = struct{}{}
	}

	paths := make(map[string]struct{})
	inSection := false
	for _, line := range strings.Split(content, "\n") {
		if inSection {
			if strings.TrimSpace(line) == "" {
				inSection = false
				if len(remaining) == 0 {
					break
				}
			}

			if strings.HasPrefix(line, "F:") {
				path := strings.TrimSpace(strings.TrimPrefix(line, "F:"))
				if path != "" && !strings.HasPrefix(path, "Documentation") {
					paths[path] = struct{}{}
				}
			}
			continue
		}

		for section := range remaining {
			if strings.Contains(line, section) {
				inSection = true
				delete(remaining, section)
				break
			}
		}
	}

	return paths
}

// TrackedPaths returns the sorted union of section paths across the
// upstream reference and every mainline release tag present locally.
// Old releases are consulted so that paths later moved or deleted keep
// their history tracked.
func TrackedPaths(ctx context.Context, repo *gitrepo.Repo, reference string, sections []string) ([]string, error) {
	tags, err := repo.Tags(ctx, "v*")
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(tags)+1)
	for _, tag := range tags {
		if releaseTagPattern.MatchString(tag) {
			refs = append(refs, tag)
		}
	}
	refs = append(refs, reference)

	union := make(map[string]struct{})
	for _, ref := range refs {
		content, err := repo.Show(ctx, ref, "MAINTAINERS")
		if err != nil {
			// A ref without a MAINTAINERS file contributes nothing
			continue
		}
		for path := range ExtractPaths(sections, content) {
			union[path] = struct{}{}
		}
	}

	paths := make([]string, 0, len(union))
	for path := range union {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}
