package upstream

import (
	"strings"

	"patchmon/internal/gitrepo"
	"patchmon/internal/storage"
)

// ignoredTrailers are boilerplate commit-message lines that carry no
// matching signal and are dropped from the stored description
var ignoredTrailers = []string{
	"reported-by:",
	"signed-off-by:",
	"reviewed-by:",
	"acked-by:",
	"cc:",
}

func isIgnoredTrailer(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range ignoredTrailers {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// ParsePatch turns a raw commit descriptor plus its add/remove diff
// into a Patch record. The diff and filename list are produced by the
// caller because they need repository access.
func ParsePatch(commit gitrepo.Commit, filenames []string, diff string) *storage.Patch {
	patch := &storage.Patch{
		CommitID:          commit.ID,
		Author:            commit.Author,
		AuthorEmail:       commit.AuthorEmail,
		AuthorTime:        commit.AuthorTime,
		CommitTime:        commit.CommitTime,
		AffectedFilenames: strings.Join(filenames, " "),
		CommitDiffs:       diff,
	}

	var description []string
	var fixedPatches []string
	for num, line := range strings.Split(commit.Message, "\n") {
		line = strings.TrimSpace(line)
		if num == 0 {
			patch.Subject = line
			continue
		}
		if line == "" || isIgnoredTrailer(line) {
			continue
		}

		description = append(description, line)

		lower := strings.ToLower(line)
		// "Fixes: <sha> (...)" references the patch this one repairs
		if strings.HasPrefix(lower, "fixes:") {
			if words := strings.Fields(line); len(words) > 1 {
				fixedPatches = append(fixedPatches, words[1])
			}
		}
		// Distro trees annotate backports with a tracker URL
		if strings.HasPrefix(lower, "buglink:") && patch.BugLink == "" {
			if words := strings.Fields(line); len(words) > 1 {
				patch.BugLink = words[1]
			}
		}
	}

	patch.Description = strings.Join(description, "\n")
	patch.FixedPatches = strings.Join(fixedPatches, " ") // e.g. "SHA1 SHA2 SHA3"

	return patch
}
