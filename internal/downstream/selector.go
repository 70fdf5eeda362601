// Package downstream tracks distribution kernel trees: which revisions
// to monitor, how far back to fetch them, and which upstream patches
// they are still missing.
package downstream

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// excludedFlavors are tag substrings that mark derivative kernel
// flavors we never track. Their tags share the base flavor's name, so
// a plain contains-filter would pull them in.
var excludedFlavors = []string{"edge", "cvm", "fde"}

// revisionsToTrack is how many of the newest revisions per distro stay
// under monitoring
const revisionsToTrack = 2

// ubuntuTagVersion matches the version suffix of an Ubuntu kernel tag,
// e.g. "Ubuntu-azure-5.15.0-1034.41" yields 5.15.0, 1034, 41
var ubuntuTagVersion = regexp.MustCompile(`(\d+\.\d+\.\d+)-(\d+)\.(\d+)$`)

type taggedRevision struct {
	tag     string
	base    *semver.Version
	abi     int
	upload  int
}

// SelectRevisions picks the revisions of one distro worth tracking: the
// newest revisionsToTrack tags carrying the distro's flavor, skipping
// derivative flavors. Pure over its inputs; given the same tag list it
// always returns the same revisions, and an older tag never displaces
// a newer one.
func SelectRevisions(flavor string, tags []string) []string {
	var parsed []taggedRevision
	for _, tag := range tags {
		if !strings.Contains(tag, flavor) || isExcluded(tag) {
			continue
		}
		parsed = append(parsed, parseTag(tag))
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		return lessRevision(parsed[i], parsed[j])
	})

	if len(parsed) > revisionsToTrack {
		parsed = parsed[len(parsed)-revisionsToTrack:]
	}

	revisions := make([]string, len(parsed))
	for i, p := range parsed {
		revisions[i] = p.tag
	}
	return revisions
}

// Flavor derives the tag filter token from a distro identifier such
// as "ubuntu-azure" or "ubuntu-azure-22.04"
func Flavor(distroID string) string {
	parts := strings.Split(distroID, "-")
	if len(parts) >= 2 {
		return parts[1]
	}
	return distroID
}

func isExcluded(tag string) bool {
	for _, flavor := range excludedFlavors {
		if strings.Contains(tag, flavor) {
			return true
		}
	}
	return false
}

func parseTag(tag string) taggedRevision {
	rev := taggedRevision{tag: tag}
	m := ubuntuTagVersion.FindStringSubmatch(tag)
	if m == nil {
		return rev
	}
	version, err := semver.NewVersion(m[1])
	if err != nil {
		return rev
	}
	rev.base = version
	rev.abi, _ = strconv.Atoi(m[2])
	rev.upload, _ = strconv.Atoi(m[3])
	return rev
}

// lessRevision orders by kernel version, then ABI, then upload number.
// Tags without a parseable version sort below all versioned ones, by
// tag name among themselves.
func lessRevision(a, b taggedRevision) bool {
	if a.base == nil || b.base == nil {
		if a.base == nil && b.base == nil {
			return a.tag < b.tag
		}
		return a.base == nil
	}
	if c := a.base.Compare(b.base); c != 0 {
		return c < 0
	}
	if a.abi != b.abi {
		return a.abi < b.abi
	}
	return a.upload < b.upload
}
