package matcher

import "strings"

// fileDiff is the add/remove line sets of one file in a patch
type fileDiff struct {
	added   map[string]struct{}
	removed map[string]struct{}
}

// PatchDiff represents all code changes a patch introduces, parsed
// from the stored "<filename>\n<+/- lines>" block format
type PatchDiff struct {
	files      map[string]*fileDiff
	totalLines int
}

// NewPatchDiff parses the stored diff format. Any line not starting
// with + or - begins a new file block.
func NewPatchDiff(raw string) *PatchDiff {
	d := &PatchDiff{files: make(map[string]*fileDiff)}

	var current *fileDiff
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			if current != nil {
				current.added[line] = struct{}{}
				d.totalLines++
			}
		case strings.HasPrefix(line, "-"):
			if current != nil {
				current.removed[line] = struct{}{}
				d.totalLines++
			}
		case line != "":
			current = &fileDiff{
				added:   make(map[string]struct{}),
				removed: make(map[string]struct{}),
			}
			d.files[line] = current
		}
	}

	return d
}

// PercentPresentIn returns the fraction of this patch's diff lines
// that appear, per file, in other
func (d *PatchDiff) PercentPresentIn(other *PatchDiff) float64 {
	if d.totalLines == 0 {
		return 0.0
	}

	missing := 0
	for filename, diff := range d.files {
		otherDiff, ok := other.files[filename]
		if !ok {
			missing += len(diff.added) + len(diff.removed)
			continue
		}
		for line := range diff.added {
			if _, ok := otherDiff.added[line]; !ok {
				missing++
			}
		}
		for line := range diff.removed {
			if _, ok := otherDiff.removed[line]; !ok {
				missing++
			}
		}
	}

	return 1.0 - float64(missing)/float64(d.totalLines)
}
