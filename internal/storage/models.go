package storage

import (
	"strings"
	"time"
)

// Distro is immutable reference data for one downstream distribution
type Distro struct {
	ID            string
	RepoLink      string
	KernelVersion string
}

// MonitoringSubject is a (distro, revision) pair under active tracking.
// The revision is a branch or tag name, not a commit hash, so what it
// points at drifts as the remote advances.
type MonitoringSubject struct {
	ID       int64
	DistroID string
	Revision string
}

// Patch is the parsed record of one commit. Created when the commit is
// first observed and immutable after that, except for Symbols which
// the drift tracker fills in later.
type Patch struct {
	ID                 int64
	CommitID           string
	Subject            string
	Description        string
	Author             string
	AuthorEmail        string
	AuthorTime         time.Time
	CommitTime         time.Time
	AffectedFilenames  string // space-separated path list
	CommitDiffs        string // "<filename>\n<+/- lines>" blocks
	Symbols            string // space-separated exported symbols this commit introduced
	FixedPatches       string // space-separated upstream commit references from Fixes: lines
	BugLink            string
}

// Filenames returns the affected path list split into a slice
func (p *Patch) Filenames() []string {
	if p.AffectedFilenames == "" {
		return nil
	}
	return strings.Fields(p.AffectedFilenames)
}

// SymbolSet returns the introduced-symbol delta as a set
func (p *Patch) SymbolSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, sym := range strings.Fields(p.Symbols) {
		set[sym] = struct{}{}
	}
	return set
}

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
