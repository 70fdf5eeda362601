package gitrepo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"patchmon/internal/errors"
)

// Commit is a raw commit descriptor as reported by git log
type Commit struct {
	ID          string
	Author      string
	AuthorEmail string
	AuthorTime  time.Time
	CommitTime  time.Time
	Message     string // full message, subject line first
}

// LogOptions selects which commits a log operation returns
type LogOptions struct {
	// Revision is a single rev or a range such as "a...b"
	Revision string
	// Since bounds commits by committer date (approxidate)
	Since string
	// Paths restricts the walk to commits touching these paths
	Paths []string
	// NoMerges skips commits with more than one parent
	NoMerges bool
	// FirstParentOnly skips root and graft commits
	// (--min-parents=1 --max-parents=1)
	FirstParentOnly bool
	// CherryPick marks patch-equivalent commits for omission in a
	// symmetric-difference range
	CherryPick bool
	// RightOnly keeps only commits reachable from the right side of a
	// symmetric-difference range
	RightOnly bool
}

func (o LogOptions) args() []string {
	args := []string{"log"}
	if o.NoMerges {
		args = append(args, "--no-merges")
	}
	if o.FirstParentOnly {
		args = append(args, "--min-parents=1", "--max-parents=1")
	}
	if o.CherryPick {
		args = append(args, "--cherry-pick")
	}
	if o.RightOnly {
		args = append(args, "--right-only")
	}
	if o.Since != "" {
		args = append(args, "--since="+o.Since)
	}
	args = append(args, o.Revision)
	if len(o.Paths) > 0 {
		args = append(args, "--")
		args = append(args, o.Paths...)
	}
	return args
}

// CommitIDs returns the hashes selected by opts, newest first
func (r *Repo) CommitIDs(ctx context.Context, opts LogOptions) ([]string, error) {
	args := opts.args()
	// splice the format in after "log"
	args = append([]string{"log", "--pretty=format:%H"}, args[1:]...)
	return r.runLines(ctx, args...)
}

const (
	logFieldSep  = "\x1f"
	logRecordSep = "\x1e"
	logFormat    = "%H\x1f%an\x1f%ae\x1f%at\x1f%ct\x1f%B\x1e"
)

// Commits returns full commit descriptors selected by opts, newest first
func (r *Repo) Commits(ctx context.Context, opts LogOptions) ([]Commit, error) {
	args := opts.args()
	args = append([]string{"log", "--pretty=format:" + logFormat}, args[1:]...)

	output, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	return parseCommits(output, r)
}

// CommitsByID resolves a set of hashes to full descriptors, skipping
// any that do not exist locally
func (r *Repo) CommitsByID(ctx context.Context, ids []string) ([]Commit, error) {
	commits := make([]Commit, 0, len(ids))
	for _, id := range ids {
		output, err := r.run(ctx, "log", "-1", "--pretty=format:"+logFormat, id)
		if err != nil {
			r.logger.Warn("Commit does not exist in the repo, skipping", map[string]interface{}{
				"commit": id,
			})
			continue
		}
		parsed, err := parseCommits(output, r)
		if err != nil {
			return nil, err
		}
		commits = append(commits, parsed...)
	}
	return commits, nil
}

func parseCommits(output string, r *Repo) ([]Commit, error) {
	var commits []Commit
	for _, record := range strings.Split(output, logRecordSep) {
		record = strings.TrimLeft(record, "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		fields := strings.SplitN(record, logFieldSep, 6)
		if len(fields) != 6 {
			r.logger.Warn("Skipping malformed git log record", map[string]interface{}{
				"record": record,
			})
			continue
		}

		authorUnix, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, errors.New(errors.InternalError, "failed to parse author time", err)
		}
		commitUnix, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, errors.New(errors.InternalError, "failed to parse commit time", err)
		}

		commits = append(commits, Commit{
			ID:          fields[0],
			Author:      fields[1],
			AuthorEmail: fields[2],
			AuthorTime:  time.Unix(authorUnix, 0).UTC(),
			CommitTime:  time.Unix(commitUnix, 0).UTC(),
			Message:     strings.TrimRight(fields[5], "\n"),
		})
	}
	return commits, nil
}

// Show returns the content of path at ref
func (r *Repo) Show(ctx context.Context, ref, path string) (string, error) {
	return r.run(ctx, "show", ref+":"+path)
}

// Tags lists local tags matching the given glob pattern
func (r *Repo) Tags(ctx context.Context, pattern string) ([]string, error) {
	return r.runLines(ctx, "tag", "--list", pattern)
}
