package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// PatchRepository provides access to the patches table
type PatchRepository struct {
	db *DB
}

// NewPatchRepository creates a new patch repository
func NewPatchRepository(db *DB) *PatchRepository {
	return &PatchRepository{db: db}
}

// InsertIfAbsent inserts a patch unless its commit is already recorded.
// Returns true when a row was inserted.
func (r *PatchRepository) InsertIfAbsent(patch *Patch) (bool, error) {
	result, err := r.db.Exec(`
		INSERT OR IGNORE INTO patches (
			commit_id, subject, description, author, author_email,
			author_time, commit_time, affected_filenames, commit_diffs,
			symbols, fixed_patches, buglink
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		patch.CommitID,
		patch.Subject,
		patch.Description,
		patch.Author,
		patch.AuthorEmail,
		formatTime(patch.AuthorTime),
		formatTime(patch.CommitTime),
		patch.AffectedFilenames,
		patch.CommitDiffs,
		patch.Symbols,
		patch.FixedPatches,
		patch.BugLink,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert patch: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const patchColumns = `
	patch_id, commit_id, subject, description, author, author_email,
	author_time, commit_time, affected_filenames, commit_diffs,
	symbols, fixed_patches, buglink
`

func scanPatch(rows interface{ Scan(...interface{}) error }) (*Patch, error) {
	var patch Patch
	var authorTime, commitTime string

	err := rows.Scan(
		&patch.ID,
		&patch.CommitID,
		&patch.Subject,
		&patch.Description,
		&patch.Author,
		&patch.AuthorEmail,
		&authorTime,
		&commitTime,
		&patch.AffectedFilenames,
		&patch.CommitDiffs,
		&patch.Symbols,
		&patch.FixedPatches,
		&patch.BugLink,
	)
	if err != nil {
		return nil, err
	}

	if patch.AuthorTime, err = parseTime(authorTime); err != nil {
		return nil, fmt.Errorf("invalid author_time: %w", err)
	}
	if patch.CommitTime, err = parseTime(commitTime); err != nil {
		return nil, fmt.Errorf("invalid commit_time: %w", err)
	}

	return &patch, nil
}

// GetByCommitID retrieves a patch by commit hash, returning nil when absent
func (r *PatchRepository) GetByCommitID(commitID string) (*Patch, error) {
	row := r.db.QueryRow(
		"SELECT "+patchColumns+" FROM patches WHERE commit_id = ?", commitID)

	patch, err := scanPatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patch: %w", err)
	}
	return patch, nil
}

// ListByCommitIDs returns the patches for the given commit hashes,
// ordered by commit time ascending
func (r *PatchRepository) ListByCommitIDs(commitIDs []string) ([]Patch, error) {
	if len(commitIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(commitIDs))
	args := make([]interface{}, len(commitIDs))
	for i, id := range commitIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.db.Query(
		"SELECT "+patchColumns+" FROM patches WHERE commit_id IN ("+
			strings.Join(placeholders, ", ")+") ORDER BY commit_time", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patches: %w", err)
	}
	defer rows.Close()

	return collectPatches(rows)
}

// List returns every recorded patch ordered by commit time ascending
func (r *PatchRepository) List() ([]Patch, error) {
	rows, err := r.db.Query("SELECT " + patchColumns + " FROM patches ORDER BY commit_time")
	if err != nil {
		return nil, fmt.Errorf("failed to list patches: %w", err)
	}
	defer rows.Close()

	return collectPatches(rows)
}

// ListCommitIDsOrdered returns every recorded commit hash ordered by
// commit time ascending, the order the symbol tracker replays them in
func (r *PatchRepository) ListCommitIDsOrdered() ([]string, error) {
	rows, err := r.db.Query("SELECT commit_id FROM patches ORDER BY commit_time")
	if err != nil {
		return nil, fmt.Errorf("failed to list commit ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListCommitIDsWithoutSymbols returns commit hashes still waiting for
// symbol extraction, ordered by commit time ascending. A crash mid-run
// leaves the remainder here for the next run.
func (r *PatchRepository) ListCommitIDsWithoutSymbols() ([]string, error) {
	rows, err := r.db.Query(
		"SELECT commit_id FROM patches WHERE symbols = '' ORDER BY commit_time")
	if err != nil {
		return nil, fmt.Errorf("failed to list commit ids without symbols: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListWithSymbols returns patches that have a recorded symbol delta,
// ordered by commit time ascending
func (r *PatchRepository) ListWithSymbols() ([]Patch, error) {
	rows, err := r.db.Query(
		"SELECT " + patchColumns + " FROM patches WHERE symbols != '' ORDER BY commit_time")
	if err != nil {
		return nil, fmt.Errorf("failed to list patches with symbols: %w", err)
	}
	defer rows.Close()

	return collectPatches(rows)
}

// UpdateSymbols records the introduced-symbol delta for a commit
func (r *PatchRepository) UpdateSymbols(commitID, symbols string) error {
	result, err := r.db.Exec(
		"UPDATE patches SET symbols = ? WHERE commit_id = ?", symbols, commitID)
	if err != nil {
		return fmt.Errorf("failed to update symbols: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no patch recorded for commit %s", commitID)
	}
	return nil
}

func collectPatches(rows *sql.Rows) ([]Patch, error) {
	var patches []Patch
	for rows.Next() {
		patch, err := scanPatch(rows)
		if err != nil {
			return nil, err
		}
		patches = append(patches, *patch)
	}
	return patches, rows.Err()
}
