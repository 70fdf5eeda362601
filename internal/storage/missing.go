package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// MissingPatchRepository provides access to the missing_patches table.
// The table is a materialized view of the latest reconciliation: a row
// exists exactly when the most recent run found that (subject, patch)
// pair missing.
type MissingPatchRepository struct {
	db *DB
}

// NewMissingPatchRepository creates a new missing-patch repository
func NewMissingPatchRepository(db *DB) *MissingPatchRepository {
	return &MissingPatchRepository{db: db}
}

// PatchIDs returns the patch ids currently recorded missing for a subject
func (r *MissingPatchRepository) PatchIDs(q Querier, subjectID int64) ([]int64, error) {
	rows, err := q.Query(`
		SELECT patch_id FROM missing_patches WHERE subject_id = ?
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing patches: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Exists reports whether a (subject, patch) pair is recorded missing
func (r *MissingPatchRepository) Exists(q Querier, subjectID, patchID int64) (bool, error) {
	var one int
	err := q.QueryRow(`
		SELECT 1 FROM missing_patches WHERE subject_id = ? AND patch_id = ?
	`, subjectID, patchID).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check missing patch: %w", err)
	}
	return true, nil
}

// Insert records a (subject, patch) pair as missing
func (r *MissingPatchRepository) Insert(q Querier, subjectID, patchID int64) error {
	if _, err := q.Exec(`
		INSERT INTO missing_patches (subject_id, patch_id) VALUES (?, ?)
	`, subjectID, patchID); err != nil {
		return fmt.Errorf("failed to insert missing patch: %w", err)
	}
	return nil
}

// DeleteNotIn removes a subject's records whose patch id is not in
// keep, returning how many were removed. An empty keep clears the
// subject entirely.
func (r *MissingPatchRepository) DeleteNotIn(q Querier, subjectID int64, keep []int64) (int64, error) {
	where := "subject_id = ?"
	args := []interface{}{subjectID}
	if len(keep) > 0 {
		placeholders := make([]string, len(keep))
		for i, id := range keep {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where += " AND patch_id NOT IN (" + strings.Join(placeholders, ", ") + ")"
	}

	result, err := q.Exec("DELETE FROM missing_patches WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete missing patches: %w", err)
	}
	return result.RowsAffected()
}
