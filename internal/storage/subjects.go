package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// SubjectRepository provides access to the monitoring_subjects table
type SubjectRepository struct {
	db *DB
}

// NewSubjectRepository creates a new subject repository
func NewSubjectRepository(db *DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns all monitoring subjects ordered by distro then revision
func (r *SubjectRepository) List() ([]MonitoringSubject, error) {
	return r.list(r.db, "")
}

// ListByDistro returns the subjects tracked for one distro
func (r *SubjectRepository) ListByDistro(distroID string) ([]MonitoringSubject, error) {
	return r.list(r.db, distroID)
}

func (r *SubjectRepository) list(q Querier, distroID string) ([]MonitoringSubject, error) {
	query := `
		SELECT subject_id, distro_id, revision
		FROM monitoring_subjects
	`
	var args []interface{}
	if distroID != "" {
		query += " WHERE distro_id = ?"
		args = append(args, distroID)
	}
	query += " ORDER BY distro_id, revision"

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []MonitoringSubject
	for rows.Next() {
		var subject MonitoringSubject
		if err := rows.Scan(&subject.ID, &subject.DistroID, &subject.Revision); err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

// Exists reports whether a (distro, revision) subject is persisted
func (r *SubjectRepository) Exists(q Querier, distroID, revision string) (bool, error) {
	var one int
	err := q.QueryRow(`
		SELECT 1 FROM monitoring_subjects
		WHERE distro_id = ? AND revision = ?
	`, distroID, revision).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check subject existence: %w", err)
	}
	return true, nil
}

// Create inserts a new monitoring subject
func (r *SubjectRepository) Create(q Querier, distroID, revision string) error {
	if _, err := q.Exec(`
		INSERT INTO monitoring_subjects (distro_id, revision)
		VALUES (?, ?)
	`, distroID, revision); err != nil {
		return fmt.Errorf("failed to create subject: %w", err)
	}
	return nil
}

// DeleteWhereRevisionNotIn removes this distro's subjects whose
// revision is not in keep, returning the deleted revisions. Cascades
// to their missing-patch records. An empty keep deletes every subject
// for the distro.
func (r *SubjectRepository) DeleteWhereRevisionNotIn(q Querier, distroID string, keep []string) ([]string, error) {
	where := "distro_id = ?"
	args := []interface{}{distroID}
	if len(keep) > 0 {
		placeholders := make([]string, len(keep))
		for i, revision := range keep {
			placeholders[i] = "?"
			args = append(args, revision)
		}
		where += " AND revision NOT IN (" + strings.Join(placeholders, ", ") + ")"
	}

	rows, err := q.Query("SELECT revision FROM monitoring_subjects WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale subjects: %w", err)
	}
	var stale []string
	for rows.Next() {
		var revision string
		if err := rows.Scan(&revision); err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, revision)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(stale) == 0 {
		return nil, nil
	}

	if _, err := q.Exec("DELETE FROM monitoring_subjects WHERE "+where, args...); err != nil {
		return nil, fmt.Errorf("failed to delete stale subjects: %w", err)
	}

	return stale, nil
}
