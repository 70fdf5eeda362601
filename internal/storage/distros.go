package storage

import (
	"database/sql"
	"fmt"
)

// DistroRepository provides access to the distros table
type DistroRepository struct {
	db *DB
}

// NewDistroRepository creates a new distro repository
func NewDistroRepository(db *DB) *DistroRepository {
	return &DistroRepository{db: db}
}

// Upsert inserts a distro or refreshes its repo link and kernel label
func (r *DistroRepository) Upsert(distro *Distro) error {
	_, err := r.db.Exec(`
		INSERT INTO distros (distro_id, repo_link, kernel_version)
		VALUES (?, ?, ?)
		ON CONFLICT(distro_id) DO UPDATE SET
			repo_link = excluded.repo_link,
			kernel_version = excluded.kernel_version
	`, distro.ID, distro.RepoLink, distro.KernelVersion)
	if err != nil {
		return fmt.Errorf("failed to upsert distro: %w", err)
	}
	return nil
}

// Get retrieves a distro by ID, returning nil when absent
func (r *DistroRepository) Get(id string) (*Distro, error) {
	var distro Distro
	err := r.db.QueryRow(`
		SELECT distro_id, repo_link, kernel_version
		FROM distros WHERE distro_id = ?
	`, id).Scan(&distro.ID, &distro.RepoLink, &distro.KernelVersion)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distro: %w", err)
	}
	return &distro, nil
}

// List returns all distros ordered by ID
func (r *DistroRepository) List() ([]Distro, error) {
	rows, err := r.db.Query(`
		SELECT distro_id, repo_link, kernel_version
		FROM distros ORDER BY distro_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list distros: %w", err)
	}
	defer rows.Close()

	var distros []Distro
	for rows.Next() {
		var distro Distro
		if err := rows.Scan(&distro.ID, &distro.RepoLink, &distro.KernelVersion); err != nil {
			return nil, err
		}
		distros = append(distros, distro)
	}
	return distros, rows.Err()
}
