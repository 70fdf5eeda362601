package storage

import (
	"database/sql"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		statements := []string{
			`CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS distros (
				distro_id      TEXT PRIMARY KEY,
				repo_link      TEXT NOT NULL,
				kernel_version TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS monitoring_subjects (
				subject_id INTEGER PRIMARY KEY AUTOINCREMENT,
				distro_id  TEXT NOT NULL REFERENCES distros(distro_id) ON DELETE CASCADE,
				revision   TEXT NOT NULL,
				UNIQUE (distro_id, revision)
			)`,
			`CREATE TABLE IF NOT EXISTS patches (
				patch_id           INTEGER PRIMARY KEY AUTOINCREMENT,
				commit_id          TEXT NOT NULL UNIQUE,
				subject            TEXT NOT NULL DEFAULT '',
				description        TEXT NOT NULL DEFAULT '',
				author             TEXT NOT NULL DEFAULT '',
				author_email       TEXT NOT NULL DEFAULT '',
				author_time        TEXT NOT NULL,
				commit_time        TEXT NOT NULL,
				affected_filenames TEXT NOT NULL DEFAULT '',
				commit_diffs       TEXT NOT NULL DEFAULT '',
				symbols            TEXT NOT NULL DEFAULT '',
				fixed_patches      TEXT NOT NULL DEFAULT '',
				buglink            TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_patches_commit_time ON patches(commit_time)`,
			`CREATE TABLE IF NOT EXISTS missing_patches (
				subject_id INTEGER NOT NULL REFERENCES monitoring_subjects(subject_id) ON DELETE CASCADE,
				patch_id   INTEGER NOT NULL REFERENCES patches(patch_id) ON DELETE CASCADE,
				PRIMARY KEY (subject_id, patch_id)
			)`,
		}

		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", map[string]interface{}{
			"version": version,
		})
		return nil
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Migration functions go here as the schema evolves

	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}
