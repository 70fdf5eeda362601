// Package report renders the tracked patch state into a spreadsheet
// so the missing-patch picture can be reviewed and annotated outside
// the tool.
package report

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"patchmon/internal/logging"
	"patchmon/internal/storage"
)

// SheetName is the worksheet holding one row per upstream patch
const SheetName = "git log"

// Spreadsheet exports the stored patches with a per-distro status
// column computed from the missing-patch sets
type Spreadsheet struct {
	db       *storage.DB
	subjects *storage.SubjectRepository
	patches  *storage.PatchRepository
	missing  *storage.MissingPatchRepository
	logger   *logging.Logger
}

func NewSpreadsheet(db *storage.DB, logger *logging.Logger) *Spreadsheet {
	return &Spreadsheet{
		db:       db,
		subjects: storage.NewSubjectRepository(db),
		patches:  storage.NewPatchRepository(db),
		missing:  storage.NewMissingPatchRepository(db),
		logger:   logger,
	}
}

// distroColumn is one status column: the newest monitored revision of
// a distro and the patch IDs that revision is missing
type distroColumn struct {
	distroID  string
	subjectID int64
	revision  string
	missing   map[int64]struct{}
}

// Export writes one row per stored upstream patch. Each distro gets a
// status column holding its monitored revision when the patch landed
// there and "Absent" when the patch is recorded missing.
func (s *Spreadsheet) Export(path string) error {
	columns, err := s.distroColumns()
	if err != nil {
		return err
	}
	patches, err := s.patches.List()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header := []interface{}{"Commit ID", "Date", "Commit Title", "Fixes"}
	for _, column := range columns {
		header = append(header, column.distroID)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	for i, patch := range patches {
		row := []interface{}{
			patch.CommitID,
			patch.AuthorTime.UTC().Format("2006-01-02"),
			truncate(patch.Subject, 120),
			strings.Join(strings.Fields(patch.FixedPatches), ", "),
		}
		for _, column := range columns {
			if _, absent := column.missing[patch.ID]; absent {
				row = append(row, "Absent")
			} else {
				row = append(row, column.revision)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return err
	}
	s.logger.Info("Exported patches to spreadsheet", map[string]interface{}{
		"path":    path,
		"patches": len(patches),
		"distros": len(columns),
	})
	return nil
}

// distroColumns picks the newest monitored revision per distro, the
// subject created last, and loads its missing set. Distros without
// subjects get no column.
func (s *Spreadsheet) distroColumns() ([]distroColumn, error) {
	subjects, err := s.subjects.List()
	if err != nil {
		return nil, err
	}

	var columns []distroColumn
	index := map[string]int{}
	for _, subject := range subjects {
		ids, err := s.missing.PatchIDs(s.db, subject.ID)
		if err != nil {
			return nil, err
		}
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		column := distroColumn{
			distroID:  subject.DistroID,
			subjectID: subject.ID,
			revision:  subject.Revision,
			missing:   set,
		}
		if i, seen := index[subject.DistroID]; seen {
			if subject.ID > columns[i].subjectID {
				columns[i] = column
			}
			continue
		}
		index[subject.DistroID] = len(columns)
		columns = append(columns, column)
	}
	return columns, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
