package report

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"patchmon/internal/logging"
	"patchmon/internal/storage"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: io.Discard})
}

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("opening database failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPatch(t *testing.T, db *storage.DB, commitID, subject, fixes string, when time.Time) int64 {
	t.Helper()
	patches := storage.NewPatchRepository(db)
	if _, err := patches.InsertIfAbsent(&storage.Patch{
		CommitID:     commitID,
		Subject:      subject,
		AuthorTime:   when,
		CommitTime:   when,
		FixedPatches: fixes,
	}); err != nil {
		t.Fatal(err)
	}
	stored, err := patches.GetByCommitID(commitID)
	if err != nil {
		t.Fatal(err)
	}
	return stored.ID
}

func TestExportMarksAbsentPatches(t *testing.T) {
	db := setupTestDB(t)
	distros := storage.NewDistroRepository(db)
	subjects := storage.NewSubjectRepository(db)
	missing := storage.NewMissingPatchRepository(db)

	if err := distros.Upsert(&storage.Distro{ID: "ubuntu-azure", RepoLink: "https://example.com/azure.git"}); err != nil {
		t.Fatal(err)
	}
	// The older subject was created first; only the newest one should
	// drive the status column.
	for _, revision := range []string{"Ubuntu-azure-6.2.0-1004.4", "Ubuntu-azure-6.2.0-1005.5"} {
		if err := subjects.Create(db, "ubuntu-azure", revision); err != nil {
			t.Fatal(err)
		}
	}
	listed, err := subjects.ListByDistro("ubuntu-azure")
	if err != nil || len(listed) != 2 {
		t.Fatalf("listing subjects: %v (%d found)", err, len(listed))
	}
	subjectByRevision := map[string]int64{}
	for _, subject := range listed {
		subjectByRevision[subject.Revision] = subject.ID
	}

	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	landed := seedPatch(t, db, "abc123", "Drivers: hv: fix ring buffer wraparound", "deadbeef cafef00d", base)
	absent := seedPatch(t, db, "def456", "Drivers: hv: balloon floor adjustment", "deadbeef", base.Add(time.Hour))

	// The old subject misses the landed patch, the new one misses the
	// other; only the latter may surface as Absent.
	if err := missing.Insert(db, subjectByRevision["Ubuntu-azure-6.2.0-1004.4"], landed); err != nil {
		t.Fatal(err)
	}
	if err := missing.Insert(db, subjectByRevision["Ubuntu-azure-6.2.0-1005.5"], absent); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := NewSpreadsheet(db, testLogger()).Export(path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening exported file failed: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Commit ID", "Date", "Commit Title", "Fixes", "ubuntu-azure"},
		{"abc123", "2025-07-01", "Drivers: hv: fix ring buffer wraparound", "deadbeef, cafef00d", "Ubuntu-azure-6.2.0-1005.5"},
		{"def456", "2025-07-01", "Drivers: hv: balloon floor adjustment", "deadbeef", "Absent"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Exported rows mismatch (-want +got):\n%s", diff)
	}
}

func TestExportEmptyDatabase(t *testing.T) {
	db := setupTestDB(t)

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := NewSpreadsheet(db, testLogger()).Export(path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening exported file failed: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0][0] != "Commit ID" {
		t.Errorf("Expected only the header row, got %v", rows)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 120); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	long := make([]byte, 0, 130)
	for i := 0; i < 130; i++ {
		long = append(long, 'x')
	}
	if got := truncate(string(long), 120); len(got) != 120 {
		t.Errorf("truncate kept %d bytes", len(got))
	}
}
