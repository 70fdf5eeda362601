package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"patchmon/internal/logging"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir := t.TempDir()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: io.Discard})

	db, err := Open(tmpDir, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})

	return db
}

func testPatch(commitID string, commitTime time.Time) *Patch {
	return &Patch{
		CommitID:          commitID,
		Subject:           "Drivers: hv: fix " + commitID,
		Description:       "some description",
		Author:            "Alice",
		AuthorEmail:       "alice@example.com",
		AuthorTime:        commitTime.Add(-time.Hour),
		CommitTime:        commitTime,
		AffectedFilenames: "drivers/hv/vmbus_drv.c",
		CommitDiffs:       "drivers/hv/vmbus_drv.c\n+added",
	}
}

func TestDatabaseInitialization(t *testing.T) {
	tmpDir := t.TempDir()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: io.Discard})

	db, err := Open(tmpDir, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "patchmon.db")); os.IsNotExist(err) {
		t.Fatal("Database file was not created")
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestDistroRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDistroRepository(db)

	distro := &Distro{ID: "Ubuntu22.04", RepoLink: "https://example.com/jammy.git", KernelVersion: "5.15"}
	if err := repo.Upsert(distro); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Upsert again with a changed link
	distro.RepoLink = "https://example.com/jammy-new.git"
	if err := repo.Upsert(distro); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := repo.Get("Ubuntu22.04")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.RepoLink != "https://example.com/jammy-new.git" {
		t.Errorf("Upsert should refresh the repo link, got %+v", got)
	}

	missing, err := repo.Get("Debian12")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown distro, got %+v", missing)
	}

	distros, err := repo.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(distros) != 1 {
		t.Errorf("Expected 1 distro, got %d", len(distros))
	}
}

func TestSubjectRepository(t *testing.T) {
	db := setupTestDB(t)
	distros := NewDistroRepository(db)
	subjects := NewSubjectRepository(db)

	if err := distros.Upsert(&Distro{ID: "Ubuntu22.04", RepoLink: "url"}); err != nil {
		t.Fatal(err)
	}

	for _, revision := range []string{"tag-a", "tag-b", "tag-c"} {
		if err := subjects.Create(db, "Ubuntu22.04", revision); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	exists, err := subjects.Exists(db, "Ubuntu22.04", "tag-b")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("Expected tag-b to exist")
	}

	stale, err := subjects.DeleteWhereRevisionNotIn(db, "Ubuntu22.04", []string{"tag-b", "tag-c"})
	if err != nil {
		t.Fatalf("DeleteWhereRevisionNotIn failed: %v", err)
	}
	if diff := cmp.Diff([]string{"tag-a"}, stale); diff != "" {
		t.Errorf("Stale revisions mismatch (-want +got):\n%s", diff)
	}

	remaining, err := subjects.ListByDistro("Ubuntu22.04")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Errorf("Expected 2 remaining subjects, got %d", len(remaining))
	}
}

func TestSubjectDeleteCascadesToMissingPatches(t *testing.T) {
	db := setupTestDB(t)
	distros := NewDistroRepository(db)
	subjects := NewSubjectRepository(db)
	patches := NewPatchRepository(db)
	missing := NewMissingPatchRepository(db)

	if err := distros.Upsert(&Distro{ID: "Ubuntu22.04", RepoLink: "url"}); err != nil {
		t.Fatal(err)
	}
	if err := subjects.Create(db, "Ubuntu22.04", "tag-old"); err != nil {
		t.Fatal(err)
	}
	subjectList, err := subjects.ListByDistro("Ubuntu22.04")
	if err != nil {
		t.Fatal(err)
	}
	subjectID := subjectList[0].ID

	if _, err := patches.InsertIfAbsent(testPatch("abc123", time.Now())); err != nil {
		t.Fatal(err)
	}
	patch, err := patches.GetByCommitID("abc123")
	if err != nil {
		t.Fatal(err)
	}
	if err := missing.Insert(db, subjectID, patch.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := subjects.DeleteWhereRevisionNotIn(db, "Ubuntu22.04", []string{"tag-new"}); err != nil {
		t.Fatal(err)
	}

	ids, err := missing.PatchIDs(db, subjectID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("Deleting a subject should cascade to its missing patches, got %v", ids)
	}
}

func TestPatchRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPatchRepository(db)

	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	inserted, err := repo.InsertIfAbsent(testPatch("abc123", base))
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}
	if !inserted {
		t.Error("First insert should report a new row")
	}

	inserted, err = repo.InsertIfAbsent(testPatch("abc123", base))
	if err != nil {
		t.Fatalf("Second InsertIfAbsent failed: %v", err)
	}
	if inserted {
		t.Error("Duplicate insert should be a no-op")
	}

	if _, err := repo.InsertIfAbsent(testPatch("def456", base.Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}

	patch, err := repo.GetByCommitID("abc123")
	if err != nil {
		t.Fatalf("GetByCommitID failed: %v", err)
	}
	if patch == nil || patch.Subject != "Drivers: hv: fix abc123" {
		t.Errorf("Patch did not round-trip: %+v", patch)
	}
	if !patch.CommitTime.Equal(base) {
		t.Errorf("CommitTime did not round-trip: %v", patch.CommitTime)
	}

	// Listing is ordered by commit time, oldest first
	listed, err := repo.ListByCommitIDs([]string{"abc123", "def456"})
	if err != nil {
		t.Fatalf("ListByCommitIDs failed: %v", err)
	}
	if len(listed) != 2 || listed[0].CommitID != "def456" {
		t.Errorf("Expected commit-time order [def456 abc123], got %+v", listed)
	}

	ids, err := repo.ListCommitIDsOrdered()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"def456", "abc123"}, ids); diff != "" {
		t.Errorf("Ordered ids mismatch (-want +got):\n%s", diff)
	}
}

func TestPatchSymbols(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPatchRepository(db)

	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	if _, err := repo.InsertIfAbsent(testPatch("abc123", base)); err != nil {
		t.Fatal(err)
	}

	if err := repo.UpdateSymbols("abc123", "hv_init hv_post_message"); err != nil {
		t.Fatalf("UpdateSymbols failed: %v", err)
	}
	if err := repo.UpdateSymbols("nope", "x"); err == nil {
		t.Error("UpdateSymbols for unknown commit should fail")
	}

	withSymbols, err := repo.ListWithSymbols()
	if err != nil {
		t.Fatal(err)
	}
	if len(withSymbols) != 1 {
		t.Fatalf("Expected 1 patch with symbols, got %d", len(withSymbols))
	}
	set := withSymbols[0].SymbolSet()
	if _, ok := set["hv_post_message"]; !ok {
		t.Errorf("Symbol set missing entry: %v", set)
	}
}

func TestMissingPatchRepository(t *testing.T) {
	db := setupTestDB(t)
	distros := NewDistroRepository(db)
	subjects := NewSubjectRepository(db)
	patches := NewPatchRepository(db)
	missing := NewMissingPatchRepository(db)

	if err := distros.Upsert(&Distro{ID: "Ubuntu22.04", RepoLink: "url"}); err != nil {
		t.Fatal(err)
	}
	if err := subjects.Create(db, "Ubuntu22.04", "tag-a"); err != nil {
		t.Fatal(err)
	}
	subjectList, _ := subjects.ListByDistro("Ubuntu22.04")
	subjectID := subjectList[0].ID

	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	var patchIDs []int64
	for i, commit := range []string{"c1", "c2", "c3"} {
		if _, err := patches.InsertIfAbsent(testPatch(commit, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
		patch, _ := patches.GetByCommitID(commit)
		patchIDs = append(patchIDs, patch.ID)
		if err := missing.Insert(db, subjectID, patch.ID); err != nil {
			t.Fatal(err)
		}
	}

	exists, err := missing.Exists(db, subjectID, patchIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("Expected first pair to exist")
	}

	deleted, err := missing.DeleteNotIn(db, subjectID, patchIDs[1:])
	if err != nil {
		t.Fatalf("DeleteNotIn failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deletion, got %d", deleted)
	}

	ids, err := missing.PatchIDs(db, subjectID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 remaining pairs, got %v", ids)
	}

	// Empty keep clears the subject
	if _, err := missing.DeleteNotIn(db, subjectID, nil); err != nil {
		t.Fatal(err)
	}
	ids, _ = missing.PatchIDs(db, subjectID)
	if len(ids) != 0 {
		t.Errorf("Expected empty set, got %v", ids)
	}
}
