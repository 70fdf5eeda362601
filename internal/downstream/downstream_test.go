package downstream

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"patchmon/internal/config"
	"patchmon/internal/errors"
	"patchmon/internal/gitrepo"
	"patchmon/internal/logging"
	"patchmon/internal/storage"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

type fakeResponse struct {
	output string
	err    error
}

// fakeRunner answers git invocations by longest matching prefix of the
// space-joined argument list and records every call
type fakeRunner struct {
	responses map[string]fakeResponse
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	cmd := strings.Join(args, " ")
	f.calls = append(f.calls, cmd)

	best := ""
	for prefix := range f.responses {
		if strings.HasPrefix(cmd, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", nil
	}
	resp := f.responses[best]
	return resp.output, resp.err
}

// gitError mimics what the exec runner returns for a non-zero git exit
func gitError(stderr string) error {
	return errors.New(errors.InternalError, "git command failed", nil).
		WithDetails(map[string]interface{}{"stderr": stderr})
}

func newFakeRepo(t *testing.T, runner *fakeRunner) *gitrepo.Repo {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	repo, err := gitrepo.Open(dir, testLogger(), gitrepo.WithRunner(runner))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return repo
}

func TestSelectRevisions(t *testing.T) {
	tags := []string{
		"Ubuntu-azure-5.15.0-1033.40",
		"Ubuntu-azure-6.2.0-1005.5",
		"Ubuntu-azure-edge-6.2.0-1006.6",
		"Ubuntu-azure-cvm-5.15.0-1035.42",
		"Ubuntu-azure-fde-5.15.0-1033.40",
		"Ubuntu-azure-5.15.0-1034.41",
		"Ubuntu-hwe-5.19.0-42.43",
	}

	got := SelectRevisions("azure", tags)
	want := []string{
		"Ubuntu-azure-5.15.0-1034.41",
		"Ubuntu-azure-6.2.0-1005.5",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SelectRevisions mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectRevisionsIsPure(t *testing.T) {
	tags := []string{
		"Ubuntu-azure-6.2.0-1005.5",
		"Ubuntu-azure-5.15.0-1034.41",
		"Ubuntu-azure-5.15.0-1033.40",
	}
	shuffled := []string{
		"Ubuntu-azure-5.15.0-1033.40",
		"Ubuntu-azure-6.2.0-1005.5",
		"Ubuntu-azure-5.15.0-1034.41",
	}

	first := SelectRevisions("azure", tags)
	second := SelectRevisions("azure", tags)
	third := SelectRevisions("azure", shuffled)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeat call differs:\n%s", diff)
	}
	if diff := cmp.Diff(first, third); diff != "" {
		t.Errorf("input order changed the selection:\n%s", diff)
	}
}

func TestSelectRevisionsAbiOrdering(t *testing.T) {
	tags := []string{
		"Ubuntu-azure-5.15.0-1100.107",
		"Ubuntu-azure-5.15.0-1034.41",
		"Ubuntu-azure-5.15.0-1034.40",
	}

	got := SelectRevisions("azure", tags)
	want := []string{
		"Ubuntu-azure-5.15.0-1034.41",
		"Ubuntu-azure-5.15.0-1100.107",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ABI ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestFlavor(t *testing.T) {
	cases := []struct {
		distroID string
		want     string
	}{
		{"ubuntu-azure", "azure"},
		{"ubuntu-azure-22.04", "azure"},
		{"debian", "debian"},
	}
	for _, tc := range cases {
		if got := Flavor(tc.distroID); got != tc.want {
			t.Errorf("Flavor(%q) = %q, want %q", tc.distroID, got, tc.want)
		}
	}
}

func TestMissingCandidates(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"log --pretty=format:%H --no-merges --since": {
			output: "aaa\nbbb\nccc",
		},
		"log --pretty=format:%H --no-merges --cherry-pick --right-only --since": {
			output: "bbb\nccc\nddd",
		},
	}}
	repo := newFakeRepo(t, runner)

	got, err := MissingCandidates(context.Background(), repo, "origin/master", "ubuntu-azure/tag", "2023-01-01", []string{"drivers/hv/"})
	if err != nil {
		t.Fatalf("MissingCandidates failed: %v", err)
	}

	// ddd never touched a tracked path, aaa has a patch-equivalent
	// twin downstream
	want := []string{"bbb", "ccc"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureRevisionOutsideWindow(t *testing.T) {
	head := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"log -1 --format=%ct": {output: "1577836800"}, // 2020-01-01
	}}
	repo := newFakeRepo(t, runner)

	windowStart := head.AddDate(3, 0, 0)
	localRef, err := EnsureRevision(context.Background(), repo, "ubuntu-azure", "Ubuntu-azure-5.15.0-1034.41", windowStart, "2023-01-01", testLogger())
	if err != nil {
		t.Fatalf("EnsureRevision failed: %v", err)
	}
	if localRef != "ubuntu-azure/Ubuntu-azure-5.15.0-1034.41" {
		t.Errorf("localRef = %q", localRef)
	}

	fetches := 0
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "fetch") {
			fetches++
		}
	}
	if fetches != 1 {
		t.Errorf("head predates the window, want only the probe fetch, got %d fetches:\n%s",
			fetches, strings.Join(runner.calls, "\n"))
	}
}

func TestEnsureRevisionWidensInsideWindow(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"log -1 --format=%ct": {output: "1700000000"}, // late 2023
	}}
	repo := newFakeRepo(t, runner)

	windowStart := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := EnsureRevision(context.Background(), repo, "ubuntu-azure", "tag", windowStart, "2023-01-01", testLogger())
	if err != nil {
		t.Fatalf("EnsureRevision failed: %v", err)
	}

	var shallowSince bool
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "fetch --shallow-since=2023-01-01") {
			shallowSince = true
		}
	}
	if !shallowSince {
		t.Errorf("head inside the window, want a shallow-since re-fetch, calls:\n%s",
			strings.Join(runner.calls, "\n"))
	}
}

func TestEnsureRevisionFallsBackOnUnsupported(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"log -1 --format=%ct": {output: "1700000000"},
		"fetch --shallow-since": {
			err: gitError("fatal: Server does not support --shallow-since"),
		},
	}}
	repo := newFakeRepo(t, runner)

	windowStart := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := EnsureRevision(context.Background(), repo, "ubuntu-azure", "tag", windowStart, "2023-01-01", testLogger())
	if err != nil {
		t.Fatalf("EnsureRevision should fall back to a full fetch, got: %v", err)
	}

	last := runner.calls[len(runner.calls)-1]
	want := "fetch ubuntu-azure +refs/tags/tag:refs/heads/ubuntu-azure/tag"
	if last != want {
		t.Errorf("last call = %q, want unbounded fetch %q", last, want)
	}
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

// seedSubject creates a distro, one subject, and n parsed patches,
// returning the subject ID and patch IDs in commit-time order
func seedSubject(t *testing.T, db *storage.DB, n int) (int64, []int64) {
	t.Helper()
	distros := storage.NewDistroRepository(db)
	subjects := storage.NewSubjectRepository(db)
	patches := storage.NewPatchRepository(db)

	if err := distros.Upsert(&storage.Distro{ID: "ubuntu-azure", RepoLink: "https://example.com/azure.git"}); err != nil {
		t.Fatal(err)
	}
	if err := subjects.Create(db, "ubuntu-azure", "Ubuntu-azure-5.15.0-1034.41"); err != nil {
		t.Fatal(err)
	}
	listed, err := subjects.List()
	if err != nil || len(listed) != 1 {
		t.Fatalf("listing subjects: %v (%d found)", err, len(listed))
	}

	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		commitID := strings.Repeat(string(rune('a'+i)), 8)
		patch := &storage.Patch{
			CommitID:   commitID,
			Subject:    "patch " + commitID,
			CommitTime: base.Add(time.Duration(i) * time.Hour),
			AuthorTime: base.Add(time.Duration(i) * time.Hour),
		}
		if _, err := patches.InsertIfAbsent(patch); err != nil {
			t.Fatal(err)
		}
		stored, err := patches.GetByCommitID(commitID)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, stored.ID)
	}
	return listed[0].ID, ids
}

func missingSet(t *testing.T, db *storage.DB, subjectID int64) []int64 {
	t.Helper()
	got, err := storage.NewMissingPatchRepository(db).PatchIDs(db, subjectID)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	return got
}

func TestReconcileIdempotent(t *testing.T) {
	db := setupTestDB(t)
	subjectID, patchIDs := seedSubject(t, db, 3)
	m := NewMonitor(nil, db, nil, config.DefaultConfig(), testLogger())
	subject := storage.MonitoringSubject{ID: subjectID, DistroID: "ubuntu-azure", Revision: "r"}

	target := []int64{patchIDs[0], patchIDs[2]}
	for i := 0; i < 3; i++ {
		if err := m.reconcile(subject, target, testLogger()); err != nil {
			t.Fatalf("reconcile run %d failed: %v", i, err)
		}
		if diff := cmp.Diff(target, missingSet(t, db, subjectID)); diff != "" {
			t.Errorf("run %d set mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestReconcileConvergesToComputedSet(t *testing.T) {
	db := setupTestDB(t)
	subjectID, patchIDs := seedSubject(t, db, 4)
	m := NewMonitor(nil, db, nil, config.DefaultConfig(), testLogger())
	subject := storage.MonitoringSubject{ID: subjectID, DistroID: "ubuntu-azure", Revision: "r"}

	if err := m.reconcile(subject, []int64{patchIDs[0], patchIDs[1]}, testLogger()); err != nil {
		t.Fatal(err)
	}

	// A later run computes a shifted set: one patch got backported,
	// two new ones arrived.
	target := []int64{patchIDs[1], patchIDs[2], patchIDs[3]}
	if err := m.reconcile(subject, target, testLogger()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(target, missingSet(t, db, subjectID)); diff != "" {
		t.Errorf("set mismatch (-want +got):\n%s", diff)
	}

	// Everything backported: the stored set empties out.
	if err := m.reconcile(subject, nil, testLogger()); err != nil {
		t.Fatal(err)
	}
	if got := missingSet(t, db, subjectID); len(got) != 0 {
		t.Errorf("want empty set, got %v", got)
	}
}

func TestReconcileRecoversFromPartialState(t *testing.T) {
	db := setupTestDB(t)
	subjectID, patchIDs := seedSubject(t, db, 3)
	m := NewMonitor(nil, db, nil, config.DefaultConfig(), testLogger())
	subject := storage.MonitoringSubject{ID: subjectID, DistroID: "ubuntu-azure", Revision: "r"}
	missing := storage.NewMissingPatchRepository(db)

	target := []int64{patchIDs[0], patchIDs[1], patchIDs[2]}

	// State as if a previous run stopped after the delete phase:
	// stale rows gone, only part of the target set inserted.
	if err := missing.Insert(db, subjectID, patchIDs[0]); err != nil {
		t.Fatal(err)
	}

	if err := m.reconcile(subject, target, testLogger()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if diff := cmp.Diff(target, missingSet(t, db, subjectID)); diff != "" {
		t.Errorf("partial state not repaired (-want +got):\n%s", diff)
	}
}

func TestRefreshSubjectsIsolatesDistroFailure(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"ls-remote --tags --refs bad-azure": {err: gitError("could not resolve host")},
		"ls-remote --tags --refs good-azure": {output: strings.Join([]string{
			"aaa\trefs/tags/Ubuntu-azure-5.15.0-1034.41",
			"bbb\trefs/tags/Ubuntu-azure-6.2.0-1005.5",
		}, "\n")},
	}}
	repo := newFakeRepo(t, runner)
	db := setupTestDB(t)
	cfg := config.DefaultConfig()
	cfg.Distros = []config.DistroConfig{
		{Name: "bad-azure", Repo: "https://example.com/bad.git"},
		{Name: "good-azure", Repo: "https://example.com/good.git"},
	}
	m := NewMonitor(repo, db, nil, cfg, testLogger())

	err := m.refreshSubjects(context.Background(), testLogger())
	if err == nil {
		t.Fatal("Expected the unreachable distro's failure to be reported")
	}

	// The failing distro must not keep the healthy one from refreshing.
	subjects, listErr := storage.NewSubjectRepository(db).ListByDistro("good-azure")
	if listErr != nil {
		t.Fatal(listErr)
	}
	var revisions []string
	for _, subject := range subjects {
		revisions = append(revisions, subject.Revision)
	}
	want := []string{"Ubuntu-azure-5.15.0-1034.41", "Ubuntu-azure-6.2.0-1005.5"}
	if diff := cmp.Diff(want, revisions); diff != "" {
		t.Errorf("healthy distro not refreshed (-want +got):\n%s", diff)
	}
}

func TestGitTimestampCarriesZoneOffset(t *testing.T) {
	ts := time.Date(2025, 7, 1, 10, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	got := gitTimestamp(ts)
	want := "2025-07-01 08:30:00 +0000"
	if got != want {
		t.Errorf("gitTimestamp = %q, want %q", got, want)
	}
}
