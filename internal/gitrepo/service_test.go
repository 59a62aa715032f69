package gitrepo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"rulehistory/internal/rules"
)

var testIdentity = Identity{Name: "Rules Bot", Email: "rules@example.com"}

func mustDate(t *testing.T, value string) rules.Date {
	t.Helper()
	d, err := rules.ParseDate(value)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", value, err)
	}
	return d
}

func revision(t *testing.T, slug, path, date, content string) rules.Revision {
	t.Helper()
	d := mustDate(t, date)
	return rules.Revision{
		Document: rules.DocumentID{Category: "ndrappp", Slug: slug},
		Path:     path,
		Key:      rules.Key{Effective: d},
		Content:  content,
		When:     d.CommitTime(),
		Message:  slug + ": Update effective " + d.Long(),
	}
}

func ensure(t *testing.T) (*Service, *Repo) {
	t.Helper()
	svc := New(t.TempDir(), testIdentity)
	repo, err := svc.Ensure("ndrappp", "# Rules\n")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return svc, repo
}

func TestEnsureCreatesReadmeCommit(t *testing.T) {
	svc, repo := ensure(t)

	if _, err := os.Stat(filepath.Join(svc.Path("ndrappp"), "README.md")); err != nil {
		t.Fatalf("README missing: %v", err)
	}
	log, err := repo.Log("", 0)
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(log) != 1 || log[0].Subject != "Initialize repository" {
		t.Fatalf("unexpected log %+v", log)
	}
	if !log[0].When.Equal(readmeTime) {
		t.Fatalf("README commit time = %v, want %v", log[0].When, readmeTime)
	}

	again, err := svc.Ensure("ndrappp", "# Other\n")
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if n, _ := again.CommitCount(); n != 1 {
		t.Fatalf("CommitCount() = %d after second Ensure, want 1", n)
	}
}

func TestOpenMissingRepository(t *testing.T) {
	svc := New(t.TempDir(), testIdentity)
	if _, err := svc.Open("ndrct"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Open() error = %v, want ErrNotInitialized", err)
	}
}

func TestWriteAndCommitRecordsBackdatedVersion(t *testing.T) {
	_, repo := ensure(t)

	rev := revision(t, "rule-28", "rule-28.md", "2001-01-01", "A\n")
	hash, err := repo.WriteAndCommit(rev)
	if err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}

	latest, ok, err := repo.LatestState("rule-28.md")
	if err != nil || !ok {
		t.Fatalf("LatestState() = %v, %v", ok, err)
	}
	if latest.Commit != hash || latest.Content != "A\n" || latest.Key.Effective.String() != "2001-01-01" {
		t.Fatalf("unexpected latest state %+v", latest)
	}
	want := time.Date(2001, time.January, 1, 12, 0, 0, 0, time.UTC)
	if !latest.When.Equal(want) {
		t.Fatalf("commit time = %v, want %v", latest.When, want)
	}

	// A fresh handle rebuilds the same state from the repository alone.
	svc := New(filepath.Dir(repo.repoRoot(t)), testIdentity)
	reopened, err := svc.Open("ndrappp")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	again, ok, err := reopened.LatestState("rule-28.md")
	if err != nil || !ok {
		t.Fatalf("reopened LatestState() = %v, %v", ok, err)
	}
	if again.Commit != latest.Commit || again.Message != latest.Message {
		t.Fatalf("reopened state %+v differs from %+v", again, latest)
	}
}

// commitForeign records a commit made by hand in the repository's worktree.
func commitForeign(t *testing.T, repo *Repo, file, msg string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(repo.repoRoot(t), file), []byte(msg), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	worktree, err := repo.repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if _, err := worktree.Add(file); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	sig := &object.Signature{Name: "Someone", Email: "someone@example.com", When: time.Date(2020, time.May, 1, 9, 0, 0, 0, time.UTC)}
	if _, err := worktree.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestSnapshotSkipsCommitsWithUnusableTrailers(t *testing.T) {
	_, repo := ensure(t)
	if _, err := repo.WriteAndCommit(revision(t, "rule-28", "rule-28.md", "2001-01-01", "A\n")); err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}

	for _, msg := range []string{
		"Import notes\n\nDocument: ndrappp/rule-28\nPath: notes.txt\nEffective-Date: someday\n",
		"Import notes\n\nDocument: not a document\nPath: notes.txt\nEffective-Date: 2005-01-01\n",
		"Import notes\n\nDocument: ndrappp/rule-99\nPath: rule-99.md\nEffective-Date: 2005-01-01\n",
		"Import notes\n\nReviewed-by: someone\nEffective-Date: 2005-01-01\n",
	} {
		commitForeign(t, repo, "notes.txt", msg)
	}

	snap, err := repo.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if paths := snap.Paths(); len(paths) != 1 || paths[0] != "rule-28.md" {
		t.Fatalf("Paths() = %v, want [rule-28.md]", paths)
	}
	if snap.Commits != 6 {
		t.Fatalf("Commits = %d, want 6", snap.Commits)
	}

	log, err := repo.Log("", 0)
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(log) != 6 || log[0].Key != "" || log[0].Subject != "Import notes" {
		t.Fatalf("unexpected log %+v", log)
	}

	if _, err := repo.WriteAndCommit(revision(t, "rule-28", "rule-28.md", "2010-06-01", "B\n")); err != nil {
		t.Fatalf("WriteAndCommit() after foreign commits error = %v", err)
	}
	history, err := repo.History("rule-28.md")
	if err != nil || len(history) != 2 {
		t.Fatalf("History() = %+v, %v", history, err)
	}
}

func TestNewVersionLeavesEarlierCommitAlone(t *testing.T) {
	_, repo := ensure(t)

	first, err := repo.WriteAndCommit(revision(t, "rule-28", "rule-28.md", "2001-01-01", "A\n"))
	if err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}
	if _, err := repo.WriteAndCommit(revision(t, "rule-28", "rule-28.md", "2010-06-01", "B\n")); err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}

	history, err := repo.History("rule-28.md")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(history))
	}
	if history[0].Commit != first || history[0].Content != "A\n" {
		t.Fatalf("first version changed: %+v", history[0])
	}
	if history[1].Content != "B\n" || history[1].Key.Effective.String() != "2010-06-01" {
		t.Fatalf("unexpected second version %+v", history[1])
	}
}

func TestAmendLastCommitPreservesTimestampAndCount(t *testing.T) {
	_, repo := ensure(t)

	if _, err := repo.WriteAndCommit(revision(t, "rule-28", "rule-28.md", "2001-01-01", "A\n")); err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}
	before, _ := repo.CommitCount()

	_, rewritten, err := repo.AmendLastCommit("rule-28.md", "A-fixed-typo\n", "rule-28: Update effective January 1, 2001\n\nCorrected.")
	if err != nil {
		t.Fatalf("AmendLastCommit() error = %v", err)
	}
	if rewritten != 0 {
		t.Fatalf("rewritten = %d, want 0", rewritten)
	}

	after, _ := repo.CommitCount()
	if after != before {
		t.Fatalf("CommitCount() = %d, want %d", after, before)
	}
	latest, ok, err := repo.LatestState("rule-28.md")
	if err != nil || !ok {
		t.Fatalf("LatestState() = %v, %v", ok, err)
	}
	if latest.Content != "A-fixed-typo\n" {
		t.Fatalf("content = %q", latest.Content)
	}
	if !latest.When.Equal(time.Date(2001, time.January, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp moved to %v", latest.When)
	}
	if latest.Key.Effective.String() != "2001-01-01" {
		t.Fatalf("trailers lost: %+v", latest)
	}
	if !strings.Contains(latest.Message, "Corrected.") {
		t.Fatalf("message not replaced: %q", latest.Message)
	}

	onDisk, err := os.ReadFile(filepath.Join(repo.repoRoot(t), "rule-28.md"))
	if err != nil {
		t.Fatalf("read worktree file: %v", err)
	}
	if string(onDisk) != "A-fixed-typo\n" {
		t.Fatalf("worktree not reset, got %q", onDisk)
	}
}

func TestAmendReplaysLaterCommitsOfOtherPaths(t *testing.T) {
	_, repo := ensure(t)

	if _, err := repo.WriteAndCommit(revision(t, "rule-28", "ndrappp/rule-28.md", "2001-01-01", "A\n")); err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}
	if _, err := repo.WriteAndCommit(revision(t, "rule-29", "ndrappp/rule-29.md", "2002-01-01", "Z\n")); err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}
	before, _ := repo.Log("", 0)

	_, rewritten, err := repo.AmendLastCommit("ndrappp/rule-28.md", "A2\n", "rule-28 corrected")
	if err != nil {
		t.Fatalf("AmendLastCommit() error = %v", err)
	}
	if rewritten != 1 {
		t.Fatalf("rewritten = %d, want 1", rewritten)
	}

	after, _ := repo.Log("", 0)
	if len(after) != len(before) {
		t.Fatalf("commit count changed from %d to %d", len(before), len(after))
	}
	for i := range after {
		if after[i].Subject != before[i].Subject && i != 1 {
			t.Fatalf("commit %d subject changed: %q -> %q", i, before[i].Subject, after[i].Subject)
		}
		if !after[i].When.Equal(before[i].When) {
			t.Fatalf("commit %d time changed: %v -> %v", i, before[i].When, after[i].When)
		}
	}

	rule29, _, err := repo.LatestState("ndrappp/rule-29.md")
	if err != nil || rule29.Content != "Z\n" {
		t.Fatalf("rule-29 state = %+v, %v", rule29, err)
	}
	asOf, ok, err := repo.ContentAsOf("ndrappp/rule-28.md", mustDate(t, "2003-01-01"))
	if err != nil || !ok || asOf.Content != "A2\n" {
		t.Fatalf("ContentAsOf() = %+v, %v, %v", asOf, ok, err)
	}
}

func TestAmendWithoutCommitFails(t *testing.T) {
	_, repo := ensure(t)
	if _, _, err := repo.AmendLastCommit("rule-1.md", "x\n", "msg"); !errors.Is(err, ErrNoCommit) {
		t.Fatalf("AmendLastCommit() error = %v, want ErrNoCommit", err)
	}
}

func TestContentAsOf(t *testing.T) {
	_, repo := ensure(t)
	for _, rev := range []rules.Revision{
		revision(t, "rule-28", "rule-28.md", "2001-01-01", "A\n"),
		revision(t, "rule-28", "rule-28.md", "2010-06-01", "B\n"),
	} {
		if _, err := repo.WriteAndCommit(rev); err != nil {
			t.Fatalf("WriteAndCommit() error = %v", err)
		}
	}

	cases := map[string]string{"2000-12-31": "", "2001-01-01": "A\n", "2010-05-31": "A\n", "2024-01-01": "B\n"}
	for date, want := range cases {
		got, ok, err := repo.ContentAsOf("rule-28.md", mustDate(t, date))
		if err != nil {
			t.Fatalf("ContentAsOf(%s) error = %v", date, err)
		}
		if want == "" && ok {
			t.Fatalf("ContentAsOf(%s) = %q, want nothing", date, got.Content)
		}
		if want != "" && got.Content != want {
			t.Fatalf("ContentAsOf(%s) = %q, want %q", date, got.Content, want)
		}
	}
}

func TestRebuildIsDeterministic(t *testing.T) {
	build := func() string {
		_, repo := ensure(t)
		for _, rev := range []rules.Revision{
			revision(t, "rule-28", "rule-28.md", "2001-01-01", "A\n"),
			revision(t, "rule-28", "rule-28.md", "2010-06-01", "B\n"),
		} {
			if _, err := repo.WriteAndCommit(rev); err != nil {
				t.Fatalf("WriteAndCommit() error = %v", err)
			}
		}
		log, err := repo.Log("", 1)
		if err != nil {
			t.Fatalf("Log() error = %v", err)
		}
		return log[0].Hash
	}
	if a, b := build(), build(); a != b {
		t.Fatalf("rebuilt head %s differs from %s", b, a)
	}
}

func TestResetRemovesRepository(t *testing.T) {
	svc, _ := ensure(t)
	if err := svc.Reset("ndrappp"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if svc.Exists("ndrappp") {
		t.Fatal("repository still exists after Reset()")
	}
}

func (r *Repo) repoRoot(t *testing.T) string {
	t.Helper()
	worktree, err := r.repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	return worktree.Filesystem.Root()
}
