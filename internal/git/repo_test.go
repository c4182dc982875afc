package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/pbaumgart/loupe/internal/review"
)

func initRepo(t *testing.T) (*gitlib.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		dir = resolved
	}
	repo, err := gitlib.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	return repo, dir
}

func writeFile(t *testing.T, dir, path, content string) {
	t.Helper()
	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll(%s) error = %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func removeFile(t *testing.T, dir, path string) {
	t.Helper()
	if err := os.Remove(filepath.Join(dir, path)); err != nil {
		t.Fatalf("Remove(%s) error = %v", path, err)
	}
}

func commitAll(t *testing.T, repo *gitlib.Repository, msg string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if err := wt.AddWithOptions(&gitlib.AddOptions{All: true}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	hash, err := wt.Commit(msg, &gitlib.CommitOptions{
		Author: &object.Signature{
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
			When:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("Commit(%q) error = %v", msg, err)
	}
	return hash
}

func openRepo(t *testing.T, dir string) *Repository {
	t.Helper()
	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", dir, err)
	}
	return r
}

func TestOpen_NotARepository(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir())
	if !review.IsKind(err, review.KindNotARepository) {
		t.Fatalf("Open() error = %v, want kind %s", err, review.KindNotARepository)
	}
}

func TestOpen_MissingPath(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	if !review.IsKind(err, review.KindIO) {
		t.Fatalf("Open() error = %v, want kind %s", err, review.KindIO)
	}
}

func TestOpen_BareRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := gitlib.PlainInit(dir, true); err != nil {
		t.Fatalf("PlainInit(bare) error = %v", err)
	}
	_, err := Open(dir)
	if !review.IsKind(err, review.KindBareRepository) {
		t.Fatalf("Open() error = %v, want kind %s", err, review.KindBareRepository)
	}
}

func TestOpen_FromSubdirectory(t *testing.T) {
	t.Parallel()

	repo, dir := initRepo(t)
	writeFile(t, dir, "pkg/lib.go", "package lib\n")
	commitAll(t, repo, "initial")

	r := openRepo(t, filepath.Join(dir, "pkg"))
	if r.Root() != dir {
		t.Fatalf("Root() = %q, want %q", r.Root(), dir)
	}
}

func TestHeadRevision_EmptyRepository(t *testing.T) {
	t.Parallel()

	_, dir := initRepo(t)
	r := openRepo(t, dir)

	rev, err := r.HeadRevision()
	if err != nil {
		t.Fatalf("HeadRevision() error = %v", err)
	}
	if rev != nil {
		t.Fatalf("HeadRevision() = %+v, want nil", rev)
	}
	rng, err := r.RevisionRange()
	if err != nil {
		t.Fatalf("RevisionRange() error = %v", err)
	}
	if rng != nil {
		t.Fatalf("RevisionRange() = %+v, want nil", rng)
	}
}

func TestHeadRevision_PopulatesMetadata(t *testing.T) {
	t.Parallel()

	repo, dir := initRepo(t)
	writeFile(t, dir, "a.txt", "hello\n")
	hash := commitAll(t, repo, "add greeting\n\nlonger body")

	r := openRepo(t, dir)
	rev, err := r.HeadRevision()
	if err != nil {
		t.Fatalf("HeadRevision() error = %v", err)
	}
	if rev == nil {
		t.Fatal("HeadRevision() = nil, want revision")
	}
	if rev.OID != hash.String() {
		t.Fatalf("OID = %q, want %q", rev.OID, hash.String())
	}
	if rev.Summary != "add greeting" {
		t.Fatalf("Summary = %q, want first message line", rev.Summary)
	}
	if rev.Author == nil || rev.Author.Name != "Ada Lovelace" {
		t.Fatalf("Author = %+v, want Ada Lovelace", rev.Author)
	}
	if rev.Timestamp.IsZero() {
		t.Fatal("Timestamp is zero")
	}
}

func TestRevisionRange_UsesFirstParent(t *testing.T) {
	t.Parallel()

	repo, dir := initRepo(t)
	writeFile(t, dir, "a.txt", "one\n")
	first := commitAll(t, repo, "first")
	writeFile(t, dir, "a.txt", "one\ntwo\n")
	second := commitAll(t, repo, "second")

	r := openRepo(t, dir)
	rng, err := r.RevisionRange()
	if err != nil {
		t.Fatalf("RevisionRange() error = %v", err)
	}
	if rng == nil || rng.Head == nil || rng.Base == nil {
		t.Fatalf("RevisionRange() = %+v, want base and head", rng)
	}
	if rng.Head.OID != second.String() {
		t.Fatalf("head = %q, want %q", rng.Head.OID, second.String())
	}
	if rng.Base.OID != first.String() {
		t.Fatalf("base = %q, want %q", rng.Base.OID, first.String())
	}
}

func TestWorkspaceStatus_DirtyFlag(t *testing.T) {
	t.Parallel()

	repo, dir := initRepo(t)
	writeFile(t, dir, "a.txt", "clean\n")
	commitAll(t, repo, "initial")

	r := openRepo(t, dir)
	status, err := r.WorkspaceStatus()
	if err != nil {
		t.Fatalf("WorkspaceStatus() error = %v", err)
	}
	if status.Dirty {
		t.Fatal("Dirty = true for clean worktree")
	}
	if status.CurrentBranch == "" {
		t.Fatal("CurrentBranch is empty")
	}

	writeFile(t, dir, "a.txt", "dirty\n")
	status, err = r.WorkspaceStatus()
	if err != nil {
		t.Fatalf("WorkspaceStatus() error = %v", err)
	}
	if !status.Dirty {
		t.Fatal("Dirty = false after modification")
	}
}

func TestSnapshot_CombinesSections(t *testing.T) {
	t.Parallel()

	repo, dir := initRepo(t)
	writeFile(t, dir, "a.txt", "hello\n")
	hash := commitAll(t, repo, "initial")

	r := openRepo(t, dir)
	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Info.Root != dir {
		t.Fatalf("Root = %q, want %q", snap.Info.Root, dir)
	}
	if snap.Revisions == nil || snap.Revisions.Head == nil || snap.Revisions.Head.OID != hash.String() {
		t.Fatalf("Revisions.Head = %+v, want %s", snap.Revisions, hash.String())
	}
	if snap.Workspace.Dirty {
		t.Fatal("Workspace.Dirty = true for clean worktree")
	}
}
