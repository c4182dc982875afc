// Package git wraps go-git with the repository operations loupe needs:
// opening a working copy, reading snapshot metadata, and computing
// structured diffs between trees or against the live working tree.
package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/pbaumgart/loupe/internal/review"
)

// Config tunes diff construction. The zero value is not useful; use
// DefaultConfig.
type Config struct {
	// ContextLines is the number of unchanged lines emitted around each
	// hunk.
	ContextLines int
	// RenameScore is the content similarity percentage (0-100) at which
	// a deleted+added pair is classified as a rename.
	RenameScore int
}

// DefaultConfig matches git's defaults except for the rename cutoff,
// which is fixed at 50%.
func DefaultConfig() Config {
	return Config{ContextLines: 3, RenameScore: defaultRenameScore}
}

const defaultRenameScore = 50

// Repository is a handle to an opened, non-bare git repository.
type Repository struct {
	repo *gitlib.Repository
	root string
	cfg  Config
}

// Open opens the repository containing path with default diff settings.
func Open(path string) (*Repository, error) {
	return OpenWithConfig(path, DefaultConfig())
}

// OpenWithConfig opens the repository containing path. It fails with
// NotARepository when the path is not under version control,
// BareRepository when the repository has no working tree, and IO when
// the path cannot be accessed at all.
func OpenWithConfig(path string, cfg Config) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, review.WrapError(review.KindIO, err, fmt.Sprintf("resolve %s: %v", path, err))
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, review.WrapError(review.KindIO, err, fmt.Sprintf("access %s: %v", abs, err))
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gitlib.ErrRepositoryNotExists) {
			return nil, review.Errorf(review.KindNotARepository, "path does not reference a git repository: %s", abs)
		}
		return nil, gitError("open repository", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, gitlib.ErrIsBareRepository) {
			return nil, review.Errorf(review.KindBareRepository, "repository at %s is bare and unsupported", abs)
		}
		return nil, gitError("open worktree", err)
	}
	if cfg.ContextLines <= 0 {
		cfg.ContextLines = DefaultConfig().ContextLines
	}
	if cfg.RenameScore <= 0 || cfg.RenameScore > 100 {
		cfg.RenameScore = defaultRenameScore
	}
	return &Repository{repo: repo, root: wt.Filesystem.Root(), cfg: cfg}, nil
}

// Root returns the absolute path of the repository working tree.
func (r *Repository) Root() string {
	return r.root
}

// Info returns static repository metadata.
func (r *Repository) Info() (review.RepositoryInfo, error) {
	branch, err := r.defaultBranch()
	if err != nil {
		return review.RepositoryInfo{}, err
	}
	return review.RepositoryInfo{Root: r.root, DefaultBranch: branch}, nil
}

// WorkspaceStatus reports the checked-out branch and whether any
// uncommitted modifications (staged, unstaged, or untracked) exist.
func (r *Repository) WorkspaceStatus() (review.WorkspaceStatus, error) {
	branch := r.currentBranch()
	wt, err := r.repo.Worktree()
	if err != nil {
		return review.WorkspaceStatus{}, gitError("open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return review.WorkspaceStatus{}, gitError("read status", err)
	}
	return review.WorkspaceStatus{CurrentBranch: branch, Dirty: !status.IsClean()}, nil
}

// HeadRevision returns the current HEAD commit, or nil when the
// repository has no commits yet. Absence is not an error.
func (r *Repository) HeadRevision() (*review.Revision, error) {
	commit, branch, err := r.headCommit()
	if err != nil || commit == nil {
		return nil, err
	}
	rev := revisionFromCommit(commit, branch)
	return &rev, nil
}

// BaseRevision returns the first parent of HEAD, or nil when HEAD is
// absent or a root commit.
func (r *Repository) BaseRevision() (*review.Revision, error) {
	commit, _, err := r.headCommit()
	if err != nil || commit == nil {
		return nil, err
	}
	if commit.NumParents() == 0 {
		return nil, nil
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, gitError("resolve parent commit", err)
	}
	rev := revisionFromCommit(parent, "")
	return &rev, nil
}

// RevisionRange returns the base/head pair representing the pending
// review, or nil for an empty repository.
func (r *Repository) RevisionRange() (*review.RevisionRange, error) {
	commit, branch, err := r.headCommit()
	if err != nil || commit == nil {
		return nil, err
	}
	head := revisionFromCommit(commit, branch)
	rng := &review.RevisionRange{Head: &head}
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return nil, gitError("resolve parent commit", err)
		}
		base := revisionFromCommit(parent, "")
		rng.Base = &base
	}
	return rng, nil
}

// Snapshot bundles info, workspace status, and the pending revision
// range into one consistent read.
func (r *Repository) Snapshot() (*review.RepositorySnapshot, error) {
	info, err := r.Info()
	if err != nil {
		return nil, err
	}
	workspace, err := r.WorkspaceStatus()
	if err != nil {
		return nil, err
	}
	revisions, err := r.RevisionRange()
	if err != nil {
		return nil, err
	}
	return &review.RepositorySnapshot{Info: info, Workspace: workspace, Revisions: revisions}, nil
}

// Refresh re-derives the snapshot after external mutation, e.g. an
// agent process committing. go-git reads repository state from disk on
// every call, so this is Snapshot with intent signalled.
func (r *Repository) Refresh() (*review.RepositorySnapshot, error) {
	return r.Snapshot()
}

func (r *Repository) currentBranch() string {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil || head.Type() != plumbing.SymbolicReference {
		return ""
	}
	target := head.Target()
	if !target.IsBranch() {
		return ""
	}
	return target.Short()
}

func (r *Repository) defaultBranch() (string, error) {
	ref, err := r.repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), false)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", gitError("resolve origin HEAD", err)
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", nil
	}
	return ref.Target().Short(), nil
}

// headCommit resolves HEAD to a commit plus the checked-out branch
// name. A repository with no commits yields (nil, "", nil).
func (r *Repository) headCommit() (*object.Commit, string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, "", nil
		}
		return nil, "", gitError("resolve HEAD", err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, "", gitError("read HEAD commit", err)
	}
	branch := ""
	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}
	return commit, branch, nil
}

func (r *Repository) resolveCommit(rev review.Revision) (*object.Commit, error) {
	target := rev.OID
	if target == "" {
		target = rev.Reference
	}
	if target == "" {
		return nil, review.NewError(review.KindGit, "revision has neither oid nor reference")
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(target))
	if err != nil {
		return nil, gitError(fmt.Sprintf("resolve revision %s", target), err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, gitError(fmt.Sprintf("read commit %s", target), err)
	}
	return commit, nil
}

func revisionFromCommit(c *object.Commit, reference string) review.Revision {
	return review.Revision{
		OID:       c.Hash.String(),
		Reference: reference,
		Summary:   strings.SplitN(strings.TrimSpace(c.Message), "\n", 2)[0],
		Author:    signatureFrom(c.Author),
		Committer: signatureFrom(c.Committer),
		Timestamp: c.Committer.When,
	}
}

func signatureFrom(sig object.Signature) *review.Signature {
	if sig.Name == "" && sig.Email == "" {
		return nil
	}
	return &review.Signature{Name: sig.Name, Email: sig.Email}
}

func gitError(op string, err error) *review.Error {
	return review.WrapError(review.KindGit, err, fmt.Sprintf("%s: %v", op, err))
}
