package git

import (
	"bytes"
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	diffmt "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/pbaumgart/loupe/internal/review"
)

// DiffHead diffs the HEAD commit's tree against the working tree,
// covering staged and unstaged changes alike. It fails with
// MissingHeadRevision when the repository has no commits, because a
// HEAD-relative diff is undefined without a HEAD.
func (r *Repository) DiffHead(ctx context.Context) (*review.Diff, error) {
	commit, branch, err := r.headCommit()
	if err != nil {
		return nil, err
	}
	if commit == nil {
		return nil, review.NewError(review.KindMissingHeadRevision, "repository has no head revision to diff")
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, gitError("read HEAD tree", err)
	}
	head := revisionFromCommit(commit, branch)
	return r.worktreeDiff(ctx, tree, review.RevisionRange{Base: &head})
}

// DiffWorkspace diffs uncommitted changes against the HEAD tree when
// one exists and against the empty tree otherwise. Unlike DiffHead it
// succeeds for a freshly initialized, commit-less repository that
// already has staged or untracked content.
func (r *Repository) DiffWorkspace(ctx context.Context) (*review.Diff, error) {
	commit, branch, err := r.headCommit()
	if err != nil {
		return nil, err
	}
	var tree *object.Tree
	var rng review.RevisionRange
	if commit != nil {
		if tree, err = commit.Tree(); err != nil {
			return nil, gitError("read HEAD tree", err)
		}
		base := revisionFromCommit(commit, branch)
		rng.Base = &base
	}
	return r.worktreeDiff(ctx, tree, rng)
}

// DiffUncommitted tries DiffWorkspace first and falls back to DiffHead.
// When both fail the workspace error is surfaced: it represents the
// preferred, more specific operation.
func (r *Repository) DiffUncommitted(ctx context.Context) (*review.Diff, error) {
	diff, wsErr := r.DiffWorkspace(ctx)
	if wsErr == nil {
		return diff, nil
	}
	diff, headErr := r.DiffHead(ctx)
	if headErr == nil {
		return diff, nil
	}
	return nil, wsErr
}

// DiffForRange diffs two arbitrary revisions. A nil base diffs against
// the empty tree; head must be present.
func (r *Repository) DiffForRange(ctx context.Context, rng review.RevisionRange) (*review.Diff, error) {
	if rng.Head == nil {
		return nil, review.NewError(review.KindGit, "revision range has no head revision")
	}
	headCommit, err := r.resolveCommit(*rng.Head)
	if err != nil {
		return nil, err
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, gitError("read head tree", err)
	}
	var baseTree *object.Tree
	if rng.Base != nil {
		baseCommit, err := r.resolveCommit(*rng.Base)
		if err != nil {
			return nil, err
		}
		if baseTree, err = baseCommit.Tree(); err != nil {
			return nil, gitError("read base tree", err)
		}
	}

	text, err := r.treeDiffText(ctx, baseTree, headTree)
	if err != nil {
		return nil, err
	}
	diff, err := buildDiff(rng, text)
	if err != nil {
		return nil, err
	}
	r.applyTreeBinaryStats(diff, baseTree, headTree)
	detectTreeCopies(diff, baseTree, headTree)
	return diff, nil
}

// treeDiffText encodes the change set between two trees as unified diff
// text, with go-git's rename detection applied at the configured score.
func (r *Repository) treeDiffText(ctx context.Context, from, to *object.Tree) (string, error) {
	opts := &object.DiffTreeOptions{DetectRenames: true, RenameScore: uint(r.cfg.RenameScore)}
	changes, err := object.DiffTreeWithOptions(ctx, from, to, opts)
	if err != nil {
		return "", gitError("diff trees", err)
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return "", gitError("build patch", err)
	}
	var buf bytes.Buffer
	if err := diffmt.NewUnifiedEncoder(&buf, r.cfg.ContextLines).Encode(patch); err != nil {
		return "", gitError("encode patch", err)
	}
	return buf.String(), nil
}

// applyTreeBinaryStats fills byte-delta stats for binary files, which
// carry no countable lines.
func (r *Repository) applyTreeBinaryStats(d *review.Diff, from, to *object.Tree) {
	for i := range d.Files {
		f := &d.Files[i]
		if !f.IsBinary {
			continue
		}
		oldPath := f.OldPath
		if oldPath == "" {
			oldPath = f.Path
		}
		f.Stats = byteDeltaStats(treeFileSize(from, oldPath), treeFileSize(to, f.Path))
	}
}

// detectTreeCopies upgrades added files to copied when their content
// hash matches a base-tree entry left untouched by the diff.
func detectTreeCopies(d *review.Diff, from, to *object.Tree) {
	if from == nil || to == nil {
		return
	}
	sources := unchangedBlobSources(d, from)
	if len(sources) == 0 {
		return
	}
	for i := range d.Files {
		f := &d.Files[i]
		if f.Status != review.StatusAdded {
			continue
		}
		file, err := to.File(f.Path)
		if err != nil {
			continue
		}
		if source, ok := sources[file.Hash]; ok {
			f.Status = review.StatusCopied
			f.OldPath = source
		}
	}
}

// unchangedBlobSources maps blob hashes of base-tree files the diff
// does not touch to their paths.
func unchangedBlobSources(d *review.Diff, base *object.Tree) map[plumbing.Hash]string {
	touched := make(map[string]struct{}, len(d.Files)*2)
	for _, f := range d.Files {
		touched[f.Path] = struct{}{}
		if f.OldPath != "" {
			touched[f.OldPath] = struct{}{}
		}
	}
	sources := map[plumbing.Hash]string{}
	iter := base.Files()
	defer iter.Close()
	_ = iter.ForEach(func(f *object.File) error {
		if _, ok := touched[f.Name]; ok {
			return nil
		}
		if _, ok := sources[f.Hash]; !ok {
			sources[f.Hash] = f.Name
		}
		return nil
	})
	return sources
}

func treeFileSize(tree *object.Tree, path string) int64 {
	if tree == nil || path == "" {
		return 0
	}
	file, err := tree.File(path)
	if err != nil {
		return 0
	}
	return file.Size
}

func byteDeltaStats(oldSize, newSize int64) review.DiffStats {
	if newSize >= oldSize {
		return review.DiffStats{Additions: int(newSize - oldSize)}
	}
	return review.DiffStats{Deletions: int(oldSize - newSize)}
}
